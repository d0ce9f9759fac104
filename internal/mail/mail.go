// Package mail defines the outgoing message model and the Sender contract
// implemented by every transport (Gmail API, SMTP, SES, stdout).
package mail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"strings"

	"github.com/jhillyerd/enmime"
)

// MaxAttachmentSize is the largest attachment set most providers accept (25MB).
const MaxAttachmentSize = 25 * 1024 * 1024

// SuccessDescription is the description of a delivered message.
const SuccessDescription = "Correo enviado correctamente."

// ErrNoRecipients is returned by Validate when To, CC and BCC are all empty.
var ErrNoRecipients = errors.New("message has no recipients")

// Message is one outgoing HTML email.
type Message struct {
	From        string
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	HTML        string
	Attachments []string
}

// Result is what a transport reports back: a success flag and a human-readable
// description. Transport errors are carried verbatim in Description.
type Result struct {
	Success     bool
	Description string
}

// Sender delivers messages. Send never panics or returns transport errors;
// failures are reported through Result.
type Sender interface {
	Send(ctx context.Context, msg *Message) Result

	// Name returns the transport name.
	Name() string
}

// Delivered returns the successful Result.
func Delivered() Result {
	return Result{Success: true, Description: SuccessDescription}
}

// Failed maps err to an unsuccessful Result.
func Failed(err error) Result {
	return Result{Success: false, Description: err.Error()}
}

// Err returns nil for a successful result, otherwise an error with the description.
func (r Result) Err() error {
	if r.Success {
		return nil
	}
	return errors.New(r.Description)
}

// Validate checks that msg can be sent.
func (m *Message) Validate() error {
	if len(m.To)+len(m.CC)+len(m.BCC) == 0 {
		return ErrNoRecipients
	}
	if strings.TrimSpace(m.Subject) == "" {
		return errors.New("message has no subject")
	}
	return nil
}

// Recipients returns every envelope recipient.
func (m *Message) Recipients() []string {
	out := make([]string, 0, len(m.To)+len(m.CC)+len(m.BCC))
	out = append(out, m.To...)
	out = append(out, m.CC...)
	return append(out, m.BCC...)
}

// BuildMIME renders msg as an RFC 5322 message with its attachments. When
// withBcc is set the Bcc header is kept, which the Gmail API needs to route
// blind copies.
func BuildMIME(msg *Message, withBcc bool) ([]byte, error) {
	if err := msg.Validate(); err != nil {
		return nil, err
	}

	from, err := netmail.ParseAddress(msg.From)
	if err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", msg.From, err)
	}

	b := enmime.Builder().
		From(from.Name, from.Address).
		Subject(msg.Subject).
		HTML([]byte(msg.HTML))

	to, err := parseList(msg.To)
	if err != nil {
		return nil, err
	}
	cc, err := parseList(msg.CC)
	if err != nil {
		return nil, err
	}
	bcc, err := parseList(msg.BCC)
	if err != nil {
		return nil, err
	}
	if len(to) > 0 {
		b = b.ToAddrs(to)
	}
	if len(cc) > 0 {
		b = b.CCAddrs(cc)
	}
	if len(bcc) > 0 {
		b = b.BCCAddrs(bcc)
		if withBcc {
			b = b.Header("Bcc", strings.Join(msg.BCC, ", "))
		}
	}
	for _, path := range msg.Attachments {
		b = b.AddFileAttachment(path)
	}

	part, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

func parseList(addrs []string) ([]netmail.Address, error) {
	out := make([]netmail.Address, 0, len(addrs))
	for _, a := range addrs {
		parsed, err := netmail.ParseAddress(a)
		if err != nil {
			return nil, fmt.Errorf("invalid address %q: %w", a, err)
		}
		out = append(out, *parsed)
	}
	return out, nil
}
