// Package stdout implements a mail.Sender that prints messages instead of
// sending them. It backs dry runs.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/smartbots/docdispatch/internal/mail"
)

// Sender prints messages in a human-readable format.
type Sender struct {
	writer io.Writer
}

// New returns a Sender writing to os.Stdout.
func New() *Sender {
	return &Sender{writer: os.Stdout}
}

// NewWithWriter returns a Sender writing to w.
func NewWithWriter(w io.Writer) *Sender {
	return &Sender{writer: w}
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return "stdout"
}

// Send prints msg. Invalid messages fail the same way a real transport would.
func (s *Sender) Send(_ context.Context, msg *mail.Message) mail.Result {
	if err := msg.Validate(); err != nil {
		return mail.Failed(err)
	}

	var b strings.Builder
	b.WriteString("========================================\n")
	fmt.Fprintf(&b, "From: %s\n", msg.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(msg.To, ", "))
	if len(msg.CC) > 0 {
		fmt.Fprintf(&b, "Cc: %s\n", strings.Join(msg.CC, ", "))
	}
	if len(msg.BCC) > 0 {
		fmt.Fprintf(&b, "Bcc: %s\n", strings.Join(msg.BCC, ", "))
	}
	fmt.Fprintf(&b, "Subject: %s\n", msg.Subject)
	b.WriteString("Body:\n")
	b.WriteString(msg.HTML + "\n")
	if len(msg.Attachments) > 0 {
		names := make([]string, 0, len(msg.Attachments))
		for _, a := range msg.Attachments {
			names = append(names, filepath.Base(a))
		}
		fmt.Fprintf(&b, "Attachments: %s\n", strings.Join(names, ", "))
	}
	b.WriteString("========================================\n")

	if _, err := io.WriteString(s.writer, b.String()); err != nil {
		return mail.Failed(fmt.Errorf("failed to write message: %w", err))
	}
	return mail.Delivered()
}
