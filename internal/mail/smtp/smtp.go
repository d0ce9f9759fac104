// Package smtp implements mail.Sender over SMTP with STARTTLS.
package smtp

import (
	"context"
	"crypto/tls"
	"fmt"
	"time"

	"gopkg.in/gomail.v2"

	"github.com/smartbots/docdispatch/internal/mail"
)

// Config holds the SMTP server and credentials.
type Config struct {
	Server   string
	Port     int
	User     string
	Password string

	// From defaults to User when empty.
	From string

	// InsecureSkipVerify disables certificate checks. Only for testing.
	InsecureSkipVerify bool
}

// Sender sends messages through an SMTP relay.
type Sender struct {
	dialer *gomail.Dialer
	from   string
}

// New returns a Sender for cfg.
func New(cfg Config) *Sender {
	d := gomail.NewDialer(cfg.Server, cfg.Port, cfg.User, cfg.Password)
	d.TLSConfig = &tls.Config{
		ServerName:         cfg.Server,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // opt-in for test servers
	}
	from := cfg.From
	if from == "" {
		from = cfg.User
	}
	return &Sender{dialer: d, from: from}
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return "smtp"
}

// Send delivers msg. The dial honours ctx cancellation only before it starts.
func (s *Sender) Send(ctx context.Context, msg *mail.Message) mail.Result {
	if err := ctx.Err(); err != nil {
		return mail.Failed(err)
	}
	if err := msg.Validate(); err != nil {
		return mail.Failed(err)
	}

	m := gomail.NewMessage()
	from := msg.From
	if from == "" {
		from = s.from
	}
	m.SetHeader("From", from)
	if len(msg.To) > 0 {
		m.SetHeader("To", msg.To...)
	}
	if len(msg.CC) > 0 {
		m.SetHeader("Cc", msg.CC...)
	}
	if len(msg.BCC) > 0 {
		m.SetHeader("Bcc", msg.BCC...)
	}
	m.SetHeader("Subject", msg.Subject)
	m.SetDateHeader("Date", time.Now())
	m.SetBody("text/html", msg.HTML)
	for _, path := range msg.Attachments {
		m.Attach(path)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		return mail.Failed(fmt.Errorf("smtp send failed: %w", err))
	}
	return mail.Delivered()
}
