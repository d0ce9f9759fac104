package gmail

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"time"

	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/smartbots/docdispatch/internal/google"
	"github.com/smartbots/docdispatch/internal/mail"
)

const serviceName = "gmail"

// Client wraps the Gmail Users service
type Client struct {
	svc      *gmail.UsersService
	recorder google.APIRecorder
	from     string // Cached sender address
}

// NewClient creates a Gmail client on top of an authenticated HTTP client.
// Extra options are passed to the service constructor.
func NewClient(ctx context.Context, httpClient *http.Client, opts ...option.ClientOption) (*Client, error) {
	opts = append([]option.ClientOption{option.WithHTTPClient(httpClient)}, opts...)
	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	return &Client{
		svc:      svc.Users,
		recorder: google.NopRecorder{},
	}, nil
}

// WithRecorder sets the recorder for API operations.
func (c *Client) WithRecorder(r google.APIRecorder) *Client {
	c.recorder = r
	return c
}

// WithFrom pins the sender address and skips the profile lookup.
func (c *Client) WithFrom(from string) *Client {
	c.from = from
	return c
}

// Name returns the transport name.
func (c *Client) Name() string {
	return "api"
}

// Sender returns the authenticated account address.
// The address is cached after the first fetch.
func (c *Client) Sender(ctx context.Context) (string, error) {
	if c.from != "" {
		return c.from, nil
	}

	start := time.Now()
	profile, err := c.svc.GetProfile("me").Context(ctx).Do()
	google.Observe(ctx, c.recorder, serviceName, "get_profile", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to get Gmail profile: %w", err)
	}

	c.from = profile.EmailAddress
	return c.from, nil
}

// SendEmail sends msg through the Gmail API and returns the message id.
// The Bcc header is kept in the raw message; Gmail strips it on delivery.
func (c *Client) SendEmail(ctx context.Context, msg *mail.Message) (string, error) {
	m := *msg
	if m.From == "" {
		from, err := c.Sender(ctx)
		if err != nil {
			return "", err
		}
		m.From = from
	}

	raw, err := mail.BuildMIME(&m, true)
	if err != nil {
		return "", err
	}

	gmailMsg := &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}

	start := time.Now()
	sent, err := c.svc.Messages.Send("me", gmailMsg).Context(ctx).Do()
	google.Observe(ctx, c.recorder, serviceName, "send", start, err)
	if err != nil {
		return "", fmt.Errorf("failed to send email: %w", err)
	}

	return sent.Id, nil
}

// Send implements mail.Sender.
func (c *Client) Send(ctx context.Context, msg *mail.Message) mail.Result {
	if _, err := c.SendEmail(ctx, msg); err != nil {
		return mail.Failed(err)
	}
	return mail.Delivered()
}
