// Package ses implements mail.Sender with the Amazon SES v2 API.
package ses

import (
	"context"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/smartbots/docdispatch/internal/mail"
)

// SendEmailAPI is the SES v2 SendEmail operation, so tests can substitute a mock.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Config holds the SES region, optional static credentials and the verified sender.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	From            string
}

// Sender sends messages through SES as raw MIME.
type Sender struct {
	from   string
	client SendEmailAPI
}

// New loads the default AWS configuration for cfg.Region.
func New(ctx context.Context, cfg Config) (*Sender, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(cfg.From, sesv2.NewFromConfig(awsCfg)), nil
}

// NewWithClient wraps an existing client, used for testing.
func NewWithClient(from string, client SendEmailAPI) *Sender {
	return &Sender{from: from, client: client}
}

// Name returns the transport name.
func (s *Sender) Name() string {
	return "ses"
}

// Send delivers msg. Blind copies travel in the envelope only.
func (s *Sender) Send(ctx context.Context, msg *mail.Message) mail.Result {
	m := *msg
	if m.From == "" {
		m.From = s.from
	}

	raw, err := mail.BuildMIME(&m, false)
	if err != nil {
		return mail.Failed(fmt.Errorf("failed to build raw message: %w", err))
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: &m.From,
		Destination: &types.Destination{
			ToAddresses:  m.To,
			CcAddresses:  m.CC,
			BccAddresses: m.BCC,
		},
		Content: &types.EmailContent{
			Raw: &types.RawMessage{Data: raw},
		},
	}
	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return mail.Failed(fmt.Errorf("SES send failed: %w", err))
	}
	return mail.Delivered()
}
