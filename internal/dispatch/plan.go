package dispatch

import (
	"path/filepath"

	"github.com/smartbots/docdispatch/internal/mail"
	"github.com/smartbots/docdispatch/internal/resolver"
)

// DeliveryPlan is everything needed to send one case folder. It is built per
// folder and discarded after the send.
type DeliveryPlan struct {
	To          []string
	CC          []string
	BCC         []string
	Subject     string
	Body        string
	Attachments []string
	SizeMB      float64
	Compressed  bool

	// DriveLink is set when the bundle went to Drive instead of being attached.
	DriveLink string
}

// Message converts the plan into a transport message.
func (p DeliveryPlan) Message() *mail.Message {
	return &mail.Message{
		To:          p.To,
		CC:          p.CC,
		BCC:         p.BCC,
		Subject:     p.Subject,
		HTML:        p.Body,
		Attachments: p.Attachments,
	}
}

// AttachmentNames returns the base names of the attachments.
func (p DeliveryPlan) AttachmentNames() []string {
	names := make([]string, len(p.Attachments))
	for i, a := range p.Attachments {
		names[i] = filepath.Base(a)
	}
	return names
}

// Outcome is the result of dispatching one folder.
type Outcome struct {
	Success     bool
	Description string

	// Case is whatever the resolver found, even on failure.
	Case resolver.DistributionCase

	// Plan is the zero value when the folder failed before sending.
	Plan DeliveryPlan

	// Sent is true when the transport was invoked.
	Sent bool
}

func failed(c resolver.DistributionCase, err error) Outcome {
	return Outcome{Description: err.Error(), Case: c}
}
