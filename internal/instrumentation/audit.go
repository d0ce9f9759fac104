package instrumentation

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

// Delivery captures one email handed to a transport for audit logging.
//
// # Privacy Considerations
//
// The To, CC and BCC fields contain PII. LogAttrs reduces them to domains;
// LogAuditAttrs keeps the full addresses and belongs in a secured stream.
type Delivery struct {
	RunID     string
	Folder    string
	Recipient string
	Transport string
	Kind      string

	To  []string
	CC  []string
	BCC []string

	Attachments int
	SizeMB      float64
	Compressed  bool
	DriveLink   bool

	// Execution details
	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	// Tracing context
	TraceID string
	SpanID  string
}

// NewDelivery creates a Delivery with timing started.
// Call Complete() when the transport returns.
func NewDelivery(runID, folder, transport, kind string) *Delivery {
	return &Delivery{
		RunID:     runID,
		Folder:    folder,
		Transport: transport,
		Kind:      kind,
		StartTime: time.Now(),
	}
}

// WithRecipients sets the addresses.
func (d *Delivery) WithRecipients(to, cc, bcc []string) *Delivery {
	d.To, d.CC, d.BCC = to, cc, bcc
	return d
}

// WithSpanContext extracts trace context from the current span.
func (d *Delivery) WithSpanContext(ctx context.Context) *Delivery {
	d.TraceID, d.SpanID = TraceIDs(ctx)
	return d
}

// Complete marks the delivery as finished and calculates duration.
func (d *Delivery) Complete(success bool, description string) *Delivery {
	d.Duration = time.Since(d.StartTime)
	d.Success = success
	if !success {
		d.Error = description
	}
	return d
}

// Status returns "success" or "error" based on the Success field.
func (d *Delivery) Status() string {
	if d.Success {
		return StatusSuccess
	}
	return StatusError
}

func (d *Delivery) common() []slog.Attr {
	attrs := []slog.Attr{
		slog.String("kind", d.Kind),
		slog.String("transport", d.Transport),
		slog.Duration("duration", d.Duration),
		slog.Bool("success", d.Success),
	}
	if d.RunID != "" {
		attrs = append(attrs, slog.String("run_id", d.RunID))
	}
	if d.Folder != "" {
		attrs = append(attrs, slog.String("folder", d.Folder))
	}
	if d.Recipient != "" {
		attrs = append(attrs, slog.String("recipient", d.Recipient))
	}
	if d.Attachments > 0 {
		attrs = append(attrs,
			slog.Int("attachments", d.Attachments),
			slog.Float64("size_mb", d.SizeMB),
			slog.Bool("compressed", d.Compressed),
		)
	}
	if d.DriveLink {
		attrs = append(attrs, slog.Bool("drive_link", true))
	}
	if d.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", d.TraceID))
	}
	if d.Error != "" {
		attrs = append(attrs, slog.String("error", d.Error))
	}
	return attrs
}

// LogAttrs returns slog attributes with recipients reduced to domains.
func (d *Delivery) LogAttrs() []slog.Attr {
	all := make([]string, 0, len(d.To)+len(d.CC)+len(d.BCC))
	all = append(append(append(all, d.To...), d.CC...), d.BCC...)
	return append(d.common(), slog.String("recipient_domains", strings.Join(RecipientDomains(all), ",")))
}

// LogAuditAttrs returns slog attributes including the full addresses.
func (d *Delivery) LogAuditAttrs() []slog.Attr {
	attrs := d.common()
	attrs = append(attrs, slog.String("to", strings.Join(d.To, ",")))
	if len(d.CC) > 0 {
		attrs = append(attrs, slog.String("cc", strings.Join(d.CC, ",")))
	}
	if len(d.BCC) > 0 {
		attrs = append(attrs, slog.String("bcc", strings.Join(d.BCC, ",")))
	}
	if d.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", d.SpanID))
	}
	return attrs
}

// AuditLogger provides structured audit logging for deliveries.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool
}

// NewAuditLogger creates a new AuditLogger with the given configuration.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
	}
}

// LogDelivery logs a finished delivery. Full addresses are only included
// when the logger was configured with IncludePII.
func (al *AuditLogger) LogDelivery(d *Delivery) {
	if al == nil || !al.enabled {
		return
	}

	var attrs []slog.Attr
	if al.includePII {
		attrs = d.LogAuditAttrs()
	} else {
		attrs = d.LogAttrs()
	}

	args := make([]any, len(attrs))
	for i, attr := range attrs {
		args[i] = attr
	}

	if d.Success {
		al.logger.Info("email_delivered", args...)
	} else {
		al.logger.Warn("email_failed", args...)
	}
}
