// Package dispatch turns staged case folders into sent emails and execution
// records, and drives a whole batch run.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"html"
	"html/template"
	"log/slog"
	"os"
	"time"

	"github.com/smartbots/docdispatch/internal/gate"
	"github.com/smartbots/docdispatch/internal/instrumentation"
	"github.com/smartbots/docdispatch/internal/lifecycle"
	"github.com/smartbots/docdispatch/internal/logging"
	"github.com/smartbots/docdispatch/internal/mail"
	"github.com/smartbots/docdispatch/internal/report"
	"github.com/smartbots/docdispatch/internal/resolver"
	"github.com/smartbots/docdispatch/internal/templates"
)

// Linker uploads a file somewhere reachable and returns a shareable link.
// *drive.Client implements it.
type Linker interface {
	ShareLink(ctx context.Context, path, folderID string) (string, error)
}

// Coordinator dispatches one case folder at a time.
type Coordinator struct {
	resolver  *resolver.Resolver
	gate      *gate.Gate
	templates *templates.Set
	sender    mail.Sender
	bcc       []string

	linker       Linker
	linkFolderID string

	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger
	now     func() time.Time
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithBCC copies every case email to addrs.
func WithBCC(addrs []string) CoordinatorOption {
	return func(c *Coordinator) { c.bcc = addrs }
}

// WithLinker uploads bundles that stay above the ceiling after compression and
// sends a link instead. folderID is the Drive parent, "" for the root.
func WithLinker(l Linker, folderID string) CoordinatorOption {
	return func(c *Coordinator) {
		c.linker = l
		c.linkFolderID = folderID
	}
}

// WithTelemetry records metrics and audit entries for every send.
func WithTelemetry(m *instrumentation.Metrics, a *instrumentation.AuditLogger) CoordinatorOption {
	return func(c *Coordinator) {
		c.metrics = m
		c.audit = a
	}
}

// NewCoordinator returns a Coordinator sending through sender.
func NewCoordinator(r *resolver.Resolver, g *gate.Gate, t *templates.Set, sender mail.Sender, logger *slog.Logger, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		resolver:  r,
		gate:      g,
		templates: t,
		sender:    sender,
		metrics:   &instrumentation.Metrics{},
		logger:    logging.WithOperation(logger, "dispatch"),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// DispatchFolder resolves, gates, renders and sends folder, then advances it to
// Dispatched or Failed. Every failure, including transport errors, is returned
// as an unsuccessful Outcome; nothing here aborts the run.
func (c *Coordinator) DispatchFolder(ctx context.Context, runID string, folder *lifecycle.CaseFolder) Outcome {
	start := c.now()
	ctx, span := instrumentation.StartFolderSpan(ctx, folder.Name, c.sender.Name())
	defer span.End()
	logger := logging.WithFolder(c.logger, folder.Name)

	out := c.dispatch(ctx, runID, folder, logger)
	instrumentation.SetFolderResult(span, out.Case.Recipient, len(out.Plan.Attachments), out.Plan.Compressed)

	next, outcome := lifecycle.Dispatched, instrumentation.OutcomeDispatched
	if !out.Success {
		next, outcome = lifecycle.Failed, instrumentation.OutcomeFailed
		instrumentation.SetSpanError(span, errors.New(out.Description))
		logger.Warn("folder dispatch failed", logging.Recipient(out.Case.Recipient), slog.String("description", out.Description))
	} else {
		instrumentation.SetSpanSuccess(span)
		logger.Info("folder dispatched", logging.Recipient(out.Case.Recipient), logging.Emails(out.Plan.To))
	}
	if err := folder.Advance(next); err != nil {
		logger.Error("unexpected folder state", logging.State(folder.State), logging.Err(err))
	}

	c.metrics.RecordFolder(ctx, outcome, c.sender.Name(), out.Case.Recipient, c.now().Sub(start))
	return out
}

func (c *Coordinator) dispatch(ctx context.Context, runID string, folder *lifecycle.CaseFolder, logger *slog.Logger) (out Outcome) {
	dc, err := c.resolver.Case(folder.Name)
	if err != nil {
		return failed(dc, err)
	}

	gp, err := c.gate.Decide(folder.FilePaths(), folder.Path, folder.Name)
	if err != nil {
		return failed(dc, fmt.Errorf("failed to prepare attachments: %w", err))
	}
	if gp.Compressed {
		// A requeued folder must not carry its bundle into the next run.
		defer func() {
			if !out.Success {
				if err := os.Remove(gp.Files[0]); err != nil {
					logger.Warn("failed to remove bundle", logging.Path(gp.Files[0]), logging.Err(err))
				}
			}
		}()
	}
	c.metrics.RecordAttachmentSize(ctx, gp.SizeMB, gp.Compressed)
	if gp.Compressed {
		logger.Info("attachments compressed",
			slog.Float64("original_mb", gp.OriginalSizeMB),
			slog.Float64("bundle_mb", gp.SizeMB))
	}

	plan := DeliveryPlan{
		To:          dc.To,
		CC:          dc.CC,
		BCC:         c.bcc,
		Subject:     folder.Name,
		Attachments: gp.Files,
		SizeMB:      gp.SizeMB,
		Compressed:  gp.Compressed,
	}

	if gp.ExceedsCeiling {
		if c.linker == nil {
			return failed(dc, gp.Err(c.gate.CeilingMB()))
		}
		link, err := c.linker.ShareLink(ctx, gp.Files[0], c.linkFolderID)
		if err != nil {
			return failed(dc, fmt.Errorf("%w; drive upload failed: %w", gp.Err(c.gate.CeilingMB()), err))
		}
		plan.DriveLink = link
		plan.Attachments = nil
		logger.Info("bundle shared through drive", slog.Float64("bundle_mb", gp.SizeMB))
	}

	body, err := c.templates.Receiver(templates.ReceiverData{
		Body:    template.HTML(dc.Body),
		Subject: folder.Name,
		Country: dc.Country,
	})
	if err != nil {
		return failed(dc, err)
	}
	if plan.DriveLink != "" {
		body += linkParagraph(plan.DriveLink)
	}
	plan.Body = body

	delivery := instrumentation.NewDelivery(runID, folder.Name, c.sender.Name(), instrumentation.EmailCase).
		WithRecipients(plan.To, plan.CC, plan.BCC).
		WithSpanContext(ctx)
	delivery.Recipient = dc.Recipient
	delivery.Attachments = len(plan.Attachments)
	delivery.SizeMB = plan.SizeMB
	delivery.Compressed = plan.Compressed
	delivery.DriveLink = plan.DriveLink != ""

	res := c.sender.Send(ctx, plan.Message())

	c.audit.LogDelivery(delivery.Complete(res.Success, res.Description))
	status := instrumentation.StatusSuccess
	if !res.Success {
		status = instrumentation.StatusError
	}
	c.metrics.RecordEmail(ctx, c.sender.Name(), instrumentation.EmailCase, status)

	return Outcome{
		Success:     res.Success,
		Description: res.Description,
		Case:        dc,
		Plan:        plan,
		Sent:        true,
	}
}

// Record builds the execution record of a dispatched folder.
func (c *Coordinator) Record(runID string, folder *lifecycle.CaseFolder, out Outcome) report.ExecutionRecord {
	return report.ExecutionRecord{
		RunID:       runID,
		Folder:      folder.Name,
		Path:        folder.Path,
		Case:        out.Case,
		Attachments: out.Plan.AttachmentNames(),
		Success:     out.Success,
		Description: out.Description,
		Timestamp:   c.now(),
	}
}

func linkParagraph(link string) string {
	escaped := html.EscapeString(link)
	return `<p>Los documentos superan el tamaño máximo de adjuntos y están disponibles en: <a href="` +
		escaped + `">` + escaped + `</a></p>`
}
