package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/directory"
	"github.com/smartbots/docdispatch/internal/gate"
	"github.com/smartbots/docdispatch/internal/instrumentation"
	"github.com/smartbots/docdispatch/internal/lifecycle"
	"github.com/smartbots/docdispatch/internal/logging"
	"github.com/smartbots/docdispatch/internal/mail"
	"github.com/smartbots/docdispatch/internal/report"
	"github.com/smartbots/docdispatch/internal/resolver"
	"github.com/smartbots/docdispatch/internal/templates"
)

// ReportSubjectPrefix starts the subject of the report and empty-run emails.
const ReportSubjectPrefix = "Informe de ejecucion Envio Correo a Recibidores - "

// DriveSync mirrors case folders from a remote intake. *drive.Sync implements it.
type DriveSync interface {
	Intake(ctx context.Context, localRoot string) (map[string]string, error)
	Complete(ctx context.Context, pulled map[string]string, dispatched map[string]bool) error
}

// Options wires a Runner. Settings, Directory, Templates and Sender are required.
type Options struct {
	Settings  *config.Settings
	Directory *directory.Directory
	Templates *templates.Set
	Sender    mail.Sender

	// Linker enables the Drive fallback when Settings.Dispatch.DriveFallback is set.
	Linker Linker

	// Drive pulls case folders from Drive before discovery.
	Drive DriveSync

	// Sinks receive every execution record (history database, Kafka).
	Sinks []report.Sink

	// Telemetry records metrics and pushes them at the end of the run.
	Telemetry *instrumentation.Provider
	Audit     *instrumentation.AuditLogger

	Logger *slog.Logger
}

// RunSummary describes a finished run.
type RunSummary struct {
	RunID       string
	Records     []report.ExecutionRecord
	Dispatched  int
	Failed      int
	ArchivePath string
	LedgerPath  string
	ReportSent  bool
	Empty       bool
}

// Runner executes batch runs.
type Runner struct {
	settings    *config.Settings
	directory   *directory.Directory
	templates   *templates.Set
	sender      mail.Sender
	coordinator *Coordinator
	lifecycle   *lifecycle.Lifecycle
	ledger      *report.Ledger
	drive       DriveSync
	sinks       []report.Sink
	telemetry   *instrumentation.Provider
	metrics     *instrumentation.Metrics
	logger      *slog.Logger

	now      func() time.Time
	newRunID func() string
}

// NewRunner builds a Runner from opts.
func NewRunner(opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := opts.Settings

	metrics := &instrumentation.Metrics{}
	if opts.Telemetry != nil {
		metrics = opts.Telemetry.Metrics()
	}

	guarded := NewGuardedSender(opts.Sender, GuardConfig{
		RatePerMinute: s.Dispatch.RatePerMinute,
		Trips:         s.Dispatch.BreakerTrips,
		Timeout:       s.Dispatch.BreakerTimeout,
	}, logger)

	coordOpts := []CoordinatorOption{
		WithBCC(config.SplitList(s.Mail.Sender.Report.CCO)),
		WithTelemetry(metrics, opts.Audit),
	}
	if s.Dispatch.DriveFallback && opts.Linker != nil {
		coordOpts = append(coordOpts, WithLinker(opts.Linker, ""))
	}

	return &Runner{
		settings:  s,
		directory: opts.Directory,
		templates: opts.Templates,
		sender:    opts.Sender,
		coordinator: NewCoordinator(
			resolver.New(opts.Directory, s.Dispatch.CCGroup),
			gate.New(s.Dispatch.CeilingMB),
			opts.Templates,
			guarded,
			logger,
			coordOpts...,
		),
		lifecycle: lifecycle.New(lifecycle.Layout{
			Staging:    s.Path.Local.Staging,
			Archive:    s.Path.Local.Archive,
			ConfigName: s.Path.Local.ConfigName,
		}, logger),
		ledger:    report.NewLedger(s.Ledger.Sheet),
		drive:     opts.Drive,
		sinks:     opts.Sinks,
		telemetry: opts.Telemetry,
		metrics:   metrics,
		logger:    logger,
		now:       time.Now,
		newRunID:  func() string { return uuid.New().String() },
	}
}

// Run processes every case folder under the root once.
//
// Root errors abort the run before anything is sent. A staging failure sends
// the empty-run email and is returned with the other errors. Per-folder
// failures become records. Errors after dispatch (requeue, archive, ledger,
// report email, Drive filing) are joined into the returned error without
// affecting the folders already sent.
func (r *Runner) Run(ctx context.Context) (RunSummary, error) {
	start := r.now()
	summary := RunSummary{RunID: r.newRunID()}
	ctx, span := instrumentation.StartRunSpan(ctx, summary.RunID)
	defer span.End()
	logger := logging.WithRun(r.logger, summary.RunID)
	root := r.settings.Path.Local.Root

	err := r.run(ctx, root, &summary, logger)

	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	r.metrics.RecordRun(ctx, status, r.now().Sub(start))
	if r.telemetry != nil {
		if perr := r.telemetry.Push(ctx); perr != nil {
			logger.Warn("failed to push metrics", logging.Err(perr))
		}
	}

	logger.Info("run finished",
		logging.Status(status),
		slog.Int("dispatched", summary.Dispatched),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", r.now().Sub(start)))
	return summary, err
}

func (r *Runner) run(ctx context.Context, root string, summary *RunSummary, logger *slog.Logger) error {
	if r.settings.Lock.Enabled {
		lock, err := lifecycle.AcquireLock(root, r.settings.Lock.FileName, r.settings.Lock.MaxAge)
		if err != nil {
			return err
		}
		if lock.Replaced != "" {
			logger.Warn("took over stale run lock", logging.Path(lock.Path()), slog.String("holder", lock.Replaced))
		}
		defer func() {
			if err := lock.Release(); err != nil {
				logger.Error("failed to release run lock", logging.Err(err))
			}
		}()
	}

	var pulled map[string]string
	if r.drive != nil {
		var err error
		pulled, err = r.drive.Intake(ctx, root)
		if err != nil {
			logger.Error("drive intake incomplete", logging.Err(err))
		}
	}

	candidates, err := r.lifecycle.Discover(root)
	if err != nil {
		return err
	}
	var (
		folders  []*lifecycle.CaseFolder
		stageErr error
	)
	if ok, err := r.lifecycle.Stage(root, candidates); ok {
		if folders, err = r.lifecycle.EnumerateStaged(root); err != nil {
			return err
		}
	} else {
		// Nothing is staged: the run reports an empty batch and the
		// candidates stay in root for the next run.
		stageErr = err
		logger.Error("staging failed, treating the batch as empty", logging.Err(err))
	}

	recorder := report.NewRecorder(logger, r.sinks...)
	for _, f := range folders {
		out := r.coordinator.DispatchFolder(ctx, summary.RunID, f)
		recorder.Record(ctx, r.coordinator.Record(summary.RunID, f, out))
	}
	summary.Records = recorder.Records()
	succeeded, failed := recorder.Succeeded(), recorder.Failed()
	summary.Dispatched, summary.Failed = len(succeeded), len(failed)

	var errs []error
	if stageErr != nil {
		errs = append(errs, stageErr)
	} else {
		if err := r.lifecycle.RequeueFailed(root, folders); err != nil {
			errs = append(errs, err)
		}
		archive, err := r.lifecycle.ArchiveAll(root, folders)
		summary.ArchivePath = archive
		if err != nil {
			errs = append(errs, err)
		}
	}

	if err := r.report(ctx, summary, succeeded, failed, logger); err != nil {
		errs = append(errs, err)
	}

	if r.drive != nil {
		dispatched := make(map[string]bool, len(summary.Records))
		for _, rec := range summary.Records {
			dispatched[rec.Folder] = rec.Success
		}
		if err := r.drive.Complete(ctx, pulled, dispatched); err != nil {
			errs = append(errs, fmt.Errorf("failed to file drive folders: %w", err))
		}
	}

	return errors.Join(errs...)
}

// report writes the ledger and sends the report email, or the empty-run email
// when nothing was processed.
func (r *Runner) report(ctx context.Context, summary *RunSummary, succeeded, failed []string, logger *slog.Logger) error {
	now := r.now()
	rr := report.BuildReport(summary.Records)
	data := templates.NewReportData(succeeded, failed, now)
	msg := &mail.Message{
		To:      r.reportRecipients(),
		CC:      config.SplitList(r.settings.Mail.Sender.Report.CC),
		BCC:     config.SplitList(r.settings.Mail.Sender.Report.CCO),
		Subject: ReportSubjectPrefix + now.Format(report.TimestampLayout),
	}

	var errs []error
	kind := instrumentation.EmailReport
	if rr.Empty() {
		summary.Empty = true
		kind = instrumentation.EmailEmpty
		logger.Info(rr.Notice)
		body, err := r.templates.Empty(data)
		if err != nil {
			return err
		}
		msg.HTML = body
	} else {
		name := r.settings.Ledger.FileName
		if name == "" {
			name = report.FileName(now)
		}
		path := filepath.Join(r.settings.Ledger.Dir, name)
		total, err := r.ledger.Append(path, rr.Rows)
		if err != nil {
			logger.Error("ledger not written", logging.Path(path), logging.Err(err))
			errs = append(errs, err)
		} else {
			summary.LedgerPath = path
			msg.Attachments = []string{path}
			logger.Info("ledger written", logging.Path(path), slog.Int("rows", total))
		}

		body, err := r.templates.Report(data)
		if err != nil {
			return errors.Join(append(errs, err)...)
		}
		msg.HTML = body
	}

	if len(msg.To)+len(msg.CC)+len(msg.BCC) == 0 {
		logger.Warn("no report recipients configured, report email skipped")
		return errors.Join(errs...)
	}

	res := r.sender.Send(ctx, msg)
	status := instrumentation.StatusSuccess
	if !res.Success {
		status = instrumentation.StatusError
		errs = append(errs, fmt.Errorf("failed to send %s email: %s", kind, res.Description))
	} else {
		summary.ReportSent = true
	}
	r.metrics.RecordEmail(ctx, r.sender.Name(), kind, status)
	return errors.Join(errs...)
}

// reportRecipients merges the workbook's report list with settings, keeping order.
func (r *Runner) reportRecipients() []string {
	seen := map[string]bool{}
	var out []string
	for _, e := range append(r.directory.ReportEmails(), config.SplitList(r.settings.Mail.Sender.Report.To)...) {
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}
