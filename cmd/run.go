package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/directory"
	"github.com/smartbots/docdispatch/internal/dispatch"
	"github.com/smartbots/docdispatch/internal/drive"
	"github.com/smartbots/docdispatch/internal/history"
	"github.com/smartbots/docdispatch/internal/instrumentation"
	"github.com/smartbots/docdispatch/internal/logging"
	"github.com/smartbots/docdispatch/internal/report"
)

type runOptions struct {
	debug     bool
	dryRun    bool
	transport string
	brokers   string
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Dispatch every pending case folder once",
		Long: `Dispatch every case folder under path.local.root once.

Each folder is staged, its recipient is resolved from the recipient workbook,
the attachments are size-checked (and compressed when needed) and the email is
sent. Sent folders are moved to the dated archive, failed ones go back to the
root for the next run. The run ledger is written next to the root and mailed to
the report recipients.

Use --dry-run to print every email instead of sending it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(cmd, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.debug, "debug", false, "Enable debug logging")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print emails to stdout instead of sending them")
	cmd.Flags().StringVar(&opts.transport, "transport", "", "Override dispatch.transport: api, smtp, ses or stdout")
	cmd.Flags().StringVar(&opts.brokers, "kafka-brokers", "", "Override kafka.brokers with a comma-separated broker list")

	return cmd
}

func runDispatch(cmd *cobra.Command, opts runOptions) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	settings, err := loadSettings(configPath)
	if err != nil {
		return err
	}
	if opts.transport != "" {
		settings.Dispatch.Transport = opts.transport
		if err := settings.Validate(); err != nil {
			return err
		}
	}
	if opts.dryRun {
		settings.Dispatch.DryRun = true
	}
	if brokers := parseCommaSeparatedList(opts.brokers); len(brokers) > 0 {
		settings.Kafka.Brokers = brokers
	}

	logger := newLogger(settings, opts.debug)

	provider, instrConfig, err := newProvider(ctx, settings, true)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			logger.Warn("instrumentation shutdown failed", logging.Err(err))
		}
	}()

	dir, err := directory.Load(settings.Path.Local.Directory, logger)
	if err != nil {
		return err
	}

	tmpl, err := loadTemplates(settings)
	if err != nil {
		return err
	}

	var httpClient *http.Client
	if needsGoogle(settings) {
		httpClient, err = googleHTTPClient(ctx, settings)
		if err != nil {
			return err
		}
	}

	sender, err := newSender(ctx, settings, httpClient, provider.Metrics())
	if err != nil {
		return fmt.Errorf("failed to create %s transport: %w", settings.Dispatch.Transport, err)
	}

	runnerOpts := dispatch.Options{
		Settings:  settings,
		Directory: dir,
		Templates: tmpl,
		Sender:    sender,
		Telemetry: provider,
		Audit:     instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
		Logger:    logger,
	}

	if httpClient != nil && (settings.Path.Drive.Enabled || settings.Dispatch.DriveFallback) {
		driveClient, err := drive.NewClient(ctx, httpClient)
		if err != nil {
			return err
		}
		driveClient = driveClient.WithRecorder(provider.Metrics())
		if settings.Dispatch.DriveFallback {
			runnerOpts.Linker = driveClient
		}
		if settings.Path.Drive.Enabled {
			runnerOpts.Drive = drive.NewSync(driveClient, settings.Path.Drive, logger)
		}
	}

	sinks, closeSinks, err := openSinks(settings, logger)
	if err != nil {
		return err
	}
	defer closeSinks()
	runnerOpts.Sinks = sinks

	summary, err := dispatch.NewRunner(runnerOpts).Run(ctx)
	printSummary(cmd, summary)
	if err != nil {
		return err
	}
	if summary.Failed > 0 {
		logger.Warn("some folders were not dispatched and stay queued",
			slog.Int("failed", summary.Failed))
	}
	return nil
}

// openSinks opens the history database and the Kafka writer when configured.
// The returned func closes whatever was opened.
func openSinks(settings *config.Settings, logger *slog.Logger) ([]report.Sink, func(), error) {
	var (
		sinks   []report.Sink
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			if err := c(); err != nil {
				logger.Warn("failed to close record sink", logging.Err(err))
			}
		}
	}

	if settings.Ledger.HistoryPath != "" {
		store, err := history.Open(settings.Ledger.HistoryPath)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, store)
		closers = append(closers, store.Close)
	}

	if len(settings.Kafka.Brokers) > 0 {
		sink, err := report.NewKafkaSink(settings.Kafka.Brokers, settings.Kafka.Topic)
		if err != nil {
			closeAll()
			return nil, nil, err
		}
		sinks = append(sinks, sink)
		closers = append(closers, sink.Close)
	}

	return sinks, closeAll, nil
}

func printSummary(cmd *cobra.Command, summary dispatch.RunSummary) {
	out := cmd.OutOrStdout()
	if summary.RunID == "" {
		return
	}
	if summary.Empty {
		fmt.Fprintf(out, "Run %s: no case folders found\n", summary.RunID)
		return
	}
	fmt.Fprintf(out, "Run %s: %d dispatched, %d failed\n", summary.RunID, summary.Dispatched, summary.Failed)
	if summary.LedgerPath != "" {
		fmt.Fprintf(out, "Ledger: %s\n", summary.LedgerPath)
	}
	if summary.ArchivePath != "" {
		fmt.Fprintf(out, "Archive: %s\n", summary.ArchivePath)
	}
	if !summary.ReportSent {
		fmt.Fprintln(out, "Report email was not sent")
	}
}
