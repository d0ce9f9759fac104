package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/smartbots/docdispatch/internal/history"
	"github.com/smartbots/docdispatch/internal/report"
)

var (
	errNoHistory = errors.New("ledger.history_path is not set, the run history is disabled")
	errNoLedger  = errors.New("ledger.file_name is not set, each run writes its own ledger")
)

type historyOptions struct {
	limit      int
	folder     string
	failedOnly bool
	ledger     bool
}

func newHistoryCmd() *cobra.Command {
	var opts historyOptions

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent executions from the run history",
		Long: `List executions recorded in the SQLite run history (ledger.history_path),
newest first. Use --folder to follow a single case folder across runs.
With --ledger the pinned xlsx ledger (ledger.dir/ledger.file_name) is read
instead, which works without a run history.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, err := loadSettings(configPath)
			if err != nil {
				return err
			}
			if opts.ledger {
				if settings.Ledger.FileName == "" {
					return errNoLedger
				}
				path := filepath.Join(settings.Ledger.Dir, settings.Ledger.FileName)
				rows, err := report.NewLedger(settings.Ledger.Sheet).Read(path)
				if err != nil {
					return fmt.Errorf("failed to read ledger %s: %w", path, err)
				}
				return printLedger(cmd.OutOrStdout(), rows, opts)
			}
			if settings.Ledger.HistoryPath == "" {
				return errNoHistory
			}

			store, err := history.Open(settings.Ledger.HistoryPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			return printHistory(cmd.Context(), cmd.OutOrStdout(), store, opts)
		},
	}

	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 20, "Maximum number of executions to list")
	cmd.Flags().StringVar(&opts.folder, "folder", "", "Only list executions of this case folder")
	cmd.Flags().BoolVar(&opts.failedOnly, "failed", false, "Only list failed executions")
	cmd.Flags().BoolVar(&opts.ledger, "ledger", false, "Read the pinned xlsx ledger instead of the run history")

	return cmd
}

func printHistory(ctx context.Context, w io.Writer, store *history.Store, opts historyOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	entries, err := store.Recent(ctx, history.Query{
		Folder:     opts.folder,
		FailedOnly: opts.failedOnly,
		Limit:      opts.limit,
	})
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(w, "No executions recorded")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tFOLDER\tRECIPIENT\tDESCRIPTION")
	for _, e := range entries {
		status := "ok"
		if !e.Success {
			status = "failed"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format("2006-01-02 15:04:05"), status, e.Folder, e.Recipient, e.Description)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	if opts.folder != "" {
		total, failed, err := store.Attempts(ctx, opts.folder)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%s: %d attempts, %d failed\n", opts.folder, total, failed)
	}
	return nil
}

// printLedger lists ledger rows newest first. --folder matches the subject.
func printLedger(w io.Writer, rows []report.Row, opts historyOptions) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tSTATUS\tSUBJECT\tRECIPIENT\tDESCRIPTION")
	listed := 0
	for i := len(rows) - 1; i >= 0; i-- {
		row := rows[i]
		if opts.failedOnly && row.Status != report.StatusError {
			continue
		}
		if opts.folder != "" && !strings.Contains(row.Subject, opts.folder) {
			continue
		}
		if opts.limit > 0 && listed == opts.limit {
			break
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Timestamp, row.Status, row.Subject, row.Recipient, row.Description)
		listed++
	}
	if listed == 0 {
		fmt.Fprintln(w, "No executions recorded")
		return nil
	}
	return tw.Flush()
}
