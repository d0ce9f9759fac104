// Package report records per-folder outcomes and turns them into the run
// report and the cumulative xlsx ledger.
package report

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/smartbots/docdispatch/internal/logging"
	"github.com/smartbots/docdispatch/internal/resolver"
)

// ExecutionRecord is the immutable outcome of one processed folder.
type ExecutionRecord struct {
	RunID       string                    `json:"run_id"`
	Folder      string                    `json:"folder"`
	Path        string                    `json:"path"`
	Case        resolver.DistributionCase `json:"case"`
	Attachments []string                  `json:"attachments"`
	Success     bool                      `json:"success"`
	Description string                    `json:"description"`
	Timestamp   time.Time                 `json:"timestamp"`
}

// Sink receives every record as it is appended, for example a message stream
// or the run history database.
type Sink interface {
	Publish(ctx context.Context, rec ExecutionRecord) error
}

// Recorder is the append-only list of records for one run.
type Recorder struct {
	records []ExecutionRecord
	sinks   []Sink
	logger  *slog.Logger
}

// NewRecorder returns an empty Recorder that forwards records to sinks.
func NewRecorder(logger *slog.Logger, sinks ...Sink) *Recorder {
	return &Recorder{
		sinks:  sinks,
		logger: logging.WithOperation(logger, "record"),
	}
}

// Record appends rec. Sink failures are logged and do not affect the in-memory list.
func (r *Recorder) Record(ctx context.Context, rec ExecutionRecord) {
	rec.Attachments = slices.Clone(rec.Attachments)
	rec.Case.To = slices.Clone(rec.Case.To)
	rec.Case.CC = slices.Clone(rec.Case.CC)
	r.records = append(r.records, rec)

	for _, s := range r.sinks {
		if err := s.Publish(ctx, rec); err != nil {
			r.logger.Warn("failed to publish execution record",
				logging.Folder(rec.Folder),
				logging.Err(err))
		}
	}
}

// Records returns a copy of the records in the order they were appended.
func (r *Recorder) Records() []ExecutionRecord {
	return slices.Clone(r.records)
}

// Succeeded returns the folder names of successful records.
func (r *Recorder) Succeeded() []string {
	return r.folders(true)
}

// Failed returns the folder names of failed records.
func (r *Recorder) Failed() []string {
	return r.folders(false)
}

func (r *Recorder) folders(success bool) []string {
	var names []string
	for _, rec := range r.records {
		if rec.Success == success {
			names = append(names, rec.Folder)
		}
	}
	return names
}
