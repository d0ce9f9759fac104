package instrumentation

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrStatus     = "status"
	attrOperation  = "operation"
	attrService    = "service"
	attrOutcome    = "outcome"
	attrTransport  = "transport"
	attrKind       = "kind"
	attrCompressed = "compressed"
	attrRecipient  = "recipient"
	attrTool       = "tool"
)

// Metrics provides methods for recording observability metrics.
type Metrics struct {
	// Run metrics
	runsTotal   metric.Int64Counter
	runDuration metric.Float64Histogram

	// Folder metrics
	foldersTotal     metric.Int64Counter
	dispatchDuration metric.Float64Histogram
	attachmentSize   metric.Float64Histogram

	// Email metrics
	emailsTotal metric.Int64Counter

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// MCP Tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	// detailedLabels controls whether high-cardinality labels are included
	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all metrics initialized.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{
		detailedLabels: detailedLabels,
	}

	var err error

	// Run Metrics
	m.runsTotal, err = meter.Int64Counter(
		"docdispatch_runs_total",
		metric.WithDescription("Total number of batch runs"),
		metric.WithUnit("{run}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docdispatch_runs_total counter: %w", err)
	}

	m.runDuration, err = meter.Float64Histogram(
		"docdispatch_run_duration_seconds",
		metric.WithDescription("Batch run duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1800),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docdispatch_run_duration_seconds histogram: %w", err)
	}

	// Folder Metrics
	m.foldersTotal, err = meter.Int64Counter(
		"docdispatch_folders_total",
		metric.WithDescription("Total number of case folders processed by outcome"),
		metric.WithUnit("{folder}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docdispatch_folders_total counter: %w", err)
	}

	m.dispatchDuration, err = meter.Float64Histogram(
		"docdispatch_folder_dispatch_duration_seconds",
		metric.WithDescription("Time to resolve, gate and send one case folder"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.1, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0, 120.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docdispatch_folder_dispatch_duration_seconds histogram: %w", err)
	}

	m.attachmentSize, err = meter.Float64Histogram(
		"docdispatch_attachment_megabytes",
		metric.WithDescription("Attachment set size per case folder in MB"),
		metric.WithUnit("MBy"),
		metric.WithExplicitBucketBoundaries(0.5, 1, 2, 5, 10, 15, 20, 25, 50, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docdispatch_attachment_megabytes histogram: %w", err)
	}

	// Email Metrics
	m.emailsTotal, err = meter.Int64Counter(
		"docdispatch_emails_total",
		metric.WithDescription("Total number of emails handed to a transport"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docdispatch_emails_total counter: %w", err)
	}

	// Google API Metrics
	m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	// MCP Tool Metrics
	m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordRun records a finished batch run.
func (m *Metrics) RecordRun(ctx context.Context, status string, duration time.Duration) {
	if m.runsTotal == nil || m.runDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := metric.WithAttributes(attribute.String(attrStatus, status))
	m.runsTotal.Add(ctx, 1, attrs)
	m.runDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordFolder records one case folder outcome.
//
// Parameters:
//   - outcome: OutcomeDispatched or OutcomeFailed
//   - transport: mail transport name (api, smtp, ses, stdout)
//   - recipient: recipient key, only attached when detailedLabels is set
//   - duration: time from resolution to transport result
func (m *Metrics) RecordFolder(ctx context.Context, outcome, transport, recipient string, duration time.Duration) {
	if m.foldersTotal == nil || m.dispatchDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrOutcome, outcome),
		attribute.String(attrTransport, transport),
	}
	if m.detailedLabels && recipient != "" {
		attrs = append(attrs, attribute.String(attrRecipient, recipient))
	}

	m.foldersTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.dispatchDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordAttachmentSize records the attachment set size of one folder.
func (m *Metrics) RecordAttachmentSize(ctx context.Context, sizeMB float64, compressed bool) {
	if m.attachmentSize == nil {
		return // Instrumentation not initialized
	}

	m.attachmentSize.Record(ctx, sizeMB, metric.WithAttributes(attribute.Bool(attrCompressed, compressed)))
}

// RecordEmail records an email handed to a transport.
// Kind is one of EmailCase, EmailReport or EmailEmpty.
func (m *Metrics) RecordEmail(ctx context.Context, transport, kind, status string) {
	if m.emailsTotal == nil {
		return // Instrumentation not initialized
	}

	m.emailsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrTransport, transport),
		attribute.String(attrKind, kind),
		attribute.String(attrStatus, status),
	))
}

// RecordGoogleAPIOperation records a Google API operation with service, operation,
// status, and duration.
//
// Parameters:
//   - service: Google service name (gmail, drive)
//   - operation: Operation type (list, get, move, upload, share, send, etc.)
//   - status: Result status ("success" or "error")
//   - duration: Time taken for the operation
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	}

	m.googleAPIOperationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return // Instrumentation not initialized
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
