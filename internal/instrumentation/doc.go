// Package instrumentation provides OpenTelemetry instrumentation for
// docdispatch batch runs.
//
// # Metrics
//
// Run metrics:
//   - docdispatch_runs_total: Counter of batch runs by status
//   - docdispatch_run_duration_seconds: Histogram of run durations
//
// Folder metrics:
//   - docdispatch_folders_total: Counter of case folders by outcome and transport
//   - docdispatch_folder_dispatch_duration_seconds: Histogram of per-folder dispatch time
//   - docdispatch_attachment_megabytes: Histogram of attachment set sizes
//
// Email metrics:
//   - docdispatch_emails_total: Counter of emails by transport, kind and status
//
// Google API metrics:
//   - google_api_operations_total: Counter of Gmail and Drive operations
//   - google_api_operation_duration_seconds: Histogram of operation durations
//
// MCP tool metrics:
//   - mcp_tool_invocations_total
//   - mcp_tool_duration_seconds
//
// A batch run exits long before a scrape interval elapses, so with the
// Prometheus exporter the metrics live in a private registry that
// Provider.Push sends to a Pushgateway at the end of each run.
//
// # Tracing
//
// Spans are created for the run (run), every case folder (folder.dispatch)
// and MCP tool invocations (tool.<name>).
//
// # Configuration
//
// Instrumentation can be configured via environment variables:
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 1.0)
//   - OTEL_SERVICE_NAME: Service name (default: docdispatch)
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, cfg)
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordFolder(ctx, instrumentation.OutcomeDispatched, "smtp", "ACME", time.Since(start))
//	m.RecordEmail(ctx, "smtp", instrumentation.EmailCase, instrumentation.StatusSuccess)
//
//	if err := provider.Push(ctx); err != nil {
//		logger.Warn("metrics push failed", "error", err)
//	}
package instrumentation
