package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for docdispatch.
const TracerName = "github.com/smartbots/docdispatch"

// Span attribute keys.
const (
	// SpanAttrRunID identifies the batch run.
	SpanAttrRunID = "docdispatch.run_id"

	// SpanAttrFolder is the case folder name.
	SpanAttrFolder = "docdispatch.folder"

	// SpanAttrRecipient is the resolved recipient key.
	SpanAttrRecipient = "docdispatch.recipient"

	// SpanAttrTransport is the mail transport name.
	SpanAttrTransport = "docdispatch.transport"

	// SpanAttrAttachments is the number of attachments sent.
	SpanAttrAttachments = "docdispatch.attachments"

	// SpanAttrTool is the MCP tool name attribute.
	SpanAttrTool = "mcp.tool"
)

// StartSpan starts a span on the global tracer. Callers end it.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartRunSpan starts the root span of a batch run.
func StartRunSpan(ctx context.Context, runID string) (context.Context, trace.Span) {
	return StartSpan(ctx, "run", attribute.String(SpanAttrRunID, runID))
}

// StartFolderSpan starts a span for dispatching one case folder.
func StartFolderSpan(ctx context.Context, folder, transport string) (context.Context, trace.Span) {
	return StartSpan(ctx, "folder.dispatch",
		attribute.String(SpanAttrFolder, folder),
		attribute.String(SpanAttrTransport, transport),
	)
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{attribute.String(SpanAttrTool, toolName)}, attrs...)
	return otel.GetTracerProvider().Tracer(TracerName).Start(ctx, "tool."+toolName,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// SetSpanError records err on span and marks it failed. A nil err is ignored.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// AddSpanEvent adds a named event to span.
func AddSpanEvent(span trace.Span, name string, attrs ...attribute.KeyValue) {
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetFolderResult annotates a folder span with what was resolved and sent.
func SetFolderResult(span trace.Span, recipient string, attachments int, compressed bool) {
	span.SetAttributes(
		attribute.String(SpanAttrRecipient, recipient),
		attribute.Int(SpanAttrAttachments, attachments),
	)
	if compressed {
		span.AddEvent("attachments.compressed")
	}
}

// TraceIDs returns the trace and span ids of the span in ctx, or empty strings
// when ctx carries no valid span.
func TraceIDs(ctx context.Context) (traceID, spanID string) {
	sc := trace.SpanFromContext(ctx).SpanContext()
	if !sc.IsValid() {
		return "", ""
	}
	return sc.TraceID().String(), sc.SpanID().String()
}
