package google

import (
	"context"
	"time"
)

// APIRecorder receives one call per Google API operation.
// *instrumentation.Metrics implements it.
type APIRecorder interface {
	RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration)
}

// NopRecorder discards operations.
type NopRecorder struct{}

// RecordGoogleAPIOperation implements APIRecorder.
func (NopRecorder) RecordGoogleAPIOperation(context.Context, string, string, string, time.Duration) {}

// Observe records operation on r with a status derived from err.
func Observe(ctx context.Context, r APIRecorder, service, operation string, start time.Time, err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.RecordGoogleAPIOperation(ctx, service, operation, status, time.Since(start))
}
