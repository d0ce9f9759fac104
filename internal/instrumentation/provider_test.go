package instrumentation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func newPromProvider(t *testing.T, cfg Config) *Provider {
	t.Helper()
	cfg.ServiceName = "test-service"
	cfg.ServiceVersion = "1.0.0"
	cfg.Enabled = true
	cfg.MetricsExporter = ExporterPrometheus
	cfg.TracingExporter = ExporterNone

	provider, err := NewProvider(context.Background(), cfg)
	if err != nil {
		t.Fatalf("failed to create provider: %v", err)
	}
	t.Cleanup(func() { _ = provider.Shutdown(context.Background()) })
	return provider
}

func TestNewProvider_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{
		ServiceName:    "test-service",
		ServiceVersion: "1.0.0",
		Enabled:        false,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if provider.Enabled() {
		t.Error("expected provider to be disabled")
	}
	if provider.Metrics() == nil {
		t.Error("expected metrics to be non-nil even when disabled")
	}
	if provider.Gatherer() != nil {
		t.Error("expected no gatherer when disabled")
	}
	if err := provider.Push(context.Background()); err != nil {
		t.Errorf("expected push to be a no-op, got %v", err)
	}
	if err := provider.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error on shutdown, got %v", err)
	}

	// Recording on the no-op metrics must not panic
	provider.Metrics().RecordRun(context.Background(), StatusSuccess, time.Second)
}

func TestNewProvider_PrometheusExporter(t *testing.T) {
	provider := newPromProvider(t, Config{})

	if !provider.Enabled() {
		t.Error("expected provider to be enabled")
	}
	if provider.Gatherer() == nil {
		t.Fatal("expected a gatherer for the prometheus exporter")
	}
	if provider.Tracer("test") == nil {
		t.Error("expected tracer to be non-nil")
	}
}

func TestNewProvider_StdoutExporter(t *testing.T) {
	ctx := context.Background()
	provider, err := NewProvider(ctx, Config{
		ServiceName:     "test-service",
		Enabled:         true,
		MetricsExporter: ExporterStdout,
		TracingExporter: ExporterStdout,
	})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	defer func() { _ = provider.Shutdown(ctx) }()

	if provider.Gatherer() != nil {
		t.Error("expected no gatherer for the stdout exporter")
	}
}

func TestNewProvider_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		config Config
	}{
		{"invalid metrics exporter", Config{Enabled: true, MetricsExporter: "invalid"}},
		{"invalid tracing exporter", Config{Enabled: true, TracingExporter: "invalid"}},
		{"otlp tracing without endpoint", Config{Enabled: true, TracingExporter: ExporterOTLP}},
		{"pushgateway with stdout metrics", Config{Enabled: true, MetricsExporter: ExporterStdout, PushGateway: "http://gw"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewProvider(context.Background(), tt.config); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestProvider_GathererExposesDispatchMetrics(t *testing.T) {
	provider := newPromProvider(t, Config{})
	ctx := context.Background()

	provider.Metrics().RecordFolder(ctx, OutcomeDispatched, "smtp", "ACME", 2*time.Second)
	provider.Metrics().RecordEmail(ctx, "smtp", EmailCase, StatusSuccess)

	families, err := provider.Gatherer().Gather()
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}

	names := map[string]bool{}
	for _, mf := range families {
		names[mf.GetName()] = true
	}
	for _, want := range []string{"docdispatch_folders_total", "docdispatch_emails_total"} {
		if !names[want] {
			t.Errorf("expected metric family %q, got %v", want, names)
		}
	}
}

func TestProvider_Push(t *testing.T) {
	var (
		mu     sync.Mutex
		method string
		path   string
		body   string
	)
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		method, path, body = r.Method, r.URL.Path, string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gw.Close()

	provider := newPromProvider(t, Config{PushGateway: gw.URL, PushJob: "docdispatch", ServiceInstanceID: "host-1"})
	ctx := context.Background()
	provider.Metrics().RecordRun(ctx, StatusSuccess, 3*time.Second)

	if err := provider.Push(ctx); err != nil {
		t.Fatalf("push failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if method != http.MethodPut {
		t.Errorf("expected PUT, got %s", method)
	}
	if path != "/metrics/job/docdispatch/instance/host-1" {
		t.Errorf("unexpected push path %q", path)
	}
	if body == "" {
		t.Error("expected a non-empty metrics payload")
	}
}

func TestProvider_PushGatewayError(t *testing.T) {
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer gw.Close()

	provider := newPromProvider(t, Config{PushGateway: gw.URL})
	err := provider.Push(context.Background())
	if err == nil {
		t.Fatal("expected push error")
	}
	if !strings.Contains(err.Error(), gw.URL) {
		t.Errorf("expected gateway URL in error, got %v", err)
	}
}

func TestProvider_PushWithoutGateway(t *testing.T) {
	provider := newPromProvider(t, Config{})
	if err := provider.Push(context.Background()); err != nil {
		t.Errorf("expected no-op push, got %v", err)
	}
}

func TestProvider_Tracer_Disabled(t *testing.T) {
	provider, err := NewProvider(context.Background(), Config{Enabled: false})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if provider.Tracer("test") == nil {
		t.Error("expected a no-op tracer")
	}
}
