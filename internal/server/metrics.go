package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smartbots/docdispatch/internal/instrumentation"
)

const (
	// DefaultMetricsAddr is where serve exposes /metrics unless told otherwise.
	DefaultMetricsAddr = ":9090"

	// DefaultShutdownTimeout bounds graceful shutdown of the HTTP servers.
	DefaultShutdownTimeout = 30 * time.Second

	metricsTimeout     = 10 * time.Second
	metricsIdleTimeout = 60 * time.Second
)

// MetricsServer serves the provider's Prometheus registry on its own port, so
// /metrics never shares the bearer token or rate limit of /mcp.
type MetricsServer struct {
	addr    string
	handler http.Handler
	srv     *http.Server
	ln      net.Listener
}

// NewMetricsServer builds the /metrics mux for provider. It fails when the
// provider is disabled or exports somewhere other than Prometheus.
func NewMetricsServer(addr string, provider *instrumentation.Provider) (*MetricsServer, error) {
	switch {
	case provider == nil:
		return nil, errors.New("instrumentation provider is required for metrics server")
	case !provider.Enabled():
		return nil, errors.New("instrumentation provider is not enabled")
	case provider.Gatherer() == nil:
		return nil, errors.New("instrumentation provider has no prometheus registry")
	}
	if addr == "" {
		addr = DefaultMetricsAddr
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(provider.Gatherer(), promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	return &MetricsServer{addr: addr, handler: mux}, nil
}

// Handler returns the metrics mux.
func (s *MetricsServer) Handler() http.Handler {
	return s.handler
}

// Listen binds the address. After it returns, Addr reports the bound address,
// which matters when the configured port is 0.
func (s *MetricsServer) Listen() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.ln = ln
	s.addr = ln.Addr().String()
	s.srv = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: metricsTimeout,
		WriteTimeout:      metricsTimeout,
		IdleTimeout:       metricsIdleTimeout,
	}
	return nil
}

// Serve blocks until Shutdown. Listen must have succeeded first.
func (s *MetricsServer) Serve() error {
	if s.srv == nil {
		return errors.New("metrics server is not listening")
	}
	slog.Info("serving metrics", "addr", s.addr)
	return s.srv.Serve(s.ln)
}

// Shutdown stops a listening server. It is a no-op otherwise.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}

// Addr returns the listen address.
func (s *MetricsServer) Addr() string {
	return s.addr
}
