package server

import (
	"encoding/json"
	"net/http"
	"os"
	"sync/atomic"
	"time"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusMissing      = "missing"
)

// HealthChecker serves the /healthz and /readyz endpoints of the HTTP transport.
type HealthChecker struct {
	ready   atomic.Bool
	sc      *ServerContext
	started time.Time
}

// NewHealthChecker returns a checker that starts out ready. sc may be nil, in
// which case only the ready flag is checked.
func NewHealthChecker(sc *ServerContext) *HealthChecker {
	h := &HealthChecker{sc: sc, started: time.Now()}
	h.ready.Store(true)
	return h
}

// SetReady flips readiness, e.g. while draining connections.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady reports the ready flag.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// HealthResponse is the body of /healthz and /readyz.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse is the body of /healthz/detailed.
type DetailedHealthResponse struct {
	Status string `json:"status"`
	Uptime string `json:"uptime"`
	Root   string `json:"root,omitempty"`
}

type readinessCheck struct {
	name    string
	failure string
	ok      func() bool
}

func (h *HealthChecker) checks() []readinessCheck {
	return []readinessCheck{
		{name: "ready", failure: healthStatusNotReady, ok: h.ready.Load},
		{name: "shutdown", failure: healthStatusShuttingDown, ok: func() bool {
			return h.sc == nil || !h.sc.IsShutdown()
		}},
		{name: "root", failure: healthStatusMissing, ok: h.rootAvailable},
	}
}

// rootAvailable reports whether the case-folder root is an existing directory.
func (h *HealthChecker) rootAvailable() bool {
	if h.sc == nil {
		return true
	}
	info, err := os.Stat(h.sc.Settings().Path.Local.Root)
	return err == nil && info.IsDir()
}

func writeHealth(w http.ResponseWriter, healthy bool, body any) {
	w.Header().Set("Content-Type", "application/json")
	if healthy {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(body)
}

// LivenessHandler answers 200 while the process can serve HTTP at all.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeHealth(w, true, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler answers 200 only when every readiness check passes.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := HealthResponse{Status: healthStatusOK, Checks: map[string]string{}}
		for _, c := range h.checks() {
			if c.ok() {
				resp.Checks[c.name] = healthStatusOK
				continue
			}
			resp.Checks[c.name] = c.failure
			resp.Status = healthStatusNotReady
		}
		writeHealth(w, resp.Status == healthStatusOK, resp)
	})
}

// DetailedHealthHandler reports uptime and the served root.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.started).Truncate(time.Second).String(),
		}
		if h.sc != nil {
			resp.Root = h.sc.Settings().Path.Local.Root
		}
		for _, c := range h.checks()[:2] {
			if !c.ok() {
				resp.Status = c.failure
				break
			}
		}
		writeHealth(w, resp.Status == healthStatusOK, resp)
	})
}

// RegisterHealthEndpoints mounts the health endpoints on mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}
