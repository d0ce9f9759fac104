package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/directory"
	"github.com/smartbots/docdispatch/internal/history"
	"github.com/smartbots/docdispatch/internal/instrumentation"
)

// ErrHistoryDisabled is returned by History when no history database is configured.
var ErrHistoryDisabled = errors.New("run history is not configured (ledger.history_path)")

// ServerContext holds the shared state of the MCP server
type ServerContext struct {
	ctx       context.Context
	cancel    context.CancelFunc
	settings  *config.Settings
	logger    *slog.Logger
	directory *directory.Directory
	history   *history.Store
	metrics   *instrumentation.Metrics
	mu        sync.RWMutex
	shutdown  bool
}

// NewServerContext creates a new server context. The recipient directory and
// the history database are opened on first use.
func NewServerContext(ctx context.Context, settings *config.Settings, logger *slog.Logger) (*ServerContext, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	shutdownCtx, cancel := context.WithCancel(ctx)

	return &ServerContext{
		ctx:      shutdownCtx,
		cancel:   cancel,
		settings: settings,
		logger:   logger,
	}, nil
}

// Context returns the server context
func (sc *ServerContext) Context() context.Context {
	return sc.ctx
}

// Settings returns the loaded settings
func (sc *ServerContext) Settings() *config.Settings {
	return sc.settings
}

// Logger returns the server logger
func (sc *ServerContext) Logger() *slog.Logger {
	return sc.logger
}

// Directory returns the recipient directory, loading the workbook on first use.
func (sc *ServerContext) Directory() (*directory.Directory, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.directory != nil {
		return sc.directory, nil
	}

	path := sc.settings.Path.Local.Directory
	if path == "" {
		return nil, fmt.Errorf("no recipient directory configured (path.local.directory)")
	}

	dir, err := directory.Load(path, sc.logger)
	if err != nil {
		return nil, err
	}
	sc.directory = dir
	return dir, nil
}

// SetDirectory replaces the recipient directory
func (sc *ServerContext) SetDirectory(dir *directory.Directory) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.directory = dir
}

// ReloadDirectory drops the cached directory so the next call reads the workbook again.
func (sc *ServerContext) ReloadDirectory() {
	sc.SetDirectory(nil)
}

// History returns the run history store, opening the database on first use.
func (sc *ServerContext) History() (*history.Store, error) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.history != nil {
		return sc.history, nil
	}

	path := sc.settings.Ledger.HistoryPath
	if path == "" {
		return nil, ErrHistoryDisabled
	}

	store, err := history.Open(path)
	if err != nil {
		return nil, err
	}
	sc.history = store
	return store, nil
}

// SetHistory sets the run history store
func (sc *ServerContext) SetHistory(store *history.Store) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.history = store
}

// Metrics returns the metrics recorder, or nil when instrumentation is off
func (sc *ServerContext) Metrics() *instrumentation.Metrics {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.metrics
}

// SetMetrics sets the metrics recorder
func (sc *ServerContext) SetMetrics(m *instrumentation.Metrics) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.metrics = m
}

// IsShutdown returns whether the server has been shutdown
func (sc *ServerContext) IsShutdown() bool {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.shutdown
}

// Shutdown shuts down the server context and closes the history database.
func (sc *ServerContext) Shutdown() error {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	if sc.shutdown {
		return nil
	}

	sc.shutdown = true
	sc.cancel()

	if sc.history != nil {
		err := sc.history.Close()
		sc.history = nil
		return err
	}
	return nil
}
