package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// ErrRunLocked means another run holds the lock on the root.
var ErrRunLocked = errors.New("another run is active")

// DefaultLockMaxAge is how long a lock is honoured when its holder cannot be
// checked, e.g. a lock written from another host on a shared root.
const DefaultLockMaxAge = 6 * time.Hour

// Lock is an advisory run lock held as an exclusively created file.
type Lock struct {
	path string

	// Replaced describes the stale holder this lock took over, if any.
	Replaced string
}

// lockHolder is what a lock file records about the process that wrote it.
type lockHolder struct {
	raw     string
	pid     int
	host    string
	started time.Time
}

// AcquireLock creates root/name exclusively. An existing lock is taken over
// when its holder is gone: the recorded pid no longer runs on this host, or the
// lock is older than maxAge (DefaultLockMaxAge when non-positive). Otherwise it
// fails with ErrRunLocked.
func AcquireLock(root, name string, maxAge time.Duration) (*Lock, error) {
	if maxAge <= 0 {
		maxAge = DefaultLockMaxAge
	}
	path := filepath.Join(root, name)

	lock, err := createLock(path)
	if !errors.Is(err, fs.ErrExist) {
		return lock, err
	}

	holder, err := readLock(path)
	if err != nil {
		return nil, err
	}
	if !holder.stale(maxAge, time.Now()) {
		return nil, fmt.Errorf("%w: %s held by %s", ErrRunLocked, path, holder.raw)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to remove stale lock: %w", err)
	}

	// A concurrent run may win the race for the freed file; that run then owns it.
	lock, err = createLock(path)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrRunLocked, path)
	}
	if err != nil {
		return nil, err
	}
	lock.Replaced = holder.raw
	return lock, nil
}

func createLock(path string) (*Lock, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file: %w", err)
	}
	host, _ := os.Hostname()
	_, werr := fmt.Fprintf(f, "pid=%d host=%s started=%s\n", os.Getpid(), host, time.Now().Format(time.RFC3339))
	if cerr := f.Close(); werr == nil {
		werr = cerr
	}
	if werr != nil {
		_ = os.Remove(path)
		return nil, fmt.Errorf("failed to write lock file: %w", werr)
	}
	return &Lock{path: path}, nil
}

// readLock parses a lock file. Fields it cannot parse stay zero; the file's
// modification time stands in for a missing start time.
func readLock(path string) (lockHolder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return lockHolder{}, fmt.Errorf("failed to read lock file: %w", err)
	}
	h := lockHolder{raw: strings.TrimSpace(string(data))}
	for _, field := range strings.Fields(h.raw) {
		key, value, _ := strings.Cut(field, "=")
		switch key {
		case "pid":
			h.pid, _ = strconv.Atoi(value)
		case "host":
			h.host = value
		case "started":
			h.started, _ = time.Parse(time.RFC3339, value)
		}
	}
	if h.started.IsZero() {
		if info, err := os.Stat(path); err == nil {
			h.started = info.ModTime()
		}
	}
	return h, nil
}

func (h lockHolder) stale(maxAge time.Duration, now time.Time) bool {
	if now.Sub(h.started) > maxAge {
		return true
	}
	host, _ := os.Hostname()
	if h.pid <= 0 || (h.host != "" && h.host != host) {
		return false
	}
	return !processAlive(h.pid)
}

// processAlive sends signal 0 to pid. EPERM means the process exists but
// belongs to someone else.
func processAlive(pid int) bool {
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Path returns the lock file path.
func (l *Lock) Path() string {
	return l.path
}

// Release removes the lock file. Releasing twice is not an error.
func (l *Lock) Release() error {
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}
