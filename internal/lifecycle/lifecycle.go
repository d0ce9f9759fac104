// Package lifecycle moves case folders through the filesystem layout:
// root, staging area and dated archive.
//
// A run discovers the immediate subdirectories of the root, clears whatever a
// previous interrupted run left in staging, moves the candidates into staging,
// and after dispatch archives them under <root>/<archive>/<date>/<time>.
// Folders that failed are moved back to the root for the next run.
package lifecycle

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"time"

	"github.com/smartbots/docdispatch/internal/logging"
)

var (
	// ErrRootNotFound means the case-folder root does not exist.
	ErrRootNotFound = errors.New("root not found")

	// ErrNotADirectory means the case-folder root is a file.
	ErrNotADirectory = errors.New("root is not a directory")

	// ErrStagingMove means a candidate could not be moved into staging.
	ErrStagingMove = errors.New("staging move failed")
)

// JunkFiles are OS metadata files removed while enumerating staged folders.
var JunkFiles = []string{"desktop.ini", ".DS_Store", "Thumbs.db"}

// Layout names the reserved directories under the root.
type Layout struct {
	Staging    string
	Archive    string
	ConfigName string
}

// Lifecycle performs the filesystem transitions of case folders.
type Lifecycle struct {
	layout Layout
	logger *slog.Logger
	now    func() time.Time
}

// New returns a Lifecycle for layout.
func New(layout Layout, logger *slog.Logger) *Lifecycle {
	return &Lifecycle{
		layout: layout,
		logger: logging.WithOperation(logger, "lifecycle"),
		now:    time.Now,
	}
}

// Reserved reports whether name is one of the layout's reserved directories.
func (l *Lifecycle) Reserved(name string) bool {
	return name == l.layout.Staging || name == l.layout.Archive || name == l.layout.ConfigName
}

// StagingDir returns the staging directory under root.
func (l *Lifecycle) StagingDir(root string) string {
	return filepath.Join(root, l.layout.Staging)
}

// Discover lists the immediate subdirectories of root that are not reserved,
// sorted by name.
func (l *Lifecycle) Discover(root string) ([]string, error) {
	info, err := os.Stat(root)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrRootNotFound, root)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, root)
	}

	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("failed to list root: %w", err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() || l.Reserved(e.Name()) {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	l.logger.Info("discovered case folders", logging.Path(root), slog.Int("count", len(names)))
	return names, nil
}

// Stage empties the staging directory, then moves each candidate into it.
//
// Candidates that no longer exist are skipped with a warning. If any move fails,
// the folders already moved are put back under root and Stage returns false
// with an error wrapping ErrStagingMove; the caller should treat the batch as
// empty.
func (l *Lifecycle) Stage(root string, candidates []string) (bool, error) {
	staging := l.StagingDir(root)
	if err := l.clearStaging(staging); err != nil {
		return false, fmt.Errorf("%w: %w", ErrStagingMove, err)
	}

	var moved []string
	for _, name := range candidates {
		if l.Reserved(name) {
			continue
		}
		src := filepath.Join(root, name)
		if _, err := os.Stat(src); errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("candidate folder vanished before staging", logging.Folder(name))
			continue
		}
		if err := os.Rename(src, filepath.Join(staging, name)); err != nil {
			l.logger.Error("failed to stage folder", logging.Folder(name), logging.Err(err))
			l.rollback(root, staging, moved)
			return false, fmt.Errorf("%w: %s: %w", ErrStagingMove, name, err)
		}
		moved = append(moved, name)
		l.logger.Debug("staged folder", logging.Folder(name))
	}
	return true, nil
}

func (l *Lifecycle) clearStaging(staging string) error {
	entries, err := os.ReadDir(staging)
	if errors.Is(err, fs.ErrNotExist) {
		return os.MkdirAll(staging, 0o755)
	}
	if err != nil {
		return err
	}
	for _, e := range entries {
		p := filepath.Join(staging, e.Name())
		if err := os.RemoveAll(p); err != nil {
			return err
		}
		l.logger.Warn("discarded stale staging entry", logging.Folder(e.Name()))
	}
	return nil
}

func (l *Lifecycle) rollback(root, staging string, moved []string) {
	for _, name := range moved {
		if err := os.Rename(filepath.Join(staging, name), filepath.Join(root, name)); err != nil {
			l.logger.Error("failed to restore staged folder", logging.Folder(name), logging.Err(err))
		}
	}
}

// EnumerateStaged builds a CaseFolder for every directory in staging. Junk files
// are deleted on the way; other files are listed in name order. Nested
// directories inside a case folder are not attachments and are skipped.
func (l *Lifecycle) EnumerateStaged(root string) ([]*CaseFolder, error) {
	staging := l.StagingDir(root)
	entries, err := os.ReadDir(staging)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list staging: %w", err)
	}

	var folders []*CaseFolder
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		dir := filepath.Join(staging, e.Name())
		files, err := l.listFiles(dir)
		if err != nil {
			return nil, err
		}
		folders = append(folders, &CaseFolder{
			Name:  e.Name(),
			Path:  dir,
			Files: files,
			State: Staged,
		})
	}
	return folders, nil
}

// Inspect describes the case folder root/name without touching it. Junk files
// are left in place and omitted from Files.
func (l *Lifecycle) Inspect(root, name string) (*CaseFolder, error) {
	dir := filepath.Join(root, name)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list case folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() || slices.Contains(JunkFiles, e.Name()) {
			continue
		}
		files = append(files, e.Name())
	}
	return &CaseFolder{Name: name, Path: dir, Files: files, State: Discovered}, nil
}

func (l *Lifecycle) listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list case folder: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if slices.Contains(JunkFiles, e.Name()) {
			if err := os.Remove(filepath.Join(dir, e.Name())); err != nil {
				l.logger.Warn("failed to delete junk file", logging.Path(filepath.Join(dir, e.Name())), logging.Err(err))
			}
			continue
		}
		files = append(files, e.Name())
	}
	return files, nil
}

// ArchiveAll moves everything in staging to <root>/<archive>/<YYYY-MM-DD>/<HH.MM.SS>
// and advances the matching folders to Archived. An empty staging area is a
// no-op that creates nothing. Folders missing at call time are logged and
// skipped. The destination is returned, or "" when nothing moved.
func (l *Lifecycle) ArchiveAll(root string, folders []*CaseFolder) (string, error) {
	staging := l.StagingDir(root)
	entries, err := os.ReadDir(staging)
	if errors.Is(err, fs.ErrNotExist) {
		entries = nil
	} else if err != nil {
		return "", fmt.Errorf("failed to list staging: %w", err)
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.Name()] = true
	}
	for _, f := range folders {
		if !present[f.Name] {
			l.logger.Warn("folder missing at archive time", logging.Folder(f.Name))
		}
	}
	if len(entries) == 0 {
		return "", nil
	}

	dest, err := l.archiveDir(root)
	if err != nil {
		return "", err
	}

	for _, e := range entries {
		src := filepath.Join(staging, e.Name())
		if err := os.Rename(src, filepath.Join(dest, e.Name())); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn("staging entry vanished before archive", logging.Folder(e.Name()))
				delete(present, e.Name())
				continue
			}
			return dest, fmt.Errorf("failed to archive %s: %w", e.Name(), err)
		}
	}

	for _, f := range folders {
		if !present[f.Name] {
			continue
		}
		f.Path = filepath.Join(dest, f.Name)
		if err := f.Advance(Archived); err != nil {
			l.logger.Warn("archived folder in unexpected state", logging.Folder(f.Name), logging.State(f.State))
		}
	}
	l.logger.Info("archived staging", logging.Path(dest), slog.Int("count", len(present)))
	return dest, nil
}

// archiveDir creates a fresh date/time stamped directory, adding a numeric
// suffix when a run in the same second already used the name.
func (l *Lifecycle) archiveDir(root string) (string, error) {
	now := l.now()
	day := filepath.Join(root, l.layout.Archive, now.Format("2006-01-02"))
	if err := os.MkdirAll(day, 0o755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	base := now.Format("15.04.05")
	for i := 1; ; i++ {
		name := base
		if i > 1 {
			name = base + "_" + strconv.Itoa(i)
		}
		dest := filepath.Join(day, name)
		err := os.Mkdir(dest, 0o755)
		if err == nil {
			return dest, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create archive directory: %w", err)
		}
	}
}

// RequeueFailed moves failed folders out of staging back to root so the next
// run retries them. A folder whose name is taken in root is left in staging
// and reported in the returned error.
func (l *Lifecycle) RequeueFailed(root string, folders []*CaseFolder) error {
	staging := l.StagingDir(root)
	var errs []error
	for _, f := range folders {
		if f.State != Failed {
			continue
		}
		src := filepath.Join(staging, f.Name)
		dst := filepath.Join(root, f.Name)
		if _, err := os.Stat(dst); err == nil {
			errs = append(errs, fmt.Errorf("cannot requeue %s: name already in use under root", f.Name))
			continue
		}
		if err := os.Rename(src, dst); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				l.logger.Warn("failed folder vanished before requeue", logging.Folder(f.Name))
				continue
			}
			errs = append(errs, fmt.Errorf("failed to requeue %s: %w", f.Name, err))
			continue
		}
		f.Path = dst
		l.logger.Info("requeued failed folder", logging.Folder(f.Name))
	}
	return errors.Join(errs...)
}
