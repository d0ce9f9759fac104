package lifecycle

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLayout = Layout{Staging: "En Proceso", Archive: "Listo", ConfigName: "Configuracion"}

func newTestLifecycle(now time.Time) *Lifecycle {
	l := New(testLayout, slog.New(slog.NewTextHandler(io.Discard, nil)))
	l.now = func() time.Time { return now }
	return l
}

func mkFolder(t *testing.T, root, name string, files ...string) {
	t.Helper()
	dir := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, f), []byte(f), 0o600))
	}
}

func TestDiscover(t *testing.T) {
	root := t.TempDir()
	mkFolder(t, root, "B - ACME (x)")
	mkFolder(t, root, "A - TROPME (y)")
	mkFolder(t, root, "En Proceso")
	mkFolder(t, root, "Listo")
	mkFolder(t, root, "Configuracion")
	require.NoError(t, os.WriteFile(filepath.Join(root, "loose.pdf"), nil, 0o600))

	names, err := newTestLifecycle(time.Now()).Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"A - TROPME (y)", "B - ACME (x)"}, names)
}

func TestDiscover_RootErrors(t *testing.T) {
	l := newTestLifecycle(time.Now())

	_, err := l.Discover(filepath.Join(t.TempDir(), "missing"))
	assert.True(t, errors.Is(err, ErrRootNotFound))

	file := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = l.Discover(file)
	assert.True(t, errors.Is(err, ErrNotADirectory))
}

func TestDiscover_EmptyRoot(t *testing.T) {
	names, err := newTestLifecycle(time.Now()).Discover(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStage_ClearsStaleContentsFirst(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	mkFolder(t, filepath.Join(root, "En Proceso"), "STALE - OLD (x)", "old.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(root, "En Proceso", "stray.txt"), nil, 0o600))
	mkFolder(t, root, "NEW - ACME (x)", "doc.pdf")

	ok, err := l.Stage(root, []string{"NEW - ACME (x)", "GONE - X (y)"})
	require.NoError(t, err)
	assert.True(t, ok)

	folders, err := l.EnumerateStaged(root)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "NEW - ACME (x)", folders[0].Name)
	assert.NoDirExists(t, filepath.Join(root, "NEW - ACME (x)"))
	assert.NoFileExists(t, filepath.Join(root, "En Proceso", "stray.txt"))
}

func TestStage_CreatesStaging(t *testing.T) {
	root := t.TempDir()
	mkFolder(t, root, "A - X (y)")

	ok, err := newTestLifecycle(time.Now()).Stage(root, []string{"A - X (y)"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.DirExists(t, filepath.Join(root, "En Proceso", "A - X (y)"))
}

func TestStage_FailureRollsBack(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	mkFolder(t, root, "A - X (y)")
	mkFolder(t, root, filepath.Join("B - Y (z)", "inner"))

	// the destination parent of a nested candidate does not exist in staging,
	// so its rename fails after the first candidate has moved
	ok, err := l.Stage(root, []string{"A - X (y)", filepath.Join("B - Y (z)", "inner")})
	assert.False(t, ok)
	assert.True(t, errors.Is(err, ErrStagingMove))
	assert.DirExists(t, filepath.Join(root, "A - X (y)"), "already staged folder must be restored")

	entries, err := os.ReadDir(filepath.Join(root, "En Proceso"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestEnumerateStaged_RemovesJunk(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	staged := filepath.Join(root, "En Proceso")
	mkFolder(t, staged, "A - X (y)", "b.pdf", "a.pdf", "desktop.ini", ".DS_Store", "Thumbs.db")
	mkFolder(t, filepath.Join(staged, "A - X (y)"), "nested", "inner.pdf")
	require.NoError(t, os.WriteFile(filepath.Join(staged, "stray.txt"), nil, 0o600))

	folders, err := l.EnumerateStaged(root)
	require.NoError(t, err)
	require.Len(t, folders, 1)

	f := folders[0]
	assert.Equal(t, Staged, f.State)
	assert.Equal(t, []string{"a.pdf", "b.pdf"}, f.Files)
	assert.Equal(t, []string{filepath.Join(staged, "A - X (y)", "a.pdf"), filepath.Join(staged, "A - X (y)", "b.pdf")}, f.FilePaths())
	assert.NoFileExists(t, filepath.Join(staged, "A - X (y)", "desktop.ini"))
	assert.NoFileExists(t, filepath.Join(staged, "A - X (y)", ".DS_Store"))
	assert.FileExists(t, filepath.Join(staged, "A - X (y)", "nested", "inner.pdf"))
}

func TestEnumerateStaged_NoStaging(t *testing.T) {
	folders, err := newTestLifecycle(time.Now()).EnumerateStaged(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestArchiveAll(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2030, 1, 1, 9, 5, 7, 0, time.UTC)
	l := newTestLifecycle(now)
	mkFolder(t, root, "A - X (y)", "a.pdf")

	_, err := l.Stage(root, []string{"A - X (y)"})
	require.NoError(t, err)
	folders, err := l.EnumerateStaged(root)
	require.NoError(t, err)
	require.NoError(t, folders[0].Advance(Dispatched))
	ghost := &CaseFolder{Name: "GHOST", State: Dispatched}

	dest, err := l.ArchiveAll(root, append(folders, ghost))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "Listo", "2030-01-01", "09.05.07"), dest)
	assert.FileExists(t, filepath.Join(dest, "A - X (y)", "a.pdf"))
	assert.Equal(t, Archived, folders[0].State)
	assert.Equal(t, filepath.Join(dest, "A - X (y)"), folders[0].Path)
	assert.Equal(t, Dispatched, ghost.State)

	entries, err := os.ReadDir(filepath.Join(root, "En Proceso"))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestArchiveAll_EmptyStagingIsNoop(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	require.NoError(t, os.MkdirAll(filepath.Join(root, "En Proceso"), 0o755))

	for i := 0; i < 2; i++ {
		dest, err := l.ArchiveAll(root, nil)
		require.NoError(t, err)
		assert.Empty(t, dest)
	}
	assert.NoDirExists(t, filepath.Join(root, "Listo"))

	// no staging directory at all
	dest, err := l.ArchiveAll(t.TempDir(), nil)
	require.NoError(t, err)
	assert.Empty(t, dest)
}

func TestArchiveAll_UniquePerRun(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2030, 1, 1, 9, 5, 7, 0, time.UTC)
	l := newTestLifecycle(now)

	var dests []string
	for _, name := range []string{"A - X (y)", "B - Y (z)"} {
		mkFolder(t, root, name, "f.pdf")
		_, err := l.Stage(root, []string{name})
		require.NoError(t, err)
		dest, err := l.ArchiveAll(root, nil)
		require.NoError(t, err)
		dests = append(dests, dest)
	}

	assert.Equal(t, filepath.Join(root, "Listo", "2030-01-01", "09.05.07"), dests[0])
	assert.Equal(t, filepath.Join(root, "Listo", "2030-01-01", "09.05.07_2"), dests[1])
	assert.FileExists(t, filepath.Join(dests[0], "A - X (y)", "f.pdf"))
	assert.FileExists(t, filepath.Join(dests[1], "B - Y (z)", "f.pdf"))
}

func TestRequeueFailed(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	mkFolder(t, root, "OK - X (y)", "a.pdf")
	mkFolder(t, root, "BAD - Y (z)", "b.pdf")

	_, err := l.Stage(root, []string{"OK - X (y)", "BAD - Y (z)"})
	require.NoError(t, err)
	folders, err := l.EnumerateStaged(root)
	require.NoError(t, err)
	require.Len(t, folders, 2)

	// sorted: BAD first
	require.NoError(t, folders[0].Advance(Failed))
	require.NoError(t, folders[1].Advance(Dispatched))

	require.NoError(t, l.RequeueFailed(root, folders))
	assert.DirExists(t, filepath.Join(root, "BAD - Y (z)"))
	assert.Equal(t, filepath.Join(root, "BAD - Y (z)"), folders[0].Path)

	dest, err := l.ArchiveAll(root, folders[1:])
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(dest, "OK - X (y)"))
	assert.NoDirExists(t, filepath.Join(dest, "BAD - Y (z)"))

	names, err := l.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"BAD - Y (z)"}, names)
}

func TestRequeueFailed_NameTaken(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	mkFolder(t, filepath.Join(root, "En Proceso"), "BAD - Y (z)")
	mkFolder(t, root, "BAD - Y (z)")

	err := l.RequeueFailed(root, []*CaseFolder{{Name: "BAD - Y (z)", State: Failed}})
	assert.Error(t, err)
	assert.DirExists(t, filepath.Join(root, "En Proceso", "BAD - Y (z)"))
}

func TestInterruptedRunDiscardsStaleStaging(t *testing.T) {
	root := t.TempDir()
	l := newTestLifecycle(time.Now())
	mkFolder(t, root, "FIRST - X (y)", "a.pdf")

	// first run stages and is killed before dispatch
	_, err := l.Stage(root, []string{"FIRST - X (y)"})
	require.NoError(t, err)

	mkFolder(t, root, "SECOND - Y (z)", "b.pdf")
	names, err := l.Discover(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"SECOND - Y (z)"}, names)

	_, err = l.Stage(root, names)
	require.NoError(t, err)
	folders, err := l.EnumerateStaged(root)
	require.NoError(t, err)
	require.Len(t, folders, 1)
	assert.Equal(t, "SECOND - Y (z)", folders[0].Name)
}

func TestInspect(t *testing.T) {
	root := t.TempDir()
	mkFolder(t, root, "CASE - ACME (x)", "b.pdf", "a.pdf", "Thumbs.db")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "CASE - ACME (x)", "nested"), 0o755))

	l := newTestLifecycle(time.Now())
	cf, err := l.Inspect(root, "CASE - ACME (x)")
	require.NoError(t, err)

	assert.Equal(t, []string{"a.pdf", "b.pdf"}, cf.Files)
	assert.Equal(t, Discovered, cf.State)
	assert.FileExists(t, filepath.Join(root, "CASE - ACME (x)", "Thumbs.db"), "inspection leaves junk in place")

	_, err = l.Inspect(root, "missing")
	assert.Error(t, err)
}
