package drive

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbots/docdispatch/internal/config"
)

func newTestSync(t *testing.T, f *fakeDrive) *Sync {
	t.Helper()
	f.addFolder("intake", "Entrada", "root")
	f.addFolder("wip", "En Proceso", "intake")
	f.addFolder("done", "Listo", "intake")
	return NewSync(newFakeClient(t, f), config.DrivePaths{
		Enabled:    true,
		RootPath:   "Entrada",
		InProgress: "En Proceso",
		Done:       "Listo",
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestSync_IntakeAndComplete(t *testing.T) {
	f := newFakeDrive()
	s := newTestSync(t, f)
	f.addFolder("c1", "FULL SET OE1 - ACME (ETA 1)", "intake")
	f.addFile("c1f", "a.pdf", "c1", "application/pdf", "a")
	f.addFolder("c2", "FULL SET OE2 - BETA (ETA 2)", "intake")
	f.addFile("c2f", "b.pdf", "c2", "application/pdf", "b")

	local := t.TempDir()
	ctx := context.Background()

	pulled, err := s.Intake(ctx, local)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{
		"FULL SET OE1 - ACME (ETA 1)": "c1",
		"FULL SET OE2 - BETA (ETA 2)": "c2",
	}, pulled)

	assert.FileExists(t, filepath.Join(local, "FULL SET OE1 - ACME (ETA 1)", "a.pdf"))
	assert.FileExists(t, filepath.Join(local, "FULL SET OE2 - BETA (ETA 2)", "b.pdf"))
	assert.Equal(t, "wip", f.parentOf("c1"))
	assert.Equal(t, "wip", f.parentOf("c2"))
	assert.Equal(t, "intake", f.parentOf("wip"), "reserved folders stay put")

	err = s.Complete(ctx, pulled, map[string]bool{"FULL SET OE1 - ACME (ETA 1)": true})
	require.NoError(t, err)
	assert.Equal(t, "done", f.parentOf("c1"))
	assert.Equal(t, "intake", f.parentOf("c2"), "failed folders return to the intake root")
}

func TestSync_IntakeSkipsExistingLocalFolder(t *testing.T) {
	f := newFakeDrive()
	s := newTestSync(t, f)
	f.addFolder("c1", "CASE - ACME (x)", "intake")
	f.addFile("c1f", "remote.pdf", "c1", "application/pdf", "remote")

	local := t.TempDir()
	existing := filepath.Join(local, "CASE - ACME (x)")
	require.NoError(t, os.MkdirAll(existing, 0o755))

	pulled, err := s.Intake(context.Background(), local)
	require.NoError(t, err)
	assert.Contains(t, pulled, "CASE - ACME (x)")
	assert.NoFileExists(t, filepath.Join(existing, "remote.pdf"))
	assert.Equal(t, "wip", f.parentOf("c1"))
}

func TestSync_MissingRoot(t *testing.T) {
	s := NewSync(newFakeClient(t, newFakeDrive()), config.DrivePaths{RootPath: "Nope", InProgress: "a", Done: "b"},
		slog.New(slog.NewTextHandler(io.Discard, nil)))

	_, err := s.Intake(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrFolderNotFound)
	assert.NoError(t, s.Complete(context.Background(), nil, nil))
}
