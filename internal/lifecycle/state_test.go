package lifecycle

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdvance(t *testing.T) {
	tests := []struct {
		from    State
		to      State
		wantErr bool
	}{
		{Discovered, Staged, false},
		{Staged, Dispatched, false},
		{Staged, Failed, false},
		{Dispatched, Archived, false},
		{Failed, Archived, false},
		{Discovered, Dispatched, true},
		{Staged, Archived, true},
		{Dispatched, Staged, true},
		{Failed, Dispatched, true},
		{Archived, Discovered, true},
		{Archived, Archived, true},
	}

	for _, tt := range tests {
		t.Run(tt.from.String()+"->"+tt.to.String(), func(t *testing.T) {
			c := &CaseFolder{Name: "x", State: tt.from}
			err := c.Advance(tt.to)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, tt.from, c.State)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.to, c.State)
			}
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "staged", Staged.String())
	assert.Equal(t, "state(42)", State(42).String())
}

func TestAcquireLock(t *testing.T) {
	root := t.TempDir()

	lock, err := AcquireLock(root, ".docdispatch.lock", 0)
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(root, ".docdispatch.lock"))

	_, err = AcquireLock(root, ".docdispatch.lock", 0)
	assert.True(t, errors.Is(err, ErrRunLocked))
	assert.Contains(t, err.Error(), "pid=")

	require.NoError(t, lock.Release())
	require.NoError(t, lock.Release())
	_, statErr := os.Stat(lock.Path())
	assert.True(t, os.IsNotExist(statErr))

	again, err := AcquireLock(root, ".docdispatch.lock", 0)
	require.NoError(t, err)
	require.NoError(t, again.Release())
}

func TestAcquireLock_TakesOverStaleLock(t *testing.T) {
	host, _ := os.Hostname()
	old := time.Now().Add(-2 * time.Hour).Format(time.RFC3339)
	recent := time.Now().Format(time.RFC3339)

	tests := []struct {
		name     string
		content  string
		maxAge   time.Duration
		takeover bool
	}{
		{name: "dead pid", content: "pid=999999", takeover: true},
		{name: "dead pid on this host", content: "pid=999999 host=" + host + " started=" + recent, takeover: true},
		{name: "live pid", content: fmt.Sprintf("pid=%d started=%s", os.Getpid(), recent), takeover: false},
		{name: "other host within max age", content: "pid=999999 host=elsewhere.invalid started=" + recent, takeover: false},
		{name: "other host past max age", content: "pid=999999 host=elsewhere.invalid started=" + old, maxAge: time.Hour, takeover: true},
		{name: "live pid past max age", content: fmt.Sprintf("pid=%d started=%s", os.Getpid(), old), maxAge: time.Hour, takeover: true},
		{name: "unreadable content within max age", content: "garbage", takeover: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			root := t.TempDir()
			path := filepath.Join(root, ".docdispatch.lock")
			require.NoError(t, os.WriteFile(path, []byte(tt.content+"\n"), 0o644))

			lock, err := AcquireLock(root, ".docdispatch.lock", tt.maxAge)
			if !tt.takeover {
				require.ErrorIs(t, err, ErrRunLocked)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.content, lock.Replaced)
			data, err := os.ReadFile(path)
			require.NoError(t, err)
			assert.Contains(t, string(data), fmt.Sprintf("pid=%d", os.Getpid()))
			require.NoError(t, lock.Release())
		})
	}
}

func TestAcquireLock_MissingRoot(t *testing.T) {
	_, err := AcquireLock(filepath.Join(t.TempDir(), "missing"), ".lock", 0)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrRunLocked))
}
