package dispatch

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/smartbots/docdispatch/internal/directory"
	"github.com/smartbots/docdispatch/internal/mail"
	"github.com/smartbots/docdispatch/internal/report"
)

// fakeSender records messages and answers with fn, or success when fn is nil.
type fakeSender struct {
	mu   sync.Mutex
	sent []*mail.Message
	fn   func(*mail.Message) mail.Result
}

func (f *fakeSender) Name() string { return "fake" }

func (f *fakeSender) Send(_ context.Context, msg *mail.Message) mail.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.fn != nil {
		return f.fn(msg)
	}
	return mail.Delivered()
}

func (f *fakeSender) Sent() []*mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*mail.Message(nil), f.sent...)
}

type fakeLinker struct {
	paths []string
	err   error
}

func (f *fakeLinker) ShareLink(_ context.Context, path, _ string) (string, error) {
	f.paths = append(f.paths, path)
	if f.err != nil {
		return "", f.err
	}
	return "https://drive.example/file/" + filepath.Base(path), nil
}

type captureSink struct {
	records []report.ExecutionRecord
}

func (c *captureSink) Publish(_ context.Context, rec report.ExecutionRecord) error {
	c.records = append(c.records, rec)
	return nil
}

type failingSink struct{}

func (failingSink) Publish(context.Context, report.ExecutionRecord) error {
	return errors.New("sink down")
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testDirectory() *directory.Directory {
	return directory.New(
		[]directory.RecipientMapping{
			{Key: "ACME", DistributionKey: "D1", Emails: []string{"a@x.com"}},
			{Key: "NOMAIL", DistributionKey: "D1"},
			{Key: "LOST", DistributionKey: "D9", Emails: []string{"lost@x.com"}},
		},
		[]directory.Distribution{{Key: "D1", Country: "Test", Body: "Hello"}},
		[]directory.CCPolicy{{Type: "CC", Name: "SANTA ELENA", Emails: []string{"cc@org.com"}}},
		[]string{"report@org.com"},
	)
}

// writeFile creates path with size bytes. Random content does not compress.
func writeFile(t *testing.T, path string, size int, random bool) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	data := make([]byte, size)
	if random {
		_, err := rand.Read(data)
		require.NoError(t, err)
	}
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

const mb = 1024 * 1024
