package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartbots/docdispatch/internal/config"
	"github.com/smartbots/docdispatch/internal/lifecycle"
	"github.com/smartbots/docdispatch/internal/mail"
	"github.com/smartbots/docdispatch/internal/report"
	"github.com/smartbots/docdispatch/internal/templates"
)

const acmeFolder = "FULL SET OE1 - ACME (ETA 01-01-2030)"

type runFixture struct {
	root     string
	ledger   string
	settings *config.Settings
	sender   *fakeSender
	sink     *captureSink
}

func newRunFixture(t *testing.T) *runFixture {
	t.Helper()
	root := t.TempDir()
	s := config.Default()
	s.Path.Local.Root = root
	s.Ledger.Dir = t.TempDir()
	s.Ledger.FileName = "ledger.xlsx"
	require.NoError(t, os.MkdirAll(filepath.Join(root, s.Path.Local.ConfigName), 0o755))

	return &runFixture{
		root:     root,
		ledger:   filepath.Join(s.Ledger.Dir, "ledger.xlsx"),
		settings: s,
		sender:   &fakeSender{},
		sink:     &captureSink{},
	}
}

func (f *runFixture) runner(t *testing.T, opts Options) *Runner {
	t.Helper()
	set, err := templates.Load("", "", "")
	require.NoError(t, err)

	opts.Settings = f.settings
	if opts.Directory == nil {
		opts.Directory = testDirectory()
	}
	opts.Templates = set
	opts.Sender = f.sender
	opts.Sinks = append(opts.Sinks, f.sink)
	opts.Logger = discard()

	r := NewRunner(opts)
	r.newRunID = func() string { return "run-test" }
	return r
}

func (f *runFixture) addFolder(t *testing.T, name string, files map[string]int) {
	t.Helper()
	for file, size := range files {
		writeFile(t, filepath.Join(f.root, name, file), size, false)
	}
}

func TestRun_DispatchesAndArchives(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"invoice.pdf": mb + mb/2, "packing.pdf": mb + mb/2})

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-test", summary.RunID)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Equal(t, 0, summary.Failed)
	require.Len(t, summary.Records, 1)
	assert.True(t, summary.Records[0].Success)
	assert.Equal(t, "run-test", summary.Records[0].RunID)

	sent := f.sender.Sent()
	require.Len(t, sent, 2, "case email plus report email")
	caseMsg := sent[0]
	assert.Equal(t, []string{"a@x.com"}, caseMsg.To)
	assert.Equal(t, acmeFolder, caseMsg.Subject)
	assert.Len(t, caseMsg.Attachments, 2, "3 MB is not compressed")
	for _, a := range caseMsg.Attachments {
		assert.NotEqual(t, ".zip", filepath.Ext(a))
	}

	// Archived under <root>/Listo/<date>/<time>/
	require.NotEmpty(t, summary.ArchivePath)
	assert.Equal(t, filepath.Join(f.root, f.settings.Path.Local.Archive), filepath.Dir(filepath.Dir(summary.ArchivePath)))
	assert.DirExists(t, filepath.Join(summary.ArchivePath, acmeFolder))
	assert.NoDirExists(t, filepath.Join(f.root, acmeFolder))
	assert.NoFileExists(t, filepath.Join(f.root, f.settings.Lock.FileName), "lock released")

	// Ledger written and attached to the report
	assert.Equal(t, f.ledger, summary.LedgerPath)
	rows, err := report.NewLedger(f.settings.Ledger.Sheet).Read(f.ledger)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, report.StatusOK, rows[0].Status)

	reportMsg := sent[1]
	assert.True(t, strings.HasPrefix(reportMsg.Subject, ReportSubjectPrefix))
	assert.Equal(t, []string{"report@org.com"}, reportMsg.To)
	assert.Equal(t, []string{f.ledger}, reportMsg.Attachments)
	assert.Contains(t, reportMsg.HTML, "<li>"+acmeFolder+"</li>")
	assert.True(t, summary.ReportSent)

	require.Len(t, f.sink.records, 1)
	assert.Equal(t, acmeFolder, f.sink.records[0].Folder)
}

func TestRun_UnknownRecipientIsRecordedAndRequeued(t *testing.T) {
	f := newRunFixture(t)
	name := "FULL SET OE1 - NOBODY (ETA 01-01-2030)"
	f.addFolder(t, name, map[string]int{"a.pdf": 10})

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 1)
	assert.False(t, summary.Records[0].Success)
	assert.Contains(t, summary.Records[0].Description, "recipient not found")
	assert.Equal(t, 1, summary.Failed)

	sent := f.sender.Sent()
	require.Len(t, sent, 1, "only the report email is sent")
	assert.True(t, strings.HasPrefix(sent[0].Subject, ReportSubjectPrefix))

	assert.DirExists(t, filepath.Join(f.root, name), "failed folder returns to the root")
	assert.Empty(t, summary.ArchivePath)
}

func TestRun_EmptyRootSendsEmptyNotice(t *testing.T) {
	f := newRunFixture(t)

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Empty)
	assert.Empty(t, summary.Records)
	assert.Empty(t, f.sink.records)
	assert.Empty(t, summary.LedgerPath)
	assert.NoFileExists(t, f.ledger)

	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.True(t, strings.HasPrefix(sent[0].Subject, ReportSubjectPrefix))
	assert.Contains(t, sent[0].HTML, "No case folders were found")
	assert.Empty(t, sent[0].Attachments)
}

func TestRun_ReservedFoldersAreIgnored(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, f.settings.Path.Local.Archive, map[string]int{"old.pdf": 1})

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)
	assert.True(t, summary.Empty)
}

func TestRun_MixedBatch(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	f.addFolder(t, "CASE - NOMAIL (x)", map[string]int{"b.pdf": 10})
	f.settings.Mail.Sender.Report.CC = "boss@org.com; "
	f.settings.Mail.Sender.Report.CCO = "audit@org.com"

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Dispatched)
	assert.Equal(t, 1, summary.Failed)
	assert.DirExists(t, filepath.Join(summary.ArchivePath, acmeFolder))
	assert.DirExists(t, filepath.Join(f.root, "CASE - NOMAIL (x)"))

	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Equal(t, []string{"audit@org.com"}, sent[0].BCC, "case emails carry the report CCO")
	assert.Equal(t, []string{"boss@org.com"}, sent[1].CC)

	rows, err := report.NewLedger(f.settings.Ledger.Sheet).Read(f.ledger)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRun_LedgerIsCumulative(t *testing.T) {
	f := newRunFixture(t)

	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	_, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	f.addFolder(t, "SECOND - ACME (x)", map[string]int{"b.pdf": 10})
	_, err = f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	rows, err := report.NewLedger(f.settings.Ledger.Sheet).Read(f.ledger)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRun_TransportFailureRequeues(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	f.sender.fn = func(msg *mail.Message) mail.Result {
		if msg.Subject == acmeFolder {
			return mail.Failed(errors.New("421 service not available"))
		}
		return mail.Delivered()
	}

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Records, 1)
	assert.Equal(t, "421 service not available", summary.Records[0].Description)
	assert.DirExists(t, filepath.Join(f.root, acmeFolder))
}

func TestRun_ReportFailureIsReturned(t *testing.T) {
	f := newRunFixture(t)
	f.sender.fn = func(*mail.Message) mail.Result {
		return mail.Failed(errors.New("smtp down"))
	}

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "smtp down")
	assert.False(t, summary.ReportSent)
}

func TestRun_LedgerWriteFailureIsLoud(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	f.settings.Ledger.Dir = filepath.Join(f.root, "missing", "dir")

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.ErrorIs(t, err, report.ErrReportWrite)

	assert.Equal(t, 1, summary.Dispatched, "sends are not repeated or undone")
	sent := f.sender.Sent()
	require.Len(t, sent, 2)
	assert.Empty(t, sent[1].Attachments)
}

func TestRun_LockHeld(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	lock, err := lifecycle.AcquireLock(f.root, f.settings.Lock.FileName, 0)
	require.NoError(t, err)
	defer func() { _ = lock.Release() }()

	_, err = f.runner(t, Options{}).Run(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrRunLocked)
	assert.Empty(t, f.sender.Sent())
	assert.DirExists(t, filepath.Join(f.root, acmeFolder))
}

func TestRun_RecoversFromKilledRun(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	stale := filepath.Join(f.root, f.settings.Path.Local.Staging, "STALE - ACME (x)")
	writeFile(t, filepath.Join(stale, "old.pdf"), 10, false)
	lockPath := filepath.Join(f.root, f.settings.Lock.FileName)
	require.NoError(t, os.WriteFile(lockPath, []byte("pid=999999\n"), 0o644))

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Dispatched)
	assert.NoDirExists(t, stale)
	assert.NoFileExists(t, lockPath)
	require.Len(t, f.sender.Sent(), 2)
}

func TestRun_MissingRoot(t *testing.T) {
	f := newRunFixture(t)
	f.settings.Path.Local.Root = filepath.Join(f.root, "nope")
	f.settings.Lock.Enabled = false

	_, err := f.runner(t, Options{}).Run(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrRootNotFound)
	assert.Empty(t, f.sender.Sent())
}

func TestRun_StaleStagingIsDiscarded(t *testing.T) {
	f := newRunFixture(t)
	stale := filepath.Join(f.root, f.settings.Path.Local.Staging, "STALE - ACME (x)")
	writeFile(t, filepath.Join(stale, "old.pdf"), 10, false)

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.NoError(t, err)

	assert.True(t, summary.Empty)
	assert.NoDirExists(t, stale)
}

func TestRun_StagingFailureReportsEmptyBatch(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	staging := filepath.Join(f.root, f.settings.Path.Local.Staging)
	require.NoError(t, os.WriteFile(staging, []byte("not a directory"), 0o600))

	summary, err := f.runner(t, Options{}).Run(context.Background())
	require.ErrorIs(t, err, lifecycle.ErrStagingMove)

	assert.True(t, summary.Empty)
	assert.True(t, summary.ReportSent)
	assert.Zero(t, summary.Dispatched)
	sent := f.sender.Sent()
	require.Len(t, sent, 1)
	assert.Empty(t, sent[0].Attachments)
	assert.DirExists(t, filepath.Join(f.root, acmeFolder))
}

func TestRun_SinkFailureDoesNotAbort(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})

	summary, err := f.runner(t, Options{Sinks: []report.Sink{failingSink{}}}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Len(t, f.sink.records, 1)
}

type fakeDriveSync struct {
	root       string
	pulled     map[string]string
	dispatched map[string]bool
}

func (d *fakeDriveSync) Intake(_ context.Context, localRoot string) (map[string]string, error) {
	d.root = localRoot
	return d.pulled, nil
}

func (d *fakeDriveSync) Complete(_ context.Context, pulled map[string]string, dispatched map[string]bool) error {
	d.dispatched = dispatched
	return nil
}

func TestRun_DriveIntakeAndComplete(t *testing.T) {
	f := newRunFixture(t)
	f.addFolder(t, acmeFolder, map[string]int{"a.pdf": 10})
	f.addFolder(t, "CASE - NOBODY (x)", map[string]int{"b.pdf": 10})
	ds := &fakeDriveSync{pulled: map[string]string{acmeFolder: "id1", "CASE - NOBODY (x)": "id2"}}

	_, err := f.runner(t, Options{Drive: ds}).Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, f.root, ds.root)
	assert.Equal(t, map[string]bool{acmeFolder: true, "CASE - NOBODY (x)": false}, ds.dispatched)
}

func TestRun_DriveFallbackNeedsSetting(t *testing.T) {
	f := newRunFixture(t)
	f.settings.Dispatch.CeilingMB = 0.5
	name := "BIG - ACME (x)"
	writeFile(t, filepath.Join(f.root, name, "a.bin"), mb, true)
	linker := &fakeLinker{}

	summary, err := f.runner(t, Options{Linker: linker}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, linker.paths)

	f.settings.Dispatch.DriveFallback = true
	summary, err = f.runner(t, Options{Linker: linker}).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Dispatched)
	assert.Len(t, linker.paths, 1)
}
