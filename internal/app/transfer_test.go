package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

type transferFixture struct {
	fs       afero.Fs
	store    *mockStore
	fetcher  *mockFetcher
	reporter *recordingReporter
	config   *domain.DownloadConfig
	svc      *TransferService
}

func newTransferFixture(t *testing.T) *transferFixture {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, fs.MkdirAll("/save", 0755))

	f := &transferFixture{
		fs:       fs,
		store:    newMockStore(),
		fetcher:  newMockFetcher(fs),
		reporter: &recordingReporter{},
	}
	f.config = &domain.DownloadConfig{SaveTo: "/save", ProgressInterval: time.Millisecond}
	f.svc = NewTransferService(f.fetcher, f.store, f.reporter, fs, f.config, zap.NewNop())
	return f
}

func (f *transferFixture) pending(dirID, name string, size int64) *domain.PendingFile {
	rec := f.store.add(dirID, name, size)
	return &domain.PendingFile{FileRecord: domain.FileRecord{
		ID:          rec.ID,
		DirectoryID: rec.DirectoryID,
		Directory:   domain.DirectoryRecord{ID: dirID},
		FileName:    rec.FileName,
		URL:         rec.URL,
		Size:        rec.Size,
	}}
}

func TestTransfer_SkipsCompleteLocalCopy(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 90)
	f.fetcher.serve(file.URL, make([]byte, 100))
	require.NoError(t, afero.WriteFile(f.fs, "/save/Books/a.pdf", make([]byte, 100), 0644))

	outcome, err := f.svc.Transfer(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)
	assert.Equal(t, 0, f.fetcher.streamCount())
	assert.Empty(t, f.reporter.indicators)

	rec := f.store.get(file.ID)
	assert.True(t, rec.Downloaded)
	assert.Equal(t, int64(100), rec.Size)
}

func TestTransfer_DownloadsAndMarksComplete(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books/Sci Fi", "b.epub", 10)
	f.fetcher.serve(file.URL, []byte("0123456789abcdef"))

	outcome, err := f.svc.Transfer(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDownloaded, outcome)

	data, err := afero.ReadFile(f.fs, "/save/Books/Sci Fi/b.epub")
	require.NoError(t, err)
	assert.Equal(t, "0123456789abcdef", string(data))

	rec := f.store.get(file.ID)
	assert.True(t, rec.Downloaded)
	assert.Equal(t, int64(16), rec.Size)

	require.Len(t, f.reporter.indicators, 1)
	ind := f.reporter.indicators[0]
	assert.Equal(t, "Books/Sci Fi/b.epub", ind.name)
	assert.Equal(t, int64(16), ind.total)
	assert.Equal(t, int64(16), ind.current)
	assert.Equal(t, domain.IndicatorDone, ind.lastState())
	assert.Equal(t, 1, ind.removes)

	// Probing the same file again reports it as already downloaded
	outcome, err = f.svc.Transfer(context.Background(), file)
	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeSkipped, outcome)
	assert.Equal(t, 1, f.fetcher.streamCount())
}

func TestTransfer_ProbeFailureTransfersUnconditionally(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 5)
	f.fetcher.serve(file.URL, []byte("hello"))
	f.fetcher.probeErr = errors.New("connection refused")
	require.NoError(t, afero.WriteFile(f.fs, "/save/Books/a.pdf", []byte("hello"), 0644))

	outcome, err := f.svc.Transfer(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDownloaded, outcome)
	assert.Equal(t, 1, f.fetcher.streamCount())
}

func TestTransfer_MidStreamFailureLeavesRecordPending(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 500)
	f.fetcher.scripts[file.URL] = []domain.TransferEvent{
		{Kind: domain.EventStart, Total: 1000},
		{Kind: domain.EventProgress, Total: 1000, Downloaded: 300},
		{Kind: domain.EventError, Err: errors.New("connection reset by peer")},
		{Kind: domain.EventEnd, Total: 300},
	}

	outcome, err := f.svc.Transfer(context.Background(), file)

	assert.Equal(t, domain.OutcomeFailed, outcome)
	var transferErr *domain.TransferError
	require.ErrorAs(t, err, &transferErr)
	assert.Equal(t, file.ID, transferErr.FileID)

	assert.False(t, f.store.get(file.ID).Downloaded)
	assert.Equal(t, 0, f.store.markCount())

	require.Len(t, f.reporter.indicators, 1)
	ind := f.reporter.indicators[0]
	assert.Equal(t, domain.IndicatorError, ind.lastState())
	assert.Equal(t, int64(500), ind.current)
	assert.Equal(t, 1, ind.removes)
}

func TestTransfer_RelabelsOnTimeoutAndRetry(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 4)
	f.fetcher.scripts[file.URL] = []domain.TransferEvent{
		{Kind: domain.EventStart, Total: 4},
		{Kind: domain.EventTimeout, Err: domain.ErrTransferTimeout},
		{Kind: domain.EventRetry, Attempt: 1},
		{Kind: domain.EventStart, Total: 4, Attempt: 1},
		{Kind: domain.EventEnd, Total: 4, Downloaded: 4, Attempt: 1},
	}

	outcome, err := f.svc.Transfer(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDownloaded, outcome)
	require.Len(t, f.reporter.indicators, 1)
	assert.Equal(t, []domain.IndicatorState{
		domain.IndicatorTimeout,
		domain.IndicatorRetrying,
		domain.IndicatorActive,
		domain.IndicatorDone,
	}, f.reporter.indicators[0].states)
}

func TestTransfer_CoalescesProgressTicks(t *testing.T) {
	f := newTransferFixture(t)
	f.config.ProgressInterval = 150 * time.Millisecond
	file := f.pending("Books", "a.pdf", 1000)

	script := []domain.TransferEvent{{Kind: domain.EventStart, Total: 1000}}
	for i := int64(1); i <= 1000; i++ {
		script = append(script, domain.TransferEvent{Kind: domain.EventProgress, Total: 1000, Downloaded: i, Speed: 100})
	}
	script = append(script, domain.TransferEvent{Kind: domain.EventEnd, Total: 1000, Downloaded: 1000})
	f.fetcher.scripts[file.URL] = script

	outcome, err := f.svc.Transfer(context.Background(), file)

	require.NoError(t, err)
	assert.Equal(t, domain.OutcomeDownloaded, outcome)
	require.Len(t, f.reporter.indicators, 1)
	ind := f.reporter.indicators[0]
	assert.LessOrEqual(t, ind.updates, 5)
	assert.Equal(t, int64(1000), ind.current)
	assert.Equal(t, int64(1000), ind.total)
	assert.Equal(t, domain.IndicatorDone, ind.lastState())
	assert.Equal(t, 1, ind.removes)
}

func TestTransfer_StoreWriteFailureIsContained(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 5)
	f.fetcher.serve(file.URL, []byte("hello"))
	f.store.markErr = errors.New("database is locked")

	outcome, err := f.svc.Transfer(context.Background(), file)

	assert.Equal(t, domain.OutcomeDownloaded, outcome)
	var storeErr *domain.StoreWriteError
	require.ErrorAs(t, err, &storeErr)
	require.Len(t, f.reporter.indicators, 1)
	assert.Equal(t, 1, f.reporter.indicators[0].removes)
}

func TestTransfer_StreamClosedWithoutResultFails(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 5)
	f.fetcher.scripts[file.URL] = []domain.TransferEvent{
		{Kind: domain.EventStart, Total: 5},
	}

	outcome, err := f.svc.Transfer(context.Background(), file)

	assert.Equal(t, domain.OutcomeFailed, outcome)
	assert.ErrorIs(t, err, errStreamClosed)
}

func TestTransferTask_FinalizeRunsOnce(t *testing.T) {
	t.Run("end then error", func(t *testing.T) {
		f := newTransferFixture(t)
		file := f.pending("Books", "a.pdf", 5)
		task := newTransferTask(f.svc, file, "/save/Books/a.pdf")

		task.finish(context.Background(), 5)
		task.fail(errors.New("late error"))
		task.finish(context.Background(), 5)

		assert.Equal(t, 1, f.store.markCount())
		require.Len(t, f.reporter.indicators, 1)
		assert.Equal(t, 1, f.reporter.indicators[0].removes)
		assert.Equal(t, domain.OutcomeDownloaded, task.outcome)
		assert.NoError(t, task.err)
	})

	t.Run("error then end", func(t *testing.T) {
		f := newTransferFixture(t)
		file := f.pending("Books", "a.pdf", 5)
		task := newTransferTask(f.svc, file, "/save/Books/a.pdf")

		task.fail(errors.New("stalled"))
		task.finish(context.Background(), 5)

		assert.Equal(t, 0, f.store.markCount())
		require.Len(t, f.reporter.indicators, 1)
		assert.Equal(t, 1, f.reporter.indicators[0].removes)
		assert.Equal(t, domain.OutcomeFailed, task.outcome)
	})
}

func TestTransfer_WriteBackSurvivesCancellation(t *testing.T) {
	f := newTransferFixture(t)
	file := f.pending("Books", "a.pdf", 5)
	task := newTransferTask(f.svc, file, "/save/Books/a.pdf")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	task.finish(ctx, 5)

	assert.NoError(t, task.err)
	assert.True(t, f.store.get(file.ID).Downloaded)
}
