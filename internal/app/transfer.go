package app

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

const storeWriteTimeout = 10 * time.Second

// TransferService downloads single files, skipping complete local copies
type TransferService struct {
	fetcher  domain.Fetcher
	store    domain.FileStore
	reporter domain.ProgressReporter
	fs       afero.Fs
	config   *domain.DownloadConfig
	logger   *zap.Logger
}

// NewTransferService creates a new transfer service
func NewTransferService(
	fetcher domain.Fetcher,
	store domain.FileStore,
	reporter domain.ProgressReporter,
	fs afero.Fs,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *TransferService {
	return &TransferService{
		fetcher:  fetcher,
		store:    store,
		reporter: reporter,
		fs:       fs,
		config:   config,
		logger:   logger,
	}
}

// Transfer drives a pending file to a terminal outcome
func (s *TransferService) Transfer(ctx context.Context, file *domain.PendingFile) (domain.TransferOutcome, error) {
	dir := file.LocalDir(s.config.SaveTo)
	path := file.LocalPath(s.config.SaveTo)

	if err := s.fs.MkdirAll(dir, 0755); err != nil {
		return domain.OutcomeFailed, &domain.TransferError{
			FileID: file.ID,
			Err:    fmt.Errorf("failed to create directory %s: %w", dir, err),
		}
	}

	if skipped, err := s.skipIfComplete(ctx, file, path); skipped {
		return domain.OutcomeSkipped, err
	}

	return newTransferTask(s, file, path).run(ctx)
}

// skipIfComplete marks the file downloaded when the local copy already has
// the probed remote size. A failed probe disables the check.
func (s *TransferService) skipIfComplete(ctx context.Context, file *domain.PendingFile, path string) (bool, error) {
	info, err := s.fetcher.Probe(ctx, file.URL)
	if err != nil {
		s.logger.Debug("Probe failed, transferring unconditionally",
			zap.String("file", file.ID),
			zap.Error(err))
		return false, nil
	}

	stat, err := s.fs.Stat(path)
	if err != nil || stat.IsDir() || stat.Size() != info.Size {
		return false, nil
	}

	s.logger.Info("File already downloaded",
		zap.String("file", file.ID),
		zap.Int64("size", info.Size))

	return true, s.markComplete(ctx, file, info.Size)
}

// markComplete writes back completion even while ctx is being cancelled
func (s *TransferService) markComplete(ctx context.Context, file *domain.PendingFile, size int64) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), storeWriteTimeout)
	defer cancel()

	if err := s.store.MarkComplete(writeCtx, file.ID, size); err != nil {
		s.logger.Error("Failed to mark file complete",
			zap.String("file", file.ID),
			zap.Int64("size", size),
			zap.Error(err))
		return &domain.StoreWriteError{FileID: file.ID, Err: err}
	}
	return nil
}
