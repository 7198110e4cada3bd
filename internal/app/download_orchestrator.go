package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/spf13/afero"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"go.uber.org/zap"
)

// ProducerStatus reports whether a stage may still insert pending records
type ProducerStatus interface {
	IsActive() bool
}

// batchedFileStore is implemented by stores whose cursors page in batches
type batchedFileStore interface {
	PendingStreamWithBatch(ctx context.Context, filter domain.PendingFilter, batch int) (domain.FileCursor, error)
}

// DownloadOrchestrator drains the pending records of a store through a
// bounded pool of transfers, re-polling for records that appear late
type DownloadOrchestrator struct {
	store    domain.FileStore
	transfer domain.FileTransfer
	reporter domain.ProgressReporter
	fs       afero.Fs
	config   *domain.DownloadConfig
	logger   *zap.Logger

	mu       sync.RWMutex
	producer ProducerStatus
	current  *RunState
}

// NewDownloadOrchestrator creates a new download orchestrator
func NewDownloadOrchestrator(
	store domain.FileStore,
	transfer domain.FileTransfer,
	reporter domain.ProgressReporter,
	fs afero.Fs,
	config *domain.DownloadConfig,
	logger *zap.Logger,
) *DownloadOrchestrator {
	return &DownloadOrchestrator{
		store:    store,
		transfer: transfer,
		reporter: reporter,
		fs:       fs,
		config:   config,
		logger:   logger,
	}
}

// SetProducer registers a stage that keeps the run alive while active
func (o *DownloadOrchestrator) SetProducer(producer ProducerStatus) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.producer = producer
}

// Current returns a summary of the active or last run
func (o *DownloadOrchestrator) Current() (*domain.RunSummary, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.current == nil {
		return nil, false
	}
	return o.current.Summary(), true
}

func (o *DownloadOrchestrator) producerActive() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.producer != nil && o.producer.IsActive()
}

// Run downloads every pending record matching the configured filter and
// returns once the store stays exhausted
func (o *DownloadOrchestrator) Run(ctx context.Context) (*domain.RunSummary, error) {
	if err := o.checkSaveTo(); err != nil {
		return nil, err
	}

	filter := o.config.Filter()
	totals, err := o.store.CountPending(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to count pending files: %w", err)
	}

	state := newRunState(totals)
	o.mu.Lock()
	o.current = state
	o.mu.Unlock()

	o.logger.Info("Starting downloads",
		zap.String("run_id", state.ID),
		zap.Int64("total_files", totals.TotalCount),
		zap.Int64("total_bytes", totals.TotalBytes),
		zap.Int("parallel_downloads", o.config.ParallelDownloads))

	run := &orchestratorRun{
		o:      o,
		state:  state,
		filter: filter,
		seen:   make(map[string]struct{}),
		aggregate: o.reporter.CreateAggregateIndicator(totals.TotalBytes, domain.IndicatorFields{
			Name:  "Total",
			State: domain.IndicatorActive,
			Speed: -1,
			Note:  state.Note(),
		}),
	}

	err = run.loop(ctx)

	state.finish()
	run.aggregate.Update(state.completedBytes.Load(), domain.IndicatorFields{State: domain.IndicatorDone, Note: state.Note()})
	run.aggregate.Remove()

	summary := state.Summary()
	o.logger.Info("Downloads finished",
		zap.String("run_id", summary.RunID),
		zap.Int64("completed_files", summary.CompletedFiles),
		zap.Int64("failed_files", summary.FailedFiles),
		zap.Int64("skipped_files", summary.SkippedFiles),
		zap.Duration("duration", summary.Duration))

	return summary, err
}

// checkSaveTo verifies the save directory before any transfer begins
func (o *DownloadOrchestrator) checkSaveTo() error {
	if o.config.SaveTo == "" {
		return domain.ConfigError("download.save_to is not configured")
	}
	info, err := o.fs.Stat(o.config.SaveTo)
	if err != nil {
		return domain.ConfigError("download.save_to %s is not accessible: %v", o.config.SaveTo, err)
	}
	if !info.IsDir() {
		return domain.ConfigError("download.save_to %s is not a directory", o.config.SaveTo)
	}
	return nil
}

// orchestratorRun is the state of a single Run call
type orchestratorRun struct {
	o         *DownloadOrchestrator
	state     *RunState
	filter    domain.PendingFilter
	aggregate domain.Indicator
	aggMu     sync.Mutex

	// records admitted or rejected earlier in this run, owned by the
	// admission loop
	seen map[string]struct{}
}

// loop alternates draining passes and idle waits until enough
// consecutive passes admit nothing
func (r *orchestratorRun) loop(ctx context.Context) error {
	idlePolls := r.o.config.IdlePolls
	if idlePolls < 1 {
		idlePolls = 1
	}
	interval := r.o.config.PollInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	idle := 0
	producing := false
	for {
		if producing || r.o.producerActive() {
			r.recount(ctx)
		}

		admitted := r.drain(ctx)
		if err := ctx.Err(); err != nil {
			return err
		}

		producing = r.o.producerActive()
		switch {
		case admitted > 0:
			idle = 0
		case producing:
			idle = 0
		default:
			idle++
		}
		if idle >= idlePolls {
			return nil
		}

		r.o.logger.Debug("Waiting for new pending files",
			zap.Int("idle_polls", idle),
			zap.Duration("interval", interval))

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// recount grows the run totals by the records a producer inserted since
// the last pass
func (r *orchestratorRun) recount(ctx context.Context) {
	totals, err := r.o.store.CountPending(ctx, r.filter)
	if err != nil {
		if ctx.Err() == nil {
			r.o.logger.Warn("Failed to recount pending files", zap.Error(err))
		}
		return
	}

	r.aggMu.Lock()
	defer r.aggMu.Unlock()

	if !r.state.grow(totals) {
		return
	}
	grown := r.state.Totals()
	r.aggregate.Update(r.state.completedBytes.Load(), domain.IndicatorFields{
		Total: grown.TotalBytes,
		Note:  r.state.Note(),
	})

	r.o.logger.Debug("Pending totals grew",
		zap.Int64("total_files", grown.TotalCount),
		zap.Int64("total_bytes", grown.TotalBytes))
}

// drain runs one pass over a fresh cursor and waits for every admitted
// transfer to settle. It returns the number of admitted records.
func (r *orchestratorRun) drain(ctx context.Context) int {
	cursor, err := r.openCursor(ctx)
	if err != nil {
		r.o.logger.Error("Failed to open pending stream", zap.Error(err))
		return 0
	}
	defer cursor.Close()

	parallel := r.o.config.ParallelDownloads
	if parallel < 1 {
		parallel = 1
	}
	p := pool.New().WithMaxGoroutines(parallel)

	admitted := 0
	for ctx.Err() == nil {
		file, err := cursor.Next(ctx)
		if errors.Is(err, domain.ErrStreamExhausted) {
			break
		}
		if err != nil {
			if ctx.Err() == nil {
				r.o.logger.Error("Failed to read pending stream", zap.Error(err))
			}
			break
		}

		if _, ok := r.seen[file.ID]; ok {
			continue
		}
		r.seen[file.ID] = struct{}{}

		if file.Size <= 0 {
			r.o.logger.Debug("Skipping file without declared size", zap.String("file", file.ID))
			continue
		}

		admitted++
		r.state.admit()
		// Go blocks while all workers are busy
		p.Go(func() {
			r.runTask(ctx, file)
		})
	}

	p.Wait()
	return admitted
}

func (r *orchestratorRun) openCursor(ctx context.Context) (domain.FileCursor, error) {
	if bs, ok := r.o.store.(batchedFileStore); ok {
		return bs.PendingStreamWithBatch(ctx, r.filter, r.o.config.ParallelDownloads*10)
	}
	return r.o.store.PendingStream(ctx, r.filter)
}

// runTask transfers one file and accounts for it, whatever the outcome
func (r *orchestratorRun) runTask(ctx context.Context, file *domain.PendingFile) {
	outcome := domain.OutcomeFailed
	defer func() {
		if rec := recover(); rec != nil {
			r.o.logger.Error("Transfer panicked",
				zap.String("file", file.ID),
				zap.Any("panic", rec))
			outcome = domain.OutcomeFailed
		}
		r.settle(file, outcome)
	}()

	var err error
	outcome, err = r.o.transfer.Transfer(ctx, file)
	if err != nil {
		var storeErr *domain.StoreWriteError
		if errors.As(err, &storeErr) {
			r.o.logger.Warn("File transferred but completion not recorded",
				zap.String("file", file.ID),
				zap.Error(err))
		} else {
			r.o.logger.Warn("File not downloaded",
				zap.String("file", file.ID),
				zap.String("outcome", outcome.String()),
				zap.Error(err))
		}
	}
}

func (r *orchestratorRun) settle(file *domain.PendingFile, outcome domain.TransferOutcome) {
	r.aggMu.Lock()
	defer r.aggMu.Unlock()

	completed := r.state.settle(file.Size, outcome)
	r.aggregate.Update(completed, domain.IndicatorFields{Note: r.state.Note()})
}
