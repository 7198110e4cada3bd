package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sourcegraph/conc/pool"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"github.com/ttscraper/ttscraper-go/pkg/logger"
	"go.uber.org/zap"
)

// Discoverer fills the catalog from the remote site
type Discoverer interface {
	Discover(ctx context.Context) (*domain.DiscoverySummary, error)
}

// Downloader drains pending records
type Downloader interface {
	Run(ctx context.Context) (*domain.RunSummary, error)
	SetProducer(producer ProducerStatus)
}

// RunOptions selects the stages of a run
type RunOptions struct {
	Discover   bool
	Download   bool
	Concurrent bool // download while discovery is still running
}

// RunReport collects the stage results of a run
type RunReport struct {
	Discovery *domain.DiscoverySummary `json:"discovery,omitempty"`
	Download  *domain.RunSummary       `json:"download,omitempty"`
}

// RunManager sequences discovery and downloads
type RunManager struct {
	discoverer  Discoverer
	downloader  Downloader
	notifier    domain.Notifier
	multiLogger *logger.MultiLogger
	logger      *zap.Logger

	mu          sync.RWMutex
	running     bool
	phase       domain.RunPhase
	discovering atomic.Bool
}

// NewRunManager creates a new run manager
func NewRunManager(
	discoverer Discoverer,
	downloader Downloader,
	notifier domain.Notifier,
	multiLogger *logger.MultiLogger,
	logger *zap.Logger,
) *RunManager {
	rm := &RunManager{
		discoverer:  discoverer,
		downloader:  downloader,
		notifier:    notifier,
		multiLogger: multiLogger,
		logger:      logger,
		phase:       domain.PhaseIdle,
	}
	if downloader != nil {
		downloader.SetProducer(rm)
	}
	return rm
}

// IsRunning returns whether a run is in progress
func (rm *RunManager) IsRunning() bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.running
}

// Phase returns the current run phase
func (rm *RunManager) Phase() domain.RunPhase {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return rm.phase
}

// IsActive reports whether discovery may still insert records
func (rm *RunManager) IsActive() bool {
	return rm.discovering.Load()
}

func (rm *RunManager) setPhase(phase domain.RunPhase) {
	rm.mu.Lock()
	rm.phase = phase
	rm.mu.Unlock()
}

// Run executes the selected stages
func (rm *RunManager) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	rm.mu.Lock()
	if rm.running {
		rm.mu.Unlock()
		return nil, fmt.Errorf("run already in progress")
	}
	rm.running = true
	rm.mu.Unlock()

	defer func() {
		rm.mu.Lock()
		rm.running = false
		rm.mu.Unlock()
	}()

	start := time.Now()
	rm.multiLogger.LogRunEvent("run_started",
		zap.Bool("discover", opts.Discover),
		zap.Bool("download", opts.Download),
		zap.Bool("concurrent", opts.Concurrent))

	report := &RunReport{}
	var err error
	if opts.Concurrent && opts.Discover && opts.Download {
		err = rm.runConcurrent(ctx, report)
	} else {
		err = rm.runSequential(ctx, opts, report)
	}

	if err != nil {
		rm.setPhase(domain.PhaseFailed)
		rm.logger.Error("Run failed", zap.Error(err))
		rm.multiLogger.LogRunEvent("run_failed", zap.Error(err))
		rm.multiLogger.LogAppError("Run failed", zap.Error(err))
		if rm.notifier != nil {
			rm.notifier.NotifyRunFailed(err)
		}
		return report, err
	}

	rm.setPhase(domain.PhaseCompleted)
	rm.logger.Info("Run completed", zap.Duration("duration", time.Since(start)))
	rm.multiLogger.LogRunEvent("run_completed", zap.Duration("duration", time.Since(start)))
	if rm.notifier != nil && report.Download != nil {
		rm.notifier.NotifyRunCompleted(report.Download)
	}
	return report, nil
}

func (rm *RunManager) runSequential(ctx context.Context, opts RunOptions, report *RunReport) error {
	if opts.Discover {
		summary, err := rm.discover(ctx)
		report.Discovery = summary
		if err != nil {
			return err
		}
	}

	if opts.Download {
		summary, err := rm.download(ctx)
		report.Download = summary
		if err != nil {
			return err
		}
	}
	return nil
}

// runConcurrent downloads while discovery is inserting records. The
// downloader keeps polling as long as discovery is active.
func (rm *RunManager) runConcurrent(ctx context.Context, report *RunReport) error {
	rm.discovering.Store(true)

	p := pool.New().WithContext(ctx).WithCancelOnError()
	p.Go(func(ctx context.Context) error {
		defer rm.discovering.Store(false)
		summary, err := rm.discover(ctx)
		report.Discovery = summary
		if err == nil {
			rm.setPhase(domain.PhaseDownloading)
		}
		return err
	})
	p.Go(func(ctx context.Context) error {
		summary, err := rm.download(ctx)
		report.Download = summary
		return err
	})
	return p.Wait()
}

func (rm *RunManager) discover(ctx context.Context) (*domain.DiscoverySummary, error) {
	rm.setPhase(domain.PhaseDiscovering)
	rm.discovering.Store(true)
	defer rm.discovering.Store(false)

	summary, err := rm.discoverer.Discover(ctx)
	if err != nil {
		return summary, fmt.Errorf("discovery failed: %w", err)
	}

	rm.multiLogger.LogRunEvent("discovery_completed",
		zap.Int("directories", summary.Directories),
		zap.Int("new_directories", summary.NewDirectories),
		zap.Int("scraped_directories", summary.ScrapedDirs),
		zap.Int("failed_directories", summary.FailedDirs),
		zap.Int("files", summary.Files),
		zap.Bool("tree_from_cache", summary.TreeFromCache))
	return summary, nil
}

func (rm *RunManager) download(ctx context.Context) (*domain.RunSummary, error) {
	if !rm.IsActive() {
		rm.setPhase(domain.PhaseDownloading)
	}

	summary, err := rm.downloader.Run(ctx)
	if err != nil {
		return summary, fmt.Errorf("downloads failed: %w", err)
	}

	rm.multiLogger.LogRunEvent("download_completed",
		zap.String("run_id", summary.RunID),
		zap.Int64("completed_files", summary.CompletedFiles),
		zap.Int64("failed_files", summary.FailedFiles),
		zap.Int64("skipped_files", summary.SkippedFiles),
		zap.Int64("completed_bytes", summary.CompletedBytes),
		zap.Duration("duration", summary.Duration))
	return summary, nil
}
