package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/ttscraper/ttscraper-go/api"
	"github.com/ttscraper/ttscraper-go/internal/app"
	"github.com/ttscraper/ttscraper-go/internal/domain"
	"github.com/ttscraper/ttscraper-go/internal/infrastructure"
	"github.com/ttscraper/ttscraper-go/internal/progress"
	"github.com/ttscraper/ttscraper-go/pkg/logger"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// application holds the wired components of one command invocation
type application struct {
	config      *domain.Config
	logger      *zap.Logger
	multiLogger *logger.MultiLogger
	fs          afero.Fs

	repo     *infrastructure.SQLiteFileRepository
	cache    domain.TreeCache
	tracker  *progress.Tracker
	reporter domain.ProgressReporter

	discovery    *app.DiscoveryService
	orchestrator *app.DownloadOrchestrator
	runs         *app.RunManager

	closers []func() error
}

// appOptions selects the optional parts of the wiring
type appOptions struct {
	discovery bool // the listing site is needed
	progress  bool // render terminal progress bars
}

func newApplication(ctx context.Context, config *domain.Config, opts appOptions) (*application, error) {
	log, err := logger.New(logger.Config{
		Level:      config.Logging.Level,
		Format:     config.Logging.Format,
		OutputPath: config.Logging.OutputPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	a := &application{
		config: config,
		logger: log,
		fs:     afero.NewOsFs(),
	}
	a.closers = append(a.closers, func() error {
		_ = log.Sync()
		return nil
	})

	if config.Logging.LogsDir != "" {
		ml, err := logger.NewMultiLogger(logger.MultiLoggerConfig{
			Level:   config.Logging.Level,
			LogsDir: config.Logging.LogsDir,
		})
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize category logs: %w", err)
		}
		a.multiLogger = ml
		a.closers = append(a.closers, ml.Close)
	}

	if err := os.MkdirAll(filepath.Dir(config.Store.DatabasePath), 0755); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	repo, err := infrastructure.NewSQLiteFileRepository(config.Store.DatabasePath)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	a.repo = repo
	a.closers = append(a.closers, repo.Close)

	a.tracker = progress.NewTracker()
	if opts.progress && config.Progress.Enabled {
		terminal := progress.NewTerminalReporter(os.Stdout, config.Progress.Width)
		a.reporter = progress.NewMulti(a.tracker, terminal)
	} else {
		a.reporter = a.tracker
	}

	fetcher := infrastructure.NewHTTPFetcher(a.fs, infrastructure.FetcherOptionsFromConfig(&config.Download))
	transfer := app.NewTransferService(fetcher, repo, a.reporter, a.fs, &config.Download, log)
	a.orchestrator = app.NewDownloadOrchestrator(repo, transfer, a.reporter, a.fs, &config.Download, log)

	var discoverer app.Discoverer
	if opts.discovery {
		if err := a.setupDiscovery(ctx); err != nil {
			a.Close()
			return nil, err
		}
		discoverer = a.discovery
	}

	notifier := infrastructure.NewNotificationService(&config.Notification, log)
	a.runs = app.NewRunManager(discoverer, a.orchestrator, notifier, a.multiLogger, log)

	return a, nil
}

func (a *application) setupDiscovery(ctx context.Context) error {
	source, err := infrastructure.NewListingClient(&a.config.Endpoint, a.config.Download.RequestTimeout, a.logger)
	if err != nil {
		return err
	}

	switch a.config.Cache.Driver {
	case "redis":
		cache, err := infrastructure.NewRedisTreeCache(ctx, a.config.Cache.RedisURL, a.config.Cache.KeyPrefix)
		if err != nil {
			return fmt.Errorf("failed to initialize redis tree cache: %w", err)
		}
		a.cache = cache
		a.closers = append(a.closers, cache.Close)
	default:
		cache, err := infrastructure.NewFileTreeCache(a.fs, a.config.Cache.Dir, a.config.Endpoint.TimestampFile, a.config.Endpoint.TreeFile)
		if err != nil {
			return fmt.Errorf("failed to initialize tree cache: %w", err)
		}
		a.cache = cache
	}

	a.discovery = app.NewDiscoveryService(source, a.repo, a.cache, &a.config.Download, a.logger)
	return nil
}

// serveStatus starts the status API, the returned func shuts it down
func (a *application) serveStatus() func() {
	router := api.SetupRouter(api.Dependencies{
		Status:      a.runs,
		Runs:        a.orchestrator,
		Snapshots:   a.tracker,
		Catalog:     a.repo,
		Logger:      a.logger,
		MultiLogger: a.multiLogger,
	})

	addr := fmt.Sprintf("%s:%d", a.config.Server.Host, a.config.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("Status API listening", zap.String("addr", addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Status API stopped", zap.Error(err))
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			a.logger.Error("Status API forced to shutdown", zap.Error(err))
		}
	}
}

// Close stops the reporter and releases resources in reverse order
func (a *application) Close() {
	if a.reporter != nil {
		a.reporter.Stop()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && a.logger != nil {
			a.logger.Warn("Failed to release resource", zap.Error(err))
		}
	}
}
