package daemon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/gofrs/flock"

	"reelsmith/internal/analysis"
	"reelsmith/internal/composer"
	"reelsmith/internal/config"
	"reelsmith/internal/content"
	"reelsmith/internal/fetcher"
	"reelsmith/internal/generation"
	"reelsmith/internal/logging"
	"reelsmith/internal/media"
	"reelsmith/internal/notifications"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
	"reelsmith/internal/storage"
)

// Daemon coordinates the background workers and enforces single-instance
// execution via an advisory file lock.
type Daemon struct {
	cfg      *config.Config
	logger   *slog.Logger
	content  *content.Store
	jobs     *queue.Store
	manager  *queue.Manager
	notifier notifications.Service

	lockPath string
	lock     *flock.Flock

	running atomic.Bool
	cancel  context.CancelFunc
}

// Status reports daemon runtime information.
type Status struct {
	Running      bool
	QueueDBPath  string
	LockFilePath string
	Queues       map[string]map[queue.State]int
}

// New constructs a daemon with all collaborators wired: both stores, blob
// storage, the media processor, the downloader and provider clients, and the
// three queue consumers.
func New(cfg *config.Config, logger *slog.Logger) (*Daemon, error) {
	if cfg == nil {
		return nil, errors.New("daemon requires configuration")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, err
	}

	contentStore, err := content.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open content store: %w", err)
	}
	jobs, err := queue.Open(cfg)
	if err != nil {
		contentStore.Close()
		return nil, fmt.Errorf("open queue store: %w", err)
	}
	blobs, err := storage.New(cfg)
	if err != nil {
		contentStore.Close()
		jobs.Close()
		return nil, err
	}

	processor := media.NewProcessor(cfg)
	download := fetcher.NewClient(cfg)
	provider := generation.NewClient(cfg, logger)
	analyzer := analysis.New(cfg, processor)
	orchestrator := pipeline.New(cfg, contentStore, blobs, download, analyzer, logger)
	compose := composer.New(cfg, contentStore, jobs, blobs, processor, logger)
	sceneHandler := composer.NewSceneHandler(contentStore, blobs, provider, logger)
	notifier := notifications.NewService(cfg)

	d := &Daemon{
		cfg:      cfg,
		logger:   logging.NewComponentLogger(logger, "daemon"),
		content:  contentStore,
		jobs:     jobs,
		notifier: notifier,
		lockPath: filepath.Join(cfg.Paths.DataDir, "reelsmithd.lock"),
	}
	d.lock = flock.New(d.lockPath)

	manager := queue.NewManager(cfg, jobs, logger)
	if err := manager.Process(pipeline.Queue, d.pipelineHandler(orchestrator),
		queue.WithConcurrency(cfg.Queue.PipelineConcurrency)); err != nil {
		d.closeStores()
		return nil, err
	}
	if err := manager.Process(composer.SceneQueue, sceneHandler.Handle,
		queue.WithConcurrency(cfg.Queue.SceneConcurrency)); err != nil {
		d.closeStores()
		return nil, err
	}
	if err := manager.Process(composer.CompositeQueue, d.compositeHandler(compose),
		queue.WithConcurrency(cfg.Queue.CompositeConcurrency)); err != nil {
		d.closeStores()
		return nil, err
	}
	d.manager = manager
	return d, nil
}

// Start acquires the instance lock and launches the worker pools.
func (d *Daemon) Start(ctx context.Context) error {
	if d.running.Load() {
		return errors.New("daemon already running")
	}

	ok, err := d.lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire daemon lock: %w", err)
	}
	if !ok {
		return errors.New("another reelsmith daemon instance is already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	if err := d.manager.Start(runCtx); err != nil {
		cancel()
		_ = d.lock.Unlock()
		return fmt.Errorf("start workers: %w", err)
	}

	d.cancel = cancel
	d.running.Store(true)
	d.logger.Info("reelsmith daemon started", logging.String("lock", d.lockPath))
	return nil
}

// Stop halts the workers, waits for in-flight jobs, and releases the lock.
func (d *Daemon) Stop() {
	if !d.running.Load() {
		return
	}
	if d.cancel != nil {
		d.cancel()
		d.cancel = nil
	}
	d.manager.Stop()
	if err := d.lock.Unlock(); err != nil {
		d.logger.Warn("failed to release daemon lock", logging.Error(err))
	}
	d.running.Store(false)
	d.logger.Info("reelsmith daemon stopped")
}

// Close stops the daemon and closes both stores.
func (d *Daemon) Close() error {
	d.Stop()
	return d.closeStores()
}

func (d *Daemon) closeStores() error {
	var firstErr error
	if d.content != nil {
		if err := d.content.Close(); err != nil {
			firstErr = err
		}
	}
	if d.jobs != nil {
		if err := d.jobs.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Status reports the daemon state together with per-queue job counts.
func (d *Daemon) Status(ctx context.Context) (Status, error) {
	status := Status{
		Running:      d.running.Load(),
		QueueDBPath:  d.jobs.Path(),
		LockFilePath: d.lockPath,
		Queues:       make(map[string]map[queue.State]int),
	}
	names, err := d.jobs.QueueNames(ctx)
	if err != nil {
		return status, err
	}
	for _, name := range names {
		stats, err := d.jobs.Stats(ctx, name)
		if err != nil {
			return status, err
		}
		status.Queues[name] = stats
	}
	return status, nil
}

// TestNotification sends a test push using the configured topic.
func (d *Daemon) TestNotification(ctx context.Context) error {
	return d.notifier.TestNotification(ctx)
}
