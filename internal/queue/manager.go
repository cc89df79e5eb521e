package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// Handler processes one claimed job. A nil return marks the job completed;
// an error marks it failed with the error's details. Jobs are never retried
// automatically: redelivery happens only through heartbeat reclamation or an
// explicit admin retry.
type Handler func(ctx context.Context, job *Job) error

// ProcessOption adjusts a registered consumer.
type ProcessOption func(*consumer)

// WithConcurrency sets the number of workers claiming from the queue.
func WithConcurrency(n int) ProcessOption {
	return func(c *consumer) {
		if n > 0 {
			c.concurrency = n
		}
	}
}

type consumer struct {
	queueName   string
	handler     Handler
	concurrency int
}

// Manager runs worker pools over registered queues.
type Manager struct {
	store     *Store
	logger    *slog.Logger
	heartbeat *heartbeatMonitor

	pollInterval       time.Duration
	errorRetryInterval time.Duration

	mu        sync.Mutex
	consumers []consumer
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	running   bool
}

// NewManager constructs a Manager from configuration.
func NewManager(cfg *config.Config, store *Store, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = logging.NewNop()
	}
	interval := time.Duration(cfg.Queue.HeartbeatInterval) * time.Second
	timeout := time.Duration(cfg.Queue.HeartbeatTimeout) * time.Second
	return &Manager{
		store:              store,
		logger:             logging.NewComponentLogger(logger, "queue"),
		heartbeat:          newHeartbeatMonitor(store, logger, interval, timeout),
		pollInterval:       time.Duration(cfg.Queue.PollInterval) * time.Second,
		errorRetryInterval: time.Duration(cfg.Queue.ErrorRetryInterval) * time.Second,
	}
}

// Process registers a handler for the named queue. Must be called before Start.
func (m *Manager) Process(queueName string, handler Handler, opts ...ProcessOption) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("cannot register consumers after start")
	}
	if handler == nil {
		return errors.New("handler is required")
	}
	c := consumer{queueName: queueName, handler: handler, concurrency: 1}
	for _, opt := range opts {
		opt(&c)
	}
	m.consumers = append(m.consumers, c)
	return nil
}

// Start launches the worker pools and the stale-job reclaimer.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return errors.New("manager already started")
	}
	if len(m.consumers) == 0 {
		return errors.New("no consumers registered")
	}

	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.running = true

	m.wg.Add(1)
	go m.reclaimLoop(runCtx)

	for _, c := range m.consumers {
		for i := 0; i < c.concurrency; i++ {
			m.wg.Add(1)
			go m.workerLoop(runCtx, c)
		}
		m.logger.Info("queue consumer started",
			logging.String(logging.FieldQueue, c.queueName),
			logging.Int("concurrency", c.concurrency))
	}
	return nil
}

// Stop cancels the workers and waits for in-flight handlers to return.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel := m.cancel
	m.cancel = nil
	m.running = false
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	m.wg.Wait()
}

func (m *Manager) reclaimLoop(ctx context.Context) {
	defer m.wg.Done()
	ticker := time.NewTicker(m.heartbeat.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := m.heartbeat.reclaimStale(ctx); err != nil && !errors.Is(err, context.Canceled) {
				m.logger.Warn("stale job reclamation failed", logging.Error(err))
			}
		}
	}
}

func (m *Manager) workerLoop(ctx context.Context, c consumer) {
	defer m.wg.Done()

	logger := m.logger.With(logging.String(logging.FieldQueue, c.queueName))

	for {
		if ctx.Err() != nil {
			return
		}

		job, err := m.store.ClaimNext(ctx, c.queueName)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return
			}
			logger.Warn("claim failed", logging.Error(err))
			if !sleepCtx(ctx, m.errorRetryInterval) {
				return
			}
			continue
		}
		if job == nil {
			if !sleepCtx(ctx, m.pollInterval) {
				return
			}
			continue
		}

		m.runJob(ctx, c, job, logger)
	}
}

func (m *Manager) runJob(ctx context.Context, c consumer, job *Job, logger *slog.Logger) {
	jobCtx, cancel := context.WithCancel(services.WithJobID(ctx, job.ID))
	defer cancel()

	var hbWG sync.WaitGroup
	hbWG.Add(1)
	go m.heartbeat.startLoop(jobCtx, &hbWG, job.ID)

	jobLogger := logger.With(logging.String(logging.FieldJobID, job.ID))
	jobLogger.Info("job started", logging.Int("attempt", job.Attempts))

	err := m.runHandler(jobCtx, c.handler, job)

	cancel()
	hbWG.Wait()

	if err != nil {
		message := services.Details(err)
		if markErr := m.store.MarkFailed(ctx, job.ID, message); markErr != nil {
			jobLogger.Error("failed to persist job failure", logging.Error(markErr))
		}
		jobLogger.Error("job failed",
			logging.Error(err),
			logging.String("classification", services.Classification(err)))
		return
	}

	if markErr := m.store.MarkCompleted(ctx, job.ID); markErr != nil {
		jobLogger.Error("failed to persist job completion", logging.Error(markErr))
		return
	}
	jobLogger.Info("job completed")
}

func (m *Manager) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = services.Wrap(services.ErrInternal, "queue", "handler", fmt.Sprintf("panic: %v", r), nil)
		}
	}()
	return handler(ctx, job)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = time.Second
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
