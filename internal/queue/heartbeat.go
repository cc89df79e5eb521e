package queue

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"reelsmith/internal/logging"
)

// heartbeatMonitor keeps active jobs alive and reclaims jobs whose workers
// stopped heartbeating.
type heartbeatMonitor struct {
	store    *Store
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration
}

func newHeartbeatMonitor(store *Store, logger *slog.Logger, interval, timeout time.Duration) *heartbeatMonitor {
	return &heartbeatMonitor{
		store:    store,
		logger:   logging.NewComponentLogger(logger, "queue-heartbeat"),
		interval: interval,
		timeout:  timeout,
	}
}

// reclaimStale returns jobs with expired heartbeats to the waiting state.
func (h *heartbeatMonitor) reclaimStale(ctx context.Context) error {
	if h.timeout <= 0 {
		return nil
	}
	cutoff := time.Now().Add(-h.timeout)
	reclaimed, err := h.store.ReclaimStale(ctx, cutoff)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		h.logger.Info("reclaimed stale jobs", logging.Int64("count", reclaimed))
	}
	return nil
}

// startLoop runs a heartbeat updater for a specific job until context cancellation.
func (h *heartbeatMonitor) startLoop(ctx context.Context, wg *sync.WaitGroup, jobID string) {
	defer wg.Done()
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	logger := h.logger.With(logging.String(logging.FieldJobID, jobID))

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.store.UpdateHeartbeat(ctx, jobID); err != nil {
				if errors.Is(err, context.Canceled) {
					return
				}
				logger.Warn("heartbeat update failed", logging.Error(err))
			}
		}
	}
}
