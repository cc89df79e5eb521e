package queue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"reelsmith/internal/logging"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
)

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func TestManagerProcessesJobs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	var handled atomic.Int64
	manager := queue.NewManager(cfg, store, logging.NewNop())
	err := manager.Process("pipeline", func(ctx context.Context, job *queue.Job) error {
		handled.Add(1)
		return nil
	}, queue.WithConcurrency(2))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	ids := make([]string, 0, 3)
	for i := 0; i < 3; i++ {
		id, err := store.Enqueue(ctx, "pipeline", testPayload{ContentID: "c"})
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		ids = append(ids, id)
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	waitFor(t, 10*time.Second, func() bool {
		return handled.Load() == 3
	})
	waitFor(t, 10*time.Second, func() bool {
		for _, id := range ids {
			job, err := store.GetJob(ctx, "pipeline", id)
			if err != nil || job == nil || job.State != queue.StateCompleted {
				return false
			}
		}
		return true
	})
}

func TestManagerRecordsHandlerFailure(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	manager := queue.NewManager(cfg, store, logging.NewNop())
	err := manager.Process("pipeline", func(ctx context.Context, job *queue.Job) error {
		return services.Wrap(services.ErrProviderPermanent, "generation", "submit", "task rejected", nil)
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	id, err := store.Enqueue(ctx, "pipeline", testPayload{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	waitFor(t, 10*time.Second, func() bool {
		job, err := store.GetJob(ctx, "pipeline", id)
		return err == nil && job != nil && job.State == queue.StateFailed
	})

	job, err := store.GetJob(ctx, "pipeline", id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.ErrorMessage != "generation: submit: task rejected" {
		t.Fatalf("unexpected error message: %q", job.ErrorMessage)
	}

	// Failed jobs stay failed; no automatic retry.
	time.Sleep(1500 * time.Millisecond)
	job, err = store.GetJob(ctx, "pipeline", id)
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if job.State != queue.StateFailed || job.Attempts != 1 {
		t.Fatalf("expected single failed attempt, got state=%s attempts=%d", job.State, job.Attempts)
	}
}

func TestManagerRecoversFromHandlerPanic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	manager := queue.NewManager(cfg, store, logging.NewNop())
	err := manager.Process("pipeline", func(ctx context.Context, job *queue.Job) error {
		panic("boom")
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	id, err := store.Enqueue(ctx, "pipeline", testPayload{})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	waitFor(t, 10*time.Second, func() bool {
		job, err := store.GetJob(ctx, "pipeline", id)
		return err == nil && job != nil && job.State == queue.StateFailed
	})
}

func TestManagerRejectsRegistrationAfterStart(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	manager := queue.NewManager(cfg, store, logging.NewNop())
	if err := manager.Process("pipeline", func(ctx context.Context, job *queue.Job) error { return nil }); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if err := manager.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer manager.Stop()

	if err := manager.Process("scenes", func(ctx context.Context, job *queue.Job) error { return nil }); err == nil {
		t.Fatal("expected registration error after start")
	}
}

func TestManagerStopWaitsForInflightJob(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)
	ctx := context.Background()

	started := make(chan struct{})
	var finished atomic.Bool
	manager := queue.NewManager(cfg, store, logging.NewNop())
	err := manager.Process("pipeline", func(ctx context.Context, job *queue.Job) error {
		close(started)
		select {
		case <-ctx.Done():
		case <-time.After(300 * time.Millisecond):
		}
		finished.Store(true)
		return nil
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if _, err := store.Enqueue(ctx, "pipeline", testPayload{}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := manager.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	select {
	case <-started:
	case <-time.After(10 * time.Second):
		t.Fatal("handler never started")
	}

	manager.Stop()
	if !finished.Load() {
		t.Fatal("Stop returned before handler finished")
	}
}

func TestManagerStartRequiresConsumers(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenQueue(t, cfg)

	manager := queue.NewManager(cfg, store, logging.NewNop())
	if err := manager.Start(context.Background()); err == nil {
		t.Fatal("expected error starting without consumers")
	}
	if err := manager.Process("pipeline", nil); err == nil {
		t.Fatal("expected error for nil handler")
	}
}
