package composer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"reelsmith/internal/content"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// waitForGenerations blocks until every referenced generation reaches a
// terminal state. It reads only the persisted rows; the scene jobs talk to
// the provider. A failed generation fails the composite naming the scene,
// and an exhausted wait budget is a timeout rather than a provider failure.
func (c *Composer) waitForGenerations(ctx context.Context, logger *slog.Logger, composite *content.Composite, report ProgressFunc) error {
	ctx = services.WithStage(ctx, "fan-in")

	ids := make([]string, 0, len(composite.Descriptors))
	scenes := make(map[string]string, len(composite.Descriptors))
	for _, descriptor := range composite.Descriptors {
		if descriptor.UseOriginal || descriptor.GenerationID == "" {
			continue
		}
		ids = append(ids, descriptor.GenerationID)
		scenes[descriptor.GenerationID] = descriptor.SceneID
	}
	if len(ids) == 0 {
		return nil
	}

	deadline := time.Now().Add(c.waitBudget)
	for {
		generations, err := c.store.GetGenerations(ctx, ids)
		if err != nil {
			return err
		}

		completed := 0
		for _, id := range ids {
			gen := generations[id]
			if gen == nil {
				composite.FailedSceneID = scenes[id]
				return services.Wrap(services.ErrNotFound, "composer", "wait",
					fmt.Sprintf("generation %s for scene %s no longer exists", id, scenes[id]), nil)
			}
			switch gen.Status {
			case content.GenerationFailed:
				composite.FailedSceneID = scenes[id]
				return services.Wrap(services.ErrProviderPermanent, "composer", "wait",
					fmt.Sprintf("generation for scene %s failed: %s", scenes[id], gen.ErrorMessage), nil)
			case content.GenerationCompleted:
				completed++
			}
		}
		if completed == len(ids) {
			logger.Info("all scene generations completed", logging.Int("scenes", len(ids)))
			return nil
		}

		percent := 25 + 25*float64(completed)/float64(len(ids))
		message := fmt.Sprintf("%d of %d scene generations completed", completed, len(ids))
		if err := c.setStage(ctx, report, composite, content.CompositeWaiting, "fan-in", message, percent); err != nil {
			return err
		}

		if time.Now().After(deadline) {
			return services.Wrap(services.ErrTimeout, "composer", "wait",
				fmt.Sprintf("scene generations incomplete after %s", c.waitBudget), nil)
		}
		if err := sleepCtx(ctx, c.waitPoll); err != nil {
			return err
		}
	}
}

// sleepCtx pauses between polls. Cancellation is a shutdown, not an exhausted
// wait budget, so it must not classify as a timeout.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return services.Wrap(services.ErrInternal, "composer", "wait", "wait interrupted", ctx.Err())
	case <-timer.C:
		return nil
	}
}
