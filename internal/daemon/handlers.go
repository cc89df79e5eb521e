package daemon

import (
	"context"

	"reelsmith/internal/composer"
	"reelsmith/internal/logging"
	"reelsmith/internal/pipeline"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
)

func (d *Daemon) pipelineHandler(orchestrator *pipeline.Orchestrator) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload pipeline.JobPayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return services.Wrap(services.ErrValidation, "pipeline", "payload", "pipeline job payload is malformed", err)
		}

		template, err := orchestrator.Run(ctx, payload.ContentID, payload.Options, d.jobProgress(job))
		shortcode := d.shortcodeFor(ctx, payload.ContentID)
		if err != nil {
			if notifyErr := d.notifier.NotifyPipelineFailed(ctx, shortcode, services.Details(err)); notifyErr != nil {
				d.logger.Warn("pipeline failure notification failed", logging.Error(notifyErr))
			}
			return err
		}

		if notifyErr := d.notifier.NotifyPipelineCompleted(ctx, shortcode, len(template.Spec.Scenes)); notifyErr != nil {
			d.logger.Warn("pipeline completion notification failed", logging.Error(notifyErr))
		}
		return nil
	}
}

func (d *Daemon) compositeHandler(compose *composer.Composer) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload composer.CompositeJobPayload
		if err := job.UnmarshalPayload(&payload); err != nil {
			return services.Wrap(services.ErrValidation, "composer", "payload", "composite job payload is malformed", err)
		}

		err := compose.Run(ctx, payload.CompositeID, d.jobProgress(job))

		shortcode := ""
		failedScene := ""
		resultKey := ""
		if composite, loadErr := d.content.GetComposite(ctx, payload.CompositeID); loadErr == nil && composite != nil {
			shortcode = d.shortcodeFor(ctx, composite.ContentID)
			failedScene = composite.FailedSceneID
			resultKey = composite.ResultKey
		}

		if err != nil {
			if notifyErr := d.notifier.NotifyCompositeFailed(ctx, shortcode, failedScene, services.Details(err)); notifyErr != nil {
				d.logger.Warn("composite failure notification failed", logging.Error(notifyErr))
			}
			return err
		}

		if notifyErr := d.notifier.NotifyCompositeCompleted(ctx, shortcode, resultKey); notifyErr != nil {
			d.logger.Warn("composite completion notification failed", logging.Error(notifyErr))
		}
		return nil
	}
}

// jobProgress mirrors handler checkpoints onto the job row so queue listings
// show partial progress for long runs.
func (d *Daemon) jobProgress(job *queue.Job) func(ctx context.Context, percent float64, message string) {
	return func(ctx context.Context, percent float64, message string) {
		if err := job.ReportProgress(ctx, percent, message); err != nil {
			d.logger.Warn("reporting job progress failed", logging.Error(err))
		}
	}
}

// shortcodeFor resolves the user-facing shortcode for notifications, falling
// back to the raw content id.
func (d *Daemon) shortcodeFor(ctx context.Context, contentID string) string {
	item, err := d.content.GetItem(ctx, contentID)
	if err != nil || item == nil {
		return contentID
	}
	return item.Shortcode
}
