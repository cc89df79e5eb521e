package composer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"reelsmith/internal/content"
	"reelsmith/internal/generation"
	"reelsmith/internal/logging"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
)

// Provider is the slice of the generation client a scene job drives.
type Provider interface {
	Submit(ctx context.Context, request generation.Request) (string, error)
	Poll(ctx context.Context, taskID string, progress generation.ProgressFunc) (generation.PollResult, error)
	FetchResult(ctx context.Context, resultURL string) (io.ReadCloser, error)
}

var _ Provider = (*generation.Client)(nil)

// SceneHandler consumes scene-generation jobs. Each job drives one full
// provider cycle: submit, poll to a terminal state, store the result clip.
type SceneHandler struct {
	store    *content.Store
	blobs    *storage.Store
	provider Provider
	logger   *slog.Logger
}

// NewSceneHandler builds the scene queue consumer.
func NewSceneHandler(store *content.Store, blobs *storage.Store, provider Provider, logger *slog.Logger) *SceneHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SceneHandler{
		store:    store,
		blobs:    blobs,
		provider: provider,
		logger:   logger.With(logging.String(logging.FieldComponent, "scene-generation")),
	}
}

// Handle runs one scene-generation job. A redelivered job whose generation
// already reached a terminal state is a no-op; one that was submitted but
// never polled to completion resumes from the recorded provider task id.
func (h *SceneHandler) Handle(ctx context.Context, job *queue.Job) error {
	var payload SceneJobPayload
	if err := job.UnmarshalPayload(&payload); err != nil {
		return services.Wrap(services.ErrValidation, "scene-generation", "payload", "scene job payload is malformed", err)
	}

	gen, err := h.store.GetGeneration(ctx, payload.GenerationID)
	if err != nil {
		return err
	}
	if gen == nil {
		return services.Wrap(services.ErrNotFound, "scene-generation", "load",
			fmt.Sprintf("generation %s does not exist", payload.GenerationID), nil)
	}
	if gen.Status.IsTerminal() {
		return nil
	}

	ctx = services.WithContentID(ctx, gen.ContentID)
	ctx = services.WithStage(ctx, "generate")
	logger := logging.WithContext(ctx, h.logger).With(logging.String("scene_id", payload.SceneID))

	if err := h.run(ctx, logger, job, gen, payload); err != nil {
		gen.Status = content.GenerationFailed
		gen.ErrorMessage = services.Details(err)
		now := time.Now().UTC()
		gen.CompletedAt = &now
		if updateErr := h.store.UpdateGeneration(ctx, gen); updateErr != nil {
			logger.Error("persisting generation failure failed", logging.Error(updateErr))
		}
		logger.Error("scene generation failed",
			logging.String("generation_id", gen.ID),
			logging.String("classification", services.Classification(err)),
			logging.Error(err))
		return err
	}
	return nil
}

func (h *SceneHandler) run(ctx context.Context, logger *slog.Logger, job *queue.Job, gen *content.Generation, payload SceneJobPayload) error {
	taskID := gen.ProviderTaskID
	if taskID == "" {
		sourcePath, err := h.blobs.Path(payload.MediaKey)
		if err != nil {
			return err
		}
		request := generation.Request{
			SourceURL:   sourcePath,
			Instruction: payload.Instruction,
			DurationSec: payload.EndTime - payload.StartTime,
			AspectRatio: payload.AspectRatio,
			KeepAudio:   payload.KeepAudio,
		}
		taskID, err = h.provider.Submit(ctx, request)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		gen.ProviderTaskID = taskID
		gen.Status = content.GenerationProcessing
		gen.StartedAt = &now
		if err := h.store.UpdateGeneration(ctx, gen); err != nil {
			return err
		}
		logger.Info("scene generation submitted", logging.String("task_id", taskID))
	}

	result, err := h.provider.Poll(ctx, taskID, func(status generation.Status, elapsed string, tick int) {
		percent := 10 + float64(tick)*5
		if percent > 95 {
			percent = 95
		}
		message := fmt.Sprintf("%s after %s", status, elapsed)
		if err := job.ReportProgress(ctx, percent, message); err != nil {
			logger.Warn("reporting job progress failed", logging.Error(err))
		}
		gen.ProgressPercent = percent
		if err := h.store.UpdateGeneration(ctx, gen); err != nil {
			logger.Warn("persisting generation progress failed", logging.Error(err))
		}
	})
	if err != nil {
		return err
	}

	body, err := h.provider.FetchResult(ctx, result.ResultURL)
	if err != nil {
		return err
	}
	defer body.Close()

	resultKey := "generated/" + gen.ID + ".mp4"
	if err := h.blobs.Put(ctx, resultKey, body); err != nil {
		return err
	}

	now := time.Now().UTC()
	gen.Status = content.GenerationCompleted
	gen.ResultKey = resultKey
	gen.ProgressPercent = 100
	gen.ErrorMessage = ""
	gen.CompletedAt = &now
	if err := h.store.UpdateGeneration(ctx, gen); err != nil {
		return err
	}

	logger.Info("scene generation completed",
		logging.String("generation_id", gen.ID),
		logging.String("result_key", resultKey))
	return nil
}
