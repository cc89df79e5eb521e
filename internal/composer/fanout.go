package composer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"reelsmith/internal/content"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// SceneJobPayload is the self-contained body of one scene-generation job.
type SceneJobPayload struct {
	GenerationID string  `json:"generationId"`
	CompositeID  string  `json:"compositeId"`
	SceneID      string  `json:"sceneId"`
	MediaKey     string  `json:"mediaKey"`
	Instruction  string  `json:"instruction"`
	StartTime    float64 `json:"startTime"`
	EndTime      float64 `json:"endTime"`
	AspectRatio  string  `json:"aspectRatio,omitempty"`
	KeepAudio    bool    `json:"keepAudio"`
}

// submitScenes creates a generation record and enqueues a scene job for every
// non-original descriptor that does not already reference one. Submission runs
// one goroutine per scene. A rerun after a crash skips descriptors whose
// generation ids are already recorded.
func (c *Composer) submitScenes(ctx context.Context, logger *slog.Logger, composite *content.Composite, item *content.Item, report ProgressFunc) error {
	ctx = services.WithStage(ctx, "fan-out")

	pending := generatedDescriptors(composite)
	if len(pending) == 0 {
		logger.Info("all scenes keep the original source, skipping generation")
		return nil
	}

	aspect, keepAudio, err := c.generationDefaults(ctx, composite)
	if err != nil {
		return err
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(pending))
	submitted := 0
	for _, descriptor := range pending {
		if descriptor.GenerationID != "" {
			continue
		}
		submitted++
		wg.Add(1)
		go func(d *content.SceneDescriptor) {
			defer wg.Done()
			errs <- c.submitScene(ctx, composite, item, d, aspect, keepAudio)
		}(descriptor)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			return err
		}
	}

	if submitted > 0 {
		logger.Info("scene generations enqueued",
			logging.Int("submitted", submitted),
			logging.Int("reused", len(pending)-submitted))
	}
	return c.setStage(ctx, report, composite, content.CompositeWaiting, "fan-out",
		fmt.Sprintf("waiting on %d scene generations", len(pending)), 25)
}

// generationDefaults pulls the aspect ratio and audio handling from the
// template the analysis produced. Plans without a matching template keep the
// source audio and let the provider pick the aspect.
func (c *Composer) generationDefaults(ctx context.Context, composite *content.Composite) (string, bool, error) {
	template, err := c.store.TemplateForContent(ctx, composite.ContentID)
	if err != nil {
		return "", false, err
	}
	if template == nil || template.AnalysisID != composite.AnalysisID {
		return "", true, nil
	}
	return template.Spec.AspectRatio, template.Spec.KeepAudio, nil
}

func (c *Composer) submitScene(ctx context.Context, composite *content.Composite, item *content.Item, descriptor *content.SceneDescriptor, aspect string, keepAudio bool) error {
	index := descriptor.SceneIndex
	start := descriptor.StartTime
	end := descriptor.EndTime
	gen := &content.Generation{
		ContentID:  composite.ContentID,
		AnalysisID: composite.AnalysisID,
		SceneIndex: &index,
		StartTime:  &start,
		EndTime:    &end,
		Status:     content.GenerationPending,
	}
	if err := c.store.CreateGeneration(ctx, gen); err != nil {
		return err
	}

	payload := SceneJobPayload{
		GenerationID: gen.ID,
		CompositeID:  composite.ID,
		SceneID:      descriptor.SceneID,
		MediaKey:     item.MediaKey,
		Instruction:  descriptor.Instruction,
		StartTime:    descriptor.StartTime,
		EndTime:      descriptor.EndTime,
		AspectRatio:  aspect,
		KeepAudio:    keepAudio,
	}
	if _, err := c.jobs.Enqueue(ctx, SceneQueue, payload); err != nil {
		return err
	}
	descriptor.GenerationID = gen.ID
	return nil
}
