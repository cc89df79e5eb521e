package composer

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/content"
	"reelsmith/internal/logging"
	"reelsmith/internal/media"
	"reelsmith/internal/queue"
	"reelsmith/internal/services"
	"reelsmith/internal/storage"
)

// SceneQueue carries one job per non-original scene generation.
const SceneQueue = "scene-generation"

// CompositeQueue carries one job per composite assembly cycle.
const CompositeQueue = "composite"

// CompositeJobPayload is the body of one composite job.
type CompositeJobPayload struct {
	CompositeID string `json:"compositeId"`
}

// ClipProcessor is the slice of the media processor concatenation needs.
type ClipProcessor interface {
	Probe(ctx context.Context, path string) (media.ProbeResult, error)
	Trim(ctx context.Context, input, output string, start, end float64) error
	Conform(ctx context.Context, input, output string, profile media.ClipProfile) error
	Concat(ctx context.Context, inputs []string, output string) error
	Reencode(ctx context.Context, input, output string) error
}

// ProgressFunc mirrors composite checkpoints onto the driving queue job.
type ProgressFunc func(ctx context.Context, percent float64, message string)

// Composer plans composites and drives them to a terminal state.
type Composer struct {
	store  *content.Store
	jobs   *queue.Store
	blobs  *storage.Store
	clips  ClipProcessor
	logger *slog.Logger

	stagingDir string
	waitPoll   time.Duration
	waitBudget time.Duration
}

// New builds a composer from configuration.
func New(cfg *config.Config, store *content.Store, jobs *queue.Store, blobs *storage.Store, clips ClipProcessor, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = logging.NewNop()
	}
	waitPoll := time.Duration(cfg.Composer.WaitPollInterval) * time.Second
	if waitPoll <= 0 {
		waitPoll = 5 * time.Second
	}
	waitBudget := time.Duration(cfg.Composer.WaitBudget) * time.Second
	if waitBudget <= 0 {
		waitBudget = 30 * time.Minute
	}
	return &Composer{
		store:      store,
		jobs:       jobs,
		blobs:      blobs,
		clips:      clips,
		logger:     logger.With(logging.String(logging.FieldComponent, "composer")),
		stagingDir: cfg.Paths.StagingDir,
		waitPoll:   waitPoll,
		waitBudget: waitBudget,
	}
}

// Plan validates the descriptors against the analysis and records a pending
// composite. Descriptors are persisted sorted by scene index.
func (c *Composer) Plan(ctx context.Context, analysisID string, descriptors []content.SceneDescriptor) (*content.Composite, error) {
	record, err := c.store.GetAnalysis(ctx, analysisID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, services.Wrap(services.ErrNotFound, "composer", "plan", fmt.Sprintf("analysis %s does not exist", analysisID), nil)
	}
	if len(descriptors) == 0 {
		return nil, services.Wrap(services.ErrValidation, "composer", "plan", "at least one scene descriptor is required", nil)
	}

	known := make(map[int]content.Scene, len(record.Scenes))
	for _, scene := range record.Scenes {
		known[scene.Index] = scene
	}
	seen := make(map[int]bool, len(descriptors))
	for i := range descriptors {
		descriptor := &descriptors[i]
		if strings.TrimSpace(descriptor.SceneID) == "" {
			descriptor.SceneID = fmt.Sprintf("scene-%d", descriptor.SceneIndex)
		}
		if _, ok := known[descriptor.SceneIndex]; !ok {
			return nil, services.Wrap(services.ErrValidation, "composer", "plan", fmt.Sprintf("scene index %d is not part of analysis %s", descriptor.SceneIndex, analysisID), nil)
		}
		if seen[descriptor.SceneIndex] {
			return nil, services.Wrap(services.ErrValidation, "composer", "plan", fmt.Sprintf("scene index %d appears twice", descriptor.SceneIndex), nil)
		}
		seen[descriptor.SceneIndex] = true
		if descriptor.EndTime <= descriptor.StartTime {
			return nil, services.Wrap(services.ErrValidation, "composer", "plan", fmt.Sprintf("scene %s has an empty time range", descriptor.SceneID), nil)
		}
		if !descriptor.UseOriginal && descriptor.GenerationID == "" && strings.TrimSpace(descriptor.Instruction) == "" {
			return nil, services.Wrap(services.ErrValidation, "composer", "plan", fmt.Sprintf("scene %s needs an instruction or an existing generation", descriptor.SceneID), nil)
		}
		if !descriptor.UseOriginal && descriptor.GenerationID != "" {
			sibling, err := c.store.GetGeneration(ctx, descriptor.GenerationID)
			if err != nil {
				return nil, err
			}
			if sibling == nil {
				return nil, services.Wrap(services.ErrNotFound, "composer", "plan", fmt.Sprintf("scene %s references unknown generation %s", descriptor.SceneID, descriptor.GenerationID), nil)
			}
		}
	}

	composite := &content.Composite{
		ContentID:   record.ContentID,
		AnalysisID:  analysisID,
		Descriptors: descriptors,
		Status:      content.CompositePending,
	}
	if err := c.store.CreateComposite(ctx, composite); err != nil {
		return nil, err
	}
	return composite, nil
}

// Run drives one composite through fan-out, waiting, concatenation, and
// upload. It is the body of the composite queue handler; report, when not
// nil, receives the same checkpoints the composite row records.
func (c *Composer) Run(ctx context.Context, compositeID string, report ProgressFunc) error {
	if report == nil {
		report = func(context.Context, float64, string) {}
	}

	composite, err := c.store.GetComposite(ctx, compositeID)
	if err != nil {
		return err
	}
	if composite == nil {
		return services.Wrap(services.ErrNotFound, "composer", "run", fmt.Sprintf("composite %s does not exist", compositeID), nil)
	}
	if composite.Status.IsTerminal() {
		return nil
	}

	ctx = services.WithContentID(ctx, composite.ContentID)
	logger := logging.WithContext(ctx, c.logger)

	if err := c.runPhases(ctx, logger, composite, report); err != nil {
		composite.Status = content.CompositeFailed
		composite.ErrorMessage = services.Details(err)
		if updateErr := c.store.UpdateComposite(ctx, composite); updateErr != nil {
			logger.Error("persisting composite failure failed", logging.Error(updateErr))
		}
		logger.Error("composite failed",
			logging.String("composite_id", composite.ID),
			logging.String("classification", services.Classification(err)),
			logging.Error(err))
		return err
	}
	return nil
}

func (c *Composer) runPhases(ctx context.Context, logger *slog.Logger, composite *content.Composite, report ProgressFunc) error {
	item, err := c.store.GetItem(ctx, composite.ContentID)
	if err != nil {
		return err
	}
	if item == nil || item.MediaKey == "" {
		return services.Wrap(services.ErrValidation, "composer", "run", fmt.Sprintf("content %s has no stored source media", composite.ContentID), nil)
	}

	if err := c.submitScenes(ctx, logger, composite, item, report); err != nil {
		return err
	}
	if err := c.waitForGenerations(ctx, logger, composite, report); err != nil {
		return err
	}
	return c.assemble(ctx, logger, composite, item, report)
}

func (c *Composer) setStage(ctx context.Context, report ProgressFunc, composite *content.Composite, status content.CompositeStatus, stage, message string, percent float64) error {
	composite.Status = status
	composite.Stage = stage
	composite.Message = message
	composite.ProgressPercent = percent
	if err := c.store.UpdateComposite(ctx, composite); err != nil {
		return err
	}
	if report != nil {
		report(ctx, percent, message)
	}
	return nil
}

// generatedDescriptors returns the non-original descriptors in scene order.
func generatedDescriptors(composite *content.Composite) []*content.SceneDescriptor {
	var out []*content.SceneDescriptor
	for i := range composite.Descriptors {
		if !composite.Descriptors[i].UseOriginal {
			out = append(out, &composite.Descriptors[i])
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SceneIndex < out[j].SceneIndex })
	return out
}
