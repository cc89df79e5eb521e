package composer

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"reelsmith/internal/content"
	"reelsmith/internal/logging"
	"reelsmith/internal/services"
)

// assemble builds the composite artifact and uploads it. Original ranges are
// trimmed from the source, generated ranges come from storage, and the clips
// concatenate in ascending scene index order. An all-original list reproduces
// the source, so it skips trimming entirely and re-encodes the source in one
// pass.
func (c *Composer) assemble(ctx context.Context, logger *slog.Logger, composite *content.Composite, item *content.Item, report ProgressFunc) error {
	ctx = services.WithStage(ctx, "concatenate")

	if err := c.setStage(ctx, report, composite, content.CompositeConcatenating, "concatenate", "assembling composite clip", 60); err != nil {
		return err
	}

	workDir := filepath.Join(c.stagingDir, "composites", composite.ID)
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("create composite work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	sourcePath := filepath.Join(workDir, "source"+filepath.Ext(item.MediaKey))
	if err := c.blobs.Fetch(ctx, item.MediaKey, sourcePath); err != nil {
		return err
	}

	output := filepath.Join(workDir, "composite.mp4")
	if len(generatedDescriptors(composite)) == 0 {
		if err := c.clips.Reencode(ctx, sourcePath, output); err != nil {
			return err
		}
	} else if err := c.concatScenes(ctx, composite, workDir, sourcePath, output); err != nil {
		return err
	}

	if err := c.setStage(ctx, report, composite, content.CompositeUploading, "upload", "storing composite artifact", 90); err != nil {
		return err
	}
	resultKey := "composites/" + composite.ID + ".mp4"
	if err := c.blobs.PutFile(ctx, resultKey, output); err != nil {
		return err
	}

	composite.ResultKey = resultKey
	composite.ErrorMessage = ""
	composite.FailedSceneID = ""
	if err := c.setStage(ctx, report, composite, content.CompositeCompleted, "done", "composite ready", 100); err != nil {
		return err
	}
	logger.Info("composite completed",
		logging.String("composite_id", composite.ID),
		logging.String("result_key", resultKey))
	return nil
}

// concatScenes renders one clip per descriptor and joins them. Generation
// results are re-validated here; a reused sibling may have been deleted or
// failed since the plan was recorded. Provider clips are conformed to the
// source's dimensions and frame rate before the demuxer sees them; trimmed
// originals already match because they re-encode from the same source.
func (c *Composer) concatScenes(ctx context.Context, composite *content.Composite, workDir, sourcePath, output string) error {
	generations, err := c.store.GetGenerations(ctx, generationIDs(composite))
	if err != nil {
		return err
	}

	probe, err := c.clips.Probe(ctx, sourcePath)
	if err != nil {
		return err
	}
	profile := probe.Profile()
	if !profile.Valid() {
		return services.Wrap(services.ErrInternal, "composer", "concatenate",
			fmt.Sprintf("source media %s has no usable video stream", composite.ContentID), nil)
	}

	descriptors := orderedDescriptors(composite)
	clips := make([]string, 0, len(descriptors))
	for i, descriptor := range descriptors {
		clip := filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i))
		if descriptor.UseOriginal {
			if err := c.clips.Trim(ctx, sourcePath, clip, descriptor.StartTime, descriptor.EndTime); err != nil {
				return err
			}
		} else {
			gen := generations[descriptor.GenerationID]
			if gen == nil || gen.Status != content.GenerationCompleted || gen.ResultKey == "" {
				composite.FailedSceneID = descriptor.SceneID
				return services.Wrap(services.ErrNotFound, "composer", "concatenate",
					fmt.Sprintf("scene %s has no completed generation result", descriptor.SceneID), nil)
			}
			raw := filepath.Join(workDir, fmt.Sprintf("clip_%03d_raw.mp4", i))
			if err := c.blobs.Fetch(ctx, gen.ResultKey, raw); err != nil {
				return err
			}
			if err := c.clips.Conform(ctx, raw, clip, profile); err != nil {
				return err
			}
		}
		clips = append(clips, clip)
	}
	return c.clips.Concat(ctx, clips, output)
}

func orderedDescriptors(composite *content.Composite) []content.SceneDescriptor {
	out := make([]content.SceneDescriptor, len(composite.Descriptors))
	copy(out, composite.Descriptors)
	sort.Slice(out, func(i, j int) bool { return out[i].SceneIndex < out[j].SceneIndex })
	return out
}

func generationIDs(composite *content.Composite) []string {
	var ids []string
	for _, descriptor := range composite.Descriptors {
		if !descriptor.UseOriginal && descriptor.GenerationID != "" {
			ids = append(ids, descriptor.GenerationID)
		}
	}
	return ids
}
