package analysis

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"reelsmith/internal/config"
	"reelsmith/internal/content"
	"reelsmith/internal/media"
	"reelsmith/internal/services"
)

// Prober is the slice of the media processor the analyzer needs.
type Prober interface {
	Probe(ctx context.Context, path string) (media.ProbeResult, error)
	ExtractFrames(ctx context.Context, input, outputDir string, intervalSec float64, maxFrames int) ([]string, error)
}

// Analyzer derives an Analysis from a local media file.
type Analyzer struct {
	prober     Prober
	stagingDir string

	frameInterval   float64
	maxFrames       int
	minSceneSeconds float64
}

// New builds an analyzer from configuration.
func New(cfg *config.Config, prober Prober) *Analyzer {
	return &Analyzer{
		prober:          prober,
		stagingDir:      cfg.Paths.StagingDir,
		frameInterval:   cfg.Analysis.FrameIntervalSec,
		maxFrames:       cfg.Analysis.MaxFrames,
		minSceneSeconds: cfg.Analysis.MinSceneSeconds,
	}
}

// Analyze probes the media file and produces ordered scene ranges. The frames
// method samples frames into the staging directory and records how many were
// kept; the interval method slices the timeline without touching ffmpeg
// beyond the probe.
func (a *Analyzer) Analyze(ctx context.Context, contentID, mediaPath string, method content.AnalysisMethod) (*content.Analysis, error) {
	probe, err := a.prober.Probe(ctx, mediaPath)
	if err != nil {
		return nil, services.Wrap(services.ErrInternal, "analyze", "probe", fmt.Sprintf("probing %s failed", mediaPath), err)
	}
	duration := probe.DurationSeconds()
	if duration <= 0 {
		return nil, services.Wrap(services.ErrValidation, "analyze", "probe", fmt.Sprintf("media %s has no measurable duration", mediaPath), nil)
	}

	analysis := &content.Analysis{
		ContentID:   contentID,
		Method:      method,
		DurationSec: duration,
	}

	switch method {
	case content.AnalysisMethodFrames:
		frameDir := filepath.Join(a.stagingDir, "frames", contentID)
		frames, err := a.prober.ExtractFrames(ctx, mediaPath, frameDir, a.frameInterval, a.maxFrames)
		if err != nil {
			return nil, services.Wrap(services.ErrInternal, "analyze", "frames", fmt.Sprintf("frame extraction for %s failed", mediaPath), err)
		}
		defer os.RemoveAll(frameDir)
		analysis.FrameCount = len(frames)
		analysis.Scenes = sliceScenes(duration, a.frameInterval, a.minSceneSeconds)
	case content.AnalysisMethodInterval:
		analysis.Scenes = sliceScenes(duration, a.frameInterval, a.minSceneSeconds)
	default:
		return nil, services.Wrap(services.ErrValidation, "analyze", "method", fmt.Sprintf("unknown analysis method %q", method), nil)
	}

	if len(analysis.Scenes) == 0 {
		return nil, services.Wrap(services.ErrValidation, "analyze", "segment", "segmentation produced no scenes", nil)
	}
	return analysis, nil
}

// sliceScenes cuts [0, duration) into interval-sized ranges. A trailing
// remainder shorter than minScene merges into the previous scene instead of
// becoming its own.
func sliceScenes(duration, interval, minScene float64) []content.Scene {
	if duration <= 0 {
		return nil
	}
	if interval <= 0 {
		interval = duration
	}

	var scenes []content.Scene
	for start := 0.0; start < duration; start += interval {
		end := start + interval
		if end > duration {
			end = duration
		}
		scenes = append(scenes, content.Scene{
			Index:     len(scenes),
			StartTime: start,
			EndTime:   end,
		})
	}

	if len(scenes) > 1 {
		last := &scenes[len(scenes)-1]
		if last.EndTime-last.StartTime < minScene {
			scenes[len(scenes)-2].EndTime = last.EndTime
			scenes = scenes[:len(scenes)-1]
		}
	}
	return scenes
}
