package analysis

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"reelsmith/internal/content"
	"reelsmith/internal/media"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
)

type fakeProber struct {
	duration      float64
	frames        []string
	probeErr      error
	extractErr    error
	extractCalled bool
}

func (f *fakeProber) Probe(ctx context.Context, path string) (media.ProbeResult, error) {
	if f.probeErr != nil {
		return media.ProbeResult{}, f.probeErr
	}
	return media.ProbeResult{
		Streams: []media.ProbeStream{{CodecType: "video", Width: 1080, Height: 1920}},
		Format:  media.ProbeFormat{Duration: strconv.FormatFloat(f.duration, 'f', -1, 64)},
	}, nil
}

func (f *fakeProber) ExtractFrames(ctx context.Context, input, outputDir string, intervalSec float64, maxFrames int) ([]string, error) {
	f.extractCalled = true
	if f.extractErr != nil {
		return nil, f.extractErr
	}
	return f.frames, nil
}

func newAnalyzer(t *testing.T, prober Prober) *Analyzer {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	cfg.Analysis.FrameIntervalSec = 2
	cfg.Analysis.MinSceneSeconds = 1
	return New(cfg, prober)
}

func TestAnalyzeFramesMethod(t *testing.T) {
	prober := &fakeProber{duration: 10, frames: []string{"f1.jpg", "f2.jpg", "f3.jpg", "f4.jpg", "f5.jpg"}}
	analyzer := newAnalyzer(t, prober)

	analysis, err := analyzer.Analyze(context.Background(), "content-1", "/tmp/in.mp4", content.AnalysisMethodFrames)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if !prober.extractCalled {
		t.Fatal("frames method must extract frames")
	}
	if analysis.FrameCount != 5 {
		t.Fatalf("expected 5 frames, got %d", analysis.FrameCount)
	}
	if analysis.DurationSec != 10 {
		t.Fatalf("expected duration 10, got %f", analysis.DurationSec)
	}
	if len(analysis.Scenes) != 5 {
		t.Fatalf("expected 5 scenes, got %d", len(analysis.Scenes))
	}
	for i, scene := range analysis.Scenes {
		if scene.Index != i {
			t.Fatalf("scene indexes out of order: %+v", analysis.Scenes)
		}
	}
	last := analysis.Scenes[len(analysis.Scenes)-1]
	if last.EndTime != 10 {
		t.Fatalf("last scene must end at the duration, got %f", last.EndTime)
	}
}

func TestAnalyzeIntervalMethodSkipsExtraction(t *testing.T) {
	prober := &fakeProber{duration: 7}
	analyzer := newAnalyzer(t, prober)

	analysis, err := analyzer.Analyze(context.Background(), "content-1", "/tmp/in.mp4", content.AnalysisMethodInterval)
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if prober.extractCalled {
		t.Fatal("interval method must not extract frames")
	}
	if analysis.FrameCount != 0 {
		t.Fatalf("expected no frame count, got %d", analysis.FrameCount)
	}
	// 0-2, 2-4, 4-6, 6-7.
	if len(analysis.Scenes) != 4 {
		t.Fatalf("expected 4 scenes, got %d", len(analysis.Scenes))
	}
}

func TestAnalyzeRejectsZeroDuration(t *testing.T) {
	analyzer := newAnalyzer(t, &fakeProber{duration: 0})

	_, err := analyzer.Analyze(context.Background(), "content-1", "/tmp/in.mp4", content.AnalysisMethodFrames)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyzeRejectsUnknownMethod(t *testing.T) {
	analyzer := newAnalyzer(t, &fakeProber{duration: 10})

	_, err := analyzer.Analyze(context.Background(), "content-1", "/tmp/in.mp4", content.AnalysisMethod("mystery"))
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestAnalyzePropagatesExtractionFailure(t *testing.T) {
	prober := &fakeProber{duration: 10, extractErr: errors.New("no frames")}
	analyzer := newAnalyzer(t, prober)

	_, err := analyzer.Analyze(context.Background(), "content-1", "/tmp/in.mp4", content.AnalysisMethodFrames)
	if err == nil {
		t.Fatal("expected extraction failure to propagate")
	}
}

func TestSliceScenesMergesShortTail(t *testing.T) {
	// 0-4, 4-8, and a 0.5s remainder that merges into the second scene.
	scenes := sliceScenes(8.5, 4, 1)
	if len(scenes) != 2 {
		t.Fatalf("expected 2 scenes, got %d: %+v", len(scenes), scenes)
	}
	if scenes[1].EndTime != 8.5 {
		t.Fatalf("short tail must merge into the previous scene: %+v", scenes)
	}
}

func TestSliceScenesSingleShortVideo(t *testing.T) {
	scenes := sliceScenes(1.2, 4, 1)
	if len(scenes) != 1 {
		t.Fatalf("expected 1 scene, got %d", len(scenes))
	}
	if scenes[0].StartTime != 0 || scenes[0].EndTime != 1.2 {
		t.Fatalf("unexpected scene %+v", scenes[0])
	}
}

func TestSliceScenesZeroIntervalFallsBackToWholeClip(t *testing.T) {
	scenes := sliceScenes(9, 0, 1)
	if len(scenes) != 1 || scenes[0].EndTime != 9 {
		t.Fatalf("unexpected scenes %+v", scenes)
	}
}
