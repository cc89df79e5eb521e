package media

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
)

func setHelperCommand(t *testing.T, mode string, captured *[][]string) {
	t.Helper()
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if captured != nil {
			*captured = append(*captured, append([]string(nil), args...))
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", fmt.Sprintf("MEDIA_HELPER_MODE=%s", mode))
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	switch os.Getenv("MEDIA_HELPER_MODE") {
	case "probe":
		fmt.Println(`{"streams":[{"codec_type":"video","width":1080,"height":1920,"avg_frame_rate":"30000/1001"},{"codec_type":"audio"}],"format":{"duration":"17.500000","size":"1048576"}}`)
		os.Exit(0)
	case "failure":
		fmt.Fprintln(os.Stderr, "conversion failed")
		os.Exit(1)
	default:
		os.Exit(0)
	}
}

func TestProbeParsesContainerFacts(t *testing.T) {
	setHelperCommand(t, "probe", nil)

	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	result, err := p.Probe(context.Background(), "/tmp/source.mp4")
	if err != nil {
		t.Fatalf("Probe: %v", err)
	}

	if got := result.DurationSeconds(); got != 17.5 {
		t.Fatalf("expected duration 17.5, got %f", got)
	}
	width, height := result.Dimensions()
	if width != 1080 || height != 1920 {
		t.Fatalf("unexpected dimensions %dx%d", width, height)
	}
	if rate := result.FrameRate(); rate < 29.9 || rate > 30.0 {
		t.Fatalf("unexpected frame rate %f", rate)
	}
	if !result.HasAudio() {
		t.Fatal("expected audio stream")
	}
}

func TestProbeRequiresPath(t *testing.T) {
	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	if _, err := p.Probe(context.Background(), "  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestTrimBuildsRangeArguments(t *testing.T) {
	var calls [][]string
	setHelperCommand(t, "success", &calls)

	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	if err := p.Trim(context.Background(), "/tmp/in.mp4", "/tmp/out.mp4", 2.5, 10); err != nil {
		t.Fatalf("Trim: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 invocation, got %d", len(calls))
	}
	args := calls[0]
	if idx := findArg(args, "-ss"); idx == -1 || args[idx+1] != "2.5" {
		t.Fatalf("missing -ss 2.5 in %v", args)
	}
	if idx := findArg(args, "-to"); idx == -1 || args[idx+1] != "10" {
		t.Fatalf("missing -to 10 in %v", args)
	}
	if args[len(args)-1] != "/tmp/out.mp4" {
		t.Fatalf("output must be the final argument, got %v", args)
	}
}

func TestTrimRejectsInvalidRange(t *testing.T) {
	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	if err := p.Trim(context.Background(), "/tmp/in.mp4", "/tmp/out.mp4", 5, 5); err == nil {
		t.Fatal("expected error for empty range")
	}
}

func TestConcatWritesOrderedListFile(t *testing.T) {
	var calls [][]string
	listContents := ""
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		calls = append(calls, append([]string(nil), args...))
		if idx := findArg(args, "-i"); idx != -1 {
			if data, err := os.ReadFile(args[idx+1]); err == nil {
				listContents = string(data)
			}
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "MEDIA_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	if err := p.Concat(context.Background(), []string{"/tmp/a.mp4", "/tmp/b.mp4"}, "/tmp/final.mp4"); err != nil {
		t.Fatalf("Concat: %v", err)
	}

	expected := "file '/tmp/a.mp4'\nfile '/tmp/b.mp4'\n"
	if listContents != expected {
		t.Fatalf("unexpected concat list:\n%q", listContents)
	}
	args := calls[0]
	if findArg(args, "concat") == -1 {
		t.Fatalf("expected concat demuxer in %v", args)
	}
}

func TestConcatRequiresInputs(t *testing.T) {
	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	if err := p.Concat(context.Background(), nil, "/tmp/final.mp4"); err == nil {
		t.Fatal("expected error for empty input list")
	}
}

func TestExtractFramesBoundsAndSorts(t *testing.T) {
	outputDir := filepath.Join(t.TempDir(), "frames")
	original := commandContext
	commandContext = func(ctx context.Context, name string, args ...string) *exec.Cmd {
		if idx := findArg(args, "-vf"); idx == -1 || args[idx+1] != "fps=1/2" {
			t.Fatalf("missing fps filter in %v", args)
		}
		if idx := findArg(args, "-frames:v"); idx == -1 || args[idx+1] != "5" {
			t.Fatalf("missing frame bound in %v", args)
		}
		for _, n := range []string{"frame_0002.jpg", "frame_0001.jpg"} {
			if err := os.WriteFile(filepath.Join(outputDir, n), []byte("jpg"), 0o644); err != nil {
				t.Fatalf("write frame: %v", err)
			}
		}
		cmd := exec.CommandContext(ctx, os.Args[0], "-test.run=TestHelperProcess")
		cmd.Env = append(os.Environ(), "GO_WANT_HELPER_PROCESS=1", "MEDIA_HELPER_MODE=success")
		return cmd
	}
	t.Cleanup(func() {
		commandContext = original
	})

	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	frames, err := p.ExtractFrames(context.Background(), "/tmp/in.mp4", outputDir, 2, 5)
	if err != nil {
		t.Fatalf("ExtractFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("expected 2 frames, got %d", len(frames))
	}
	if filepath.Base(frames[0]) != "frame_0001.jpg" {
		t.Fatalf("frames not sorted: %v", frames)
	}
}

func TestRunSurfacesToolFailure(t *testing.T) {
	setHelperCommand(t, "failure", nil)

	p := &Processor{ffmpeg: "ffmpeg", ffprobe: "ffprobe"}
	err := p.Reencode(context.Background(), "/tmp/in.mp4", "/tmp/out.mp4")
	if err == nil {
		t.Fatal("expected tool failure to propagate")
	}
}

func TestParseRational(t *testing.T) {
	cases := map[string]float64{
		"25/1":  25,
		"0/0":   0,
		"":      0,
		"24":    24,
		"bad/1": 0,
	}
	for input, want := range cases {
		if got := parseRational(input); got != want {
			t.Fatalf("parseRational(%q) = %f, want %f", input, got, want)
		}
	}
}

func findArg(args []string, target string) int {
	for i, arg := range args {
		if arg == target {
			return i
		}
	}
	return -1
}
