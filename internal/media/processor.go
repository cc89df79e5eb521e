package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"reelsmith/internal/config"
)

var commandContext = exec.CommandContext

// Processor runs ffmpeg and ffprobe for the pipeline and composer.
type Processor struct {
	ffmpeg  string
	ffprobe string
}

// NewProcessor builds a processor using the configured tool binaries.
func NewProcessor(cfg *config.Config) *Processor {
	return &Processor{
		ffmpeg:  cfg.FFmpegBinary(),
		ffprobe: cfg.FFprobeBinary(),
	}
}

// Trim re-encodes the [start, end) range of the input into the output path.
// Re-encoding keeps trimmed clips concatenable with generated ones.
func (p *Processor) Trim(ctx context.Context, input, output string, start, end float64) error {
	if input == "" || output == "" {
		return errors.New("trim: input and output required")
	}
	if end <= start {
		return fmt.Errorf("trim: invalid range %.3f..%.3f", start, end)
	}

	args := []string{
		"-y", "-v", "error", "-hide_banner",
		"-ss", formatSeconds(start),
		"-to", formatSeconds(end),
		"-i", input,
		"-c:v", "libx264", "-preset", "fast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		output,
	}
	return p.run(ctx, args)
}

// Concat joins the inputs in the given order using the concat demuxer. The
// inputs must already share codec, resolution, and frame rate.
func (p *Processor) Concat(ctx context.Context, inputs []string, output string) error {
	if len(inputs) == 0 {
		return errors.New("concat: no inputs")
	}
	if output == "" {
		return errors.New("concat: output required")
	}

	listFile, err := writeConcatList(inputs)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	args := []string{
		"-y", "-v", "error", "-hide_banner",
		"-f", "concat", "-safe", "0",
		"-i", listFile,
		"-c", "copy",
		output,
	}
	return p.run(ctx, args)
}

// Conform re-encodes the input to the profile's dimensions and frame rate so
// clips from different producers concatenate without stream mismatches.
func (p *Processor) Conform(ctx context.Context, input, output string, profile ClipProfile) error {
	if input == "" || output == "" {
		return errors.New("conform: input and output required")
	}
	if !profile.Valid() {
		return fmt.Errorf("conform: unusable profile %dx%d", profile.Width, profile.Height)
	}

	filters := []string{
		fmt.Sprintf("scale=%d:%d", profile.Width, profile.Height),
		"setsar=1",
	}
	if profile.FrameRate > 0 {
		filters = append(filters, "fps="+formatSeconds(profile.FrameRate))
	}
	args := []string{
		"-y", "-v", "error", "-hide_banner",
		"-i", input,
		"-vf", strings.Join(filters, ","),
		"-c:v", "libx264", "-preset", "fast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		output,
	}
	return p.run(ctx, args)
}

// Reencode rewrites the input to a normalized H.264/AAC output.
func (p *Processor) Reencode(ctx context.Context, input, output string) error {
	if input == "" || output == "" {
		return errors.New("reencode: input and output required")
	}
	args := []string{
		"-y", "-v", "error", "-hide_banner",
		"-i", input,
		"-c:v", "libx264", "-preset", "fast", "-pix_fmt", "yuv420p",
		"-c:a", "aac",
		output,
	}
	return p.run(ctx, args)
}

// ExtractFrames samples one frame every intervalSec seconds into outputDir,
// stopping after maxFrames. It returns the written frame paths in order.
func (p *Processor) ExtractFrames(ctx context.Context, input, outputDir string, intervalSec float64, maxFrames int) ([]string, error) {
	if input == "" {
		return nil, errors.New("extract frames: input required")
	}
	if intervalSec <= 0 {
		return nil, fmt.Errorf("extract frames: invalid interval %.3f", intervalSec)
	}
	if maxFrames <= 0 {
		return nil, fmt.Errorf("extract frames: invalid frame bound %d", maxFrames)
	}
	if err := os.MkdirAll(outputDir, 0o755); err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}

	pattern := filepath.Join(outputDir, "frame_%04d.jpg")
	args := []string{
		"-y", "-v", "error", "-hide_banner",
		"-i", input,
		"-vf", fmt.Sprintf("fps=1/%s", formatSeconds(intervalSec)),
		"-frames:v", fmt.Sprintf("%d", maxFrames),
		pattern,
	}
	if err := p.run(ctx, args); err != nil {
		return nil, err
	}

	frames, err := filepath.Glob(filepath.Join(outputDir, "frame_*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("extract frames: %w", err)
	}
	sort.Strings(frames)
	return frames, nil
}

func (p *Processor) run(ctx context.Context, args []string) error {
	cmd := commandContext(ctx, p.ffmpeg, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(output))
		if detail != "" {
			return fmt.Errorf("ffmpeg %s: %w: %s", args[len(args)-1], err, detail)
		}
		return fmt.Errorf("ffmpeg %s: %w", args[len(args)-1], err)
	}
	return nil
}

func writeConcatList(inputs []string) (string, error) {
	file, err := os.CreateTemp("", "reelsmith-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("concat list: %w", err)
	}
	defer file.Close()

	for _, input := range inputs {
		// Single quotes inside paths must be escaped for the concat demuxer.
		escaped := strings.ReplaceAll(input, "'", `'\''`)
		if _, err := fmt.Fprintf(file, "file '%s'\n", escaped); err != nil {
			os.Remove(file.Name())
			return "", fmt.Errorf("concat list: %w", err)
		}
	}
	return file.Name(), nil
}

func formatSeconds(value float64) string {
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.3f", value), "0"), ".")
}
