// Package media wraps the ffmpeg and ffprobe command-line tools for the
// probe, trim, frame extraction, and concatenation operations the pipeline
// and composer rely on.
package media
