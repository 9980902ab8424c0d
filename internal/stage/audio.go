package stage

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// FFmpegExtractor converts source video to the mono 16 kHz PCM WAV the
// transcription and diarization backends expect.
type FFmpegExtractor struct {
	Log zerolog.Logger
}

// Extract runs the audio conversion and validates the result. Audio
// shorter than one second means the source is broken, not quiet.
func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, destPath string) error {
	out, err := runCommand(ctx, "ffmpeg",
		"-i", videoPath,
		"-vn",
		"-ar", "16000",
		"-ac", "1",
		"-c:a", "pcm_s16le",
		"-y",
		destPath,
	)
	if err != nil {
		return fmt.Errorf("stage: ffmpeg audio extraction failed: %w\noutput: %s", err, truncate(out))
	}

	dur, err := ProbeDuration(ctx, destPath)
	if err != nil {
		return fmt.Errorf("stage: validate extracted audio: %w", err)
	}
	if dur < 1.0 {
		return fmt.Errorf("stage: extracted audio too short (%.2fs)", dur)
	}

	e.Log.Debug().Float64("duration_s", dur).Str("path", destPath).Msg("audio extracted")
	return nil
}

// ProbeDuration returns a media file's duration in seconds via ffprobe.
func ProbeDuration(ctx context.Context, path string) (float64, error) {
	out, err := runCommand(ctx, "ffprobe",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if err != nil {
		return 0, fmt.Errorf("stage: ffprobe %s: %w", path, err)
	}
	dur, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("stage: parse ffprobe duration %q: %w", strings.TrimSpace(string(out)), err)
	}
	return dur, nil
}
