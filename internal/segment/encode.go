package segment

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// runFunc executes an external command and returns its combined output.
type runFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

func execRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// Encoder materializes a planned clip from the source video using a
// three-tier fallback: stream copy, hardware re-encode, software
// re-encode. Each tier is validated with ffprobe; an output with no
// real video stream is deleted before the next tier is tried.
type Encoder struct {
	// HWCodec is the hardware encoder name, e.g. "h264_nvenc". Empty
	// disables the hardware tier.
	HWCodec string
	// TierTimeout bounds each encode attempt. Zero means 5 minutes.
	TierTimeout time.Duration

	Log zerolog.Logger

	// run is swappable for tests.
	run runFunc
}

// NewEncoder creates an encoder with the default command runner.
func NewEncoder(hwCodec string, tierTimeout time.Duration, log zerolog.Logger) *Encoder {
	return &Encoder{HWCodec: hwCodec, TierTimeout: tierTimeout, Log: log, run: execRun}
}

// Encode cuts [start,end) from source into outputPath. It returns an
// error only when every tier failed; the caller treats that as a failed
// segment, not a failed job.
func (e *Encoder) Encode(ctx context.Context, source string, start, end float64, outputPath string) error {
	duration := end - start
	if duration <= 0 {
		return fmt.Errorf("segment: invalid interval [%.3f, %.3f)", start, end)
	}

	type tier struct {
		name string
		args []string
	}
	tiers := []tier{
		{"copy", []string{
			"-ss", ffmpegTime(start), "-i", source, "-t", ffmpegTime(duration),
			"-c", "copy", "-avoid_negative_ts", "make_zero", "-y", outputPath,
		}},
	}
	if e.HWCodec != "" {
		tiers = append(tiers, tier{"hardware", []string{
			"-hwaccel", "auto",
			"-ss", ffmpegTime(start), "-i", source, "-t", ffmpegTime(duration),
			"-c:v", e.HWCodec, "-preset", "p4", "-cq", "23",
			"-c:a", "aac", "-y", outputPath,
		}})
	}
	tiers = append(tiers, tier{"software", []string{
		"-ss", ffmpegTime(start), "-i", source, "-t", ffmpegTime(duration),
		"-c:v", "libx264", "-preset", "veryfast", "-crf", "23",
		"-c:a", "aac", "-y", outputPath,
	}})

	timeout := e.TierTimeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}

	var lastErr error
	for _, t := range tiers {
		tctx, cancel := context.WithTimeout(ctx, timeout)
		out, err := e.run(tctx, "ffmpeg", t.args...)
		cancel()

		if err != nil {
			lastErr = fmt.Errorf("segment: %s encode failed: %w\noutput: %s", t.name, err, tail(out))
			e.Log.Warn().Str("tier", t.name).Err(err).Msg("encode tier failed")
			os.Remove(outputPath)
			continue
		}

		ok, err := e.HasVideoStream(ctx, outputPath)
		if err != nil || !ok {
			lastErr = fmt.Errorf("segment: %s encode produced no video stream", t.name)
			e.Log.Warn().Str("tier", t.name).Msg("encode output has no video stream")
			os.Remove(outputPath)
			continue
		}

		e.Log.Debug().Str("tier", t.name).Str("path", outputPath).Msg("segment encoded")
		return nil
	}

	os.Remove(outputPath)
	return fmt.Errorf("segment: all encode tiers failed: %w", lastErr)
}

// HasVideoStream reports whether the file at path carries a genuine
// video stream.
func (e *Encoder) HasVideoStream(ctx context.Context, path string) (bool, error) {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return false, nil
	}

	out, err := e.run(ctx, "ffprobe",
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return false, fmt.Errorf("segment: ffprobe %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)) == "video", nil
}

func ffmpegTime(seconds float64) string {
	return fmt.Sprintf("%.3f", seconds)
}

func tail(out []byte) string {
	const max = 2048
	if len(out) > max {
		out = out[len(out)-max:]
	}
	return string(out)
}
