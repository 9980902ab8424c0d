package stage

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// PyannoteDiarizer runs the pyannote diarization helper script as a
// subprocess. The script writes one line per turn:
//
//	SPEAKER_00 123.450 6.780
//
// (speaker label, start offset in seconds, duration in seconds).
type PyannoteDiarizer struct {
	// Script is the diarization entry point. Defaults to "diarize.py"
	// resolved on PATH.
	Script string
	Device string // "cuda" or "cpu"

	Log zerolog.Logger
}

// Diarize runs speaker diarization and parses its turn records.
// Callers are expected to hold the GPU lock around this call; the
// diarizer itself knows nothing about other jobs.
func (d *PyannoteDiarizer) Diarize(ctx context.Context, audioPath string, expectedSpeakers int) ([]types.DiarizationTurn, error) {
	script := d.Script
	if script == "" {
		script = "diarize.py"
	}

	outPath := filepath.Join(filepath.Dir(audioPath), "diarization.txt")
	args := []string{
		script,
		"--audio", audioPath,
		"--output", outPath,
	}
	if expectedSpeakers > 0 {
		args = append(args, "--num-speakers", strconv.Itoa(expectedSpeakers))
	}
	if d.Device != "" {
		args = append(args, "--device", d.Device)
	}

	d.Log.Info().Int("expected_speakers", expectedSpeakers).Msg("diarizing")
	if out, err := runCommand(ctx, "python", args...); err != nil {
		return nil, fmt.Errorf("stage: diarization failed: %w\noutput: %s", err, truncate(out))
	}

	f, err := os.Open(outPath)
	if err != nil {
		return nil, fmt.Errorf("stage: read diarization output: %w", err)
	}
	defer f.Close()
	return ParseTurns(f)
}

// ParseTurns reads line-oriented turn records from r. Blank lines and
// lines starting with '#' are skipped; malformed lines are an error
// because a half-parsed diarization silently corrupts segmentation.
func ParseTurns(r io.Reader) ([]types.DiarizationTurn, error) {
	var turns []types.DiarizationTurn
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) != 3 {
			return nil, fmt.Errorf("stage: diarization line %d: expected 3 fields, got %d", lineNo, len(fields))
		}
		start, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, fmt.Errorf("stage: diarization line %d: bad start %q", lineNo, fields[1])
		}
		dur, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("stage: diarization line %d: bad duration %q", lineNo, fields[2])
		}
		if start < 0 || dur <= 0 {
			return nil, fmt.Errorf("stage: diarization line %d: invalid interval start=%.3f dur=%.3f", lineNo, start, dur)
		}
		turns = append(turns, types.DiarizationTurn{
			SpeakerID: fields[0],
			Start:     start,
			End:       start + dur,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stage: scan diarization output: %w", err)
	}
	return turns, nil
}

// FormatTurns renders turns back into the line-oriented wire format,
// used when storing the diarization artifact to the cache.
func FormatTurns(turns []types.DiarizationTurn) []byte {
	var b strings.Builder
	for _, t := range turns {
		fmt.Fprintf(&b, "%s %.3f %.3f\n", t.SpeakerID, t.Start, t.Duration())
	}
	return []byte(b.String())
}
