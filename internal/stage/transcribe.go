package stage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// WhisperXTranscriber runs WhisperX as a subprocess. WhisperX is the
// only whisper variant in the toolchain that emits word-level
// timestamps, which the segment planner needs for boundary snapping.
type WhisperXTranscriber struct {
	Model    string // e.g. "large-v2"
	Device   string // "cuda" or "cpu"
	Language string // e.g. "en"

	Log zerolog.Logger
}

// whisperxWord matches WhisperX's aligned word JSON.
type whisperxWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

type whisperxSegment struct {
	Start float64        `json:"start"`
	End   float64        `json:"end"`
	Text  string         `json:"text"`
	Words []whisperxWord `json:"words"`
}

type whisperxOutput struct {
	Segments []whisperxSegment `json:"segments"`
	Language string            `json:"language"`
}

// Transcribe runs WhisperX over the audio file and parses its JSON
// output into the pipeline's transcript artifact.
func (t *WhisperXTranscriber) Transcribe(ctx context.Context, audioPath string) (*types.Transcript, error) {
	outDir, err := os.MkdirTemp(filepath.Dir(audioPath), "whisperx_")
	if err != nil {
		return nil, fmt.Errorf("stage: create whisperx output dir: %w", err)
	}
	defer os.RemoveAll(outDir)

	model := t.Model
	if model == "" {
		model = "large-v2"
	}
	device := t.Device
	if device == "" {
		device = "cuda"
	}

	args := []string{
		"-m", "whisperx",
		audioPath,
		"--model", model,
		"--device", device,
		"--output_dir", outDir,
		"--output_format", "json",
	}
	if t.Language != "" {
		args = append(args, "--language", t.Language)
	}

	t.Log.Info().Str("model", model).Str("device", device).Msg("transcribing")
	if out, err := runCommand(ctx, "python", args...); err != nil {
		return nil, fmt.Errorf("stage: whisperx failed: %w\noutput: %s", err, truncate(out))
	}

	base := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
	jsonPath := filepath.Join(outDir, base+".json")
	data, err := os.ReadFile(jsonPath)
	if err != nil {
		return nil, fmt.Errorf("stage: read whisperx output: %w", err)
	}

	return ParseWhisperX(data)
}

// ParseWhisperX converts WhisperX JSON into the transcript artifact.
func ParseWhisperX(data []byte) (*types.Transcript, error) {
	var raw whisperxOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("stage: parse whisperx JSON: %w", err)
	}

	tr := &types.Transcript{Language: raw.Language}
	var full []string
	for _, seg := range raw.Segments {
		ts := types.TranscriptSegment{
			Start: seg.Start,
			End:   seg.End,
			Text:  strings.TrimSpace(seg.Text),
		}
		for _, w := range seg.Words {
			ts.Words = append(ts.Words, types.TranscriptWord{
				Text:        strings.TrimSpace(w.Word),
				Start:       w.Start,
				End:         w.End,
				Probability: w.Score,
			})
		}
		tr.Segments = append(tr.Segments, ts)
		if ts.Text != "" {
			full = append(full, ts.Text)
		}
	}
	tr.Text = strings.Join(full, " ")
	return tr, nil
}
