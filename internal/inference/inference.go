// Package inference runs the downstream emotion pass: for every
// archived segment it invokes the multimodal model adapter over the
// clip and stores a structured result artifact.
package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/meeting-clipper/internal/cache"
	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// NotFound is the sentinel for a missing think/answer block.
const NotFound = "NOT_FOUND"

var (
	thinkRe  = regexp.MustCompile(`(?is)<think>(.*?)</think>`)
	answerRe = regexp.MustCompile(`(?is)<answer>(.*?)</answer>`)
)

// ParseResponse extracts the think and answer blocks from raw model
// output. Matching is case-insensitive and dot-matches-newline; a
// missing block yields the NOT_FOUND sentinel. Success requires a real
// answer.
func ParseResponse(raw string) types.InferenceDetails {
	d := types.InferenceDetails{
		RawModelOutput: raw,
		ParsedThink:    NotFound,
		ParsedAnswer:   NotFound,
	}
	if m := thinkRe.FindStringSubmatch(raw); m != nil {
		d.ParsedThink = strings.TrimSpace(m[1])
	}
	if m := answerRe.FindStringSubmatch(raw); m != nil {
		d.ParsedAnswer = strings.TrimSpace(m[1])
	}
	d.Success = d.ParsedAnswer != NotFound
	return d
}

// Model is the black-box multimodal inference backend.
type Model interface {
	// Infer runs the model over a clip and returns its raw text output.
	Infer(ctx context.Context, clipPath, prompt string) (string, error)
}

// ExecModel invokes the model through a subprocess: the command gets
// the clip path and the prompt, and writes the model output to stdout.
type ExecModel struct {
	Command string
	Args    []string
}

// Infer runs the configured command.
func (m *ExecModel) Infer(ctx context.Context, clipPath, prompt string) (string, error) {
	args := append([]string{}, m.Args...)
	args = append(args, "--video", clipPath, "--prompt", prompt)
	out, err := exec.CommandContext(ctx, m.Command, args...).Output()
	if err != nil {
		return "", fmt.Errorf("inference: model command failed: %w", err)
	}
	return string(out), nil
}

// Pass walks archived segments and produces inference artifacts.
type Pass struct {
	Cache  cache.Cache
	Model  Model
	Prompt string

	ScratchRoot string
	Log         zerolog.Logger
}

// Stats summarizes one inference pass.
type Stats struct {
	Segments int
	Cached   int
	Done     int
	Failed   int
}

// Run processes every segment of every video under the segments stage
// prefix. Idempotent: segments with an existing inference artifact are
// skipped.
func (p *Pass) Run(ctx context.Context) (Stats, error) {
	var stats Stats

	keys, err := p.Cache.List(ctx, types.StageSegments+"/")
	if err != nil {
		return stats, fmt.Errorf("inference: list segments: %w", err)
	}

	for _, key := range keys {
		if !strings.HasSuffix(key, ".json") {
			continue
		}
		stats.Segments++

		metaRaw, err := p.Cache.Get(ctx, key)
		if err != nil {
			p.Log.Warn().Str("key", key).Err(err).Msg("fetch segment metadata failed")
			stats.Failed++
			continue
		}
		var meta types.SegmentMetadata
		if err := json.Unmarshal(metaRaw, &meta); err != nil {
			p.Log.Warn().Str("key", key).Err(err).Msg("parse segment metadata failed")
			stats.Failed++
			continue
		}

		outKey := cache.Key(types.StageInference, meta.SourceVideoID, meta.SegmentID+"_inference.json")
		if ok, err := p.Cache.Exists(ctx, outKey); err == nil && ok {
			stats.Cached++
			continue
		}

		if err := p.inferOne(ctx, meta, outKey); err != nil {
			p.Log.Warn().Str("segment_id", meta.SegmentID).Err(err).Msg("inference failed")
			stats.Failed++
			continue
		}
		stats.Done++
	}

	p.Log.Info().
		Int("segments", stats.Segments).
		Int("done", stats.Done).
		Int("cached", stats.Cached).
		Int("failed", stats.Failed).
		Msg("inference pass complete")
	return stats, nil
}

func (p *Pass) inferOne(ctx context.Context, meta types.SegmentMetadata, outKey string) error {
	scratch := filepath.Join(p.ScratchRoot, "inference", meta.SourceVideoID)
	if err := os.MkdirAll(scratch, 0o755); err != nil {
		return err
	}
	defer os.RemoveAll(scratch)

	clipKey := cache.Key(types.StageSegments, meta.SourceVideoID, meta.ClipFilename)
	clipPath := filepath.Join(scratch, meta.ClipFilename)
	if err := p.Cache.Download(ctx, clipKey, clipPath); err != nil {
		return fmt.Errorf("download clip: %w", err)
	}

	raw, err := p.Model.Infer(ctx, clipPath, p.Prompt)
	if err != nil {
		return err
	}

	details := ParseResponse(raw)
	if !details.Success {
		p.Log.Warn().Str("segment_id", meta.SegmentID).Msg("no answer block in model output")
	}

	result := types.InferenceResult{SegmentInfo: meta, Details: details}
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if err := p.Cache.Put(ctx, outKey, data); err != nil {
		return fmt.Errorf("store inference result: %w", err)
	}

	if !details.Success {
		return errors.New("inference: model output had no parseable answer")
	}
	return nil
}
