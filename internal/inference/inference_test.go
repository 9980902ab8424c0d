package inference

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/meeting-clipper/internal/cache"
	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

func TestParseResponseFull(t *testing.T) {
	raw := "<think>The speaker pauses and frowns\nbefore answering.</think>\n<answer>anxious</answer>"
	d := ParseResponse(raw)
	assert.True(t, d.Success)
	assert.Equal(t, "The speaker pauses and frowns\nbefore answering.", d.ParsedThink)
	assert.Equal(t, "anxious", d.ParsedAnswer)
	assert.Equal(t, raw, d.RawModelOutput)
}

func TestParseResponseCaseInsensitive(t *testing.T) {
	d := ParseResponse("<THINK>hmm</THINK><Answer>neutral</Answer>")
	assert.True(t, d.Success)
	assert.Equal(t, "hmm", d.ParsedThink)
	assert.Equal(t, "neutral", d.ParsedAnswer)
}

func TestParseResponseMissingBlocks(t *testing.T) {
	d := ParseResponse("the model rambled without any tags")
	assert.False(t, d.Success)
	assert.Equal(t, NotFound, d.ParsedThink)
	assert.Equal(t, NotFound, d.ParsedAnswer)
}

func TestParseResponseAnswerWithoutThink(t *testing.T) {
	// An answer alone is still a success; the think block is optional
	// commentary.
	d := ParseResponse("<answer>happy</answer>")
	assert.True(t, d.Success)
	assert.Equal(t, NotFound, d.ParsedThink)
	assert.Equal(t, "happy", d.ParsedAnswer)
}

func TestParseResponseTakesFirstMatch(t *testing.T) {
	d := ParseResponse("<answer>surprise</answer> then later <answer>neutral</answer>")
	assert.Equal(t, "surprise", d.ParsedAnswer)
}

// cannedModel returns a fixed response, or fails.
type cannedModel struct {
	response string
	err      error
	calls    int
}

func (m *cannedModel) Infer(context.Context, string, string) (string, error) {
	m.calls++
	return m.response, m.err
}

func seedSegment(t *testing.T, c cache.Cache, videoID string, ordinal int) types.SegmentMetadata {
	t.Helper()
	ctx := context.Background()

	segID := types.SegmentID(videoID, "20240131", "powell", ordinal)
	meta := types.SegmentMetadata{
		SegmentID:     segID,
		SourceVideoID: videoID,
		VideoDate:     "20240131",
		ChairName:     "powell",
		ClipFilename:  segID + ".mp4",
	}
	data, err := json.Marshal(meta)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, cache.Key(types.StageSegments, videoID, segID+".json"), data))
	require.NoError(t, c.Put(ctx, cache.Key(types.StageSegments, videoID, segID+".mp4"), []byte("clip")))
	return meta
}

func newTestPass(t *testing.T, m Model) (*Pass, cache.Cache) {
	t.Helper()
	c, err := cache.NewLocalCache(cache.LocalConfig{Root: t.TempDir()})
	require.NoError(t, err)
	return &Pass{
		Cache:       c,
		Model:       m,
		Prompt:      "how does the speaker feel?",
		ScratchRoot: t.TempDir(),
		Log:         zerolog.Nop(),
	}, c
}

func TestPassProducesInferenceArtifacts(t *testing.T) {
	model := &cannedModel{response: "<think>calm voice</think><answer>neutral</answer>"}
	p, c := newTestPass(t, model)
	ctx := context.Background()

	meta := seedSegment(t, c, "vid01abcdefg", 0)

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Segments: 1, Done: 1}, stats)
	assert.Equal(t, 1, model.calls)

	outKey := cache.Key(types.StageInference, meta.SourceVideoID, meta.SegmentID+"_inference.json")
	data, err := c.Get(ctx, outKey)
	require.NoError(t, err)

	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.Equal(t, meta.SegmentID, result.SegmentInfo.SegmentID)
	assert.Equal(t, "neutral", result.Details.ParsedAnswer)
	assert.True(t, result.Details.Success)
}

func TestPassSkipsExistingResults(t *testing.T) {
	model := &cannedModel{response: "<answer>happy</answer>"}
	p, c := newTestPass(t, model)
	ctx := context.Background()

	seedSegment(t, c, "vid02abcdefg", 0)

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Done)

	// Second pass finds the artifact and never calls the model again.
	stats, err = p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Segments: 1, Cached: 1}, stats)
	assert.Equal(t, 1, model.calls)
}

func TestPassStoresUnparseableOutputButCountsFailure(t *testing.T) {
	model := &cannedModel{response: "no tags at all"}
	p, c := newTestPass(t, model)
	ctx := context.Background()

	meta := seedSegment(t, c, "vid03abcdefg", 0)

	stats, err := p.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, Stats{Segments: 1, Failed: 1}, stats)

	// The raw output is archived anyway so the response can be audited.
	outKey := cache.Key(types.StageInference, meta.SourceVideoID, meta.SegmentID+"_inference.json")
	data, err := c.Get(ctx, outKey)
	require.NoError(t, err)

	var result types.InferenceResult
	require.NoError(t, json.Unmarshal(data, &result))
	assert.False(t, result.Details.Success)
	assert.Equal(t, NotFound, result.Details.ParsedAnswer)
}

func TestPassModelErrorCountsFailure(t *testing.T) {
	model := &cannedModel{err: errors.New("endpoint down")}
	p, c := newTestPass(t, model)
	seedSegment(t, c, "vid04abcdefg", 0)

	stats, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Segments: 1, Failed: 1}, stats)
}
