package segment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

func turn(speaker string, start, end float64) types.DiarizationTurn {
	return types.DiarizationTurn{SpeakerID: speaker, Start: start, End: end}
}

func TestMergeTurnsBridgesShortGaps(t *testing.T) {
	turns := []types.DiarizationTurn{
		turn("SPEAKER_00", 0, 4),
		turn("SPEAKER_00", 5, 9),    // 1s gap, still short, absorbed
		turn("SPEAKER_00", 10, 14),  // 1s gap, absorbed, now 14s total
		turn("SPEAKER_00", 40, 55),  // far away, new span
	}

	merged := MergeTurns(turns, 10, 2)
	require.Len(t, merged, 2)
	assert.Equal(t, types.MergedTurn{Start: 0, End: 14}, merged[0])
	assert.Equal(t, types.MergedTurn{Start: 40, End: 55}, merged[1])
}

func TestMergeTurnsDropsShortStragglers(t *testing.T) {
	// A single 8s turn with nothing close enough to merge never reaches
	// the 10s minimum and is dropped entirely.
	turns := []types.DiarizationTurn{turn("SPEAKER_00", 0, 8)}
	assert.Empty(t, MergeTurns(turns, 10, 2))

	turns = []types.DiarizationTurn{
		turn("SPEAKER_00", 0, 8),
		turn("SPEAKER_00", 20, 45), // gap of 12s, out of bridge range
	}
	merged := MergeTurns(turns, 10, 2)
	require.Len(t, merged, 1)
	assert.Equal(t, types.MergedTurn{Start: 20, End: 45}, merged[0])
}

func TestMergeTurnsStopsBridgingOnceMinReached(t *testing.T) {
	// Once the running span satisfies the minimum, a bridgeable gap no
	// longer glues the next turn on.
	turns := []types.DiarizationTurn{
		turn("SPEAKER_00", 0, 12),
		turn("SPEAKER_00", 13, 25),
	}
	merged := MergeTurns(turns, 10, 2)
	require.Len(t, merged, 2)
	assert.Equal(t, types.MergedTurn{Start: 0, End: 12}, merged[0])
	assert.Equal(t, types.MergedTurn{Start: 13, End: 25}, merged[1])
}

func TestMergeTurnsOutputSortedAndDisjoint(t *testing.T) {
	turns := []types.DiarizationTurn{
		turn("SPEAKER_00", 30, 33),
		turn("SPEAKER_00", 0, 3),
		turn("SPEAKER_00", 3.5, 7),
		turn("SPEAKER_00", 8, 13),
		turn("SPEAKER_00", 34, 36),
		turn("SPEAKER_00", 37, 48),
	}

	merged := MergeTurns(turns, 10, 2)
	require.NotEmpty(t, merged)
	for i, m := range merged {
		assert.GreaterOrEqual(t, m.Duration(), 10.0)
		if i > 0 {
			assert.GreaterOrEqual(t, m.Start, merged[i-1].End, "spans must not overlap")
		}
	}
}

func TestMergeTurnsIdempotent(t *testing.T) {
	turns := []types.DiarizationTurn{
		turn("SPEAKER_00", 0, 4),
		turn("SPEAKER_00", 5, 9),
		turn("SPEAKER_00", 10, 14),
		turn("SPEAKER_00", 40, 55),
	}
	once := MergeTurns(turns, 10, 2)

	asTurns := make([]types.DiarizationTurn, len(once))
	for i, m := range once {
		asTurns[i] = turn("SPEAKER_00", m.Start, m.End)
	}
	twice := MergeTurns(asTurns, 10, 2)
	assert.Equal(t, once, twice)
}

func TestMergeTurnsEmpty(t *testing.T) {
	assert.Nil(t, MergeTurns(nil, 10, 2))
}

func TestTargetSpeakerIsEarliest(t *testing.T) {
	turns := []types.DiarizationTurn{
		turn("SPEAKER_01", 12.5, 30),
		turn("SPEAKER_00", 0.8, 10),
		turn("SPEAKER_01", 31, 40),
	}
	assert.Equal(t, "SPEAKER_00", TargetSpeaker(turns))
	assert.Equal(t, "", TargetSpeaker(nil))
}

func TestFilterSpeaker(t *testing.T) {
	turns := []types.DiarizationTurn{
		turn("SPEAKER_00", 0, 5),
		turn("SPEAKER_01", 6, 9),
		turn("SPEAKER_00", 10, 20),
	}
	got := FilterSpeaker(turns, "SPEAKER_00")
	require.Len(t, got, 2)
	assert.Equal(t, 10.0, got[1].Start)
	assert.Empty(t, FilterSpeaker(turns, "SPEAKER_05"))
}
