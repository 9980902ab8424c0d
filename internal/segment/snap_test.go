package segment

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

func word(start, end float64) types.TranscriptWord {
	return types.TranscriptWord{Text: "w", Start: start, End: end}
}

func TestSnapToWordPicksNearestBoundary(t *testing.T) {
	words := []types.TranscriptWord{
		word(10.0, 10.4),
		word(10.6, 11.1),
		word(11.3, 11.9),
	}

	// 10.7 is 0.1 from the start of the second word.
	assert.InDelta(t, 10.6, SnapToWord(words, 10.7, true, 0.5), 1e-9)
	// For closings, word ends are the candidates: 11.0 sits 0.1 from 11.1.
	assert.InDelta(t, 11.1, SnapToWord(words, 11.0, false, 0.5), 1e-9)
}

func TestSnapToWordIdentityOutsideTolerance(t *testing.T) {
	words := []types.TranscriptWord{word(10.0, 10.4)}
	assert.Equal(t, 50.0, SnapToWord(words, 50.0, true, 0.5))
}

func TestSnapToWordEmptyWords(t *testing.T) {
	assert.Equal(t, 12.34, SnapToWord(nil, 12.34, true, 0.5))
	assert.Equal(t, 12.34, SnapToWord(nil, 12.34, false, 0.5))
}

func TestSnapToWordNeverMovesPastTolerance(t *testing.T) {
	words := []types.TranscriptWord{
		word(0.1, 0.9), word(1.2, 1.8), word(2.0, 2.6), word(3.3, 4.0),
	}
	for target := 0.0; target < 5.0; target += 0.17 {
		for _, preferStart := range []bool{true, false} {
			got := SnapToWord(words, target, preferStart, 0.5)
			assert.LessOrEqual(t, math.Abs(got-target), 0.5,
				"snap moved target=%f by more than the tolerance", target)
		}
	}
}
