package segment

import (
	"math"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// DefaultSnapTolerance is how far a cut point may move to reach a word
// boundary.
const DefaultSnapTolerance = 0.5

// SnapToWord adjusts target to the nearest word boundary within
// tolerance. preferStart selects word starts (for segment openings)
// versus word ends (for segment closings). With no word in range the
// target is returned unchanged — snapping degrades gracefully, it never
// fails.
func SnapToWord(words []types.TranscriptWord, target float64, preferStart bool, tolerance float64) float64 {
	best := target
	bestDist := math.Inf(1)
	for _, w := range words {
		candidate := w.End
		if preferStart {
			candidate = w.Start
		}
		dist := math.Abs(candidate - target)
		if dist <= tolerance && dist < bestDist {
			best = candidate
			bestDist = dist
		}
	}
	return best
}
