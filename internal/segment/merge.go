// Package segment implements the segmentation engine: merging
// diarization turns, snapping cut points to word boundaries, planning
// bounded sub-segments and encoding the resulting clips.
package segment

import (
	"sort"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// MergeTurns collapses short same-speaker turns into continuous spans.
// While the running span is still below minDuration, the next turn is
// absorbed whenever the gap to it is within maxGap — bridging forward
// across silence, not just joining contiguous turns. Spans that never
// reach minDuration are dropped; that is a deliberate lossy filter, not
// an error.
//
// Output spans are sorted, non-overlapping, and each at least
// minDuration long. Merging an already-merged set with the same
// parameters returns it unchanged.
func MergeTurns(turns []types.DiarizationTurn, minDuration, maxGap float64) []types.MergedTurn {
	if len(turns) == 0 {
		return nil
	}

	sorted := make([]types.DiarizationTurn, len(turns))
	copy(sorted, turns)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	var out []types.MergedTurn
	cur := types.MergedTurn{Start: sorted[0].Start, End: sorted[0].End}

	flush := func() {
		if cur.Duration() >= minDuration {
			out = append(out, cur)
		}
	}

	for _, next := range sorted[1:] {
		gap := next.Start - cur.End
		if cur.Duration() < minDuration && gap >= 0 && gap <= maxGap {
			if next.End > cur.End {
				cur.End = next.End
			}
			continue
		}
		flush()
		cur = types.MergedTurn{Start: next.Start, End: next.End}
	}
	flush()

	return out
}

// TargetSpeaker returns the diarization label that started speaking
// first. In a press-conference recording the chair opens the meeting,
// so the earliest turn identifies the chair's diarization label.
func TargetSpeaker(turns []types.DiarizationTurn) string {
	speaker := ""
	earliest := 0.0
	for _, t := range turns {
		if speaker == "" || t.Start < earliest {
			speaker = t.SpeakerID
			earliest = t.Start
		}
	}
	return speaker
}

// FilterSpeaker returns only the turns attributed to the given label.
func FilterSpeaker(turns []types.DiarizationTurn, speaker string) []types.DiarizationTurn {
	var out []types.DiarizationTurn
	for _, t := range turns {
		if t.SpeakerID == speaker {
			out = append(out, t)
		}
	}
	return out
}
