package segment

import (
	"math"

	"github.com/rs/zerolog"

	"github.com/codebuildervaibhav/meeting-clipper/internal/types"
)

// PlannerParams are the duration constraints for sub-segmentation.
type PlannerParams struct {
	Target    float64 // ideal sub-segment duration
	Min       float64 // desired minimum; Min/2 is the hard floor
	Max       float64 // turns longer than this are split
	Tolerance float64 // word-boundary snap tolerance
}

// Planner converts merged turns into bounded, word-aligned segment
// plans.
type Planner struct {
	Params PlannerParams
	Log    zerolog.Logger
}

// Plan splits one merged turn into one or more sub-segments. Turns
// within Max become a single segment. Longer turns are split into
// ceil(duration/Target) equal shares rather than fixed-length pieces
// with a short remainder, so no degenerate trailing micro-segment is
// produced. Each ideal boundary is then snapped to word edges; a
// snapped interval that inverts falls back to the unsnapped ideal, and
// anything still invalid or shorter than Min/2 is discarded.
func (p *Planner) Plan(turn types.MergedTurn, words []types.TranscriptWord) []types.SegmentPlan {
	tol := p.Params.Tolerance
	if tol <= 0 {
		tol = DefaultSnapTolerance
	}

	duration := turn.Duration()
	if duration <= 0 {
		return nil
	}

	subCount := 1
	if duration > p.Params.Max {
		subCount = int(math.Ceil(duration / p.Params.Target))
	}
	share := duration / float64(subCount)

	var plans []types.SegmentPlan
	for i := 0; i < subCount; i++ {
		idealStart := turn.Start + float64(i)*share
		idealEnd := idealStart + share
		if i == subCount-1 {
			// Pin the last share to the true turn end so float error
			// cannot leak past the turn boundary.
			idealEnd = turn.End
		}

		start := SnapToWord(words, idealStart, true, tol)
		end := SnapToWord(words, idealEnd, false, tol)
		if start >= end {
			start, end = idealStart, idealEnd
		}
		if start >= end {
			p.Log.Warn().
				Float64("ideal_start", idealStart).
				Float64("ideal_end", idealEnd).
				Msg("discarding inverted sub-segment")
			continue
		}
		if end-start < p.Params.Min/2 {
			p.Log.Debug().
				Float64("start", start).
				Float64("end", end).
				Msg("discarding sub-segment below hard floor")
			continue
		}

		plans = append(plans, types.SegmentPlan{
			TurnStart: turn.Start,
			TurnEnd:   turn.End,
			SegStart:  start,
			SegEnd:    end,
			SubIndex:  i,
		})
	}
	return plans
}
