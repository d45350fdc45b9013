// Package predict extrapolates candle timestamps beyond the available data.
// Predictions are advisory: they are never confirmed candles and carry their
// own type so consumers cannot mix the two up.
package predict

import (
	"time"

	"candleseq/internal/model"
	"candleseq/internal/offset"
	"candleseq/internal/sequence"
	"candleseq/internal/timeframe"
)

// Prediction is an extrapolated candle open time.
type Prediction struct {
	Step int       `json:"step"`
	TS   time.Time `json:"ts"`
	// Predicted is always true; it is serialized so exports stay explicit.
	Predicted bool `json:"predicted"`
}

// Step moves n candles from ref (backwards when n < 0), jumping over the
// weekly closure.
func Step(p timeframe.Profile, ref time.Time, n int) time.Time {
	t := ref
	for ; n > 0; n-- {
		t = forward(p, t)
	}
	for ; n < 0; n++ {
		t = backward(p, t)
	}
	return t
}

func forward(p timeframe.Profile, t time.Time) time.Time {
	next := t.Add(p.Step)
	c := p.NextClose(t)
	if !next.Before(c) {
		return p.ReopenAfter(c)
	}
	return next
}

func backward(p timeframe.Profile, t time.Time) time.Time {
	prev := t.Add(-p.Step)
	r := p.LastReopen(t)
	if prev.Before(r) {
		return p.CloseBefore(r).Add(-p.Step)
	}
	return prev
}

// Extend predicts timestamps for the trailing unresolved allocations of an
// alignment. Known non-DC candles after the last resolved allocation are
// counted first; the rest is extrapolated from the last candle of s. Leading
// missing steps are never predicted. When the start itself has not opened
// yet every target is predicted from the start's overrun.
func Extend(p timeframe.Profile, s model.Series, flags []bool, a *offset.Alignment) []Prediction {
	if len(s) == 0 {
		return nil
	}
	last, ok := lastResolved(a.Allocations)
	if !ok {
		return beyondEnd(p, s[len(s)-1].TS, a)
	}
	lastIdx, _ := last.Index()
	known := 0
	for i := lastIdx + 1; i < len(s); i++ {
		if i < len(flags) && flags[i] {
			continue
		}
		known++
	}
	if last.UsedDC() && known > 0 {
		// the completing candle was already consumed by the carried step
		known--
	}
	endTS := s[len(s)-1].TS

	var out []Prediction
	for k := a.MissingSteps; k < len(a.Allocations); k++ {
		al := a.Allocations[k]
		if al.IsResolved() || al.Step() <= last.Step() {
			continue
		}
		remaining := al.Step() - last.Step() - known
		if remaining <= 0 {
			continue
		}
		out = append(out, Prediction{
			Step:      al.Step(),
			TS:        Step(p, endTS, remaining),
			Predicted: true,
		})
	}
	return out
}

func beyondEnd(p timeframe.Profile, endTS time.Time, a *offset.Alignment) []Prediction {
	if a.Status != offset.StatusAfterData || a.Overrun <= 0 {
		return nil
	}
	out := make([]Prediction, 0, len(a.Allocations))
	for _, al := range a.Allocations {
		out = append(out, Prediction{
			Step:      al.Step(),
			TS:        Step(p, endTS, a.Overrun+al.Step()-1),
			Predicted: true,
		})
	}
	return out
}

func lastResolved(allocs []sequence.Allocation) (sequence.Allocation, bool) {
	for k := len(allocs) - 1; k >= 0; k-- {
		if allocs[k].IsResolved() {
			return allocs[k], true
		}
	}
	return sequence.Allocation{}, false
}
