// Package sequence maps an abstract step-count list onto concrete candle
// positions, counting only non-DC candles.
package sequence

import (
	"encoding/json"
	"time"
)

// Allocation is the outcome of placing one step-count target on the series.
// The zero value is unresolved; a resolved allocation can only be built with
// Resolved, so an unresolved target never reads as index 0.
type Allocation struct {
	step     int
	resolved bool
	index    int
	ts       time.Time
	usedDC   bool
}

// Unresolved returns an allocation for a target that cannot be placed with
// the available data.
func Unresolved(step int) Allocation {
	return Allocation{step: step}
}

// Resolved returns an allocation placed on candle index.
func Resolved(step, index int, ts time.Time, usedDC bool) Allocation {
	return Allocation{step: step, resolved: true, index: index, ts: ts, usedDC: usedDC}
}

// Step returns the step-count target this allocation answers.
func (a Allocation) Step() int { return a.step }

// IsResolved reports whether the target landed on a candle.
func (a Allocation) IsResolved() bool { return a.resolved }

// Index returns the candle index and whether it is resolved.
func (a Allocation) Index() (int, bool) { return a.index, a.resolved }

// TS returns the candle timestamp and whether it is resolved.
func (a Allocation) TS() (time.Time, bool) { return a.ts, a.resolved }

// UsedDC reports whether the allocation landed on a carried DC candle.
func (a Allocation) UsedDC() bool { return a.resolved && a.usedDC }

// withStep returns a copy answering a different target.
func (a Allocation) withStep(step int) Allocation {
	a.step = step
	return a
}

type allocationJSON struct {
	Step   int        `json:"step"`
	Index  *int       `json:"index,omitempty"`
	TS     *time.Time `json:"ts,omitempty"`
	UsedDC bool       `json:"used_dc"`
}

// MarshalJSON omits index and ts for unresolved allocations.
func (a Allocation) MarshalJSON() ([]byte, error) {
	out := allocationJSON{Step: a.step, UsedDC: a.UsedDC()}
	if a.resolved {
		idx, ts := a.index, a.ts
		out.Index, out.TS = &idx, &ts
	}
	return json.Marshal(out)
}

// UnmarshalJSON is the inverse of MarshalJSON.
func (a *Allocation) UnmarshalJSON(b []byte) error {
	var in allocationJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.Index == nil || in.TS == nil {
		*a = Unresolved(in.Step)
		return nil
	}
	*a = Resolved(in.Step, *in.Index, *in.TS, in.UsedDC)
	return nil
}
