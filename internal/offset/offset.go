// Package offset resolves alternate start anchors around the canonical daily
// base candle by counting non-DC candles, and degrades to a calendar fallback
// when the series window is truncated.
package offset

import (
	"encoding/json"
	"fmt"
	"time"

	"candleseq/internal/model"
	"candleseq/internal/sequence"
	"candleseq/internal/timeframe"
)

// Offsets bounds.
const (
	Min = -3
	Max = 3
)

// Status describes how an offset start was resolved.
type Status int

const (
	StatusAligned       Status = iota // start found by non-DC counting (or base itself)
	StatusBeforeData                  // walk ran off the start of the series
	StatusAfterData                   // walk ran off the end of the series
	StatusTargetMissing               // base or offset invalid
)

func (s Status) String() string {
	switch s {
	case StatusAligned:
		return "aligned"
	case StatusBeforeData:
		return "before-data"
	case StatusAfterData:
		return "after-data"
	case StatusTargetMissing:
		return "target-missing"
	default:
		return "unknown"
	}
}

// MarshalText encodes the status name.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (s *Status) UnmarshalText(b []byte) error {
	for st := StatusAligned; st <= StatusTargetMissing; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("offset: unknown status %q", b)
}

// Alignment is the resolved start and step allocations for one offset.
type Alignment struct {
	Offset int `json:"offset"`
	// IdealTS is baseTS + offset*step, ignoring DC skipping.
	IdealTS time.Time `json:"ideal_ts"`
	Status  Status    `json:"status"`
	// Fallback is set when the start came from the calendar fallback.
	Fallback bool `json:"fallback"`
	// MissingSteps leading targets are permanently unresolved.
	MissingSteps int `json:"missing_steps"`
	// Overrun is how many candles past the end of the series the start
	// would open. Set only when the start does not exist yet.
	Overrun     int                   `json:"overrun,omitempty"`
	Allocations []sequence.Allocation `json:"allocations"`

	start    int
	startTS  time.Time
	hasStart bool
}

// Start returns the resolved start index and whether one exists.
func (a Alignment) Start() (int, bool) { return a.start, a.hasStart }

// StartTS returns the resolved start timestamp and whether one exists.
func (a Alignment) StartTS() (time.Time, bool) { return a.startTS, a.hasStart }

// MarshalJSON adds the optional start fields.
func (a Alignment) MarshalJSON() ([]byte, error) {
	type plain Alignment
	out := struct {
		plain
		Start   *int       `json:"start,omitempty"`
		StartTS *time.Time `json:"start_ts,omitempty"`
	}{plain: plain(a)}
	if a.hasStart {
		idx, ts := a.start, a.startTS
		out.Start, out.StartTS = &idx, &ts
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores the optional start fields.
func (a *Alignment) UnmarshalJSON(b []byte) error {
	type plain Alignment
	in := struct {
		*plain
		Start   *int       `json:"start"`
		StartTS *time.Time `json:"start_ts"`
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(b, &in); err != nil {
		return err
	}
	if in.Start != nil && in.StartTS != nil {
		a.start, a.startTS, a.hasStart = *in.Start, *in.StartTS, true
	}
	return nil
}

func (a *Alignment) setStart(s model.Series, i int) {
	a.start, a.startTS, a.hasStart = i, s[i].TS, true
}

// Valid reports whether off is inside [Min, Max].
func Valid(off int) bool {
	return off >= Min && off <= Max
}

// Align resolves the start candle for off around base and allocates steps
// from it.
func Align(s model.Series, flags []bool, p timeframe.Profile, base int, steps []int, off int) Alignment {
	a := Alignment{Offset: off}
	if !s.InRange(base) || !Valid(off) {
		a.Status = StatusTargetMissing
		a.Allocations = unresolved(steps)
		return a
	}
	synthetic := s[base].TS.Add(time.Duration(off) * p.Step)
	a.IdealTS = synthetic

	idx, counted, status := walk(s, flags, base, off)
	a.Status = status
	if status == StatusAligned {
		a.setStart(s, idx)
		a.Allocations = sequence.Allocate(s, flags, idx, steps)
		return a
	}

	// The offset candle may exist in calendar time even though counting ran
	// off the window: re-base on the first candle at/after the ideal instant.
	found := s.SearchFrom(synthetic)
	if found >= len(s) {
		if status == StatusAfterData {
			a.Overrun = abs(off) - counted
		}
		a.Allocations = unresolved(steps)
		return a
	}
	a.Fallback = true
	a.setStart(s, found)
	shortfall := int(s[found].TS.Sub(synthetic) / p.Step)
	a.Allocations, a.MissingSteps = rebase(s, flags, found, steps, shortfall)
	return a
}

// rebase allocates steps as if the start sat shortfall candles before found.
// found stands in for step value 1+shortfall, so target v lands
// v-1-shortfall non-DC candles after it. The first shortfall targets, and
// any other target below 1+shortfall, stay unresolved; their count is
// returned.
func rebase(s model.Series, flags []bool, found int, steps []int, shortfall int) ([]sequence.Allocation, int) {
	head := 1 + shortfall
	lead := shortfall
	if lead > len(steps) {
		lead = len(steps)
	}
	for lead < len(steps) && steps[lead] < head {
		lead++
	}
	out := make([]sequence.Allocation, 0, len(steps))
	out = append(out, unresolved(steps[:lead])...)
	if lead == len(steps) {
		return out, lead
	}
	targets := append([]int{head}, steps[lead:]...)
	out = append(out, sequence.Allocate(s, flags, found, targets)[1:]...)
	return out, lead
}

// AlignAll aligns every offset in [Min, Max], in ascending order.
func AlignAll(s model.Series, flags []bool, p timeframe.Profile, base int, steps []int) []Alignment {
	out := make([]Alignment, 0, Max-Min+1)
	for off := Min; off <= Max; off++ {
		out = append(out, Align(s, flags, p, base, steps, off))
	}
	return out
}

// walk counts |off| non-DC candles from base in the sign direction of off.
// counted is how many were found before the series ran out.
func walk(s model.Series, flags []bool, base, off int) (idx, counted int, st Status) {
	if off == 0 {
		return base, 0, StatusAligned
	}
	dir, want := 1, abs(off)
	if off < 0 {
		dir = -1
	}
	idx = base
	for counted < want {
		idx += dir
		if idx < 0 {
			return -1, counted, StatusBeforeData
		}
		if idx >= len(s) {
			return -1, counted, StatusAfterData
		}
		if idx < len(flags) && flags[idx] {
			continue
		}
		counted++
	}
	return idx, counted, StatusAligned
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func unresolved(steps []int) []sequence.Allocation {
	out := make([]sequence.Allocation, len(steps))
	for i, st := range steps {
		out[i] = sequence.Unresolved(st)
	}
	return out
}
