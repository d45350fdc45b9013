package sequence

import "candleseq/internal/model"

// Allocate places each target of steps on s, starting at start.
//
// The first target lands on start. Each following target walks forward from
// the previous walk position by (target - previous target) non-DC candles.
// A DC candle met while looking for the final counted candle is carried and
// wins over the completing non-DC candle (UsedDC). Targets that do not
// increase reuse the previous allocation. Running off the end leaves the
// target unresolved and the walk stays exhausted for later targets.
func Allocate(s model.Series, flags []bool, start int, steps []int) []Allocation {
	out := make([]Allocation, len(steps))
	if len(steps) == 0 {
		return out
	}
	if !s.InRange(start) {
		for k, st := range steps {
			out[k] = Unresolved(st)
		}
		return out
	}

	out[0] = Resolved(steps[0], start, s[start].TS, false)
	cursor := start
	prevTarget := steps[0]

	for k := 1; k < len(steps); k++ {
		need := steps[k] - prevTarget
		if need <= 0 {
			out[k] = out[k-1].withStep(steps[k])
			continue
		}
		prevTarget = steps[k]

		idx, carried, ok := walk(s, flags, cursor, need)
		cursor = idx
		if !ok {
			out[k] = Unresolved(steps[k])
			continue
		}
		if carried >= 0 {
			out[k] = Resolved(steps[k], carried, s[carried].TS, true)
		} else {
			out[k] = Resolved(steps[k], idx, s[idx].TS, false)
		}
	}
	return out
}

// walk advances from cursor until need non-DC candles have been counted.
// It returns the index of the completing candle (or len(s) when exhausted)
// and the DC candle carried into the final slot, -1 if none.
func walk(s model.Series, flags []bool, cursor, need int) (idx, carried int, ok bool) {
	carried = -1
	counted := 0
	idx = cursor
	for counted < need {
		idx++
		if idx >= len(s) {
			return len(s), -1, false
		}
		if isDC(flags, idx) {
			if counted == need-1 {
				carried = idx
			}
			continue
		}
		counted++
	}
	return idx, carried, true
}

func isDC(flags []bool, i int) bool {
	return i >= 0 && i < len(flags) && flags[i]
}
