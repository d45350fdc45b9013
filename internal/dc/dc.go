// Package dc classifies distorted candles: bars fully contained in the
// previous bar's high/low range whose close stays inside the previous body.
// DC candles carry little information and are skipped when counting steps.
package dc

import (
	"candleseq/internal/model"
	"candleseq/internal/timeframe"
)

// Classify returns one flag per candle. flags[0] is always false and no two
// consecutive flags are ever true.
func Classify(s model.Series, p timeframe.Profile) []bool {
	flags := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		if flags[i-1] {
			continue
		}
		if !contained(&s[i-1], &s[i]) {
			continue
		}
		if p.IsBoundary(s, i) {
			continue
		}
		flags[i] = true
	}
	return flags
}

// contained is the raw DC shape test of cur against prev.
func contained(prev, cur *model.Candle) bool {
	if cur.High > prev.High || cur.Low < prev.Low {
		return false
	}
	lo, hi := prev.BodyRange()
	return cur.Close >= lo && cur.Close <= hi
}

// Raw returns the shape test alone, without boundary exclusions or the
// no-consecutive rule. Useful for diagnostics.
func Raw(s model.Series) []bool {
	flags := make([]bool, len(s))
	for i := 1; i < len(s); i++ {
		flags[i] = contained(&s[i-1], &s[i])
	}
	return flags
}

// Count returns the number of DC flags set.
func Count(flags []bool) int {
	n := 0
	for _, f := range flags {
		if f {
			n++
		}
	}
	return n
}
