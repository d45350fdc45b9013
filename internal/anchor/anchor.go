// Package anchor locates the canonical daily base candle: the bar opening at
// the profile's anchor time of day.
package anchor

import (
	"time"

	"candleseq/internal/model"
	"candleseq/internal/timeframe"
)

// Find returns the index of the anchor candle for the session that opens on
// day (calendar date in the profile location). When the exact anchor bar is
// missing, the first candle at or after the anchor instant within one step
// is accepted. ok is false when no such candle exists.
func Find(s model.Series, p timeframe.Profile, day time.Time) (int, bool) {
	at := p.Anchor.On(day, p.Loc())
	i := s.SearchFrom(at)
	if i >= len(s) {
		return -1, false
	}
	if s[i].TS.Sub(at) >= p.Step {
		return -1, false
	}
	return i, true
}

// Days lists the indices of every exact anchor candle in s, oldest first.
func Days(s model.Series, p timeframe.Profile) []int {
	var out []int
	for i := range s {
		if p.IsAnchor(s[i].TS) {
			out = append(out, i)
		}
	}
	return out
}

// Latest returns the most recent exact anchor candle.
func Latest(s model.Series, p timeframe.Profile) (int, bool) {
	for i := len(s) - 1; i >= 0; i-- {
		if p.IsAnchor(s[i].TS) {
			return i, true
		}
	}
	return -1, false
}
