package model

import (
	"fmt"
	"sort"
	"time"
)

// Candle is one OHLC bar of a fixed-interval series.
// TS is the bar's open time (wall clock, minute-aligned).
type Candle struct {
	TS    time.Time `json:"ts"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Body returns close - open.
func (c *Candle) Body() float64 {
	return c.Close - c.Open
}

// BodyRange returns the lower and upper bound of the candle body.
func (c *Candle) BodyRange() (lo, hi float64) {
	if c.Open <= c.Close {
		return c.Open, c.Close
	}
	return c.Close, c.Open
}

// Series is an ascending, duplicate-free sequence of candles.
// It is treated as read-only once handed to the engine.
type Series []Candle

// Len returns the number of candles.
func (s Series) Len() int { return len(s) }

// InRange reports whether i is a valid index.
func (s Series) InRange(i int) bool { return i >= 0 && i < len(s) }

// Validate reports the first ordering violation, or nil.
func (s Series) Validate() error {
	for i := 1; i < len(s); i++ {
		if !s[i].TS.After(s[i-1].TS) {
			return fmt.Errorf("series: candle %d (%s) not after candle %d (%s)",
				i, s[i].TS.Format(time.RFC3339), i-1, s[i-1].TS.Format(time.RFC3339))
		}
	}
	return nil
}

// SearchFrom returns the index of the first candle at or after ts,
// or len(s) if there is none.
func (s Series) SearchFrom(ts time.Time) int {
	return sort.Search(len(s), func(i int) bool {
		return !s[i].TS.Before(ts)
	})
}
