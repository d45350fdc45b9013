// Package timeframe describes the per-timeframe parameters injected into the
// sequence engine: step duration, daily anchor time-of-day, the DC boundary
// exclusions and the weekly market closure.
package timeframe

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"candleseq/internal/model"
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Clock{}, fmt.Errorf("clock %q: expected HH:MM", s)
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return Clock{}, fmt.Errorf("clock %q: invalid hour", s)
	}
	minute, err := strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return Clock{}, fmt.Errorf("clock %q: invalid minute", s)
	}
	return Clock{Hour: hour, Minute: minute}, nil
}

// Of returns the clock of t (already converted to the wanted location).
func Of(t time.Time) Clock {
	return Clock{Hour: t.Hour(), Minute: t.Minute()}
}

// On returns the instant at this clock on t's calendar date in loc.
func (c Clock) On(t time.Time, loc *time.Location) time.Time {
	d := t.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), c.Hour, c.Minute, 0, 0, loc)
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// WeekClose is the last trading instant of the week.
type WeekClose struct {
	Weekday time.Weekday
	At      Clock
}

// Reopen is the first trading instant after the weekly close,
// AfterDays calendar days after the close date.
type Reopen struct {
	AfterDays int
	At        Clock
}

// Profile holds everything that differs between timeframes.
type Profile struct {
	Name     string
	Step     time.Duration
	Location *time.Location

	// Anchor is the daily session-open candle used as the canonical base.
	Anchor Clock
	// ExcludeClocks are times of day that are never classified as DC.
	// The anchor is always excluded.
	ExcludeClocks []Clock
	// WeekCloseBoundary forces the week-closing candle to non-DC.
	WeekCloseBoundary bool

	Close  WeekClose
	Reopen Reopen
}

// Loc returns the profile location, UTC when unset.
func (p Profile) Loc() *time.Location {
	if p.Location == nil {
		return time.UTC
	}
	return p.Location
}

// Validate checks that the profile can drive the engine.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("timeframe: profile name is required")
	}
	if p.Step <= 0 {
		return fmt.Errorf("timeframe %s: step must be positive", p.Name)
	}
	if p.Reopen.AfterDays < 0 || p.Reopen.AfterDays > 6 {
		return fmt.Errorf("timeframe %s: reopen after_days must be within 0..6", p.Name)
	}
	return nil
}

// IsAnchor reports whether ts falls on the profile's daily anchor.
func (p Profile) IsAnchor(ts time.Time) bool {
	return Of(ts.In(p.Loc())) == p.Anchor
}

// IsBoundary is the DC boundary-exclusion predicate: candle i of s must be
// treated as non-DC regardless of its shape.
func (p Profile) IsBoundary(s model.Series, i int) bool {
	if !s.InRange(i) {
		return false
	}
	clk := Of(s[i].TS.In(p.Loc()))
	if clk == p.Anchor {
		return true
	}
	for _, c := range p.ExcludeClocks {
		if clk == c {
			return true
		}
	}
	if p.WeekCloseBoundary {
		if i == len(s)-1 {
			return true
		}
		if s[i+1].TS.Sub(s[i].TS) > p.Step {
			return true
		}
	}
	return false
}

// NextClose returns the first weekly close strictly after t.
func (p Profile) NextClose(t time.Time) time.Time {
	loc := p.Loc()
	d := t.In(loc)
	ahead := (int(p.Close.Weekday) - int(d.Weekday()) + 7) % 7
	c := p.Close.At.On(d.AddDate(0, 0, ahead), loc)
	if !c.After(t) {
		c = c.AddDate(0, 0, 7)
	}
	return c
}

// ReopenAfter returns the reopening instant that follows the given close.
func (p Profile) ReopenAfter(close time.Time) time.Time {
	return p.Reopen.At.On(close.In(p.Loc()).AddDate(0, 0, p.Reopen.AfterDays), p.Loc())
}

// CloseBefore returns the close that precedes the given reopening instant.
func (p Profile) CloseBefore(reopen time.Time) time.Time {
	return p.Close.At.On(reopen.In(p.Loc()).AddDate(0, 0, -p.Reopen.AfterDays), p.Loc())
}

// LastReopen returns the latest reopening instant at or before t.
func (p Profile) LastReopen(t time.Time) time.Time {
	loc := p.Loc()
	d := t.In(loc)
	wd := (int(p.Close.Weekday) + p.Reopen.AfterDays) % 7
	back := (int(d.Weekday()) - wd + 7) % 7
	r := p.Reopen.At.On(d.AddDate(0, 0, -back), loc)
	if r.After(t) {
		r = r.AddDate(0, 0, -7)
	}
	return r
}

// InClosure reports whether t falls inside the weekly closure window.
func (p Profile) InClosure(t time.Time) bool {
	r := p.LastReopen(t)
	c := p.NextClose(r)
	return !t.Before(c)
}
