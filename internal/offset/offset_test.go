package offset

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"candleseq/internal/model"
	"candleseq/internal/timeframe"
)

var t0 = time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

func profile() timeframe.Profile {
	return timeframe.Profile{Name: "H1", Step: time.Hour, Anchor: timeframe.Clock{Hour: 22}}
}

func hourly(n int) model.Series {
	s := make(model.Series, n)
	for i := range s {
		s[i] = model.Candle{TS: t0.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0, Close: 1.5}
	}
	return s
}

func TestAlign_ZeroIsBase(t *testing.T) {
	s := hourly(20)
	flags := make([]bool, len(s))
	flags[6] = true

	a := Align(s, flags, profile(), 6, []int{1, 2}, 0)
	if a.Status != StatusAligned {
		t.Fatalf("status = %v, want aligned", a.Status)
	}
	if idx, ok := a.Start(); !ok || idx != 6 {
		t.Errorf("start = %d,%v, want 6", idx, ok)
	}
}

func TestAlign_NoDCIsBasePlusOffset(t *testing.T) {
	s := hourly(20)
	flags := make([]bool, len(s))
	for off := Min; off <= Max; off++ {
		a := Align(s, flags, profile(), 10, []int{1}, off)
		idx, ok := a.Start()
		if a.Status != StatusAligned || !ok || idx != 10+off {
			t.Errorf("offset %d: start = %d (%v), want %d", off, idx, a.Status, 10+off)
		}
		if a.Fallback {
			t.Errorf("offset %d: unexpected fallback", off)
		}
	}
}

func TestAlign_SkipsDCBothDirections(t *testing.T) {
	s := hourly(20)
	flags := make([]bool, len(s))
	flags[9] = true
	flags[11] = true

	back := Align(s, flags, profile(), 10, nil, -2)
	if idx, _ := back.Start(); idx != 7 {
		t.Errorf("offset -2: start = %d, want 7", idx)
	}
	fwd := Align(s, flags, profile(), 10, nil, 1)
	if idx, _ := fwd.Start(); idx != 12 {
		t.Errorf("offset 1: start = %d, want 12", idx)
	}
}

func TestAlign_BeforeDataFallback(t *testing.T) {
	s := hourly(20)
	flags := make([]bool, len(s))

	// base 1, offset -3: ideal instant is 2h before the first candle.
	a := Align(s, flags, profile(), 1, []int{1, 2, 3, 5}, -3)
	if a.Status != StatusBeforeData {
		t.Fatalf("status = %v, want before-data", a.Status)
	}
	if !a.Fallback || a.MissingSteps != 2 {
		t.Fatalf("fallback = %v missing = %d, want true, 2", a.Fallback, a.MissingSteps)
	}
	if idx, ok := a.Start(); !ok || idx != 0 {
		t.Errorf("start = %d, want 0", idx)
	}
	if a.Allocations[0].IsResolved() || a.Allocations[1].IsResolved() {
		t.Error("leading missing steps must stay unresolved")
	}
	// Remaining targets re-based on candle 0: 3 -> 0, 5 -> 2.
	if idx, ok := a.Allocations[2].Index(); !ok || idx != 0 {
		t.Errorf("step 3 = %d,%v, want 0", idx, ok)
	}
	if idx, ok := a.Allocations[3].Index(); !ok || idx != 2 {
		t.Errorf("step 5 = %d,%v, want 2", idx, ok)
	}
	if !a.IdealTS.Equal(t0.Add(-2 * time.Hour)) {
		t.Errorf("ideal ts = %v", a.IdealTS)
	}
}

func TestAlign_TruncatedWindowMatchesFullSeries(t *testing.T) {
	full := hourly(40)
	window := full[4:]
	steps := []int{1, 5, 9, 17, 25}

	want := Align(full, make([]bool, len(full)), profile(), 5, steps, -3)
	got := Align(window, make([]bool, len(window)), profile(), 1, steps, -3)

	if want.Status != StatusAligned || want.Fallback {
		t.Fatalf("full series: status = %v fallback = %v", want.Status, want.Fallback)
	}
	if got.Status != StatusBeforeData || !got.Fallback {
		t.Fatalf("window: status = %v fallback = %v", got.Status, got.Fallback)
	}
	// Two candles are missing before the window, so the first two targets
	// are given up; the rest must agree with the full series.
	if got.MissingSteps != 2 || got.Allocations[0].IsResolved() || got.Allocations[1].IsResolved() {
		t.Fatalf("missing = %d, leading targets must stay unresolved", got.MissingSteps)
	}
	for k := 2; k < len(steps); k++ {
		wantTS, _ := want.Allocations[k].TS()
		gotTS, ok := got.Allocations[k].TS()
		if !ok || !gotTS.Equal(wantTS) {
			t.Errorf("step %d: window = %v (%v), full = %v", steps[k], gotTS, ok, wantTS)
		}
	}
}

func TestAlign_AfterDataNoCandle(t *testing.T) {
	s := hourly(10)
	flags := make([]bool, len(s))

	a := Align(s, flags, profile(), 8, []int{1, 2}, 3)
	if a.Status != StatusAfterData {
		t.Fatalf("status = %v, want after-data", a.Status)
	}
	if a.Fallback {
		t.Error("no candle at/after the ideal instant, fallback must not apply")
	}
	if _, ok := a.Start(); ok {
		t.Error("start must be absent")
	}
	// 9 is the only candle after the base; the start would open 2 past the end.
	if a.Overrun != 2 {
		t.Errorf("overrun = %d, want 2", a.Overrun)
	}
	for i, al := range a.Allocations {
		if al.IsResolved() {
			t.Errorf("allocation %d should be unresolved", i)
		}
	}
}

func TestAlign_AfterDataFallbackOnCalendar(t *testing.T) {
	s := hourly(10)
	flags := make([]bool, len(s))
	flags[8] = true

	// Counting 2 non-DC from 7 runs off the end (8 is DC, 9 counts once),
	// but the calendar instant 7+2h exists.
	a := Align(s, flags, profile(), 7, []int{1}, 2)
	if a.Status != StatusAfterData || !a.Fallback {
		t.Fatalf("status = %v fallback = %v", a.Status, a.Fallback)
	}
	if idx, _ := a.Start(); idx != 9 || a.MissingSteps != 0 {
		t.Errorf("start = %d missing = %d, want 9, 0", idx, a.MissingSteps)
	}
}

func TestAlign_TargetMissing(t *testing.T) {
	s := hourly(5)
	flags := make([]bool, len(s))
	if a := Align(s, flags, profile(), 9, []int{1}, 0); a.Status != StatusTargetMissing {
		t.Errorf("bad base: status = %v", a.Status)
	}
	if a := Align(s, flags, profile(), 2, []int{1}, 4); a.Status != StatusTargetMissing {
		t.Errorf("bad offset: status = %v", a.Status)
	}
}

func TestAlignAll_Order(t *testing.T) {
	s := hourly(20)
	all := AlignAll(s, make([]bool, len(s)), profile(), 10, []int{1})
	if len(all) != 7 || all[0].Offset != -3 || all[6].Offset != 3 {
		t.Fatalf("unexpected offsets: %d alignments", len(all))
	}
}

func TestAlignment_JSON(t *testing.T) {
	s := hourly(20)
	a := Align(s, make([]bool, len(s)), profile(), 10, []int{1}, 1)
	b, err := json.Marshal(a)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(b), `"status":"aligned"`) || !strings.Contains(string(b), `"start":11`) {
		t.Errorf("unexpected json %s", b)
	}
}
