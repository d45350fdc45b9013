package dc

import (
	"testing"
	"time"

	"candleseq/internal/model"
	"candleseq/internal/timeframe"
)

var t0 = time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC) // Tuesday

// plain has no anchor or week-close exclusions that touch the test window.
func plain() timeframe.Profile {
	return timeframe.Profile{
		Name:   "T15",
		Step:   15 * time.Minute,
		Anchor: timeframe.Clock{Hour: 22},
	}
}

func bar(i int, o, h, l, c float64) model.Candle {
	return model.Candle{TS: t0.Add(time.Duration(i) * 15 * time.Minute), Open: o, High: h, Low: l, Close: c}
}

func TestClassify_FirstNeverDC(t *testing.T) {
	s := model.Series{bar(0, 10, 11, 9, 10.5)}
	if flags := Classify(s, plain()); flags[0] {
		t.Fatal("first candle must never be DC")
	}
}

func TestClassify_InsideBar(t *testing.T) {
	s := model.Series{
		bar(0, 10, 12, 8, 11),
		bar(1, 10.5, 11.5, 9, 10.8), // inside, close in [10,11]
		bar(2, 10.8, 13, 10, 12.5),  // breaks out
	}
	flags := Classify(s, plain())
	want := []bool{false, true, false}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flag[%d] = %v, want %v", i, flags[i], want[i])
		}
	}
}

func TestClassify_CloseOutsidePreviousBody(t *testing.T) {
	s := model.Series{
		bar(0, 10, 12, 8, 11),
		bar(1, 10.5, 11.5, 9, 9.5), // inside range but close below body
	}
	if flags := Classify(s, plain()); flags[1] {
		t.Error("close outside previous body must not be DC")
	}
}

func TestClassify_NoConsecutiveDC(t *testing.T) {
	// Raw shape: [false, true, true, false]
	s := model.Series{
		bar(0, 10, 12, 8, 11),
		bar(1, 10.2, 11.8, 8.5, 10.8),
		bar(2, 10.4, 11.5, 9, 10.6),
		bar(3, 10.6, 14, 10, 13),
	}
	raw := Raw(s)
	if !raw[1] || !raw[2] {
		t.Fatalf("fixture broken: raw = %v", raw)
	}

	flags := Classify(s, plain())
	want := []bool{false, true, false, false}
	for i := range want {
		if flags[i] != want[i] {
			t.Errorf("flag[%d] = %v, want %v", i, flags[i], want[i])
		}
	}
}

func TestClassify_NeverTwoConsecutive(t *testing.T) {
	// A shrinking wedge: every bar is inside the previous one.
	s := make(model.Series, 40)
	for i := range s {
		w := 20 - float64(i)*0.4
		s[i] = bar(i, 100, 100+w, 100-w, 100)
	}
	flags := Classify(s, plain())
	for i := 1; i < len(flags); i++ {
		if flags[i] && flags[i-1] {
			t.Fatalf("consecutive DC at %d,%d", i-1, i)
		}
	}
	if Count(flags) != 20 {
		t.Errorf("expected alternating DC (20), got %d", Count(flags))
	}
}

func TestClassify_AnchorExcluded(t *testing.T) {
	p := plain()
	p.Anchor = timeframe.Clock{Hour: 10, Minute: 15}
	s := model.Series{
		bar(0, 10, 12, 8, 11),
		bar(1, 10.5, 11.5, 9, 10.8), // 10:15 is the anchor
	}
	if flags := Classify(s, p); flags[1] {
		t.Error("anchor candle must be forced non-DC")
	}
}

func TestClassify_WeekCloseExcluded(t *testing.T) {
	p := plain()
	p.WeekCloseBoundary = true

	s := model.Series{
		bar(0, 10, 12, 8, 11),
		bar(1, 10.5, 11.5, 9, 10.8),
		bar(2, 10.8, 13, 10, 12.5),
		bar(3, 12.5, 12.9, 10.5, 12), // inside, but followed by a gap
		bar(9, 12, 13.5, 11, 13),
		bar(10, 12.2, 12.4, 11.5, 12.1), // inside, last candle
	}
	flags := Classify(s, p)
	if !flags[1] {
		t.Error("ordinary inside bar should stay DC")
	}
	if flags[3] {
		t.Error("candle followed by a gap must be forced non-DC")
	}
	if flags[5] {
		t.Error("last candle must be forced non-DC when week-close boundary is on")
	}
}

func TestClassify_Empty(t *testing.T) {
	if flags := Classify(nil, plain()); len(flags) != 0 {
		t.Errorf("expected no flags, got %v", flags)
	}
}
