package predict

import (
	"testing"
	"time"

	"candleseq/internal/model"
	"candleseq/internal/offset"
	"candleseq/internal/timeframe"
)

func h1(t *testing.T) timeframe.Profile {
	t.Helper()
	p, err := timeframe.Lookup("H1")
	if err != nil {
		t.Fatal(err)
	}
	return p
}

func TestStep_WithinWeek(t *testing.T) {
	p := h1(t)
	ref := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC) // Tuesday
	got := Step(p, ref, 5)
	if want := ref.Add(5 * time.Hour); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
	if back := Step(p, got, -5); !back.Equal(ref) {
		t.Errorf("backward got %v, want %v", back, ref)
	}
}

func TestStep_CrossesWeekClose(t *testing.T) {
	p := h1(t)
	ref := time.Date(2026, 3, 13, 20, 0, 0, 0, time.UTC) // Friday 20:00

	// 21:00 is the last bar of the week; the next one is Sunday 22:00.
	if got, want := Step(p, ref, 1), time.Date(2026, 3, 13, 21, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("1 step: got %v, want %v", got, want)
	}
	if got, want := Step(p, ref, 2), time.Date(2026, 3, 15, 22, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("2 steps: got %v, want %v", got, want)
	}
	if got, want := Step(p, ref, 4), time.Date(2026, 3, 16, 0, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("4 steps: got %v, want %v", got, want)
	}
}

func TestStep_BackwardOverReopen(t *testing.T) {
	p := h1(t)
	reopen := time.Date(2026, 3, 15, 22, 0, 0, 0, time.UTC) // Sunday
	if got, want := Step(p, reopen, -1), time.Date(2026, 3, 13, 21, 0, 0, 0, time.UTC); !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestStep_RoundTripAcrossClosure(t *testing.T) {
	p, _ := timeframe.Lookup("H4")
	ref := time.Date(2026, 3, 12, 2, 0, 0, 0, time.UTC) // Thursday
	for n := 1; n <= 30; n++ {
		fwd := Step(p, ref, n)
		if p.InClosure(fwd) {
			t.Fatalf("step %d landed inside the closure: %v", n, fwd)
		}
		if back := Step(p, fwd, -n); !back.Equal(ref) {
			t.Fatalf("step %d: round trip %v -> %v -> %v", n, ref, fwd, back)
		}
	}
}

func TestExtend_PredictsTrailingSteps(t *testing.T) {
	p := h1(t)
	t0 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	s := make(model.Series, 30)
	for i := range s {
		s[i] = model.Candle{TS: t0.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0, Close: 1.5}
	}
	flags := make([]bool, len(s))

	a := offset.Align(s, flags, p, 10, []int{1, 5, 9, 17, 25}, 0)
	preds := Extend(p, s, flags, &a)
	if len(preds) != 1 {
		t.Fatalf("expected 1 prediction, got %d", len(preds))
	}
	// step 17 -> index 26; step 25 is 8 further: 27,28,29 known, 5 predicted past index 29.
	want := s[29].TS.Add(5 * time.Hour)
	if preds[0].Step != 25 || !preds[0].TS.Equal(want) || !preds[0].Predicted {
		t.Errorf("prediction = %+v, want step 25 at %v", preds[0], want)
	}
}

func TestExtend_NothingResolved(t *testing.T) {
	p := h1(t)
	a := offset.Alignment{}
	if preds := Extend(p, nil, nil, &a); preds != nil {
		t.Errorf("expected no predictions, got %v", preds)
	}
}

func TestExtend_StartNotOpenYet(t *testing.T) {
	p := h1(t)
	t0 := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC) // Tuesday
	s := make(model.Series, 10)
	for i := range s {
		s[i] = model.Candle{TS: t0.Add(time.Duration(i) * time.Hour), Open: 1, High: 2, Low: 0, Close: 1.5}
	}
	flags := make([]bool, len(s))
	flags[8] = true

	// base 7, offset +3: 8 is DC and 9 counts once, so the start opens two
	// bars after the last candle.
	a := offset.Align(s, flags, p, 7, []int{1, 5}, 3)
	if a.Status != offset.StatusAfterData || a.Fallback {
		t.Fatalf("status = %v fallback = %v", a.Status, a.Fallback)
	}
	preds := Extend(p, s, flags, &a)
	if len(preds) != 2 {
		t.Fatalf("expected 2 predictions, got %d", len(preds))
	}
	want := []time.Time{t0.Add(11 * time.Hour), t0.Add(15 * time.Hour)}
	for i, pr := range preds {
		if pr.Step != a.Allocations[i].Step() || !pr.TS.Equal(want[i]) || !pr.Predicted {
			t.Errorf("prediction %d = %+v, want %v", i, pr, want[i])
		}
	}
}
