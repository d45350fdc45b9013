package pattern

import (
	"context"
	"reflect"
	"testing"
)

func sources(sets ...[]int) []Source {
	out := make([]Source, len(sets))
	for i, s := range sets {
		out[i] = Source{Name: string(rune('A' + i)), Offsets: s}
	}
	return out
}

func search(t *testing.T, src []Source) Outcome {
	t.Helper()
	out, err := Search(context.Background(), src, Options{})
	if err != nil {
		t.Fatal(err)
	}
	return out
}

func TestSearch_SingleZero(t *testing.T) {
	out := search(t, sources([]int{0}))
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	r := out.Results[0]
	if !reflect.DeepEqual(r.Path, []int{0}) || !r.Complete || r.Length != 1 {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestSearch_AscendingCycle(t *testing.T) {
	out := search(t, sources([]int{1}, []int{2}, []int{3}, []int{0}))
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	r := out.Results[0]
	if !reflect.DeepEqual(r.Path, []int{1, 2, 3, 0}) || !r.Complete || r.Direction != Ascending {
		t.Errorf("unexpected result %+v", r)
	}
	if !reflect.DeepEqual(r.Provenance, []int{0, 1, 2, 3}) || !reflect.DeepEqual(r.Sources, []string{"A", "B", "C", "D"}) {
		t.Errorf("unexpected provenance %v %v", r.Provenance, r.Sources)
	}
}

func TestSearch_DescendingCycle(t *testing.T) {
	out := search(t, sources([]int{3}, []int{2}, []int{1}, []int{0}))
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	r := out.Results[0]
	if !reflect.DeepEqual(r.Path, []int{3, 2, 1, 0}) || !r.Complete || r.Direction != Descending {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestSearch_AmbiguousTwoSettledByNext(t *testing.T) {
	out := search(t, sources([]int{2}, []int{1}))
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	r := out.Results[0]
	if !reflect.DeepEqual(r.Path, []int{2, 1}) || r.Complete || r.Direction != Descending {
		t.Errorf("unexpected result %+v", r)
	}
	if !reflect.DeepEqual(r.FinalExpected, []int{0}) {
		t.Errorf("final expected = %v, want [0]", r.FinalExpected)
	}
}

func TestSearch_MinusSideMirrors(t *testing.T) {
	out := search(t, sources([]int{-1}, []int{-2}, []int{-3}, []int{0}, []int{-2}, []int{-3}))
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(out.Results))
	}
	r := out.Results[0]
	if !reflect.DeepEqual(r.Path, []int{-1, -2, -3, 0, -2, -3}) || r.Direction != Ascending {
		t.Errorf("unexpected result %+v", r)
	}
}

func TestSearch_NoGaps(t *testing.T) {
	out := search(t, sources([]int{1}, []int{3}))
	if len(out.Results) != 0 {
		t.Errorf("1 -> 3 is illegal, got %+v", out.Results)
	}
}

func TestSearch_ZeroNotLegalRightAfterReset(t *testing.T) {
	out := search(t, sources([]int{0}, []int{0}))
	if len(out.Results) != 0 {
		t.Errorf("0 -> 0 is illegal, got %+v", out.Results)
	}
}

func TestSearch_BranchesAndOrdering(t *testing.T) {
	out := search(t, sources([]int{1, 3, 2}, []int{2}, []int{3, 1, 0}))
	var paths [][]int
	for _, r := range out.Results {
		paths = append(paths, r.Path)
	}
	want := [][]int{{1, 2, 3}, {3, 2, 1}}
	if !reflect.DeepEqual(paths, want) {
		t.Errorf("paths = %v, want %v", paths, want)
	}
}

func TestSearch_CompleteFirst(t *testing.T) {
	out := search(t, sources([]int{2}, []int{1, 3}, []int{0}))
	if len(out.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(out.Results))
	}
	for _, r := range out.Results {
		if !r.Complete {
			t.Errorf("expected complete result, got %+v", r)
		}
	}

	out = search(t, sources([]int{0}, []int{1, 2}))
	if len(out.Results) != 2 || out.Results[0].Complete {
		t.Fatalf("unexpected results %+v", out.Results)
	}
}

func TestSearch_IgnoresOutOfRangeAndDuplicates(t *testing.T) {
	out := search(t, sources([]int{1, 1, 7, -9}))
	if len(out.Results) != 1 {
		t.Fatalf("expected 1 result, got %+v", out.Results)
	}
}

func TestSearch_Cap(t *testing.T) {
	all := []int{-3, -2, -1, 0, 1, 2, 3}
	src := sources(all, all, all, all, all, all)
	out, err := Search(context.Background(), src, Options{MaxBranches: 5})
	if err != nil {
		t.Fatal(err)
	}
	if !out.Capped {
		t.Error("expected capped outcome")
	}
	if len(out.Results) > 5 {
		t.Errorf("results exceed cap: %d", len(out.Results))
	}
}

func TestSearch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Search(ctx, sources([]int{0}), Options{}); err == nil {
		t.Error("expected context error")
	}
}

func TestSearch_Empty(t *testing.T) {
	out := search(t, nil)
	if len(out.Results) != 0 {
		t.Errorf("expected no results, got %+v", out.Results)
	}
	out = search(t, sources([]int{1}, nil))
	if len(out.Results) != 0 {
		t.Errorf("empty source kills every branch, got %+v", out.Results)
	}
}

func TestNext_Table(t *testing.T) {
	cases := []struct {
		offset int
		state  State
		dir    Direction
		ok     bool
		want   []int
	}{
		{1, Reset, Undetermined, true, []int{2}},
		{2, Reset, Undetermined, true, []int{1, 3}},
		{-2, Reset, Undetermined, true, []int{-3, -1}},
		{3, PlusStarted, Undetermined, true, []int{0}},
		{2, PlusStarted, Descending, true, []int{1}},
		{0, PlusStarted, Ascending, true, []int{-3, -2, -1, 1, 2, 3}},
		{3, MinusStarted, Ascending, false, nil},
		{1, PlusStarted, Ascending, false, nil},
	}
	for _, c := range cases {
		tr, ok := Next(c.offset, c.state, c.dir)
		if ok != c.ok {
			t.Errorf("Next(%d,%v,%v) ok = %v, want %v", c.offset, c.state, c.dir, ok, c.ok)
			continue
		}
		if ok && !reflect.DeepEqual(tr.Expected, c.want) {
			t.Errorf("Next(%d,%v,%v) expected = %v, want %v", c.offset, c.state, c.dir, tr.Expected, c.want)
		}
	}
}

func TestSearch_TwoAfterResetSettlesLater(t *testing.T) {
	open := search(t, sources([]int{2}))
	if len(open.Results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(open.Results))
	}
	if r := open.Results[0]; r.Direction != Undetermined || !reflect.DeepEqual(r.FinalExpected, []int{1, 3}) {
		t.Errorf("open 2: direction = %v expected = %v", r.Direction, r.FinalExpected)
	}

	settled := search(t, sources([]int{2}, []int{1, 3}))
	got := map[Direction][]int{}
	for _, r := range settled.Results {
		got[r.Direction] = r.Path
	}
	want := map[Direction][]int{
		Descending: {2, 1},
		Ascending:  {2, 3},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("settled paths = %v, want %v", got, want)
	}
}
