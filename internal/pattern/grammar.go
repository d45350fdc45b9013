// Package pattern assembles XYZ patterns: sequences of offsets, one per
// source, obeying the triplet-cycle grammar. A 0 resets the cycle; after a
// reset the plus side runs 1→2→3→0 (ascending) or 3→2→1→0 (descending) and
// the minus side mirrors it.
package pattern

import (
	"fmt"
	"sort"
)

// State is the grammar state of a branch.
type State int

const (
	Reset State = iota
	PlusStarted
	MinusStarted
)

func (s State) String() string {
	switch s {
	case Reset:
		return "reset"
	case PlusStarted:
		return "plus"
	case MinusStarted:
		return "minus"
	default:
		return "unknown"
	}
}

// Direction is the progression a started cycle follows.
type Direction int

const (
	Undetermined Direction = iota
	Ascending
	Descending
)

func (d Direction) String() string {
	switch d {
	case Undetermined:
		return "undetermined"
	case Ascending:
		return "ascending"
	case Descending:
		return "descending"
	default:
		return "unknown"
	}
}

// MarshalText encodes the direction name.
func (d Direction) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// UnmarshalText is the inverse of MarshalText.
func (d *Direction) UnmarshalText(b []byte) error {
	for v := Undetermined; v <= Descending; v++ {
		if v.String() == string(b) {
			*d = v
			return nil
		}
	}
	return fmt.Errorf("pattern: unknown direction %q", b)
}

// Transition is the outcome of consuming an offset.
type Transition struct {
	State     State
	Direction Direction
	Expected  []int
}

type key struct {
	offset int
	state  State
	dir    Direction
}

var (
	// legal for the very first source: 0 or any cycle entry
	startExpected = []int{-3, -2, -1, 0, 1, 2, 3}
	// legal right after a 0
	afterReset = []int{-3, -2, -1, 1, 2, 3}
)

// table maps (offset consumed, state before, direction before) to the
// resulting state. ±2 straight after a reset keeps the direction open and
// expects either neighbour; the next offset settles it. This single
// Undetermined branch stands for the ascending and descending hypotheses
// together: it yields the same paths a fork would, reports Undetermined when
// the search ends on the 2, and counts once against MaxBranches.
var table = map[key]Transition{
	// entries from reset
	{0, Reset, Undetermined}:  {Reset, Undetermined, afterReset},
	{1, Reset, Undetermined}:  {PlusStarted, Ascending, []int{2}},
	{2, Reset, Undetermined}:  {PlusStarted, Undetermined, []int{1, 3}},
	{3, Reset, Undetermined}:  {PlusStarted, Descending, []int{2}},
	{-1, Reset, Undetermined}: {MinusStarted, Ascending, []int{-2}},
	{-2, Reset, Undetermined}: {MinusStarted, Undetermined, []int{-3, -1}},
	{-3, Reset, Undetermined}: {MinusStarted, Descending, []int{-2}},

	// plus side
	{2, PlusStarted, Ascending}:    {PlusStarted, Ascending, []int{3}},
	{3, PlusStarted, Ascending}:    {PlusStarted, Ascending, []int{0}},
	{2, PlusStarted, Descending}:   {PlusStarted, Descending, []int{1}},
	{1, PlusStarted, Descending}:   {PlusStarted, Descending, []int{0}},
	{3, PlusStarted, Undetermined}: {PlusStarted, Ascending, []int{0}},
	{1, PlusStarted, Undetermined}: {PlusStarted, Descending, []int{0}},

	// minus side
	{-2, MinusStarted, Ascending}:    {MinusStarted, Ascending, []int{-3}},
	{-3, MinusStarted, Ascending}:    {MinusStarted, Ascending, []int{0}},
	{-2, MinusStarted, Descending}:   {MinusStarted, Descending, []int{-1}},
	{-1, MinusStarted, Descending}:   {MinusStarted, Descending, []int{0}},
	{-3, MinusStarted, Undetermined}: {MinusStarted, Ascending, []int{0}},
	{-1, MinusStarted, Undetermined}: {MinusStarted, Descending, []int{0}},
}

// Next returns the transition for consuming offset in (state, dir). A 0
// always resets. ok is false when the grammar has no such transition.
func Next(offset int, state State, dir Direction) (Transition, bool) {
	if offset == 0 {
		return table[key{0, Reset, Undetermined}], true
	}
	tr, ok := table[key{offset, state, dir}]
	return tr, ok
}

// StartExpected returns the offsets legal for the first source.
func StartExpected() []int {
	return append([]int(nil), startExpected...)
}

func contains(set []int, v int) bool {
	for _, x := range set {
		if x == v {
			return true
		}
	}
	return false
}

// normalize returns the sorted, de-duplicated offsets within [-3, 3].
func normalize(offsets []int) []int {
	seen := make(map[int]bool, len(offsets))
	out := make([]int, 0, len(offsets))
	for _, o := range offsets {
		if o < -3 || o > 3 || seen[o] {
			continue
		}
		seen[o] = true
		out = append(out, o)
	}
	sort.Ints(out)
	return out
}
