package pattern

import (
	"context"
	"sort"
)

// DefaultMaxBranches caps live branches per source. Reaching it silently
// stops expansion for that source; the outcome reports Capped.
const DefaultMaxBranches = 1000

// Source is one caller-ordered input: a name and its candidate offsets.
type Source struct {
	Name    string `json:"name"`
	Offsets []int  `json:"offsets"`
}

// Options tunes the search.
type Options struct {
	MaxBranches int
}

// Result is an immutable pattern assembled from every source in order.
type Result struct {
	Path          []int     `json:"path"`
	Provenance    []int     `json:"provenance"`
	Sources       []string  `json:"sources"`
	Complete      bool      `json:"complete"`
	Length        int       `json:"length"`
	FinalExpected []int     `json:"final_expected"`
	State         State     `json:"-"`
	// Direction is the last settled cycle direction.
	Direction Direction `json:"direction"`
}

// Outcome is the full search result.
type Outcome struct {
	Results []Result `json:"results"`
	Capped  bool     `json:"capped"`
	// Expanded counts branches created over the whole search.
	Expanded int `json:"expanded"`
}

type branch struct {
	path       []int
	provenance []int
	state      State
	dir        Direction
	expected   []int
	// cycle is the last settled direction, kept across a reset
	cycle Direction
}

func (b *branch) extend(offset, source int) (*branch, bool) {
	if !contains(b.expected, offset) {
		return nil, false
	}
	tr, ok := Next(offset, b.state, b.dir)
	if !ok {
		return nil, false
	}
	nb := &branch{
		path:       append(append(make([]int, 0, len(b.path)+1), b.path...), offset),
		provenance: append(append(make([]int, 0, len(b.provenance)+1), b.provenance...), source),
		state:      tr.State,
		dir:        tr.Direction,
		expected:   tr.Expected,
		cycle:      b.cycle,
	}
	if tr.Direction != Undetermined {
		nb.cycle = tr.Direction
	}
	return nb, true
}

// Search extends branches source by source. Every surviving branch consumes
// exactly one offset from each source; a branch with no legal offset in the
// next source dies. ctx is checked before each source; on cancellation the
// partial outcome so far is discarded and ctx.Err() returned.
func Search(ctx context.Context, sources []Source, opts Options) (Outcome, error) {
	limit := opts.MaxBranches
	if limit <= 0 {
		limit = DefaultMaxBranches
	}
	var out Outcome
	if len(sources) == 0 {
		return out, nil
	}

	live := []*branch{{state: Reset, dir: Undetermined, expected: startExpected}}
	for si, src := range sources {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		offsets := normalize(src.Offsets)
		next := make([]*branch, 0, len(live))
	expand:
		for _, b := range live {
			for _, off := range offsets {
				nb, ok := b.extend(off, si)
				if !ok {
					continue
				}
				if len(next) >= limit {
					out.Capped = true
					break expand
				}
				next = append(next, nb)
				out.Expanded++
			}
		}
		live = next
		if len(live) == 0 {
			return out, nil
		}
	}

	out.Results = make([]Result, 0, len(live))
	for _, b := range live {
		out.Results = append(out.Results, b.result(sources))
	}
	sort.SliceStable(out.Results, func(i, j int) bool {
		a, b := out.Results[i], out.Results[j]
		if a.Complete != b.Complete {
			return a.Complete
		}
		return a.Length > b.Length
	})
	return out, nil
}

func (b *branch) result(sources []Source) Result {
	names := make([]string, len(b.provenance))
	for i, si := range b.provenance {
		names[i] = sources[si].Name
	}
	return Result{
		Path:          b.path,
		Provenance:    b.provenance,
		Sources:       names,
		Complete:      len(b.path) > 0 && b.path[len(b.path)-1] == 0,
		Length:        len(b.path),
		FinalExpected: append([]int(nil), b.expected...),
		State:         b.state,
		Direction:     b.cycle,
	}
}
