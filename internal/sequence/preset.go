package sequence

import (
	"fmt"
	"strconv"
	"strings"
)

// Preset is a named ascending step-count list. FilterFrom is the smallest
// step handed to the criteria evaluator; earlier values only position the
// walk.
type Preset struct {
	Name       string
	Steps      []int
	FilterFrom int
}

// Primary is the default step sequence.
func Primary() Preset {
	return Preset{Name: "primary", Steps: []int{1, 5, 9, 17, 25, 33, 41, 49}, FilterFrom: 9}
}

// Secondary is the alternate step sequence.
func Secondary() Preset {
	return Preset{Name: "secondary", Steps: []int{1, 3, 7, 11, 15, 19, 23, 27}, FilterFrom: 7}
}

// LookupPreset resolves a preset by name.
func LookupPreset(name string) (Preset, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "primary", "s1":
		return Primary(), nil
	case "secondary", "s2":
		return Secondary(), nil
	}
	return Preset{}, fmt.Errorf("sequence: unknown preset %q", name)
}

// Filtered returns the steps evaluated by the criteria evaluator.
func (p Preset) Filtered() []int {
	out := make([]int, 0, len(p.Steps))
	for _, s := range p.Steps {
		if s >= p.FilterFrom {
			out = append(out, s)
		}
	}
	return out
}

// Validate checks that the steps are positive and non-decreasing.
func (p Preset) Validate() error {
	if len(p.Steps) == 0 {
		return fmt.Errorf("sequence %s: no steps", p.Name)
	}
	for i, s := range p.Steps {
		if s <= 0 {
			return fmt.Errorf("sequence %s: step %d must be positive", p.Name, s)
		}
		if i > 0 && s < p.Steps[i-1] {
			return fmt.Errorf("sequence %s: steps must be non-decreasing", p.Name)
		}
	}
	return nil
}

// ParseSteps parses a comma-separated step list such as "1,5,9,17".
func ParseSteps(name, s string) (Preset, error) {
	var steps []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return Preset{}, fmt.Errorf("sequence %s: invalid step %q", name, part)
		}
		steps = append(steps, n)
	}
	p := Preset{Name: name, Steps: steps}
	if len(steps) > 1 {
		p.FilterFrom = steps[1]
	}
	return p, p.Validate()
}
