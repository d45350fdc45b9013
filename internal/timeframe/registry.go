package timeframe

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// ErrUnknownProfile is returned by Lookup for names not in the registry.
var ErrUnknownProfile = errors.New("timeframe: unknown profile")

// Session clocks shared by the built-in profiles (UTC).
// The FX-style week closes Friday 22:00 and reopens Sunday 22:00.
var (
	sessionOpen  = Clock{Hour: 22, Minute: 0}
	dayRoll      = Clock{Hour: 0, Minute: 0}
	closeFriday  = WeekClose{Weekday: time.Friday, At: sessionOpen}
	reopenSunday = Reopen{AfterDays: 2, At: sessionOpen}
)

func builtin(name string, step time.Duration, extra ...Clock) Profile {
	return Profile{
		Name:              name,
		Step:              step,
		Location:          time.UTC,
		Anchor:            sessionOpen,
		ExcludeClocks:     extra,
		WeekCloseBoundary: true,
		Close:             closeFriday,
		Reopen:            reopenSunday,
	}
}

// builtins returns fresh copies so callers can never mutate the registry.
func builtins() []Profile {
	return []Profile{
		builtin("M5", 5*time.Minute, dayRoll),
		builtin("M15", 15*time.Minute, dayRoll),
		builtin("M30", 30*time.Minute, dayRoll),
		builtin("H1", time.Hour, dayRoll),
		builtin("H2", 2*time.Hour),
		builtin("H4", 4*time.Hour),
	}
}

// Registry maps profile names to profiles. The zero value is unusable;
// build one with NewRegistry.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns a registry holding the built-in profiles overlaid with
// the given overrides (matched by name, case-insensitive).
func NewRegistry(overrides ...Profile) (*Registry, error) {
	r := &Registry{profiles: make(map[string]Profile)}
	for _, p := range builtins() {
		r.profiles[strings.ToUpper(p.Name)] = p
	}
	for _, p := range overrides {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		r.profiles[strings.ToUpper(p.Name)] = p
	}
	return r, nil
}

// Lookup returns the named profile.
func (r *Registry) Lookup(name string) (Profile, error) {
	p, ok := r.profiles[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q", ErrUnknownProfile, name)
	}
	p.ExcludeClocks = append([]Clock(nil), p.ExcludeClocks...)
	return p, nil
}

// Names returns the registered profile names, sorted by step duration.
func (r *Registry) Names() []string {
	ps := make([]Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		ps = append(ps, p)
	}
	sort.Slice(ps, func(i, j int) bool {
		if ps[i].Step != ps[j].Step {
			return ps[i].Step < ps[j].Step
		}
		return ps[i].Name < ps[j].Name
	})
	names := make([]string, len(ps))
	for i, p := range ps {
		names[i] = p.Name
	}
	return names
}

// Lookup resolves a built-in profile by name.
func Lookup(name string) (Profile, error) {
	r, _ := NewRegistry()
	return r.Lookup(name)
}
