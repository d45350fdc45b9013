package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"candleseq/internal/timeframe"
)

// profileFile is the YAML layout of PROFILE_FILE:
//
//	profiles:
//	  - name: H1
//	    step: 1h
//	    location: America/New_York
//	    anchor: "17:00"
//	    exclude: ["00:00"]
//	    week_close_boundary: true
//	    week_close: {weekday: friday, at: "17:00"}
//	    reopen: {after_days: 2, at: "17:00"}
type profileFile struct {
	Profiles []profileSpec `yaml:"profiles"`
}

type profileSpec struct {
	Name              string   `yaml:"name"`
	Step              string   `yaml:"step"`
	Location          string   `yaml:"location"`
	Anchor            string   `yaml:"anchor"`
	Exclude           []string `yaml:"exclude"`
	WeekCloseBoundary *bool    `yaml:"week_close_boundary"`
	WeekClose         struct {
		Weekday string `yaml:"weekday"`
		At      string `yaml:"at"`
	} `yaml:"week_close"`
	Reopen struct {
		AfterDays int    `yaml:"after_days"`
		At        string `yaml:"at"`
	} `yaml:"reopen"`
}

// LoadProfiles reads timeframe profile overrides from a YAML file.
func LoadProfiles(path string) ([]timeframe.Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}
	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles: %w", err)
	}

	out := make([]timeframe.Profile, 0, len(f.Profiles))
	for i, ps := range f.Profiles {
		p, err := ps.profile()
		if err != nil {
			return nil, fmt.Errorf("profiles[%d] %s: %w", i, ps.Name, err)
		}
		if err := p.Validate(); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (ps profileSpec) profile() (timeframe.Profile, error) {
	p := timeframe.Profile{Name: ps.Name, WeekCloseBoundary: true}

	step, err := time.ParseDuration(ps.Step)
	if err != nil {
		return p, fmt.Errorf("step: %w", err)
	}
	p.Step = step

	p.Location = time.UTC
	if ps.Location != "" {
		loc, err := time.LoadLocation(ps.Location)
		if err != nil {
			return p, fmt.Errorf("location: %w", err)
		}
		p.Location = loc
	}
	if ps.WeekCloseBoundary != nil {
		p.WeekCloseBoundary = *ps.WeekCloseBoundary
	}

	if p.Anchor, err = clockOr(ps.Anchor, "22:00"); err != nil {
		return p, fmt.Errorf("anchor: %w", err)
	}
	for _, s := range ps.Exclude {
		c, err := timeframe.ParseClock(s)
		if err != nil {
			return p, fmt.Errorf("exclude: %w", err)
		}
		p.ExcludeClocks = append(p.ExcludeClocks, c)
	}

	wd, err := parseWeekday(ps.WeekClose.Weekday)
	if err != nil {
		return p, err
	}
	closeAt, err := clockOr(ps.WeekClose.At, p.Anchor.String())
	if err != nil {
		return p, fmt.Errorf("week_close: %w", err)
	}
	p.Close = timeframe.WeekClose{Weekday: wd, At: closeAt}

	reopenAt, err := clockOr(ps.Reopen.At, closeAt.String())
	if err != nil {
		return p, fmt.Errorf("reopen: %w", err)
	}
	after := ps.Reopen.AfterDays
	if after == 0 && ps.Reopen.At == "" {
		after = 2
	}
	p.Reopen = timeframe.Reopen{AfterDays: after, At: reopenAt}
	return p, nil
}

func clockOr(s, fallback string) (timeframe.Clock, error) {
	if s == "" {
		s = fallback
	}
	return timeframe.ParseClock(s)
}

func parseWeekday(s string) (time.Weekday, error) {
	if s == "" {
		return time.Friday, nil
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		name := strings.ToLower(d.String())
		if strings.EqualFold(s, name) || strings.EqualFold(s, name[:3]) {
			return d, nil
		}
	}
	return 0, fmt.Errorf("week_close: unknown weekday %q", s)
}
