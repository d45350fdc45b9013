package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
	_ "time/tzdata"

	"candleseq/internal/criteria"
	"candleseq/internal/timeframe"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("SYMBOLS", "")
	t.Setenv("PROFILE", "")
	t.Setenv("LOOKBACK", "")
	cfg := Load()
	if cfg.Profile != "H1" || cfg.Preset != "primary" || cfg.Lookback != 10*24*time.Hour {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.MaxBranches != 1000 {
		t.Errorf("MaxBranches = %d", cfg.MaxBranches)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SYMBOLS", " eurusd, GBPUSD ,,EURUSD,usdjpy")
	t.Setenv("LOOKBACK", "48h")
	t.Setenv("MAX_BRANCHES", "oops")
	cfg := Load()

	got := cfg.ParseSymbols()
	want := []string{"EURUSD", "GBPUSD", "USDJPY"}
	if len(got) != len(want) {
		t.Fatalf("symbols = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("symbols[%d] = %s, want %s", i, got[i], want[i])
		}
	}
	if cfg.Lookback != 48*time.Hour {
		t.Errorf("Lookback = %v", cfg.Lookback)
	}
	if cfg.MaxBranches != 1000 {
		t.Errorf("invalid MAX_BRANCHES should fall back, got %d", cfg.MaxBranches)
	}
}

func TestParseDetectors(t *testing.T) {
	cfg := &Config{Detectors: "iou, IOV", Limit: "0.0010", Tolerance: "0.0002"}
	dets, err := cfg.ParseDetectors()
	if err != nil {
		t.Fatalf("ParseDetectors: %v", err)
	}
	if len(dets) != 2 || dets[0].Mode != criteria.Uniform || dets[1].Mode != criteria.Inverse {
		t.Fatalf("detectors = %+v", dets)
	}
	if dets[0].Limit.String() != "0.001" || dets[1].Tolerance.String() != "0.0002" {
		t.Errorf("limit = %s, tolerance = %s", dets[0].Limit, dets[1].Tolerance)
	}

	for _, bad := range []*Config{
		{Detectors: "iou", Limit: "x", Tolerance: "0"},
		{Detectors: "iou", Limit: "-1", Tolerance: "0"},
		{Detectors: "foo", Limit: "1", Tolerance: "0"},
		{Detectors: " , ", Limit: "1", Tolerance: "0"},
	} {
		if _, err := bad.ParseDetectors(); err == nil {
			t.Errorf("%+v: expected error", bad)
		}
	}
}

func TestParsePreset(t *testing.T) {
	p, err := (&Config{Preset: "secondary"}).ParsePreset()
	if err != nil || p.Name != "secondary" {
		t.Errorf("secondary = %+v, %v", p, err)
	}
	p, err = (&Config{Preset: "1,4,8"}).ParsePreset()
	if err != nil || len(p.Steps) != 3 || p.Steps[2] != 8 {
		t.Errorf("custom = %+v, %v", p, err)
	}
	if _, err := (&Config{Preset: "tertiary"}).ParsePreset(); err == nil {
		t.Error("unknown preset accepted")
	}
}

const profilesYAML = `
profiles:
  - name: H1
    step: 1h
    location: America/New_York
    anchor: "17:00"
    exclude: ["00:00"]
    week_close: {weekday: fri, at: "17:00"}
    reopen: {after_days: 2, at: "17:00"}
  - name: D1
    step: 24h
    week_close_boundary: false
`

func writeProfiles(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadProfiles(t *testing.T) {
	ps, err := LoadProfiles(writeProfiles(t, profilesYAML))
	if err != nil {
		t.Fatalf("LoadProfiles: %v", err)
	}
	if len(ps) != 2 {
		t.Fatalf("profiles = %d, want 2", len(ps))
	}

	h1 := ps[0]
	if h1.Step != time.Hour || h1.Loc().String() != "America/New_York" {
		t.Errorf("H1 = %+v", h1)
	}
	if h1.Anchor != (timeframe.Clock{Hour: 17}) || len(h1.ExcludeClocks) != 1 {
		t.Errorf("H1 anchor/exclude = %v %v", h1.Anchor, h1.ExcludeClocks)
	}
	if h1.Close.Weekday != time.Friday || h1.Reopen.AfterDays != 2 || !h1.WeekCloseBoundary {
		t.Errorf("H1 week = %+v %+v", h1.Close, h1.Reopen)
	}

	d1 := ps[1]
	if d1.Anchor != (timeframe.Clock{Hour: 22}) || d1.WeekCloseBoundary {
		t.Errorf("D1 = %+v", d1)
	}
	if d1.Close.Weekday != time.Friday || d1.Reopen.AfterDays != 2 || d1.Reopen.At != d1.Anchor {
		t.Errorf("D1 week defaults = %+v %+v", d1.Close, d1.Reopen)
	}
}

func TestLoadProfilesErrors(t *testing.T) {
	for name, body := range map[string]string{
		"step":    "profiles:\n  - name: X\n    step: soon\n",
		"clock":   "profiles:\n  - name: X\n    step: 1h\n    anchor: \"25:00\"\n",
		"weekday": "profiles:\n  - name: X\n    step: 1h\n    week_close: {weekday: someday}\n",
		"name":    "profiles:\n  - step: 1h\n",
		"yaml":    "profiles: [",
	} {
		if _, err := LoadProfiles(writeProfiles(t, body)); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
	if _, err := LoadProfiles(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestResolveProfile(t *testing.T) {
	cfg := &Config{Profile: "h1", ProfileFile: writeProfiles(t, profilesYAML)}
	p, err := cfg.ResolveProfile()
	if err != nil {
		t.Fatalf("ResolveProfile: %v", err)
	}
	if p.Anchor.Hour != 17 {
		t.Errorf("override not applied: %+v", p)
	}

	cfg = &Config{Profile: "D1"}
	if _, err := cfg.ResolveProfile(); !errors.Is(err, timeframe.ErrUnknownProfile) {
		t.Errorf("err = %v, want ErrUnknownProfile", err)
	}
}
