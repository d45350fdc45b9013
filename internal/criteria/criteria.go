// Package criteria flags allocated candles whose body and the previous
// candle's body both clear a magnitude limit, with a sign rule per detector:
// IOU (same sign) and IOV (opposite sign).
package criteria

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"candleseq/internal/model"
	"candleseq/internal/sequence"
)

// Mode selects the sign rule.
type Mode int

const (
	Uniform Mode = iota // IOU: bodies share sign
	Inverse             // IOV: bodies differ in sign
)

func (m Mode) String() string {
	switch m {
	case Uniform:
		return "iou"
	case Inverse:
		return "iov"
	default:
		return "unknown"
	}
}

// MarshalText encodes the detector name.
func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText accepts the names ParseMode accepts.
func (m *Mode) UnmarshalText(b []byte) error {
	v, err := ParseMode(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// ParseMode accepts "iou"/"uniform" and "iov"/"inverse".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "iou", "uniform":
		return Uniform, nil
	case "iov", "inverse":
		return Inverse, nil
	}
	return 0, fmt.Errorf("criteria: unknown detector %q", s)
}

// Config parameterizes a detector.
type Config struct {
	Mode  Mode
	Limit decimal.Decimal
	// Tolerance, when positive, rejects bodies within [Limit-Tol, Limit+Tol].
	Tolerance decimal.Decimal
}

// Signal is one accepted allocation.
type Signal struct {
	Step   int             `json:"step"`
	Index  int             `json:"index"`
	TS     time.Time       `json:"ts"`
	OC     decimal.Decimal `json:"oc"`
	PrevOC decimal.Decimal `json:"prev_oc"`
	Mode   Mode            `json:"mode"`
	UsedDC bool            `json:"used_dc"`
}

// Evaluate walks the allocations whose step is in filtered and returns the
// accepted signals in allocation order. Unresolved allocations and index 0
// are skipped.
func Evaluate(s model.Series, allocs []sequence.Allocation, filtered []int, cfg Config) []Signal {
	want := make(map[int]bool, len(filtered))
	for _, st := range filtered {
		want[st] = true
	}

	var out []Signal
	seen := make(map[int]bool)
	for _, a := range allocs {
		if !want[a.Step()] {
			continue
		}
		i, ok := a.Index()
		if !ok || i <= 0 || i >= len(s) || seen[i] {
			continue
		}
		oc := body(&s[i])
		prev := body(&s[i-1])
		if !cfg.accept(oc, prev) {
			continue
		}
		seen[i] = true
		out = append(out, Signal{
			Step:   a.Step(),
			Index:  i,
			TS:     s[i].TS,
			OC:     oc,
			PrevOC: prev,
			Mode:   cfg.Mode,
			UsedDC: a.UsedDC(),
		})
	}
	return out
}

func body(c *model.Candle) decimal.Decimal {
	return decimal.NewFromFloat(c.Close).Sub(decimal.NewFromFloat(c.Open))
}

func (cfg Config) accept(oc, prev decimal.Decimal) bool {
	if !cfg.clears(oc) || !cfg.clears(prev) {
		return false
	}
	same := oc.Sign() == prev.Sign()
	if cfg.Mode == Inverse {
		return !same
	}
	return same
}

// clears reports whether |v| exceeds the limit outside the tolerance band.
func (cfg Config) clears(v decimal.Decimal) bool {
	abs := v.Abs()
	if !abs.GreaterThan(cfg.Limit) {
		return false
	}
	if cfg.Tolerance.IsPositive() {
		lo, hi := cfg.Limit.Sub(cfg.Tolerance), cfg.Limit.Add(cfg.Tolerance)
		if abs.GreaterThanOrEqual(lo) && abs.LessThanOrEqual(hi) {
			return false
		}
	}
	return true
}
