// Package analysis runs the sequence engine end to end for one series
// (classify, align every offset, predict, evaluate criteria) and correlates
// several analyzed sources through the XYZ pattern search.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"candleseq/internal/anchor"
	"candleseq/internal/criteria"
	"candleseq/internal/dc"
	"candleseq/internal/logger"
	"candleseq/internal/metrics"
	"candleseq/internal/model"
	"candleseq/internal/offset"
	"candleseq/internal/pattern"
	"candleseq/internal/predict"
	"candleseq/internal/sequence"
	"candleseq/internal/timeframe"
)

// ErrNoAnchor is returned when no base candle can be located.
var ErrNoAnchor = errors.New("analysis: no anchor candle")

// Request describes one series analysis.
type Request struct {
	Source  string
	Series  model.Series
	Profile timeframe.Profile
	Preset  sequence.Preset
	// Base is the anchor index. When negative, Day selects the session, or
	// the latest anchor is used when Day is zero.
	Base int
	Day  time.Time
	// Offsets defaults to every offset in [-3, 3].
	Offsets   []int
	Detectors []criteria.Config
}

// OffsetReport is the analysis of one offset.
type OffsetReport struct {
	Alignment   offset.Alignment     `json:"alignment"`
	Predictions []predict.Prediction `json:"predictions,omitempty"`
	Signals     []criteria.Signal    `json:"signals,omitempty"`
}

// Report is the result of Analyze.
type Report struct {
	ID         string         `json:"id"`
	RunID      string         `json:"run_id"`
	Source     string         `json:"source"`
	Profile    string         `json:"profile"`
	Preset     string         `json:"preset"`
	Base       int            `json:"base"`
	BaseTS     time.Time      `json:"base_ts"`
	Candles    int            `json:"candles"`
	DCCount    int            `json:"dc_count"`
	Offsets    []OffsetReport `json:"offsets"`
	Candidates []int          `json:"candidates"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Analyzer is stateless between calls; it only holds collaborators.
type Analyzer struct {
	log     *slog.Logger
	metrics *metrics.Metrics
	search  pattern.Options
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithMetrics records engine metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// WithSearchOptions overrides the pattern search options.
func WithSearchOptions(o pattern.Options) Option {
	return func(a *Analyzer) { a.search = o }
}

// New creates an Analyzer. log may be nil.
func New(log *slog.Logger, opts ...Option) *Analyzer {
	if log == nil {
		log = slog.Default()
	}
	a := &Analyzer{log: log.With(slog.String("component", "analysis"))}
	for _, o := range opts {
		o(a)
	}
	return a
}

// Analyze runs the engine on one series.
func (a *Analyzer) Analyze(ctx context.Context, req Request) (*Report, error) {
	start := time.Now()
	ctx, runID := logger.EnsureRunID(ctx)

	if err := req.Profile.Validate(); err != nil {
		return nil, err
	}
	if err := req.Preset.Validate(); err != nil {
		return nil, err
	}
	if err := req.Series.Validate(); err != nil {
		return nil, fmt.Errorf("analysis %s: %w", req.Source, err)
	}

	base, err := resolveBase(req)
	if err != nil {
		return nil, err
	}

	flags := dc.Classify(req.Series, req.Profile)
	offsets := req.Offsets
	if len(offsets) == 0 {
		for o := offset.Min; o <= offset.Max; o++ {
			offsets = append(offsets, o)
		}
	}

	rep := &Report{
		ID:        logger.NewRunID(),
		RunID:     runID,
		Source:    req.Source,
		Profile:   req.Profile.Name,
		Preset:    req.Preset.Name,
		Base:      base,
		BaseTS:    req.Series[base].TS,
		Candles:   len(req.Series),
		DCCount:   dc.Count(flags),
		Offsets:   make([]OffsetReport, 0, len(offsets)),
		CreatedAt: time.Now().UTC(),
	}

	filtered := req.Preset.Filtered()
	candidates := make(map[int]bool)
	for _, off := range offsets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		al := offset.Align(req.Series, flags, req.Profile, base, req.Preset.Steps, off)
		or := OffsetReport{Alignment: al}
		or.Predictions = predict.Extend(req.Profile, req.Series, flags, &al)
		for _, det := range req.Detectors {
			sigs := criteria.Evaluate(req.Series, al.Allocations, filtered, det)
			or.Signals = append(or.Signals, sigs...)
		}
		if len(or.Signals) > 0 {
			candidates[off] = true
		}
		rep.Offsets = append(rep.Offsets, or)
	}
	for off := range candidates {
		rep.Candidates = append(rep.Candidates, off)
	}
	sort.Ints(rep.Candidates)

	a.observe(rep, time.Since(start))
	a.log.Info("series analyzed",
		append(logger.LogWithRun(ctx),
			slog.String("source", rep.Source),
			slog.String("profile", rep.Profile),
			slog.Int("candles", rep.Candles),
			slog.Int("dc", rep.DCCount),
			slog.Time("base_ts", rep.BaseTS),
			slog.Any("candidates", rep.Candidates),
		)...)
	return rep, nil
}

func resolveBase(req Request) (int, error) {
	if req.Base >= 0 {
		if !req.Series.InRange(req.Base) {
			return 0, fmt.Errorf("%w: base %d outside series of %d", ErrNoAnchor, req.Base, len(req.Series))
		}
		return req.Base, nil
	}
	if !req.Day.IsZero() {
		if i, ok := anchor.Find(req.Series, req.Profile, req.Day); ok {
			return i, nil
		}
		return 0, fmt.Errorf("%w: %s on %s", ErrNoAnchor, req.Source, req.Day.Format("2006-01-02"))
	}
	if i, ok := anchor.Latest(req.Series, req.Profile); ok {
		return i, nil
	}
	return 0, fmt.Errorf("%w: %s has no %s candle", ErrNoAnchor, req.Source, req.Profile.Anchor)
}

func (a *Analyzer) observe(rep *Report, took time.Duration) {
	m := a.metrics
	if m == nil {
		return
	}
	m.AnalysesTotal.WithLabelValues(rep.Profile).Inc()
	m.AnalyzeDur.Observe(took.Seconds())
	m.DCCandlesTotal.Add(float64(rep.DCCount))
	for _, or := range rep.Offsets {
		m.AlignmentsTotal.WithLabelValues(or.Alignment.Status.String()).Inc()
		if or.Alignment.Fallback {
			m.FallbacksTotal.Inc()
		}
		for _, al := range or.Alignment.Allocations {
			if !al.IsResolved() {
				m.UnresolvedSteps.Inc()
			}
		}
		m.PredictedSteps.Add(float64(len(or.Predictions)))
		for _, s := range or.Signals {
			m.SignalsTotal.WithLabelValues(s.Mode.String()).Inc()
		}
	}
}

// Correlate runs the XYZ pattern search over reports in the given order;
// each report contributes its candidate offsets as one source.
func (a *Analyzer) Correlate(ctx context.Context, reports []*Report) (pattern.Outcome, error) {
	sources := make([]pattern.Source, len(reports))
	for i, r := range reports {
		sources[i] = pattern.Source{Name: r.Source, Offsets: r.Candidates}
	}
	return a.Search(ctx, sources)
}

// Search runs the XYZ pattern search over explicit sources.
func (a *Analyzer) Search(ctx context.Context, sources []pattern.Source) (pattern.Outcome, error) {
	start := time.Now()
	out, err := pattern.Search(ctx, sources, a.search)
	if err != nil {
		a.log.Warn("pattern search cancelled", append(logger.LogWithRun(ctx), slog.Any("error", err))...)
		return out, err
	}

	complete := 0
	for _, r := range out.Results {
		if r.Complete {
			complete++
		}
	}
	if m := a.metrics; m != nil {
		m.PatternSearchDur.Observe(time.Since(start).Seconds())
		m.PatternResultsTotal.WithLabelValues(strconv.FormatBool(true)).Add(float64(complete))
		m.PatternResultsTotal.WithLabelValues(strconv.FormatBool(false)).Add(float64(len(out.Results) - complete))
		if out.Capped {
			m.PatternCappedTotal.Inc()
		}
	}
	if out.Capped {
		a.log.Warn("pattern search hit branch cap",
			append(logger.LogWithRun(ctx), slog.Int("sources", len(sources)), slog.Int("expanded", out.Expanded))...)
	}
	a.log.Info("pattern search done",
		append(logger.LogWithRun(ctx),
			slog.Int("sources", len(sources)),
			slog.Int("results", len(out.Results)),
			slog.Int("complete", complete),
		)...)
	return out, nil
}
