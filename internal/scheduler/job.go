// Package scheduler runs the analysis pipeline on a cron schedule: load each
// configured symbol, analyze it, correlate the candidates, then persist,
// publish and alert.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"candleseq/internal/analysis"
	"candleseq/internal/criteria"
	"candleseq/internal/logger"
	"candleseq/internal/metrics"
	"candleseq/internal/model"
	"candleseq/internal/notification"
	"candleseq/internal/pattern"
	"candleseq/internal/sequence"
	"candleseq/internal/timeframe"
)

// ReportStore persists reports and pattern outcomes.
type ReportStore interface {
	SaveReports(ctx context.Context, reps []*analysis.Report) error
	SavePatterns(ctx context.Context, batchID string, out pattern.Outcome) error
}

// Publisher streams reports and pattern outcomes.
type Publisher interface {
	PublishReport(rep *analysis.Report) error
	PublishPatterns(batchID string, out pattern.Outcome) error
}

// Publishers fans each publish out to every member and joins their errors.
type Publishers []Publisher

func (ps Publishers) PublishReport(rep *analysis.Report) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishReport(rep); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (ps Publishers) PublishPatterns(batchID string, out pattern.Outcome) error {
	var errs []error
	for _, p := range ps {
		if err := p.PublishPatterns(batchID, out); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Job is one pipeline configuration. Store, Publisher, Notifier, Metrics and
// Health are optional.
type Job struct {
	Reader    model.SeriesReader
	Analyzer  *analysis.Analyzer
	Store     ReportStore
	Publisher Publisher
	Notifier  notification.Notifier
	Metrics   *metrics.Metrics
	Health    *metrics.HealthStatus
	Log       *slog.Logger

	Symbols   []string
	Profile   timeframe.Profile
	Preset    sequence.Preset
	Detectors []criteria.Config
	Lookback  time.Duration

	now func() time.Time
}

// Result summarizes one pipeline run.
type Result struct {
	RunID    string
	Reports  []*analysis.Report
	Skipped  []string
	Outcome  pattern.Outcome
	Alerts   int
	Duration time.Duration
}

// ErrNoReports is returned when no symbol could be analyzed.
var ErrNoReports = errors.New("scheduler: no symbol produced a report")

// Run executes the pipeline once. Symbols whose series cannot be loaded or
// has no anchor are skipped and the remaining symbols are correlated in
// configured order. Persist, publish and alert failures are logged; only
// load/analysis failures of every symbol fail the run.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	start := j.clock()
	ctx, runID := logger.EnsureRunID(ctx)
	log := j.logger()
	res := &Result{RunID: runID}

	from := start.Add(-j.Lookback)
	for _, sym := range j.Symbols {
		if err := ctx.Err(); err != nil {
			return j.finish(ctx, res, start, err)
		}
		series, err := j.Reader.ReadSeries(ctx, sym, j.Profile.Name, from, time.Time{})
		if err != nil {
			log.Warn("load series failed", append(logger.LogWithRun(ctx), slog.String("symbol", sym), slog.Any("error", err))...)
			res.Skipped = append(res.Skipped, sym)
			continue
		}
		rep, err := j.Analyzer.Analyze(ctx, analysis.Request{
			Source:    sym,
			Series:    series,
			Profile:   j.Profile,
			Preset:    j.Preset,
			Base:      -1,
			Detectors: j.Detectors,
		})
		if err != nil {
			log.Warn("analysis skipped", append(logger.LogWithRun(ctx), slog.String("symbol", sym), slog.Any("error", err))...)
			res.Skipped = append(res.Skipped, sym)
			continue
		}
		res.Reports = append(res.Reports, rep)
	}
	if len(res.Reports) == 0 {
		return j.finish(ctx, res, start, ErrNoReports)
	}

	out, err := j.Analyzer.Correlate(ctx, res.Reports)
	if err != nil {
		return j.finish(ctx, res, start, err)
	}
	res.Outcome = out

	j.persist(ctx, res)
	j.publish(ctx, res)
	j.alert(ctx, res)
	return j.finish(ctx, res, start, nil)
}

func (j *Job) persist(ctx context.Context, res *Result) {
	if j.Store == nil {
		return
	}
	log := j.logger()
	if err := j.Store.SaveReports(ctx, res.Reports); err != nil {
		log.Error("save reports failed", append(logger.LogWithRun(ctx), slog.Any("error", err))...)
	}
	if len(res.Outcome.Results) == 0 {
		return
	}
	if err := j.Store.SavePatterns(ctx, res.RunID, res.Outcome); err != nil {
		log.Error("save patterns failed", append(logger.LogWithRun(ctx), slog.Any("error", err))...)
	}
}

func (j *Job) publish(ctx context.Context, res *Result) {
	if j.Publisher == nil {
		return
	}
	log := j.logger()
	start := time.Now()
	for _, rep := range res.Reports {
		if err := j.Publisher.PublishReport(rep); err != nil {
			log.Warn("publish report failed", append(logger.LogWithRun(ctx), slog.String("symbol", rep.Source), slog.Any("error", err))...)
		}
	}
	if len(res.Outcome.Results) > 0 {
		if err := j.Publisher.PublishPatterns(res.RunID, res.Outcome); err != nil {
			log.Warn("publish patterns failed", append(logger.LogWithRun(ctx), slog.Any("error", err))...)
		}
	}
	if j.Metrics != nil {
		j.Metrics.RedisPublishDur.Observe(time.Since(start).Seconds())
	}
}

func (j *Job) alert(ctx context.Context, res *Result) {
	if j.Notifier == nil {
		return
	}
	for _, a := range notification.PatternAlerts(res.RunID, res.Outcome) {
		if err := j.Notifier.Send(ctx, a); err != nil {
			j.logger().Warn("alert failed", append(logger.LogWithRun(ctx), slog.String("title", a.Title), slog.Any("error", err))...)
			continue
		}
		res.Alerts++
	}
}

func (j *Job) finish(ctx context.Context, res *Result, start time.Time, err error) (*Result, error) {
	res.Duration = j.clock().Sub(start)
	if j.Health != nil {
		j.Health.RecordRun(start, err)
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	if j.Metrics != nil {
		j.Metrics.ScheduledRuns.WithLabelValues(result).Inc()
	}

	attrs := append(logger.LogWithRun(ctx),
		slog.Int("reports", len(res.Reports)),
		slog.Any("skipped", res.Skipped),
		slog.Int("patterns", len(res.Outcome.Results)),
		slog.Int("alerts", res.Alerts),
		slog.Duration("took", res.Duration),
	)
	if err != nil {
		j.logger().Error("pipeline run failed", append(attrs, slog.Any("error", err))...)
		return res, fmt.Errorf("run %s: %w", res.RunID, err)
	}
	j.logger().Info("pipeline run done", attrs...)
	return res, nil
}

func (j *Job) clock() time.Time {
	if j.now != nil {
		return j.now()
	}
	return time.Now()
}

func (j *Job) logger() *slog.Logger {
	if j.Log != nil {
		return j.Log
	}
	return slog.Default()
}
