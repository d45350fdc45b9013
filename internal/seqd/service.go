// Package seqd is the scheduled sequence-analysis daemon: it wires the
// SQLite series store, the analyzer, Redis publishing, alerts and the
// metrics server, and runs the pipeline on a cron schedule.
package seqd

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"candleseq/config"
	"candleseq/internal/analysis"
	"candleseq/internal/metrics"
	"candleseq/internal/notification"
	"candleseq/internal/pattern"
	"candleseq/internal/scheduler"
	redisstore "candleseq/internal/store/redis"
	sqlitestore "candleseq/internal/store/sqlite"
)

// Service is the top-level orchestrator for the daemon.
type Service struct {
	cfg *config.Config
	log *slog.Logger

	sqlReader *sqlitestore.Reader
	sqlWriter *sqlitestore.Writer
	publisher *redisstore.Publisher
	buffered  *redisstore.BufferedPublisher
	breaker   *redisstore.CircuitBreaker

	prom    *metrics.Metrics
	health  *metrics.HealthStatus
	metrics *metrics.Server
	api     *http.Server
	hub     *Hub

	job   *scheduler.Job
	sched *scheduler.Scheduler

	reportCh   chan *analysis.Report
	writerDone chan struct{}
}

// batchedStore queues reports for the SQLite writer's batch loop and saves
// pattern outcomes directly.
type batchedStore struct {
	ch chan<- *analysis.Report
	w  *sqlitestore.Writer
}

func (b batchedStore) SaveReports(ctx context.Context, reps []*analysis.Report) error {
	for _, rep := range reps {
		select {
		case b.ch <- rep:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

func (b batchedStore) SavePatterns(ctx context.Context, batchID string, out pattern.Outcome) error {
	return b.w.SavePatterns(ctx, batchID, out)
}

// New validates cfg and opens SQLite and (when configured) Redis.
func New(cfg *config.Config, log *slog.Logger) (*Service, error) {
	reg, err := cfg.Registry()
	if err != nil {
		return nil, err
	}
	profile, err := reg.Lookup(cfg.Profile)
	if err != nil {
		return nil, err
	}
	preset, err := cfg.ParsePreset()
	if err != nil {
		return nil, err
	}
	detectors, err := cfg.ParseDetectors()
	if err != nil {
		return nil, err
	}
	symbols := cfg.ParseSymbols()
	if len(symbols) == 0 {
		return nil, fmt.Errorf("seqd: SYMBOLS is empty")
	}

	promReg := prometheus.NewRegistry()
	svc := &Service{
		cfg:    cfg,
		log:    log.With(slog.String("component", "seqd")),
		prom:   metrics.NewMetrics(promReg),
		health: metrics.NewHealthStatus(cfg.RedisAddr != ""),
		hub:    NewHub(),

		reportCh:   make(chan *analysis.Report, 256),
		writerDone: make(chan struct{}),
	}
	svc.health.SetProfiles(reg.Names())
	svc.metrics = metrics.NewServer(cfg.MetricsAddr, svc.health, promReg)

	if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
		os.MkdirAll(dir, 0o755)
	}
	// The writer creates the schema, so it opens first.
	svc.sqlWriter, err = sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, err
	}
	svc.sqlWriter.OnCommit = func(d time.Duration) { svc.prom.SQLiteCommitDur.Observe(d.Seconds()) }
	svc.sqlReader, err = sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		svc.sqlWriter.Close()
		return nil, err
	}

	svc.job = &scheduler.Job{
		Reader:    svc.sqlReader,
		Analyzer:  analysis.New(log, analysis.WithMetrics(svc.prom), analysis.WithSearchOptions(pattern.Options{MaxBranches: cfg.MaxBranches})),
		Store:     batchedStore{ch: svc.reportCh, w: svc.sqlWriter},
		Publisher: svc.hub,
		Notifier:  buildNotifier(cfg),
		Metrics:   svc.prom,
		Health:    svc.health,
		Log:       log,
		Symbols:   symbols,
		Profile:   profile,
		Preset:    preset,
		Detectors: detectors,
		Lookback:  cfg.Lookback,
	}
	return svc, nil
}

func buildNotifier(cfg *config.Config) notification.Notifier {
	var ns notification.Multi
	if cfg.WebhookURL != "" {
		ns = append(ns, notification.NewWebhookNotifier(cfg.WebhookURL, 10*time.Second))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		ns = append(ns, notification.NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID))
	}
	if len(ns) == 0 {
		return notification.NewLogNotifier()
	}
	return ns
}

// connectRedis wires the publisher behind the circuit breaker. A failed
// connection leaves publishing disabled; the health endpoint reports it.
func (svc *Service) connectRedis(ctx context.Context) {
	if svc.cfg.RedisAddr == "" {
		svc.log.Info("redis publishing disabled")
		return
	}
	pub, err := redisstore.New(redisstore.WriterConfig{
		Addr:     svc.cfg.RedisAddr,
		Password: svc.cfg.RedisPassword,
	})
	if err != nil {
		svc.log.Error("redis unavailable, publishing disabled", slog.Any("error", err))
		return
	}
	svc.publisher = pub

	svc.breaker = redisstore.NewCircuitBreaker(5, 10*time.Second)
	svc.breaker.OnStateChange = func(from, to redisstore.State) {
		svc.prom.RedisCircuitBreakerState.Set(float64(to))
		if to == redisstore.StateOpen {
			svc.prom.RedisCircuitBreakerTrips.Inc()
		}
		svc.log.Warn("redis circuit breaker", slog.String("from", from.String()), slog.String("to", to.String()))
	}
	svc.buffered = redisstore.NewBufferedPublisher(ctx, pub, svc.breaker, 1000)
	svc.buffered.OnBuffer = svc.prom.RedisBufferedWrites.Inc
	svc.job.Publisher = scheduler.Publishers{svc.buffered, svc.hub}
}

// Run starts all subsystems and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	svc.connectRedis(ctx)

	svc.health.CheckSQLite(ctx, svc.sqlWriter.DB())
	if svc.publisher != nil {
		svc.health.CheckRedis(ctx, svc.publisher.Client())
		svc.health.StartLivenessChecker(ctx, svc.publisher.Client(), svc.sqlWriter.DB(), 15*time.Second)
	} else {
		svc.health.StartLivenessChecker(ctx, nil, svc.sqlWriter.DB(), 15*time.Second)
	}
	svc.sched = scheduler.New(ctx, svc.job, svc.log)
	if err := svc.sched.Register(svc.cfg.AnalyzeCron); err != nil {
		svc.sched = nil
		svc.shutdown()
		return err
	}

	// Stopped by closing reportCh so queued reports land before shutdown.
	go func() {
		svc.sqlWriter.Run(context.Background(), svc.reportCh)
		close(svc.writerDone)
	}()
	svc.metrics.Start()
	svc.startAPI()
	svc.sched.Start()
	if svc.cfg.RunOnStart {
		go svc.sched.RunNow()
	}

	svc.log.Info("seqd running",
		slog.String("profile", svc.job.Profile.Name),
		slog.String("preset", svc.job.Preset.Name),
		slog.Any("symbols", svc.job.Symbols),
		slog.String("cron", svc.cfg.AnalyzeCron),
	)

	<-ctx.Done()
	svc.shutdown()
	return nil
}

// shutdown stops the scheduler, drains buffered publishes and closes stores.
func (svc *Service) shutdown() {
	svc.log.Info("shutdown signal received")
	if svc.sched != nil {
		svc.sched.Stop()
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	svc.metrics.Stop(shutCtx)
	if svc.api != nil {
		svc.api.Shutdown(shutCtx)
	}
	svc.hub.Close()

	if svc.buffered != nil && svc.buffered.PendingCount() > 0 {
		svc.log.Warn("dropping buffered publishes", slog.Int("pending", svc.buffered.PendingCount()))
	}
	if svc.publisher != nil {
		svc.publisher.Close()
	}
	close(svc.reportCh)
	if svc.sched != nil {
		<-svc.writerDone
	}
	svc.sqlReader.Close()
	svc.sqlWriter.Close()
	svc.log.Info("shutdown complete")
}
