package metrics

import (
	"context"
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the sequence engine.
type Metrics struct {
	// Analysis
	AnalysesTotal   *prometheus.CounterVec // labels: profile
	AnalyzeDur      prometheus.Histogram
	DCCandlesTotal  prometheus.Counter
	AlignmentsTotal *prometheus.CounterVec // labels: status
	FallbacksTotal  prometheus.Counter
	UnresolvedSteps prometheus.Counter
	PredictedSteps  prometheus.Counter
	SignalsTotal    *prometheus.CounterVec // labels: detector

	// Pattern search
	PatternSearchDur    prometheus.Histogram
	PatternResultsTotal *prometheus.CounterVec // labels: complete
	PatternCappedTotal  prometheus.Counter

	// Stores
	SQLiteCommitDur          prometheus.Histogram
	RedisPublishDur          prometheus.Histogram
	RedisCircuitBreakerState prometheus.Gauge // 0=closed, 1=open, 2=half-open
	RedisCircuitBreakerTrips prometheus.Counter
	RedisBufferedWrites      prometheus.Counter

	// Scheduler
	ScheduledRuns *prometheus.CounterVec // labels: result=ok|error
}

// NewMetrics registers all metrics on reg and returns them.
// Pass prometheus.DefaultRegisterer for process-wide metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqengine_analyses_total",
			Help: "Series analyses run (by timeframe profile)",
		}, []string{"profile"}),
		AnalyzeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqengine_analyze_duration_seconds",
			Help:    "Wall time of one series analysis",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}),
		DCCandlesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_dc_candles_total",
			Help: "Candles classified as distorted",
		}),
		AlignmentsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqengine_alignments_total",
			Help: "Offset alignments by resolution status",
		}, []string{"status"}),
		FallbacksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_alignment_fallbacks_total",
			Help: "Offset alignments resolved through the calendar fallback",
		}),
		UnresolvedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_unresolved_steps_total",
			Help: "Step targets left unresolved",
		}),
		PredictedSteps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_predicted_steps_total",
			Help: "Step targets given an advisory predicted timestamp",
		}),
		SignalsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqengine_signals_total",
			Help: "Signals accepted (by detector)",
		}, []string{"detector"}),

		PatternSearchDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqengine_pattern_search_duration_seconds",
			Help:    "Wall time of one XYZ pattern search",
			Buckets: []float64{0.00001, 0.0001, 0.001, 0.01, 0.1, 1},
		}),
		PatternResultsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqengine_pattern_results_total",
			Help: "XYZ patterns produced (complete=true|false)",
		}, []string{"complete"}),
		PatternCappedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_pattern_capped_total",
			Help: "Pattern searches that hit the branch cap",
		}),

		SQLiteCommitDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqengine_sqlite_commit_duration_seconds",
			Help:    "SQLite report commit latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisPublishDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "seqengine_redis_publish_duration_seconds",
			Help:    "Redis report publish latency",
			Buckets: prometheus.DefBuckets,
		}),
		RedisCircuitBreakerState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "seqengine_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}),
		RedisCircuitBreakerTrips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_redis_circuit_breaker_trips_total",
			Help: "Times the Redis circuit breaker tripped open",
		}),
		RedisBufferedWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "seqengine_redis_buffered_writes_total",
			Help: "Publishes buffered locally during Redis circuit breaker open state",
		}),

		ScheduledRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "seqengine_scheduled_runs_total",
			Help: "Scheduled analysis runs by result",
		}, []string{"result"}),
	}

	reg.MustRegister(
		m.AnalysesTotal,
		m.AnalyzeDur,
		m.DCCandlesTotal,
		m.AlignmentsTotal,
		m.FallbacksTotal,
		m.UnresolvedSteps,
		m.PredictedSteps,
		m.SignalsTotal,
		m.PatternSearchDur,
		m.PatternResultsTotal,
		m.PatternCappedTotal,
		m.SQLiteCommitDur,
		m.RedisPublishDur,
		m.RedisCircuitBreakerState,
		m.RedisCircuitBreakerTrips,
		m.RedisBufferedWrites,
		m.ScheduledRuns,
	)

	return m
}

// HealthStatus represents the daemon health.
type HealthStatus struct {
	mu sync.RWMutex

	RedisConnected bool      `json:"redis_connected"`
	SQLiteOK       bool      `json:"sqlite_ok"`
	LastRunAt      time.Time `json:"last_run_at"`
	LastRunErr     string    `json:"last_run_err"`
	Profiles       []string  `json:"profiles"`

	// Liveness probe results
	RedisLatencyMs  float64   `json:"redis_latency_ms"`
	SQLiteLatencyMs float64   `json:"sqlite_latency_ms"`
	LastCheckAt     time.Time `json:"last_check_at"`
	StartedAt       time.Time `json:"started_at"`

	// redisRequired is false when publishing is disabled.
	redisRequired bool
}

// NewHealthStatus returns a default health status.
func NewHealthStatus(redisRequired bool) *HealthStatus {
	return &HealthStatus{
		StartedAt:     time.Now(),
		redisRequired: redisRequired,
	}
}

func (h *HealthStatus) SetProfiles(names []string) {
	h.mu.Lock()
	h.Profiles = names
	h.mu.Unlock()
}

// RecordRun stores the outcome of the latest scheduled run.
func (h *HealthStatus) RecordRun(at time.Time, err error) {
	h.mu.Lock()
	h.LastRunAt = at
	h.LastRunErr = ""
	if err != nil {
		h.LastRunErr = err.Error()
	}
	h.mu.Unlock()
}

// CheckRedis pings Redis and records latency + connectivity.
func (h *HealthStatus) CheckRedis(ctx context.Context, rdb *goredis.Client) {
	start := time.Now()
	err := rdb.Ping(ctx).Err()
	latency := time.Since(start)

	h.mu.Lock()
	h.RedisConnected = err == nil
	h.RedisLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// CheckSQLite runs a trivial query and records latency + health.
func (h *HealthStatus) CheckSQLite(ctx context.Context, db *sql.DB) {
	start := time.Now()
	err := db.PingContext(ctx)
	latency := time.Since(start)

	h.mu.Lock()
	h.SQLiteOK = err == nil
	h.SQLiteLatencyMs = float64(latency.Microseconds()) / 1000.0
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker runs periodic dependency checks.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, rdb *goredis.Client, sqlDB *sql.DB, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probeCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				if rdb != nil {
					h.CheckRedis(probeCtx, rdb)
				}
				if sqlDB != nil {
					h.CheckSQLite(probeCtx, sqlDB)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	redisDown := h.redisRequired && !h.RedisConnected
	if !h.SQLiteOK || redisDown || h.LastRunErr != "" {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if !h.SQLiteOK && redisDown {
		overallStatus = "unhealthy"
	}

	lastRun := ""
	if !h.LastRunAt.IsZero() {
		lastRun = h.LastRunAt.Format(time.RFC3339)
	}

	status := struct {
		Status          string   `json:"status"`
		Uptime          string   `json:"uptime"`
		RedisConnected  bool     `json:"redis_connected"`
		RedisLatencyMs  float64  `json:"redis_latency_ms"`
		SQLiteOK        bool     `json:"sqlite_ok"`
		SQLiteLatencyMs float64  `json:"sqlite_latency_ms"`
		LastRunAt       string   `json:"last_run_at"`
		LastRunErr      string   `json:"last_run_err,omitempty"`
		Profiles        []string `json:"profiles"`
		LastCheckAt     string   `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		RedisConnected:  h.RedisConnected,
		RedisLatencyMs:  h.RedisLatencyMs,
		SQLiteOK:        h.SQLiteOK,
		SQLiteLatencyMs: h.SQLiteLatencyMs,
		LastRunAt:       lastRun,
		LastRunErr:      h.LastRunErr,
		Profiles:        h.Profiles,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	health *HealthStatus
	addr   string
	srv    *http.Server
}

// NewServer creates a metrics and health server over the given gatherer.
func NewServer(addr string, health *HealthStatus, gatherer prometheus.Gatherer) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", health.ServeHTTP)

	return &Server{
		health: health,
		addr:   addr,
		srv: &http.Server{
			Addr:    addr,
			Handler: mux,
		},
	}
}

// Handler exposes the mux for tests.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// Start launches the HTTP server in a goroutine.
func (s *Server) Start() {
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			log.Printf("[metrics] server error: %v", err)
		}
	}()
}

// Stop gracefully shuts down the metrics server.
func (s *Server) Stop(ctx context.Context) {
	s.srv.Shutdown(ctx)
}
