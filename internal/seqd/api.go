package seqd

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"candleseq/internal/analysis"
	"candleseq/internal/scheduler"
)

type latestFunc func(ctx context.Context, symbol string) (*analysis.Report, error)
type triggerFunc func() (*scheduler.Result, error)

// runSummary is the /run response.
type runSummary struct {
	RunID    string   `json:"run_id"`
	Reports  int      `json:"reports"`
	Skipped  []string `json:"skipped,omitempty"`
	Patterns int      `json:"patterns"`
	Complete int      `json:"complete"`
	Capped   bool     `json:"capped"`
	Alerts   int      `json:"alerts"`
	TookMs   int64    `json:"took_ms"`
	Error    string   `json:"error,omitempty"`
}

// newAPIHandler serves:
//
//	GET  /reports/latest?symbol=EURUSD  newest report for a symbol
//	POST /run                           run the pipeline now
//	GET  /ws?symbols=EURUSD,GBPUSD      live report and pattern stream
func newAPIHandler(latest latestFunc, trigger triggerFunc, stream http.Handler) http.Handler {
	mux := http.NewServeMux()
	if stream != nil {
		mux.Handle("/ws", stream)
	}
	mux.HandleFunc("/reports/latest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "GET only", http.StatusMethodNotAllowed)
			return
		}
		symbol := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("symbol")))
		if symbol == "" {
			http.Error(w, "symbol is required", http.StatusBadRequest)
			return
		}
		rep, err := latest(r.Context(), symbol)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if rep == nil {
			http.Error(w, "no report for "+symbol, http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, rep)
	})
	mux.HandleFunc("/run", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST only", http.StatusMethodNotAllowed)
			return
		}
		res, err := trigger()
		if res == nil {
			http.Error(w, err.Error(), http.StatusConflict)
			return
		}
		sum := summarize(res)
		code := http.StatusOK
		if err != nil {
			sum.Error = err.Error()
			code = http.StatusUnprocessableEntity
		}
		writeJSON(w, code, sum)
	})
	return mux
}

func summarize(res *scheduler.Result) runSummary {
	sum := runSummary{
		RunID:    res.RunID,
		Reports:  len(res.Reports),
		Skipped:  res.Skipped,
		Patterns: len(res.Outcome.Results),
		Capped:   res.Outcome.Capped,
		Alerts:   res.Alerts,
		TookMs:   res.Duration.Milliseconds(),
	}
	for _, p := range res.Outcome.Results {
		if p.Complete {
			sum.Complete++
		}
	}
	return sum
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

// latestReport prefers the Redis cache and falls back to SQLite.
func (svc *Service) latestReport(ctx context.Context, symbol string) (*analysis.Report, error) {
	if svc.publisher != nil {
		rep, err := svc.publisher.LatestReport(ctx, svc.job.Profile.Name, symbol)
		if err == nil && rep != nil {
			return rep, nil
		}
		if err != nil {
			svc.log.Warn("redis latest report failed, using sqlite", slog.Any("error", err))
		}
	}
	return svc.sqlReader.LatestReport(ctx, symbol)
}

// startAPI launches the HTTP API server.
func (svc *Service) startAPI() {
	if svc.cfg.APIAddr == "" {
		return
	}
	svc.api = &http.Server{
		Addr:              svc.cfg.APIAddr,
		Handler:           newAPIHandler(svc.latestReport, svc.sched.RunNow, svc.hub),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		svc.log.Info("api listening", slog.String("addr", svc.cfg.APIAddr))
		if err := svc.api.ListenAndServe(); err != http.ErrServerClosed {
			svc.log.Error("api server error", slog.Any("error", err))
		}
	}()
}
