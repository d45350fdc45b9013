package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewMetrics_Register(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SignalsTotal.WithLabelValues("iou").Add(3)
	m.PatternCappedTotal.Inc()

	if got := testutil.ToFloat64(m.SignalsTotal.WithLabelValues("iou")); got != 3 {
		t.Errorf("signals = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.PatternCappedTotal); got != 1 {
		t.Errorf("capped = %v, want 1", got)
	}
}

func TestServer_MetricsAndHealth(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	m.DCCandlesTotal.Add(7)

	health := NewHealthStatus(false)
	health.SQLiteOK = true
	srv := NewServer(":0", health, reg)

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), "seqengine_dc_candles_total 7") {
		t.Errorf("metrics output missing counter:\n%s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth_DegradedOnRunError(t *testing.T) {
	health := NewHealthStatus(false)
	health.SQLiteOK = true
	health.RecordRun(time.Now(), errors.New("no anchor"))

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable || !strings.Contains(rec.Body.String(), "no anchor") {
		t.Errorf("healthz = %d %s", rec.Code, rec.Body.String())
	}
}

func TestHealth_RedisRequired(t *testing.T) {
	health := NewHealthStatus(true)
	health.SQLiteOK = true

	rec := httptest.NewRecorder()
	health.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected degraded when redis is required and down, got %d", rec.Code)
	}
}
