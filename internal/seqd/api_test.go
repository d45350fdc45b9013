package seqd

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"candleseq/internal/analysis"
	"candleseq/internal/pattern"
	"candleseq/internal/scheduler"
)

func testHandler() http.Handler {
	latest := func(_ context.Context, symbol string) (*analysis.Report, error) {
		switch symbol {
		case "EURUSD":
			return &analysis.Report{ID: "r1", Source: symbol, Candidates: []int{-1, 2}}, nil
		case "BROKEN":
			return nil, errors.New("db closed")
		}
		return nil, nil
	}
	trigger := func() (*scheduler.Result, error) {
		return &scheduler.Result{
			RunID:    "run-1",
			Reports:  []*analysis.Report{{ID: "a"}, {ID: "b"}},
			Outcome:  pattern.Outcome{Results: []pattern.Result{{Complete: true}, {}}},
			Alerts:   1,
			Duration: 1500 * time.Millisecond,
		}, nil
	}
	return newAPIHandler(latest, trigger, nil)
}

func TestLatestReportEndpoint(t *testing.T) {
	h := testHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/reports/latest?symbol=eurusd", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var rep analysis.Report
	if err := json.NewDecoder(rec.Body).Decode(&rep); err != nil {
		t.Fatal(err)
	}
	if rep.ID != "r1" || len(rep.Candidates) != 2 {
		t.Errorf("report = %+v", rep)
	}

	for path, want := range map[string]int{
		"/reports/latest":               http.StatusBadRequest,
		"/reports/latest?symbol=GBPUSD": http.StatusNotFound,
		"/reports/latest?symbol=BROKEN": http.StatusInternalServerError,
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("%s: status = %d, want %d", path, rec.Code, want)
		}
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/reports/latest?symbol=EURUSD", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestRunEndpoint(t *testing.T) {
	h := testHandler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var sum runSummary
	if err := json.NewDecoder(rec.Body).Decode(&sum); err != nil {
		t.Fatal(err)
	}
	if sum.RunID != "run-1" || sum.Reports != 2 || sum.Patterns != 2 || sum.Complete != 1 || sum.TookMs != 1500 {
		t.Errorf("summary = %+v", sum)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/run", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET status = %d", rec.Code)
	}
}

func TestRunEndpointBusy(t *testing.T) {
	h := newAPIHandler(nil, func() (*scheduler.Result, error) {
		return nil, errors.New("scheduler: run already in progress")
	}, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/run", nil))
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", rec.Code)
	}
}
