package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"candleseq/internal/analysis"
	"candleseq/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to SQLite for series loading.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadSeries reads candles for symbol/timeframe ordered by timestamp.
// Rows with non-positive prices or high < low are dropped.
func (r *Reader) ReadSeries(ctx context.Context, symbol, timeframe string, from, to time.Time) (model.Series, error) {
	upper := int64(1<<62 - 1)
	if !to.IsZero() {
		upper = to.Unix()
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close
		FROM candles
		WHERE symbol = ? AND timeframe = ? AND ts >= ? AND ts < ?
		ORDER BY ts ASC
	`, symbol, timeframe, from.Unix(), upper)
	if err != nil {
		return nil, fmt.Errorf("sqlite query candles: %w", err)
	}
	defer rows.Close()

	var s model.Series
	dropped := 0
	for rows.Next() {
		var c model.Candle
		var tsUnix int64
		if err := rows.Scan(&tsUnix, &c.Open, &c.High, &c.Low, &c.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan candles: %w", err)
		}
		if c.Open <= 0 || c.Close <= 0 || c.High < c.Low {
			dropped++
			continue
		}
		c.TS = time.Unix(tsUnix, 0).UTC()
		s = append(s, c)
	}
	if dropped > 0 {
		log.Printf("[sqlite-reader] %s %s: dropped %d malformed rows", symbol, timeframe, dropped)
	}
	return s, rows.Err()
}

// Symbols lists the symbols stored for a timeframe.
func (r *Reader) Symbols(ctx context.Context, timeframe string) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM candles WHERE timeframe = ? ORDER BY symbol`, timeframe)
	if err != nil {
		return nil, fmt.Errorf("sqlite query symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, fmt.Errorf("sqlite scan symbols: %w", err)
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// LatestReport returns the newest stored report for source, or nil, nil
// when none exists.
func (r *Reader) LatestReport(ctx context.Context, source string) (*analysis.Report, error) {
	var data string
	err := r.db.QueryRowContext(ctx, `
		SELECT report FROM analysis_runs
		WHERE source = ?
		ORDER BY created_at DESC, rowid DESC
		LIMIT 1
	`, source).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite query latest report: %w", err)
	}
	var rep analysis.Report
	if err := json.Unmarshal([]byte(data), &rep); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	return &rep, nil
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}

var _ model.SeriesReader = (*Reader)(nil)
