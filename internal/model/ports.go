package model

import (
	"context"
	"time"
)

// ── Storage Port Interfaces ──
// These interfaces decouple the engine's callers from concrete storage
// (SQLite today). The engine itself never touches them.

// SeriesReader loads candle series for analysis.
type SeriesReader interface {
	// ReadSeries returns the candles of symbol/timeframe with from <= ts < to,
	// ascending. A zero to means no upper bound.
	ReadSeries(ctx context.Context, symbol, timeframe string, from, to time.Time) (Series, error)

	// Close releases underlying resources.
	Close() error
}

// SeriesWriter stores candle series.
type SeriesWriter interface {
	// WriteSeries upserts candles for symbol/timeframe.
	WriteSeries(ctx context.Context, symbol, timeframe string, s Series) error

	// Close releases underlying resources.
	Close() error
}
