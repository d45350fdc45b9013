package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"candleseq/internal/analysis"
	"candleseq/internal/model"
	"candleseq/internal/pattern"

	_ "github.com/mattn/go-sqlite3"
)

const (
	defaultBatchSize  = 16
	defaultFlushDelay = 200 * time.Millisecond
)

// WriterConfig configures the SQLite writer.
type WriterConfig struct {
	DBPath string // path to SQLite database file, e.g. "data/candleseq.db"
}

// Writer is a single-connection SQLite writer. Candles are upserted,
// analysis reports and pattern outcomes are appended.
type Writer struct {
	db *sql.DB

	// OnCommit, when set, receives the duration of every committed transaction.
	OnCommit func(time.Duration)
}

// DB returns the underlying sql.DB for health checks.
func (w *Writer) DB() *sql.DB { return w.db }

// New creates a new SQLite Writer, initializes the database with WAL mode and schema.
func New(cfg WriterConfig) (*Writer, error) {
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Set connection pool for single-writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", cfg.DBPath)
	return &Writer{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS analysis_runs (
			id         TEXT    PRIMARY KEY,
			run_id     TEXT    NOT NULL,
			source     TEXT    NOT NULL,
			profile    TEXT    NOT NULL,
			preset     TEXT    NOT NULL,
			base_ts    INTEGER NOT NULL,
			candles    INTEGER NOT NULL,
			dc_count   INTEGER NOT NULL,
			candidates TEXT    NOT NULL,
			report     TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS signals (
			run_id   TEXT    NOT NULL,
			shift    INTEGER NOT NULL,
			step     INTEGER NOT NULL,
			idx      INTEGER NOT NULL,
			ts       INTEGER NOT NULL,
			mode     TEXT    NOT NULL,
			oc       TEXT    NOT NULL,
			prev_oc  TEXT    NOT NULL,
			used_dc  INTEGER NOT NULL,
			PRIMARY KEY (run_id, shift, mode, step)
		);

		CREATE TABLE IF NOT EXISTS patterns (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			batch_id   TEXT    NOT NULL,
			path       TEXT    NOT NULL,
			sources    TEXT    NOT NULL,
			complete   INTEGER NOT NULL,
			direction  TEXT    NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_runs_source ON analysis_runs (source, created_at);
		CREATE INDEX IF NOT EXISTS idx_runs_run ON analysis_runs (run_id);
		CREATE INDEX IF NOT EXISTS idx_patterns_batch ON patterns (batch_id);
	`)
	return err
}

// WriteSeries upserts a candle series in a single transaction.
func (w *Writer) WriteSeries(ctx context.Context, symbol, timeframe string, s model.Series) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT OR REPLACE INTO candles (symbol, timeframe, ts, open, high, low, close)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, c := range s {
			if _, err := stmt.ExecContext(ctx, symbol, timeframe, c.TS.Unix(), c.Open, c.High, c.Low, c.Close); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveReport stores an analysis report and its signals.
func (w *Writer) SaveReport(ctx context.Context, rep *analysis.Report) error {
	return w.SaveReports(ctx, []*analysis.Report{rep})
}

// SaveReports stores several reports in one transaction.
func (w *Writer) SaveReports(ctx context.Context, reps []*analysis.Report) error {
	return w.inTx(ctx, func(tx *sql.Tx) error {
		for _, rep := range reps {
			if err := insertReport(ctx, tx, rep); err != nil {
				return fmt.Errorf("report %s: %w", rep.ID, err)
			}
		}
		return nil
	})
}

func insertReport(ctx context.Context, tx *sql.Tx, rep *analysis.Report) error {
	data, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	cands, err := json.Marshal(rep.Candidates)
	if err != nil {
		return fmt.Errorf("marshal candidates: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO analysis_runs (id, run_id, source, profile, preset, base_ts, candles, dc_count, candidates, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, rep.ID, rep.RunID, rep.Source, rep.Profile, rep.Preset, rep.BaseTS.Unix(), rep.Candles, rep.DCCount,
		string(cands), string(data), rep.CreatedAt.Unix()); err != nil {
		return err
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO signals (run_id, shift, step, idx, ts, mode, oc, prev_oc, used_dc)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, or := range rep.Offsets {
		for _, s := range or.Signals {
			if _, err := stmt.ExecContext(ctx, rep.ID, or.Alignment.Offset, s.Step, s.Index, s.TS.Unix(),
				s.Mode.String(), s.OC.String(), s.PrevOC.String(), s.UsedDC); err != nil {
				return err
			}
		}
	}
	return nil
}

// SavePatterns stores the results of one pattern search under batchID.
func (w *Writer) SavePatterns(ctx context.Context, batchID string, out pattern.Outcome) error {
	now := time.Now().Unix()
	return w.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO patterns (batch_id, path, sources, complete, direction, created_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, r := range out.Results {
			path, err := json.Marshal(r.Path)
			if err != nil {
				return err
			}
			srcs, err := json.Marshal(r.Sources)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, batchID, string(path), string(srcs), r.Complete, r.Direction.String(), now); err != nil {
				return err
			}
		}
		return nil
	})
}

// Run reads reports from reportCh and stores them in batched transactions.
// Flushes every batchSize reports OR every flushDelay, whichever first.
// Blocks until ctx is cancelled or reportCh is closed.
func (w *Writer) Run(ctx context.Context, reportCh <-chan *analysis.Report) {
	batch := make([]*analysis.Report, 0, defaultBatchSize)
	timer := time.NewTimer(defaultFlushDelay)
	defer timer.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		// ctx may already be done; the final flush still has to land.
		if err := w.SaveReports(context.Background(), batch); err != nil {
			log.Printf("[sqlite] batch insert error: %v", err)
		} else {
			log.Printf("[sqlite] committed %d reports", len(batch))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return

		case rep, ok := <-reportCh:
			if !ok {
				flush()
				return
			}
			batch = append(batch, rep)
			if len(batch) >= defaultBatchSize {
				flush()
				timer.Reset(defaultFlushDelay)
			}

		case <-timer.C:
			flush()
			timer.Reset(defaultFlushDelay)
		}
	}
}

// LastRun returns the creation time of the newest report for source, or the
// zero time when none exists.
func (w *Writer) LastRun(ctx context.Context, source string) (time.Time, error) {
	var ts sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(created_at) FROM analysis_runs WHERE source = ?`, source,
	).Scan(&ts)
	if err != nil {
		return time.Time{}, err
	}
	if !ts.Valid {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64, 0).UTC(), nil
}

func (w *Writer) inTx(ctx context.Context, fn func(*sql.Tx) error) error {
	start := time.Now()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	if w.OnCommit != nil {
		w.OnCommit(time.Since(start))
	}
	return nil
}

// Close closes the database.
func (w *Writer) Close() error {
	return w.db.Close()
}

var _ model.SeriesWriter = (*Writer)(nil)
