package storage

// index.go — secondary, non-authoritative queryable mirror of
// aggregated/grid_summary.csv, so the out-of-scope analysis/report
// collaborator can run ad hoc SQL over completed cells instead of
// reparsing CSV on every invocation. grid_summary.csv remains the
// authoritative source; this index is upserted from the same CellSummary
// values that produce each CSV row and is never read back by the
// scheduler to make resume or scheduling decisions.

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/alejandrodnm/montecarlo/internal/ports"
	_ "modernc.org/sqlite"
)

const indexSchema = `
CREATE TABLE IF NOT EXISTS cell_summaries (
    cell_id         TEXT PRIMARY KEY,
    p05_total_return REAL NOT NULL DEFAULT 0,
    p50_total_return REAL NOT NULL DEFAULT 0,
    p95_total_return REAL NOT NULL DEFAULT 0,
    p05_max_drawdown REAL NOT NULL DEFAULT 0,
    p50_max_drawdown REAL NOT NULL DEFAULT 0,
    p95_max_drawdown REAL NOT NULL DEFAULT 0,
    p05_profit_factor REAL NOT NULL DEFAULT 0,
    p50_profit_factor REAL NOT NULL DEFAULT 0,
    p95_profit_factor REAL NOT NULL DEFAULT 0,
    robust_score    REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cell_robust ON cell_summaries(robust_score DESC);
`

// SQLiteIndex is a pure-Go (no CGo) mirror of the grid summary, single
// writer per run, matching the teacher's one-connection SQLite idiom.
type SQLiteIndex struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteIndex opens (or creates) aggregated/index.db and applies the schema.
func NewSQLiteIndex(path string) (*SQLiteIndex, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteIndex: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(indexSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteIndex: apply schema: %w", err)
	}
	return &SQLiteIndex{db: db}, nil
}

// Upsert mirrors one finalized cell's summary row. Safe to call again for
// the same cell_id after the orphan sweep re-finalizes it.
func (s *SQLiteIndex) Upsert(row ports.GridSummaryRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO cell_summaries
			(cell_id, p05_total_return, p50_total_return, p95_total_return,
			 p05_max_drawdown, p50_max_drawdown, p95_max_drawdown,
			 p05_profit_factor, p50_profit_factor, p95_profit_factor, robust_score)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(cell_id) DO UPDATE SET
			p05_total_return  = excluded.p05_total_return,
			p50_total_return  = excluded.p50_total_return,
			p95_total_return  = excluded.p95_total_return,
			p05_max_drawdown  = excluded.p05_max_drawdown,
			p50_max_drawdown  = excluded.p50_max_drawdown,
			p95_max_drawdown  = excluded.p95_max_drawdown,
			p05_profit_factor = excluded.p05_profit_factor,
			p50_profit_factor = excluded.p50_profit_factor,
			p95_profit_factor = excluded.p95_profit_factor,
			robust_score      = excluded.robust_score
	`,
		row.CellID,
		row.P05["total_return_pct"], row.P50["total_return_pct"], row.P95["total_return_pct"],
		row.P05["max_drawdown_pct"], row.P50["max_drawdown_pct"], row.P95["max_drawdown_pct"],
		row.P05["profit_factor"], row.P50["profit_factor"], row.P95["profit_factor"],
		row.RobustScore,
	)
	if err != nil {
		return fmt.Errorf("storage.SQLiteIndex.Upsert: %s: %w", row.CellID, err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteIndex) Close() error {
	return s.db.Close()
}
