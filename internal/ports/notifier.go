package ports

import "github.com/alejandrodnm/montecarlo/internal/domain"

// StatusReporter presents grid progress to the user: a terminal status line
// per cell-state transition, plus an optional full table.
type StatusReporter interface {
	// CellTransitioned reports one cell's state-machine transition.
	CellTransitioned(cellID string, from, to domain.CellState)

	// PrintTable renders the full per-cell status table (used by -table and
	// status_only).
	PrintTable(rows []CellStatusRow)
}

// CellStatusRow is one row of the status table.
type CellStatusRow struct {
	CellID      string
	State       domain.CellState
	NDone       int
	NTarget     int
	RobustScore *float64 // nil until the cell has a summary.json
}
