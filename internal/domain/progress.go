package domain

import "time"

// CellState names the cell runner's state machine states (§4.3). It is
// advisory — only metrics_compact.csv decides resume position — but it is
// still reported in progress.json for observability.
type CellState string

const (
	CellFresh      CellState = "fresh"
	CellResuming   CellState = "resuming"
	CellProducing  CellState = "producing"
	CellFinalizing CellState = "finalizing"
	CellComplete   CellState = "complete"
	CellStalled    CellState = "stalled"
)

// CellProgress is the advisory snapshot written to progress.json after every
// chunk. It is never read back to decide resume position.
type CellProgress struct {
	CellID    string     `json:"cell_id"`
	State     CellState  `json:"state"`
	NDone     int        `json:"n_done"`
	NTarget   int        `json:"n_target"`
	Params    CellParams `json:"params"`
	StartedAt time.Time  `json:"started_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}
