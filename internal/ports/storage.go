package ports

import "github.com/alejandrodnm/montecarlo/internal/domain"

// CellStore is the exclusive owner of everything under
// per_cell/<cell_id>/ for one cell. Every method operates on a single
// cell_id; no method ever touches another cell's files.
type CellStore interface {
	// ReadRawMetrics streams metrics_compact.csv row by row, returning every
	// successfully-parsed row, the count of those parsed rows (nRowsRaw,
	// including duplicates, excluding a discarded trailing line), and whether
	// a malformed trailing line was discarded. It
	// never sorts or dedupes — that is cellrunner's job.
	ReadRawMetrics(cellID string) (rows []domain.MetricsRow, nRowsRaw int, hadTrailingPartial bool, err error)

	// RewriteMetrics atomically replaces metrics_compact.csv with rows, which
	// must already be sorted and deduplicated by the caller.
	RewriteMetrics(cellID string, rows []domain.MetricsRow) error

	// AppendMetrics appends rows to metrics_compact.csv in append mode and
	// flushes. Not atomic: a crash mid-append can leave a partial line,
	// which ReadRawMetrics/dedupe must tolerate.
	AppendMetrics(cellID string, rows []domain.MetricsRow) error

	// WriteProgress atomically rewrites progress.json.
	WriteProgress(cellID string, p domain.CellProgress) error

	// WriteSummary atomically writes summary.json.
	WriteSummary(cellID string, s domain.CellSummary) error

	// ReadSummary reads summary.json if present and well-formed.
	ReadSummary(cellID string) (domain.CellSummary, bool, error)

	// AppendLog appends one line to logs.txt.
	AppendLog(cellID string, line string) error

	// EnsureDir creates per_cell/<cell_id>/ if it does not exist.
	EnsureDir(cellID string) error

	// ListCells returns every cell_id with an existing directory.
	ListCells() ([]string, error)
}

// AggregateStore is the exclusive owner of the aggregated/ directory.
type AggregateStore interface {
	WriteManifest(m AggregateManifest) error
	AppendProgressLine(line string) error
	WriteHeartbeat(h AggregateHeartbeat) error
	WriteGridSummaryRow(row GridSummaryRow) error
	WriteDone() error
}

// AggregateManifest is the content of aggregated/run_manifest.json.
type AggregateManifest struct {
	RunID      string            `json:"run_id"`
	RunName    string            `json:"run_name"`
	GlobalSeed uint32            `json:"global_seed"`
	NPerCell   int                `json:"n_per_cell"`
	Grid       map[string]any    `json:"grid"`
	StartedAt  string            `json:"started_at"`
}

// AggregateHeartbeat is the content of aggregated/heartbeat.json, rewritten
// every HeartbeatIntervalSec.
type AggregateHeartbeat struct {
	RunID          string `json:"run_id"`
	CellsTotal     int    `json:"cells_total"`
	CellsComplete  int    `json:"cells_complete"`
	CellsStalled   int    `json:"cells_stalled"`
	UpdatedAt      string `json:"updated_at"`
}

// GridSummaryRow is one row of aggregated/grid_summary.csv.
type GridSummaryRow struct {
	CellID      string
	P05         map[string]float64
	P50         map[string]float64
	P95         map[string]float64
	RobustScore float64
}
