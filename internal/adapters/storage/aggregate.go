package storage

// aggregate.go implements ports.AggregateStore: the exclusive owner of the
// aggregated/ directory. run_manifest.json and heartbeat.json are
// write-temp-then-rename; progress.csv and grid_summary.csv are append-only,
// each row written by the coordinator only (never by a worker subprocess).

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/alejandrodnm/montecarlo/internal/ports"
)

// AggregateFileStore roots every aggregate file under <repoPath>/aggregated/.
type AggregateFileStore struct {
	repoPath string
}

// NewAggregateFileStore returns an AggregateStore rooted at repoPath.
func NewAggregateFileStore(repoPath string) *AggregateFileStore {
	return &AggregateFileStore{repoPath: repoPath}
}

func (s *AggregateFileStore) dir() string { return filepath.Join(s.repoPath, "aggregated") }

func (s *AggregateFileStore) ensureDir() error {
	return os.MkdirAll(s.dir(), 0o755)
}

// WriteManifest atomically writes run_manifest.json, once, at coordinator
// startup.
func (s *AggregateFileStore) WriteManifest(m ports.AggregateManifest) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteManifest: %w", err)
	}
	return writeJSONAtomic(filepath.Join(s.dir(), "run_manifest.json"), m)
}

// AppendProgressLine appends one pre-formatted CSV line to progress.csv.
func (s *AggregateFileStore) AppendProgressLine(line string) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.AppendProgressLine: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(s.dir(), "progress.csv"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage.AggregateFileStore.AppendProgressLine: %w", err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.AppendProgressLine: %w", err)
	}
	return f.Sync()
}

// WriteHeartbeat atomically rewrites heartbeat.json, once per
// HeartbeatIntervalSec tick.
func (s *AggregateFileStore) WriteHeartbeat(h ports.AggregateHeartbeat) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteHeartbeat: %w", err)
	}
	return writeJSONAtomic(filepath.Join(s.dir(), "heartbeat.json"), h)
}

// WriteGridSummaryRow appends one row to grid_summary.csv. Rows are only
// ever appended for cells that have reached Complete; a cell that
// re-finalizes after the orphan sweep produces a duplicate row, which the
// analysis collaborator is expected to dedupe by cell_id (last row wins).
func (s *AggregateFileStore) WriteGridSummaryRow(row ports.GridSummaryRow) error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteGridSummaryRow: %w", err)
	}
	path := filepath.Join(s.dir(), "grid_summary.csv")

	needsHeader := false
	if _, err := os.Stat(path); os.IsNotExist(err) {
		needsHeader = true
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteGridSummaryRow: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if needsHeader {
		if err := w.Write(gridSummaryHeader()); err != nil {
			return fmt.Errorf("storage.AggregateFileStore.WriteGridSummaryRow: header: %w", err)
		}
	}
	if err := w.Write(gridSummaryRecord(row)); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteGridSummaryRow: %s: %w", row.CellID, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteGridSummaryRow: %s: %w", row.CellID, err)
	}
	return f.Sync()
}

// WriteDone atomically writes DONE.txt, the final signal that every cell in
// the grid has reached Complete and no further progress is expected.
func (s *AggregateFileStore) WriteDone() error {
	if err := s.ensureDir(); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteDone: %w", err)
	}
	path := filepath.Join(s.dir(), "DONE.txt")
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte("done\n"), 0o644); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteDone: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage.AggregateFileStore.WriteDone: %w", err)
	}
	return nil
}

func gridSummaryMetricKeys() []string {
	return []string{"total_return_pct", "max_drawdown_pct", "profit_factor", "worst_month_pct"}
}

func gridSummaryHeader() []string {
	header := []string{"cell_id"}
	for _, m := range gridSummaryMetricKeys() {
		header = append(header, m+"_p05", m+"_p50", m+"_p95")
	}
	header = append(header, "robust_score")
	return header
}

func gridSummaryRecord(row ports.GridSummaryRow) []string {
	rec := []string{row.CellID}
	for _, m := range gridSummaryMetricKeys() {
		rec = append(rec,
			strconv.FormatFloat(row.P05[m], 'g', -1, 64),
			strconv.FormatFloat(row.P50[m], 'g', -1, 64),
			strconv.FormatFloat(row.P95[m], 'g', -1, 64),
		)
	}
	rec = append(rec, strconv.FormatFloat(row.RobustScore, 'g', -1, 64))
	return rec
}
