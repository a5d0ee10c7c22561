package storage

// cellfile.go implements ports.CellStore: the exclusive owner of
// per_cell/<cell_id>/ for one cell. metrics_compact.csv is append-mode and
// never atomically written — a crash mid-append can leave a malformed
// trailing line, which ReadRawMetrics surfaces rather than hides.
// progress.json and summary.json are advisory snapshots, written
// write-temp-then-rename so a reader never observes a half-written file.

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// CellFileStore roots every per-cell file under <repoPath>/per_cell/<cell_id>/.
type CellFileStore struct {
	repoPath string
}

// NewCellFileStore returns a CellStore rooted at repoPath.
func NewCellFileStore(repoPath string) *CellFileStore {
	return &CellFileStore{repoPath: repoPath}
}

func (s *CellFileStore) cellDir(cellID string) string {
	return filepath.Join(s.repoPath, "per_cell", cellID)
}

func (s *CellFileStore) metricsPath(cellID string) string {
	return filepath.Join(s.cellDir(cellID), "metrics_compact.csv")
}

func (s *CellFileStore) progressPath(cellID string) string {
	return filepath.Join(s.cellDir(cellID), "progress.json")
}

func (s *CellFileStore) summaryPath(cellID string) string {
	return filepath.Join(s.cellDir(cellID), "summary.json")
}

func (s *CellFileStore) logPath(cellID string) string {
	return filepath.Join(s.cellDir(cellID), "logs.txt")
}

// EnsureDir creates per_cell/<cell_id>/ if it does not exist.
func (s *CellFileStore) EnsureDir(cellID string) error {
	if err := os.MkdirAll(s.cellDir(cellID), 0o755); err != nil {
		return fmt.Errorf("storage.CellFileStore.EnsureDir: %s: %w", cellID, err)
	}
	return nil
}

// ReadRawMetrics streams metrics_compact.csv row by row. It tolerates a
// malformed trailing line (the signature of a crash mid-append) by
// discarding it and reporting hadTrailingPartial, but any malformed row
// that is not the last one is a hard error — that indicates corruption
// beyond what crash-safety is meant to cover.
func (s *CellFileStore) ReadRawMetrics(cellID string) ([]domain.MetricsRow, int, bool, error) {
	path := s.metricsPath(cellID)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, 0, false, nil
	}
	if err != nil {
		return nil, 0, false, fmt.Errorf("storage.CellFileStore.ReadRawMetrics: %s: %w", cellID, err)
	}
	defer f.Close()

	raw, err := csv.NewReader(f).ReadAll()
	// encoding/csv rejects a short final record as an error rather than
	// returning it; detect that case and treat it as a discarded partial
	// line instead of propagating the parse error.
	if err != nil {
		rows, n, err2 := readLenientCSV(path)
		if err2 != nil {
			return nil, 0, false, fmt.Errorf("storage.CellFileStore.ReadRawMetrics: %s: %w", cellID, err2)
		}
		return rows, n, true, nil
	}

	rows := make([]domain.MetricsRow, 0, len(raw))
	for i, fields := range raw {
		row, perr := domain.ParseMetricsRow(fields)
		if perr != nil {
			if i == len(raw)-1 {
				return rows, len(rows), true, nil
			}
			return nil, 0, false, fmt.Errorf("storage.CellFileStore.ReadRawMetrics: %s: row %d: %w", cellID, i, perr)
		}
		rows = append(rows, row)
	}
	return rows, len(raw), false, nil
}

// readLenientCSV re-reads the file line by line (bypassing csv.Reader's
// whole-file quoting validation) to recover every well-formed row preceding
// a malformed trailing one, matching §4.4's "discard malformed trailing row"
// contract.
func readLenientCSV(path string) ([]domain.MetricsRow, int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	lines := splitLines(data)
	last := len(lines) - 1
	for last >= 0 && len(lines[last]) == 0 {
		last--
	}
	rows := make([]domain.MetricsRow, 0, len(lines))
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		rec, err := csv.NewReader(strings.NewReader(line)).Read()
		if err == nil {
			var row domain.MetricsRow
			if row, err = domain.ParseMetricsRow(rec); err == nil {
				rows = append(rows, row)
				continue
			}
		}
		if i != last {
			return nil, 0, fmt.Errorf("line %d: %w", i+1, err) // malformed row that is not the trailing one
		}
	}
	return rows, len(rows), nil
}

// RewriteMetrics atomically replaces metrics_compact.csv with rows, which
// the caller (cellrunner's dedupe step) must have already sorted and
// deduplicated by PermIndex.
func (s *CellFileStore) RewriteMetrics(cellID string, rows []domain.MetricsRow) error {
	path := s.metricsPath(cellID)
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("storage.CellFileStore.RewriteMetrics: %s: %w", cellID, err)
	}
	w := csv.NewWriter(f)
	for _, r := range rows {
		if err := w.Write(r.CSVRow()); err != nil {
			f.Close()
			os.Remove(tmp)
			return fmt.Errorf("storage.CellFileStore.RewriteMetrics: %s: %w", cellID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("storage.CellFileStore.RewriteMetrics: %s: %w", cellID, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("storage.CellFileStore.RewriteMetrics: %s: %w", cellID, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("storage.CellFileStore.RewriteMetrics: %s: %w", cellID, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage.CellFileStore.RewriteMetrics: %s: %w", cellID, err)
	}
	return nil
}

// AppendMetrics appends rows to metrics_compact.csv and flushes. Not atomic
// by design: a crash mid-append is expected and handled on the next read.
func (s *CellFileStore) AppendMetrics(cellID string, rows []domain.MetricsRow) error {
	f, err := os.OpenFile(s.metricsPath(cellID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage.CellFileStore.AppendMetrics: %s: %w", cellID, err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	for _, r := range rows {
		if err := w.Write(r.CSVRow()); err != nil {
			return fmt.Errorf("storage.CellFileStore.AppendMetrics: %s: %w", cellID, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("storage.CellFileStore.AppendMetrics: %s: %w", cellID, err)
	}
	return f.Sync()
}

// WriteProgress atomically rewrites progress.json.
func (s *CellFileStore) WriteProgress(cellID string, p domain.CellProgress) error {
	return writeJSONAtomic(s.progressPath(cellID), p)
}

// WriteSummary atomically writes summary.json.
func (s *CellFileStore) WriteSummary(cellID string, sum domain.CellSummary) error {
	return writeJSONAtomic(s.summaryPath(cellID), sum)
}

// ReadSummary reads summary.json if present and well-formed.
func (s *CellFileStore) ReadSummary(cellID string) (domain.CellSummary, bool, error) {
	var sum domain.CellSummary
	data, err := os.ReadFile(s.summaryPath(cellID))
	if os.IsNotExist(err) {
		return sum, false, nil
	}
	if err != nil {
		return sum, false, fmt.Errorf("storage.CellFileStore.ReadSummary: %s: %w", cellID, err)
	}
	if err := json.Unmarshal(data, &sum); err != nil {
		return sum, false, nil // malformed summary.json is treated as absent, never fatal
	}
	return sum, true, nil
}

// AppendLog appends one line to logs.txt.
func (s *CellFileStore) AppendLog(cellID string, line string) error {
	f, err := os.OpenFile(s.logPath(cellID), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("storage.CellFileStore.AppendLog: %s: %w", cellID, err)
	}
	defer f.Close()
	if _, err := f.WriteString(line + "\n"); err != nil {
		return fmt.Errorf("storage.CellFileStore.AppendLog: %s: %w", cellID, err)
	}
	return nil
}

// ListCells returns every cell_id with an existing directory under per_cell/.
func (s *CellFileStore) ListCells() ([]string, error) {
	root := filepath.Join(s.repoPath, "per_cell")
	entries, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.CellFileStore.ListCells: %w", err)
	}
	cells := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			cells = append(cells, e.Name())
		}
	}
	return cells, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("storage: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("storage: rename %s: %w", path, err)
	}
	return nil
}

func splitLines(data []byte) []string {
	var lines []string
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, string(data[start:i]))
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, string(data[start:]))
	}
	return lines
}
