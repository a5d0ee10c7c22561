package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/montecarlo/internal/adapters/storage"
	"github.com/alejandrodnm/montecarlo/internal/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAggregateFileStore_WriteManifest(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewAggregateFileStore(dir)

	m := ports.AggregateManifest{RunID: "run-1", RunName: "smoke", GlobalSeed: 1337, NPerCell: 100}
	require.NoError(t, s.WriteManifest(m))

	data, err := os.ReadFile(filepath.Join(dir, "aggregated", "run_manifest.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "run-1")
}

func TestAggregateFileStore_AppendProgressLine(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewAggregateFileStore(dir)

	require.NoError(t, s.AppendProgressLine("t=1,cells_complete=0"))
	require.NoError(t, s.AppendProgressLine("t=2,cells_complete=1"))

	data, err := os.ReadFile(filepath.Join(dir, "aggregated", "progress.csv"))
	require.NoError(t, err)
	assert.Equal(t, "t=1,cells_complete=0\nt=2,cells_complete=1\n", string(data))
}

func TestAggregateFileStore_WriteHeartbeat_Atomic(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewAggregateFileStore(dir)

	require.NoError(t, s.WriteHeartbeat(ports.AggregateHeartbeat{RunID: "run-1", CellsTotal: 10}))
	require.NoError(t, s.WriteHeartbeat(ports.AggregateHeartbeat{RunID: "run-1", CellsTotal: 10, CellsComplete: 3}))

	_, err := os.Stat(filepath.Join(dir, "aggregated", "heartbeat.json.tmp"))
	assert.True(t, os.IsNotExist(err))
}

func TestAggregateFileStore_WriteGridSummaryRow_WritesHeaderOnce(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewAggregateFileStore(dir)

	row := ports.GridSummaryRow{
		CellID:      "0_0_0_0_0",
		P05:         map[string]float64{"total_return_pct": -0.1, "max_drawdown_pct": 0.05, "profit_factor": 0.8, "worst_month_pct": -0.2},
		P50:         map[string]float64{"total_return_pct": 0.1, "max_drawdown_pct": 0.1, "profit_factor": 1.2, "worst_month_pct": -0.05},
		P95:         map[string]float64{"total_return_pct": 0.3, "max_drawdown_pct": 0.2, "profit_factor": 1.8, "worst_month_pct": 0.01},
		RobustScore: 0.42,
	}
	require.NoError(t, s.WriteGridSummaryRow(row))
	require.NoError(t, s.WriteGridSummaryRow(row))

	data, err := os.ReadFile(filepath.Join(dir, "aggregated", "grid_summary.csv"))
	require.NoError(t, err)
	lines := splitNonEmpty(string(data))
	assert.Len(t, lines, 3) // 1 header + 2 rows
	assert.Equal(t, "cell_id", lines[0][:7])
}

func TestAggregateFileStore_WriteDone(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewAggregateFileStore(dir)
	require.NoError(t, s.WriteDone())

	_, err := os.Stat(filepath.Join(dir, "aggregated", "DONE.txt"))
	assert.NoError(t, err)
}

func splitNonEmpty(s string) []string {
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
