package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/montecarlo/internal/adapters/storage"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCellFileStore_AppendAndReadRawMetrics(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewCellFileStore(dir)
	require.NoError(t, s.EnsureDir("1_2_3_0_0"))

	rows := []domain.MetricsRow{
		{PermIndex: 0, TotalReturnPct: 0.1, ProfitFactor: 1.5, TradesExecuted: 10},
		{PermIndex: 1, TotalReturnPct: 0.2, ProfitFactor: 1.6, TradesExecuted: 11},
	}
	require.NoError(t, s.AppendMetrics("1_2_3_0_0", rows))

	got, nRaw, partial, err := s.ReadRawMetrics("1_2_3_0_0")
	require.NoError(t, err)
	assert.False(t, partial)
	assert.Equal(t, 2, nRaw)
	assert.Equal(t, rows, got)
}

func TestCellFileStore_ReadRawMetrics_MissingFile(t *testing.T) {
	s := storage.NewCellFileStore(t.TempDir())
	rows, n, partial, err := s.ReadRawMetrics("nope")
	require.NoError(t, err)
	assert.Nil(t, rows)
	assert.Equal(t, 0, n)
	assert.False(t, partial)
}

func TestCellFileStore_ReadRawMetrics_DiscardsMalformedTrailingLine(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewCellFileStore(dir)
	require.NoError(t, s.EnsureDir("cell"))
	require.NoError(t, s.AppendMetrics("cell", []domain.MetricsRow{
		{PermIndex: 0, TotalReturnPct: 0.1, TradesExecuted: 5},
		{PermIndex: 1, TotalReturnPct: 0.2, TradesExecuted: 5},
	}))

	path := filepath.Join(dir, "per_cell", "cell", "metrics_compact.csv")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString("2,0.3,0.0") // short trailing line, simulates a crash mid-write
	require.NoError(t, err)
	require.NoError(t, f.Close())

	rows, nRaw, partial, err := s.ReadRawMetrics("cell")
	require.NoError(t, err)
	assert.True(t, partial)
	assert.Equal(t, 2, nRaw)
	assert.Len(t, rows, 2)
}

func TestCellFileStore_RewriteMetrics_Atomic(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewCellFileStore(dir)
	require.NoError(t, s.EnsureDir("cell"))
	require.NoError(t, s.AppendMetrics("cell", []domain.MetricsRow{{PermIndex: 5, TradesExecuted: 1}}))

	replacement := []domain.MetricsRow{{PermIndex: 0, TradesExecuted: 2}, {PermIndex: 1, TradesExecuted: 3}}
	require.NoError(t, s.RewriteMetrics("cell", replacement))

	path := filepath.Join(dir, "per_cell", "cell", "metrics_compact.csv.tmp")
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err), "tmp file must not survive a successful rewrite")

	got, _, _, err := s.ReadRawMetrics("cell")
	require.NoError(t, err)
	assert.Equal(t, replacement, got)
}

func TestCellFileStore_ProgressAndSummaryRoundTrip(t *testing.T) {
	s := storage.NewCellFileStore(t.TempDir())
	require.NoError(t, s.EnsureDir("cell"))

	prog := domain.CellProgress{CellID: "cell", State: domain.CellProducing, NDone: 100, NTarget: 200}
	require.NoError(t, s.WriteProgress("cell", prog))

	sum := domain.CellSummary{CellID: "cell", NTarget: 200, NRowsDeduped: 200}
	require.NoError(t, s.WriteSummary("cell", sum))

	got, ok, err := s.ReadSummary("cell")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, sum, got)
}

func TestCellFileStore_ReadSummary_Absent(t *testing.T) {
	s := storage.NewCellFileStore(t.TempDir())
	_, ok, err := s.ReadSummary("cell")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestCellFileStore_ListCells(t *testing.T) {
	dir := t.TempDir()
	s := storage.NewCellFileStore(dir)
	require.NoError(t, s.EnsureDir("a"))
	require.NoError(t, s.EnsureDir("b"))

	cells, err := s.ListCells()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, cells)
}
