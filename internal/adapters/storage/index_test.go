package storage_test

import (
	"path/filepath"
	"testing"

	"github.com/alejandrodnm/montecarlo/internal/adapters/storage"
	"github.com/alejandrodnm/montecarlo/internal/ports"
	"github.com/stretchr/testify/require"
)

func TestSQLiteIndex_UpsertIsIdempotent(t *testing.T) {
	idx, err := storage.NewSQLiteIndex(filepath.Join(t.TempDir(), "index.db"))
	require.NoError(t, err)
	defer idx.Close()

	row := ports.GridSummaryRow{
		CellID:      "0_0_0_0_0",
		P05:         map[string]float64{"total_return_pct": -0.1},
		P50:         map[string]float64{"total_return_pct": 0.1},
		P95:         map[string]float64{"total_return_pct": 0.3},
		RobustScore: 0.5,
	}
	require.NoError(t, idx.Upsert(row))

	row.RobustScore = 0.9
	require.NoError(t, idx.Upsert(row)) // re-finalization after an orphan sweep must overwrite, not duplicate
}
