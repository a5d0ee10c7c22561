package cellrunner_test

import (
	"context"
	"testing"
	"time"

	"github.com/alejandrodnm/montecarlo/internal/adapters/storage"
	"github.com/alejandrodnm/montecarlo/internal/application/cellrunner"
	"github.com/alejandrodnm/montecarlo/internal/application/kernel"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func flatInputs(t *testing.T, n int, pnlPerTrade, initialCapital float64) *domain.Inputs {
	t.Helper()
	trades := make([]domain.Trade, n)
	equity := make([]domain.EquityPoint, n+1)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	eq := initialCapital
	equity[0] = domain.EquityPoint{Timestamp: base, Equity: eq}
	for i := 0; i < n; i++ {
		entry := base.Add(time.Duration(i) * 24 * time.Hour)
		exit := entry.Add(time.Hour)
		trades[i] = domain.Trade{
			EntryTime: entry, ExitTime: exit,
			EntryPrice: 100, ExitPrice: 100 + pnlPerTrade,
			Quantity: 1, Side: domain.SideLong, PnL: pnlPerTrade,
		}
		eq += pnlPerTrade
		equity[i+1] = domain.EquityPoint{Timestamp: exit, Equity: eq}
	}
	in := &domain.Inputs{Trades: trades, Equity: equity, InitialCapital: initialCapital}
	require.NoError(t, in.Validate())
	in.Prepare()
	return in
}

func TestRunner_FreshToComplete(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewCellFileStore(dir)
	in := flatInputs(t, 100, 10, 10_000)
	cfg := domain.DefaultRunConfig()
	cfg.CheckpointEvery = 7 // deliberately not a divisor of n_target to exercise the final short chunk
	k := kernel.New(in, cfg)
	r := cellrunner.New(store, k, cfg, nil)

	res, err := r.RunCell(context.Background(), "0_0_0_0_0", domain.CellParams{}, 1, 50)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, domain.CellComplete, res.State)
	assert.Equal(t, 50, res.Summary.NRowsDeduped)
	assert.Equal(t, 0, res.Summary.NDuplicatesDropped)

	sum, ok, err := store.ReadSummary("0_0_0_0_0")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, res.Summary, sum)
}

func TestRunner_ResumesFromPartialLog(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewCellFileStore(dir)
	in := flatInputs(t, 100, 10, 10_000)
	cfg := domain.DefaultRunConfig()
	cfg.CheckpointEvery = 10
	k := kernel.New(in, cfg)
	r := cellrunner.New(store, k, cfg, nil)

	require.NoError(t, store.EnsureDir("cell"))
	var rows []domain.MetricsRow
	for perm := uint32(0); perm < 37; perm++ {
		row, _ := k.Run(domain.CellParams{}, perm, 1)
		rows = append(rows, row)
	}
	require.NoError(t, store.AppendMetrics("cell", rows))

	res, err := r.RunCell(context.Background(), "cell", domain.CellParams{}, 1, 50)
	require.NoError(t, err)
	assert.True(t, res.Finished)
	assert.Equal(t, 50, res.Summary.NRowsDeduped)

	got, nRaw, partial, err := store.ReadRawMetrics("cell")
	require.NoError(t, err)
	assert.False(t, partial)
	assert.Equal(t, 50, nRaw)
	assert.Len(t, got, 50)
	for i, row := range got {
		assert.Equal(t, uint32(i), row.PermIndex)
	}
}

func TestRunner_CancelledContextReturnsProducingWithoutLosingWork(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewCellFileStore(dir)
	in := flatInputs(t, 100, 10, 10_000)
	cfg := domain.DefaultRunConfig()
	cfg.CheckpointEvery = 5
	k := kernel.New(in, cfg)
	r := cellrunner.New(store, k, cfg, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.RunCell(ctx, "cell", domain.CellParams{}, 1, 50)
	require.NoError(t, err)
	assert.False(t, res.Finished)
	assert.Equal(t, domain.CellProducing, res.State)
}

func TestRunner_AlreadyCompleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	store := storage.NewCellFileStore(dir)
	in := flatInputs(t, 100, 10, 10_000)
	cfg := domain.DefaultRunConfig()
	k := kernel.New(in, cfg)
	r := cellrunner.New(store, k, cfg, nil)

	first, err := r.RunCell(context.Background(), "cell", domain.CellParams{}, 1, 30)
	require.NoError(t, err)
	require.True(t, first.Finished)

	second, err := r.RunCell(context.Background(), "cell", domain.CellParams{}, 1, 30)
	require.NoError(t, err)
	assert.True(t, second.Finished)
	assert.Equal(t, first.Summary, second.Summary)
}
