package kernel_test

import (
	"testing"
	"time"

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
			EntryTime:  entry,
			ExitTime:   exit,
			EntryPrice: 100,
			ExitPrice:  100 + pnlPerTrade,
			Quantity:   1,
			Side:       domain.SideLong,
			PnL:        pnlPerTrade,
		}
		eq += pnlPerTrade
		equity[i+1] = domain.EquityPoint{Timestamp: exit, Equity: eq}
	}
	in := &domain.Inputs{Trades: trades, Equity: equity, InitialCapital: initialCapital}
	require.NoError(t, in.Validate())
	in.Prepare()
	return in
}

func TestKernel_BaselineIdentity(t *testing.T) {
	in := flatInputs(t, 100, 10, 10_000)
	cfg := domain.DefaultRunConfig()
	cfg.MinTrades = 0
	k := kernel.New(in, cfg)

	params := domain.CellParams{} // all-zero perturbations

	for perm := uint32(0); perm < 50; perm++ {
		row, _ := k.Run(params, perm, 1)
		assert.InDelta(t, 0.10, row.TotalReturnPct, 1e-9)
		assert.InDelta(t, 0.0, row.MaxDrawdownPct, 1e-9)
		assert.Equal(t, domain.ProfitFactorSentinel, row.ProfitFactor)
		assert.Equal(t, 100, row.TradesExecuted)
	}
}

func TestKernel_Deterministic(t *testing.T) {
	in := flatInputs(t, 100, 10, 10_000)
	cfg := domain.DefaultRunConfig()
	k := kernel.New(in, cfg)

	params := domain.CellParams{PSkip: 0.05, SlipMax: 50}
	base := domain.BaseSeed(1337, "1_1_0_0_0", domain.DefaultSeedStride)

	row1, _ := k.Run(params, 17, base)
	row2, _ := k.Run(params, 17, base)
	assert.Equal(t, row1, row2)
}

func TestKernel_SkipZeroIsIdentity(t *testing.T) {
	in := flatInputs(t, 50, 5, 1000)
	cfg := domain.DefaultRunConfig()
	k := kernel.New(in, cfg)
	row, _ := k.Run(domain.CellParams{PSkip: 0}, 0, 42)
	assert.Equal(t, 50, row.TradesExecuted)
}

func TestKernel_DelayZeroIsIdentity(t *testing.T) {
	in := flatInputs(t, 20, 5, 1000)
	cfg := domain.DefaultRunConfig()
	k := kernel.New(in, cfg)
	baseline, _ := k.Run(domain.CellParams{}, 0, 42)
	delayed, _ := k.Run(domain.CellParams{DelayBarsMax: 0}, 0, 42)
	assert.Equal(t, baseline, delayed)
}

func TestKernel_SkipMaskDegenerateFlagged(t *testing.T) {
	in := flatInputs(t, 40, 5, 1000)
	cfg := domain.DefaultRunConfig()
	cfg.MinTrades = 30
	cfg.MaxSkipRedraws = 50
	k := kernel.New(in, cfg)

	row, anomalies := k.Run(domain.CellParams{PSkip: 1.0}, 0, 1)
	assert.True(t, anomalies.Degenerate)
	assert.GreaterOrEqual(t, row.TradesExecuted, 0)
}

func TestKernel_ConservativeDelay(t *testing.T) {
	n := 10
	trades := make([]domain.Trade, n)
	bars := make([]domain.OhlcBar, n+2)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range bars {
		ts := base.Add(time.Duration(i) * time.Hour)
		bars[i] = domain.OhlcBar{Timestamp: ts, Open: 100 - float64(i), High: 100, Low: 90, Close: 99}
	}
	equity := []domain.EquityPoint{{Timestamp: base, Equity: 1000}, {Timestamp: base.Add(time.Duration(n) * time.Hour), Equity: 1000}}
	for i := 0; i < n; i++ {
		entry := bars[i].Timestamp
		exit := bars[i+1].Timestamp
		trades[i] = domain.Trade{
			EntryTime: entry, ExitTime: exit,
			EntryPrice: bars[i].Open, ExitPrice: bars[i+1].Open,
			Quantity: 1, Side: domain.SideLong, PnL: bars[i+1].Open - bars[i].Open,
		}
	}
	in := &domain.Inputs{Trades: trades, Equity: equity, Bars: bars, InitialCapital: 1000}
	require.NoError(t, in.Validate())
	in.Prepare()

	cfg := domain.DefaultRunConfig()
	k := kernel.New(in, cfg)
	baseline, _ := k.Run(domain.CellParams{}, 0, 1)

	for perm := uint32(0); perm < 20; perm++ {
		row, _ := k.Run(domain.CellParams{DelayBarsMax: 1}, perm, 1)
		assert.LessOrEqual(t, row.TotalReturnPct, baseline.TotalReturnPct+1e-9)
	}
}
