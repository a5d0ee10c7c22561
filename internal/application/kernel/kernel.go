// Package kernel implements the per-simulation perturbation pipeline:
// skip, delay, slippage, shuffle, bootstrap, and reduction to a MetricsRow.
// Every stage reads only from the RNG derived from sim_seed; no stage reads
// wall-clock time, OS entropy, or any other hidden input.
package kernel

import (
	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// Kernel runs one permutation of one cell against a fixed baseline Inputs.
// A Kernel is stateless and safe to reuse across permutations and cells; all
// per-simulation state lives in the Run call.
type Kernel struct {
	inputs *domain.Inputs
	cfg    domain.RunConfig
}

// New builds a Kernel bound to a validated, prepared Inputs.
func New(inputs *domain.Inputs, cfg domain.RunConfig) *Kernel {
	return &Kernel{inputs: inputs, cfg: cfg}
}

// BaselineProfitFactor exposes the bound Inputs' step1_report.txt-derived
// baseline profit factor (NaN when the report was absent or lacked the
// field), for the cell runner's p-value computation.
func (k *Kernel) BaselineProfitFactor() float64 {
	return k.inputs.BaselinePF
}

// Anomalies counts numerical anomalies absorbed during one Run, per the
// failure-semantics contract: the kernel never aborts, it counts and
// continues.
type Anomalies struct {
	Degenerate bool // min_trades floor unreachable after MaxSkipRedraws
	ZeroPFDenom bool
	NaNPnL      bool
}

// Run produces exactly one MetricsRow for (params, permIndex), seeded
// deterministically from baseSeed. It is pure: same inputs, same output.
func (k *Kernel) Run(params domain.CellParams, permIndex uint32, baseSeed uint32) (domain.MetricsRow, Anomalies) {
	rng := domain.NewRNG(domain.SimSeed(baseSeed, permIndex))

	executed, degenerate := applySkipMask(rng, len(k.inputs.Trades), params.PSkip, k.cfg.MinTrades, k.cfg.MaxSkipRedraws)

	pnl := make([]float64, len(k.inputs.Trades))
	for i, t := range k.inputs.Trades {
		pnl[i] = t.PnL
	}

	applyDelay(rng, k.inputs, executed, pnl, params, k.cfg)
	applySlippage(rng, k.inputs, executed, pnl, params, k.cfg)

	order := executedOrder(executed)
	order = shuffleSequence(rng, order, params)
	order = bootstrapSequence(rng, order, params)

	row, anomalies := reduce(k.inputs, order, pnl, permIndex)
	anomalies.Degenerate = degenerate
	return row, anomalies
}
