package kernel

import "github.com/alejandrodnm/montecarlo/internal/domain"

// applyDelay mutates pnl in place for every executed trade, applying the
// fill-delay model (OHLC when bars are available, approximate otherwise),
// then the conservative clamp and adverse cap. Delay is applied before
// slippage: slippage (next stage) is computed against the already-delayed
// PnL, per the kernel's ordering rationale.
func applyDelay(rng *domain.RNG, in *domain.Inputs, executed []bool, pnl []float64, params domain.CellParams, cfg domain.RunConfig) {
	if params.DelayBarsMax <= 0 {
		return
	}

	ohlc := len(in.Bars) > 0
	for i, t := range in.Trades {
		if !executed[i] {
			continue
		}

		kEntry, kExit := drawDelayBars(rng, params.DelayBarsMax, cfg.DelaySideMode)

		var delayedEntry, delayedExit float64
		if ohlc {
			delayedEntry = ohlcDelayedPrice(in, in.EntryBarIdx[i], kEntry, t.EntryPrice)
			delayedExit = ohlcDelayedPrice(in, in.ExitBarIdx[i], kExit, t.ExitPrice)
		} else {
			delayedEntry = t.EntryPrice * compoundedReturn(rng, in.BarReturns, kEntry)
			delayedExit = t.ExitPrice * compoundedReturn(rng, in.BarReturns, kExit)
		}

		delayedPnL := recomputePnL(t, delayedEntry, delayedExit)

		original := pnl[i]
		// Conservative clamp: delay can only hurt.
		if delayedPnL > original {
			delayedPnL = original
		}
		// Adverse cap.
		floor := original - cfg.DelayAdverseCapR*t.RiskDollars
		if delayedPnL < floor {
			delayedPnL = floor
		}
		pnl[i] = delayedPnL
	}
}

func drawDelayBars(rng *domain.RNG, maxBars int, mode domain.DelaySideMode) (kEntry, kExit int) {
	if mode == domain.DelayOneSide {
		if rng.Intn(2) == 0 {
			return rng.Intn(maxBars + 1), 0
		}
		return 0, rng.Intn(maxBars + 1)
	}
	return rng.Intn(maxBars + 1), rng.Intn(maxBars + 1)
}

// ohlcDelayedPrice looks up open[idx+k] bounded by the last bar index. If the
// trade has no matching bar (idx < 0), the original price passes through
// unchanged — there is nothing to delay against.
func ohlcDelayedPrice(in *domain.Inputs, idx, k int, original float64) float64 {
	if idx < 0 || len(in.Bars) == 0 {
		return original
	}
	target := idx + k
	if last := len(in.Bars) - 1; target > last {
		target = last
	}
	return in.Bars[target].Open
}

// compoundedReturn draws k bar-return samples with replacement and compounds
// them multiplicatively into a price factor, for approximate-mode delay.
func compoundedReturn(rng *domain.RNG, rets []float64, k int) float64 {
	factor := 1.0
	if len(rets) == 0 {
		return factor
	}
	for i := 0; i < k; i++ {
		r := rets[rng.Intn(len(rets))]
		factor *= 1 + r
	}
	return factor
}

func recomputePnL(t domain.Trade, entryPrice, exitPrice float64) float64 {
	if t.Side == domain.SideShort {
		return (entryPrice - exitPrice) * t.Quantity
	}
	return (exitPrice - entryPrice) * t.Quantity
}
