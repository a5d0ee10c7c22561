package kernel

import "github.com/alejandrodnm/montecarlo/internal/domain"

// applySlippage subtracts a per-trade slippage cost from pnl in place, for
// every executed trade, using the already-delayed PnL as the base — delay
// runs before slippage per the kernel's stage ordering.
func applySlippage(rng *domain.RNG, in *domain.Inputs, executed []bool, pnl []float64, params domain.CellParams, cfg domain.RunConfig) {
	if params.SlipMax <= 0 {
		return
	}
	for i, t := range in.Trades {
		if !executed[i] {
			continue
		}
		u := rng.Float64()
		intensity := intensityFor(in.States[i], cfg.IntensityMode)
		m := 1 + intensity

		var base float64
		switch cfg.SlipUnit {
		case domain.SlipR:
			base = t.RiskDollars
		case domain.SlipPct:
			base = t.Notional()
		default:
			base = 1
		}

		cost := u * params.SlipMax * base * m
		pnl[i] -= cost
	}
}

func intensityFor(st domain.TradeState, mode domain.IntensityMode) float64 {
	switch mode {
	case domain.IntensityVol:
		return st.VolPct
	case domain.IntensityDD:
		return st.DDNorm
	case domain.IntensityVolDD:
		return 0.5*st.VolPct + 0.5*st.DDNorm
	default:
		return 0
	}
}
