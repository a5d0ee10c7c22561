package kernel

import (
	"math"

	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// reduce compounds the final trade order's PnL onto the baseline initial
// capital and reduces the resulting equity path to one MetricsRow. order may
// contain duplicate trade indices (bootstrap); each occurrence counts once
// per spec.md §4.2(6) and SPEC_FULL.md's resolution of the matching Open
// Question.
func reduce(in *domain.Inputs, order []int, pnl []float64, permIndex uint32) (domain.MetricsRow, Anomalies) {
	var anomalies Anomalies

	equity := in.InitialCapital
	runningMax := equity
	maxDD := 0.0

	var grossPos, grossNeg float64
	type monthBucket struct {
		startEquity float64
		delta       float64
	}
	months := make(map[string]*monthBucket)

	for _, idx := range order {
		p := pnl[idx]
		if math.IsNaN(p) || math.IsInf(p, 0) {
			anomalies.NaNPnL = true
			p = 0
		}

		if p >= 0 {
			grossPos += p
		} else {
			grossNeg += -p
		}

		key := in.Trades[idx].ExitTime.UTC().Format("2006-01")
		b, ok := months[key]
		if !ok {
			b = &monthBucket{startEquity: equity}
			months[key] = b
		}
		b.delta += p

		equity += p
		if equity > runningMax {
			runningMax = equity
		}
		if runningMax > 0 {
			dd := (runningMax - equity) / runningMax
			if dd > maxDD {
				maxDD = dd
			}
		}
	}

	totalReturn := 0.0
	if in.InitialCapital != 0 {
		totalReturn = (equity - in.InitialCapital) / in.InitialCapital
	}

	profitFactor := domain.ProfitFactorSentinel
	if grossNeg > 0 {
		profitFactor = grossPos / grossNeg
	} else {
		anomalies.ZeroPFDenom = true
	}

	worstMonth := 0.0
	first := true
	for _, b := range months {
		monthlyReturn := 0.0
		if b.startEquity != 0 {
			monthlyReturn = b.delta / b.startEquity
		}
		if first || monthlyReturn < worstMonth {
			worstMonth = monthlyReturn
			first = false
		}
	}

	return domain.MetricsRow{
		PermIndex:      permIndex,
		TotalReturnPct: totalReturn,
		MaxDrawdownPct: maxDD,
		ProfitFactor:   profitFactor,
		WorstMonthPct:  worstMonth,
		TradesExecuted: len(order),
	}, anomalies
}
