package domain

import (
	"fmt"
	"math"
	"sort"
	"time"
)

// DefaultRiskFraction is applied to a trade's notional when risk_dollars is
// absent from trade_list.csv, to derive R for the slippage/delay stages.
const DefaultRiskFraction = 0.01

// ValidationError is a fatal, startup-time input error. It always carries the
// source file and, when known, the offending row, per the error-handling
// design's "reported with source path and row number" requirement.
type ValidationError struct {
	Source string
	Row    int // 0 when not row-specific
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("domain: validate %s: row %d: %s", e.Source, e.Row, e.Reason)
	}
	return fmt.Sprintf("domain: validate %s: %s", e.Source, e.Reason)
}

// TradeState is the precomputed, baseline-only per-trade signal consumed by
// the slippage stage. It depends only on the baseline trade list and equity
// curve, never on a perturbation, so it is computed exactly once per run and
// shared read-only across every simulation of every cell.
type TradeState struct {
	VolPct float64 // percentile rank in [0,1] of rolling equity-return std dev at entry
	DDNorm float64 // |drawdown| / max(|drawdown|) at entry, in [0,1]
	R      float64 // resolved risk_dollars
}

// Inputs is the columnar, immutable view of one run's baseline data: the
// trade list, the equity curve, and the optional OHLC bar series.
type Inputs struct {
	Trades         []Trade
	Equity         []EquityPoint
	Bars           []OhlcBar // nil when ohlc.csv was not provided
	InitialCapital float64
	BaselinePF     float64 // from step1_report.txt; NaN when unavailable

	// Derived, computed once by Validate/Prepare.
	States      []TradeState // one per Trades[i]
	BarReturns  []float64    // close-to-close (or equity-point) returns, for approximate delay
	EntryBarIdx []int        // Trades[i].EntryTime -> Bars index, -1 if no Bars
	ExitBarIdx  []int
}

// Validate checks shape and monotonicity invariants and is fatal at load:
// schema/ordering problems must never reach the perturbation kernel.
func (in *Inputs) Validate() error {
	if len(in.Trades) == 0 {
		return &ValidationError{Source: "trade_list.csv", Reason: "no trades"}
	}
	for i := 1; i < len(in.Trades); i++ {
		if in.Trades[i].EntryTime.Before(in.Trades[i-1].EntryTime) {
			return &ValidationError{Source: "trade_list.csv", Row: i + 1, Reason: "entry_time not monotonically increasing"}
		}
	}
	for i, t := range in.Trades {
		if t.ExitTime.Before(t.EntryTime) {
			return &ValidationError{Source: "trade_list.csv", Row: i + 1, Reason: "exit_time before entry_time"}
		}
		if t.Quantity <= 0 {
			return &ValidationError{Source: "trade_list.csv", Row: i + 1, Reason: "quantity must be positive"}
		}
	}
	for i := 1; i < len(in.Equity); i++ {
		if in.Equity[i].Timestamp.Before(in.Equity[i-1].Timestamp) {
			return &ValidationError{Source: "equity_curve.csv", Row: i + 1, Reason: "time not monotonically increasing"}
		}
	}
	for i := 1; i < len(in.Bars); i++ {
		if !in.Bars[i].Timestamp.After(in.Bars[i-1].Timestamp) {
			return &ValidationError{Source: "ohlc.csv", Row: i + 1, Reason: "time not strictly increasing"}
		}
	}
	if in.InitialCapital <= 0 {
		return &ValidationError{Source: "equity_curve.csv", Reason: "initial capital must be positive"}
	}
	return nil
}

// Prepare computes all derived, baseline-only fields. It must be called
// exactly once after Validate succeeds and before any kernel invocation.
func (in *Inputs) Prepare() {
	in.resolveRisk()
	in.computeBarIndex()
	in.computeBarReturns()
	in.computeTradeState()
}

func (in *Inputs) resolveRisk() {
	for i := range in.Trades {
		if in.Trades[i].RiskDollars <= 0 {
			in.Trades[i].RiskDollars = in.Trades[i].Notional() * DefaultRiskFraction
		}
	}
}

// computeBarIndex maps each trade's entry/exit time to an exact-match bar
// index, per spec's "exact-match lookup" contract. -1 when Bars is empty.
func (in *Inputs) computeBarIndex() {
	n := len(in.Trades)
	in.EntryBarIdx = make([]int, n)
	in.ExitBarIdx = make([]int, n)
	if len(in.Bars) == 0 {
		for i := range in.EntryBarIdx {
			in.EntryBarIdx[i] = -1
			in.ExitBarIdx[i] = -1
		}
		return
	}
	idx := make(map[int64]int, len(in.Bars))
	for i, b := range in.Bars {
		idx[b.Timestamp.Unix()] = i
	}
	for i, t := range in.Trades {
		if v, ok := idx[t.EntryTime.Unix()]; ok {
			in.EntryBarIdx[i] = v
		} else {
			in.EntryBarIdx[i] = -1
		}
		if v, ok := idx[t.ExitTime.Unix()]; ok {
			in.ExitBarIdx[i] = v
		} else {
			in.ExitBarIdx[i] = -1
		}
	}
}

// computeBarReturns builds the empirical per-bar return series used by
// approximate-mode delay. Resolved globally from OHLC closes when present,
// falling back to the equity curve's point-to-point returns otherwise — see
// SPEC_FULL.md §4.2 for the rationale.
func (in *Inputs) computeBarReturns() {
	if len(in.Bars) > 1 {
		rets := make([]float64, 0, len(in.Bars)-1)
		for i := 1; i < len(in.Bars); i++ {
			prev := in.Bars[i-1].Close
			if prev == 0 {
				continue
			}
			rets = append(rets, (in.Bars[i].Close-prev)/prev)
		}
		in.BarReturns = rets
		return
	}
	rets := make([]float64, 0, len(in.Equity))
	for i := 1; i < len(in.Equity); i++ {
		prev := in.Equity[i-1].Equity
		if prev == 0 {
			continue
		}
		rets = append(rets, (in.Equity[i].Equity-prev)/prev)
	}
	in.BarReturns = rets
}

// computeTradeState derives VolPct and DDNorm from the baseline equity
// curve, window=20 points, matching the state-dependent multiplier in
// SPEC_FULL.md §3.
func (in *Inputs) computeTradeState() {
	const window = 20

	n := len(in.Equity)
	rollingStd := make([]float64, n)
	runningMax := make([]float64, n)
	dd := make([]float64, n)

	rets := make([]float64, n)
	for i := 1; i < n; i++ {
		prev := in.Equity[i-1].Equity
		if prev != 0 {
			rets[i] = (in.Equity[i].Equity - prev) / prev
		}
	}

	max := math.Inf(-1)
	for i := 0; i < n; i++ {
		if in.Equity[i].Equity > max {
			max = in.Equity[i].Equity
		}
		runningMax[i] = max
		if max != 0 {
			dd[i] = (in.Equity[i].Equity - max) / max
		}

		lo := i - window + 1
		if lo < 0 {
			lo = 0
		}
		rollingStd[i] = stdDev(rets[lo : i+1])
	}

	maxAbsDD := 0.0
	for _, d := range dd {
		if math.Abs(d) > maxAbsDD {
			maxAbsDD = math.Abs(d)
		}
	}

	volRanks := percentileRanks(rollingStd)

	eqIdx := make(map[int64]int, n)
	for i, p := range in.Equity {
		eqIdx[p.Timestamp.Unix()] = i
	}

	in.States = make([]TradeState, len(in.Trades))
	for i, t := range in.Trades {
		ei, ok := eqIdx[t.EntryTime.Unix()]
		if !ok {
			ei = nearestBefore(in.Equity, t.EntryTime)
		}
		st := TradeState{R: t.RiskDollars}
		if ei >= 0 && ei < n {
			st.VolPct = volRanks[ei]
			if maxAbsDD > 0 {
				st.DDNorm = math.Abs(dd[ei]) / maxAbsDD
			}
		}
		in.States[i] = st
	}
}

func stdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	var ss float64
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}

// percentileRanks returns, for each element, the fraction of elements <= it.
func percentileRanks(xs []float64) []float64 {
	n := len(xs)
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool { return xs[order[a]] < xs[order[b]] })

	ranks := make([]float64, n)
	for rank, i := range order {
		if n <= 1 {
			ranks[i] = 0
			continue
		}
		ranks[i] = float64(rank) / float64(n-1)
	}
	return ranks
}

// nearestBefore returns the index of the last equity point at or before t,
// or -1 if t precedes every equity point.
func nearestBefore(eq []EquityPoint, t time.Time) int {
	best := -1
	for i, p := range eq {
		if p.Timestamp.After(t) {
			break
		}
		best = i
	}
	return best
}
