package cellrunner

// cellrunner.go drives one cell through Fresh → Resuming → Producing →
// Finalizing → Complete. It is the exclusive owner of per_cell/<cell_id>/
// and never touches another cell's directory. Resume position always
// comes from Dedupe against metrics_compact.csv, never from progress.json.

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/alejandrodnm/montecarlo/internal/application/kernel"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/alejandrodnm/montecarlo/internal/ports"
)

// Runner executes one cell to completion (or until ctx is cancelled).
type Runner struct {
	store  ports.CellStore
	kernel *kernel.Kernel
	cfg    domain.RunConfig
	log    *slog.Logger
}

// New returns a Runner for one cell. The kernel is shared read-only state
// (baseline inputs plus run config) across every cell a worker processes.
func New(store ports.CellStore, k *kernel.Kernel, cfg domain.RunConfig, log *slog.Logger) *Runner {
	if log == nil {
		log = slog.Default()
	}
	return &Runner{store: store, kernel: k, cfg: cfg, log: log}
}

// Result is what RunCell reports back to the scheduler.
type Result struct {
	CellID   string
	State    domain.CellState
	Summary  domain.CellSummary
	Finished bool // true only once state has reached Complete
}

// RunCell drives cellID through the state machine until it reaches
// Complete or ctx is cancelled. On cancellation, the current chunk's append
// has already completed and progress.json has been rewritten, so the next
// invocation resumes cleanly from Resuming.
func (r *Runner) RunCell(ctx context.Context, cellID string, params domain.CellParams, baseSeed uint32, nTarget int) (Result, error) {
	if err := r.store.EnsureDir(cellID); err != nil {
		return Result{}, fmt.Errorf("cellrunner.RunCell: %s: %w", cellID, err)
	}

	rawRows, nRowsRaw, hadTrailingPartial, err := r.store.ReadRawMetrics(cellID)
	if err != nil {
		return Result{}, fmt.Errorf("cellrunner.RunCell: %s: %w", cellID, err)
	}

	state := domain.CellFresh
	if nRowsRaw > 0 {
		state = domain.CellResuming
	}

	dd := Dedupe(rawRows, nRowsRaw, hadTrailingPartial, nTarget)
	if dd.NeedsRewrite {
		if err := r.store.RewriteMetrics(cellID, dd.Rows); err != nil {
			return Result{}, fmt.Errorf("cellrunner.RunCell: %s: rewrite after dedupe: %w", cellID, err)
		}
		r.log.Info("dedupe rewrote metrics log", "cell_id", cellID, "n_duplicates_dropped", dd.NDuplicatesDropped, "had_trailing_partial", hadTrailingPartial)
	}

	if len(dd.Rows) >= nTarget {
		// These rows were produced by a prior invocation (or this cell was
		// already complete); this process never ran the kernel for them, so
		// it has no degenerate-redraw counts to report.
		return r.finalize(cellID, dd, nTarget, 0)
	}

	state = domain.CellProducing
	if err := r.writeProgress(cellID, state, len(dd.Rows), nTarget, params); err != nil {
		return Result{}, err
	}

	checkpoint := r.cfg.CheckpointEvery
	if checkpoint <= 0 {
		checkpoint = 1
	}

	// Gaps below max(perm_index) are never filled (§4.4): producing exactly
	// nTarget-nDone more permutations starting at StartIdx always lands on
	// exactly nTarget unique rows, since every new index exceeds every
	// existing one.
	nDone := len(dd.Rows)
	next := dd.StartIdx
	stop := next + uint32(nTarget-nDone)
	degenerateCount := 0
	for next < stop {
		if ctx.Err() != nil {
			r.log.Info("cell runner interrupted, resumes from Resuming on next invocation", "cell_id", cellID)
			return Result{CellID: cellID, State: domain.CellProducing}, nil
		}

		chunkEnd := next + uint32(checkpoint)
		if chunkEnd > stop {
			chunkEnd = stop
		}

		rows := make([]domain.MetricsRow, 0, chunkEnd-next)
		for perm := next; perm < chunkEnd; perm++ {
			row, anomalies := r.kernel.Run(params, perm, baseSeed)
			if anomalies.Degenerate {
				degenerateCount++
			}
			if anomalies.Degenerate || anomalies.ZeroPFDenom || anomalies.NaNPnL {
				r.log.Debug("kernel anomaly", "cell_id", cellID, "perm_index", perm, "degenerate", anomalies.Degenerate, "zero_pf_denom", anomalies.ZeroPFDenom, "nan_pnl", anomalies.NaNPnL)
			}
			rows = append(rows, row)
		}

		if err := r.store.AppendMetrics(cellID, rows); err != nil {
			return Result{}, fmt.Errorf("cellrunner.RunCell: %s: append chunk: %w", cellID, err)
		}
		nDone += len(rows)
		next = chunkEnd

		if err := r.writeProgress(cellID, domain.CellProducing, nDone, nTarget, params); err != nil {
			return Result{}, err
		}
		if err := r.store.AppendLog(cellID, fmt.Sprintf("chunk complete: n_done=%d n_target=%d", nDone, nTarget)); err != nil {
			return Result{}, fmt.Errorf("cellrunner.RunCell: %s: append log: %w", cellID, err)
		}
	}

	rawRows, nRowsRaw, hadTrailingPartial, err = r.store.ReadRawMetrics(cellID)
	if err != nil {
		return Result{}, fmt.Errorf("cellrunner.RunCell: %s: re-read after production: %w", cellID, err)
	}
	dd = Dedupe(rawRows, nRowsRaw, hadTrailingPartial, nTarget)
	if dd.NeedsRewrite {
		if err := r.store.RewriteMetrics(cellID, dd.Rows); err != nil {
			return Result{}, fmt.Errorf("cellrunner.RunCell: %s: final rewrite: %w", cellID, err)
		}
	}
	if len(dd.Rows) < nTarget {
		// Integrity violation per §7(5): stays in Producing, never marked complete.
		return Result{CellID: cellID, State: domain.CellProducing}, nil
	}
	return r.finalize(cellID, dd, nTarget, degenerateCount)
}

func (r *Runner) writeProgress(cellID string, state domain.CellState, nDone, nTarget int, params domain.CellParams) error {
	if err := r.store.WriteProgress(cellID, domain.CellProgress{
		CellID:  cellID,
		State:   state,
		NDone:   nDone,
		NTarget: nTarget,
		Params:  params,
	}); err != nil {
		return fmt.Errorf("cellrunner.writeProgress: %s: %w", cellID, err)
	}
	return nil
}

// finalize computes summary statistics from deduped rows and writes
// summary.json, transitioning Producing → Finalizing → Complete. Integrity
// is re-checked against §4.4's invariant before the transition is allowed.
func (r *Runner) finalize(cellID string, dd DedupeResult, nTarget int, degenerateCount int) (Result, error) {
	if len(dd.Rows) != nTarget {
		return Result{CellID: cellID, State: domain.CellProducing}, nil
	}

	summary := Summarize(cellID, dd.Rows, nTarget, dd.NRowsRaw, dd.NDuplicatesDropped, degenerateCount, r.kernel.BaselineProfitFactor())
	if err := r.store.WriteSummary(cellID, summary); err != nil {
		return Result{}, fmt.Errorf("cellrunner.finalize: %s: %w", cellID, err)
	}
	if err := r.writeProgress(cellID, domain.CellComplete, len(dd.Rows), nTarget, domain.CellParams{}); err != nil {
		return Result{}, err
	}
	return Result{CellID: cellID, State: domain.CellComplete, Summary: summary, Finished: true}, nil
}

// Summarize computes quantiles, mean, std, a p-value, and a robust score
// from a complete, deduped set of MetricsRow. PValueCorrected is always left
// nil; the Bonferroni denominator is deferred to the out-of-scope analysis
// collaborator. degenerateCount is this invocation's count of simulations
// that exhausted the skip-mask redraw budget (§4.2(1)); it is 0 when the
// rows being summarized were produced by an earlier invocation, since
// metrics_compact.csv's fixed column set (§6) carries no per-row anomaly
// flag to recover it from. baselinePF is the step1_report.txt-derived
// baseline profit factor (NaN when unavailable), consumed by
// pValueVsBaselinePF.
func Summarize(cellID string, rows []domain.MetricsRow, nTarget, nRowsRaw, nDuplicatesDropped, degenerateCount int, baselinePF float64) domain.CellSummary {
	metrics := map[string][]float64{
		domain.MetricTotalReturn:  make([]float64, len(rows)),
		domain.MetricMaxDrawdown:  make([]float64, len(rows)),
		domain.MetricProfitFactor: make([]float64, len(rows)),
		domain.MetricWorstMonth:   make([]float64, len(rows)),
	}
	anomalyCount := 0
	for i, row := range rows {
		metrics[domain.MetricTotalReturn][i] = row.TotalReturnPct
		metrics[domain.MetricMaxDrawdown][i] = row.MaxDrawdownPct
		metrics[domain.MetricProfitFactor][i] = row.ProfitFactor
		metrics[domain.MetricWorstMonth][i] = row.WorstMonthPct
		if row.ProfitFactor == domain.ProfitFactorSentinel {
			anomalyCount++
		}
		if math.IsNaN(row.TotalReturnPct) || math.IsInf(row.TotalReturnPct, 0) {
			anomalyCount++
		}
	}

	out := map[string]domain.MetricSummary{}
	for name, xs := range metrics {
		out[name] = summarizeMetric(xs)
	}

	pValueRaw := pValueVsBaselinePF(metrics[domain.MetricProfitFactor], metrics[domain.MetricTotalReturn], baselinePF)

	return domain.CellSummary{
		CellID:             cellID,
		NTarget:            nTarget,
		Metrics:            out,
		PValueRaw:          pValueRaw,
		PValueCorrected:    nil,
		RobustScore:        robustScore(out, pValueRaw),
		NRowsRaw:           nRowsRaw,
		NDuplicatesDropped: nDuplicatesDropped,
		NRowsDeduped:       len(rows),
		DegenerateCount:    degenerateCount,
		AnomalyCount:       anomalyCount,
	}
}

func summarizeMetric(xs []float64) domain.MetricSummary {
	sorted := append([]float64(nil), xs...)
	sort.Float64s(sorted)

	var sum float64
	for _, x := range xs {
		sum += x
	}
	mean := sum / float64(len(xs))

	var sq float64
	for _, x := range xs {
		d := x - mean
		sq += d * d
	}
	std := math.Sqrt(sq / float64(len(xs)))

	return domain.MetricSummary{
		Quantiles: domain.Quantiles{
			P05: quantile(sorted, 0.05),
			P50: quantile(sorted, 0.50),
			P95: quantile(sorted, 0.95),
		},
		Mean: mean,
		Std:  std,
	}
}

// quantile performs linear interpolation between order statistics on an
// already-sorted slice, matching the common "type 7" quantile estimator.
func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// pValueVsBaselinePF is the raw (uncorrected) one-sided p-value per spec.md
// §6/§9: the fraction of this cell's simulations whose profit_factor does
// not exceed the baseline backtest's profit factor, i.e. how often the
// documented perturbations erase the strategy's original edge. baselinePF
// comes from step1_report.txt (domain.Inputs.BaselinePF); when that optional
// report didn't supply a usable profit_factor field (NaN or non-positive),
// there is nothing to compare against, so this falls back to the fraction
// of simulations with a non-positive total_return_pct as a same-shaped
// one-sided proxy — still always present, since summary.json's p_value_raw
// field is not itself optional.
func pValueVsBaselinePF(profitFactors, totalReturns []float64, baselinePF float64) float64 {
	if len(profitFactors) == 0 {
		return 0
	}
	if math.IsNaN(baselinePF) || baselinePF <= 0 {
		n := 0
		for _, x := range totalReturns {
			if x <= 0 {
				n++
			}
		}
		return float64(n) / float64(len(totalReturns))
	}
	n := 0
	for _, pf := range profitFactors {
		if pf <= baselinePF {
			n++
		}
	}
	return float64(n) / float64(len(profitFactors))
}

// robustScore implements the glossary's documented formula, PF_P50 × (1 −
// p_corrected) (spec.md's GLOSSARY). p_corrected is always nil here — its
// Bonferroni denominator is deferred to the out-of-scope analysis
// collaborator (SPEC_FULL.md §9) — so pValueRaw stands in for it; see
// DESIGN.md's Open Questions for the rationale.
func robustScore(metrics map[string]domain.MetricSummary, pValueRaw float64) float64 {
	pfP50 := metrics[domain.MetricProfitFactor].Quantiles.P50
	return pfP50 * (1 - pValueRaw)
}
