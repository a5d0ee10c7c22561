package domain

import (
	"fmt"
	"strconv"
)

// ProfitFactorSentinel is reported when the loss denominator is zero (no
// losing trades in the simulation), per the reduction stage's sentinel rule.
const ProfitFactorSentinel = 1e9

// MetricsRow is one simulation's summary. PermIndex is the primary key
// within a cell; metrics_compact.csv never holds two rows with the same
// PermIndex once deduped.
type MetricsRow struct {
	PermIndex       uint32
	TotalReturnPct  float64
	MaxDrawdownPct  float64
	ProfitFactor    float64
	WorstMonthPct   float64
	TradesExecuted  int
}

// MetricsCSVHeader is the fixed column order for metrics_compact.csv.
var MetricsCSVHeader = []string{"perm_index", "total_return_pct", "max_drawdown_pct", "profit_factor", "worst_month_pct", "trades"}

// CSVRow renders this row in MetricsCSVHeader order.
func (m MetricsRow) CSVRow() []string {
	return []string{
		strconv.FormatUint(uint64(m.PermIndex), 10),
		strconv.FormatFloat(m.TotalReturnPct, 'g', -1, 64),
		strconv.FormatFloat(m.MaxDrawdownPct, 'g', -1, 64),
		strconv.FormatFloat(m.ProfitFactor, 'g', -1, 64),
		strconv.FormatFloat(m.WorstMonthPct, 'g', -1, 64),
		strconv.Itoa(m.TradesExecuted),
	}
}

// ParseMetricsRow parses one CSV data row in MetricsCSVHeader order. It is
// intentionally strict (used by the dedupe algorithm to detect and discard a
// malformed trailing line): a wrong field count or a field that fails to
// parse both return an error and mark the row as malformed.
func ParseMetricsRow(fields []string) (MetricsRow, error) {
	if len(fields) != len(MetricsCSVHeader) {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: want %d fields, got %d", len(MetricsCSVHeader), len(fields))
	}
	perm, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: perm_index: %w", err)
	}
	ret, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: total_return_pct: %w", err)
	}
	dd, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: max_drawdown_pct: %w", err)
	}
	pf, err := strconv.ParseFloat(fields[3], 64)
	if err != nil {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: profit_factor: %w", err)
	}
	worst, err := strconv.ParseFloat(fields[4], 64)
	if err != nil {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: worst_month_pct: %w", err)
	}
	trades, err := strconv.Atoi(fields[5])
	if err != nil {
		return MetricsRow{}, fmt.Errorf("domain.ParseMetricsRow: trades: %w", err)
	}
	return MetricsRow{
		PermIndex:      uint32(perm),
		TotalReturnPct: ret,
		MaxDrawdownPct: dd,
		ProfitFactor:   pf,
		WorstMonthPct:  worst,
		TradesExecuted: trades,
	}, nil
}

// Quantiles holds the three distributional markers reported per metric.
type Quantiles struct {
	P05 float64
	P50 float64
	P95 float64
}

// MetricSummary is the distributional summary of one MetricsRow field across
// all simulations in a completed cell.
type MetricSummary struct {
	Quantiles Quantiles
	Mean      float64
	Std       float64
}

// CellSummary is the content of summary.json: quantiles per metric plus the
// integrity fields the dedupe algorithm must agree with before a cell is
// allowed to transition to Complete.
type CellSummary struct {
	CellID    string                   `json:"cell_id"`
	NTarget   int                      `json:"n_target"`
	Metrics   map[string]MetricSummary `json:"metrics"`
	PValueRaw float64                  `json:"p_value_raw"`
	// PValueCorrected is left as a pass-through for the (out-of-scope)
	// analysis collaborator; this repo never computes a Bonferroni
	// denominator (spec Open Question deferred per SPEC_FULL.md §9).
	PValueCorrected *float64 `json:"p_value_corrected"`
	RobustScore     float64  `json:"robust_score"`

	NRowsRaw           int `json:"n_rows_raw"`
	NDuplicatesDropped int `json:"n_duplicates_dropped"`
	NRowsDeduped       int `json:"n_rows_deduped"`

	DegenerateCount int `json:"degenerate_count"`
	AnomalyCount    int `json:"anomaly_count"`
}

// The four metric names used as map keys in CellSummary.Metrics and as
// CSV column groups in aggregated/grid_summary.csv.
const (
	MetricTotalReturn = "total_return_pct"
	MetricMaxDrawdown = "max_drawdown_pct"
	MetricProfitFactor = "profit_factor"
	MetricWorstMonth  = "worst_month_pct"
)
