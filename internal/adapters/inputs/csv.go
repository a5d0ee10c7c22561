// Package inputs loads the three CSV inputs and the optional lenient
// baseline report into a domain.Inputs ready for Validate/Prepare.
package inputs

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// Load reads trade_list.csv and equity_curve.csv (required), ohlc.csv and
// step1_report.txt (optional, skipped silently if absent), and returns a
// domain.Inputs that still needs Validate() then Prepare() called on it.
func Load(repoPath string) (*domain.Inputs, error) {
	trades, err := loadTrades(repoPath + "/trade_list.csv")
	if err != nil {
		return nil, fmt.Errorf("inputs.Load: %w", err)
	}
	equity, err := loadEquity(repoPath + "/equity_curve.csv")
	if err != nil {
		return nil, fmt.Errorf("inputs.Load: %w", err)
	}

	in := &domain.Inputs{Trades: trades, Equity: equity}

	bars, err := loadBars(repoPath + "/ohlc.csv")
	if err != nil {
		return nil, fmt.Errorf("inputs.Load: %w", err)
	}
	in.Bars = bars

	baselinePF, initialCapital, pfOK, capOK := loadStep1Report(repoPath + "/step1_report.txt")
	if pfOK {
		in.BaselinePF = baselinePF
	} else {
		in.BaselinePF = math.NaN()
	}
	if capOK && initialCapital > 0 {
		in.InitialCapital = initialCapital
	} else if len(equity) > 0 {
		in.InitialCapital = equity[0].Equity
	}

	return in, nil
}

func loadTrades(path string) ([]domain.Trade, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load trades: %w", err)
	}
	if len(records) < 1 {
		return nil, &domain.ValidationError{Source: path, Reason: "empty file"}
	}
	header := indexHeader(records[0])

	required := []string{"entry_time", "exit_time", "entry_price", "exit_price", "pnl", "qty", "side"}
	for _, col := range required {
		if _, ok := header[col]; !ok {
			return nil, &domain.ValidationError{Source: path, Reason: fmt.Sprintf("missing required column %q", col)}
		}
	}

	riskIdx, hasRisk := header["risk_dollars"]

	trades := make([]domain.Trade, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := i + 1
		entryTime, err := parseTime(rec[header["entry_time"]])
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("entry_time: %v", err)}
		}
		exitTime, err := parseTime(rec[header["exit_time"]])
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("exit_time: %v", err)}
		}
		entryPrice, err := strconv.ParseFloat(rec[header["entry_price"]], 64)
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("entry_price: %v", err)}
		}
		exitPrice, err := strconv.ParseFloat(rec[header["exit_price"]], 64)
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("exit_price: %v", err)}
		}
		pnl, err := strconv.ParseFloat(rec[header["pnl"]], 64)
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("pnl: %v", err)}
		}
		qty, err := strconv.ParseFloat(rec[header["qty"]], 64)
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("qty: %v", err)}
		}
		side := domain.Side(rec[header["side"]])
		if side != domain.SideLong && side != domain.SideShort {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("side: unknown value %q", rec[header["side"]])}
		}

		t := domain.Trade{
			EntryTime: entryTime, ExitTime: exitTime,
			EntryPrice: entryPrice, ExitPrice: exitPrice,
			Quantity: qty, Side: side, PnL: pnl,
		}
		if hasRisk && rec[riskIdx] != "" {
			risk, err := strconv.ParseFloat(rec[riskIdx], 64)
			if err != nil {
				return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("risk_dollars: %v", err)}
			}
			t.RiskDollars = risk
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func loadEquity(path string) ([]domain.EquityPoint, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, fmt.Errorf("load equity curve: %w", err)
	}
	if len(records) < 1 {
		return nil, &domain.ValidationError{Source: path, Reason: "empty file"}
	}
	header := indexHeader(records[0])
	for _, col := range []string{"time", "equity"} {
		if _, ok := header[col]; !ok {
			return nil, &domain.ValidationError{Source: path, Reason: fmt.Sprintf("missing required column %q", col)}
		}
	}

	points := make([]domain.EquityPoint, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := i + 1
		ts, err := parseTime(rec[header["time"]])
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("time: %v", err)}
		}
		eq, err := strconv.ParseFloat(rec[header["equity"]], 64)
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("equity: %v", err)}
		}
		points = append(points, domain.EquityPoint{Timestamp: ts, Equity: eq})
	}
	return points, nil
}

// loadBars loads ohlc.csv if present; a missing file is not an error since
// OHLC bars are optional (approximate-mode delay is used instead).
func loadBars(path string) ([]domain.OhlcBar, error) {
	records, err := readCSV(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load ohlc bars: %w", err)
	}
	if len(records) < 1 {
		return nil, nil
	}
	header := indexHeader(records[0])
	for _, col := range []string{"time", "open", "high", "low", "close"} {
		if _, ok := header[col]; !ok {
			return nil, &domain.ValidationError{Source: path, Reason: fmt.Sprintf("missing required column %q", col)}
		}
	}

	bars := make([]domain.OhlcBar, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := i + 1
		ts, err := parseTime(rec[header["time"]])
		if err != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: fmt.Sprintf("time: %v", err)}
		}
		o, errO := strconv.ParseFloat(rec[header["open"]], 64)
		h, errH := strconv.ParseFloat(rec[header["high"]], 64)
		l, errL := strconv.ParseFloat(rec[header["low"]], 64)
		c, errC := strconv.ParseFloat(rec[header["close"]], 64)
		if errO != nil || errH != nil || errL != nil || errC != nil {
			return nil, &domain.ValidationError{Source: path, Row: row, Reason: "malformed OHLC value"}
		}
		bars = append(bars, domain.OhlcBar{Timestamp: ts, Open: o, High: h, Low: l, Close: c})
	}
	return bars, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := csv.NewReader(f)
	r.TrimLeadingSpace = true
	return r.ReadAll()
}

func indexHeader(row []string) map[string]int {
	idx := make(map[string]int, len(row))
	for i, col := range row {
		idx[col] = i
	}
	return idx
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
