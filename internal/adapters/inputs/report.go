package inputs

// report.go parses step1_report.txt, the optional free-form baseline report
// produced by the out-of-scope backtest collaborator. Per §6 it must be
// parsed leniently: missing fields are tolerated, and a malformed or absent
// file is never a fatal error — only the kernel's own inputs are validated
// strictly.

import (
	"bufio"
	"math"
	"os"
	"strconv"
	"strings"
)

// loadStep1Report scans for "profit_factor" and "initial_capital" key:value
// or key=value lines, case-insensitively. pfOK/capOK report each field
// separately — a report carrying only one of the two fields is common (the
// backtest collaborator emits "baseline profit factor for p-value" per
// spec.md §6, not both), so the caller must not infer one field's presence
// from the other's.
func loadStep1Report(path string) (baselinePF float64, initialCapital float64, pfOK bool, capOK bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, 0, false, false
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, val, hasSep := splitKV(scanner.Text())
		if !hasSep {
			continue
		}
		switch strings.ToLower(key) {
		case "profit_factor", "baseline_profit_factor":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				baselinePF = v
				pfOK = true
			}
		case "initial_capital", "starting_capital":
			if v, err := strconv.ParseFloat(val, 64); err == nil {
				initialCapital = v
				capOK = true
			}
		}
	}
	return baselinePF, initialCapital, pfOK, capOK
}

// LoadBaselineProfitFactor reads only the baseline profit factor out of
// step1_report.txt, for callers (the grid scheduler's orphan sweep) that
// need it without loading and validating the full trade/equity/OHLC input
// set. Returns NaN when the file is absent or carries no profit_factor
// field, matching domain.Inputs.BaselinePF's own "NaN when unavailable"
// contract.
func LoadBaselineProfitFactor(repoPath string) float64 {
	pf, _, pfOK, _ := loadStep1Report(repoPath + "/step1_report.txt")
	if !pfOK {
		return math.NaN()
	}
	return pf
}

func splitKV(line string) (key, val string, ok bool) {
	line = strings.TrimSpace(line)
	sep := ":"
	idx := strings.Index(line, sep)
	if idx < 0 {
		sep = "="
		idx = strings.Index(line, sep)
	}
	if idx < 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:idx]), strings.TrimSpace(line[idx+len(sep):]), true
}
