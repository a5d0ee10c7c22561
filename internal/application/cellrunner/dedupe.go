package cellrunner

// dedupe.go implements the dedupe-on-resume algorithm: metrics_compact.csv
// is the single source of truth, and progress.json/summary.json are caches
// that are never consulted to decide resume position. A trailing malformed
// row (the signature of a crash mid-append) is discarded rather than
// treated as corruption; duplicate perm_index rows keep the first-seen
// occurrence; gaps below max(perm_index) are left alone rather than
// refilled, since simulations are i.i.d. across perm_index under the
// documented seeding.

import (
	"sort"

	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// DedupeResult is what the dedupe algorithm learns about one cell's
// metrics log, plus whatever rewrite is required to restore the canonical
// on-disk form.
type DedupeResult struct {
	Rows               []domain.MetricsRow // sorted by PermIndex, deduped
	NRowsRaw           int
	NRowsDeduped       int
	NDuplicatesDropped int
	NeedsRewrite       bool
	StartIdx           uint32
}

// Dedupe runs the six-step algorithm from the metrics log's raw rows (as
// read by ports.CellStore.ReadRawMetrics) against nTarget. hadTrailingPartial
// signals a malformed trailing line that ReadRawMetrics already discarded;
// that alone is sufficient to force a rewrite even with zero duplicates.
func Dedupe(rawRows []domain.MetricsRow, nRowsRaw int, hadTrailingPartial bool, nTarget int) DedupeResult {
	firstSeen := make(map[uint32]domain.MetricsRow, len(rawRows))
	order := make([]uint32, 0, len(rawRows))
	for _, row := range rawRows {
		if _, seen := firstSeen[row.PermIndex]; seen {
			continue
		}
		firstSeen[row.PermIndex] = row
		order = append(order, row.PermIndex)
	}

	nDeduped := len(firstSeen)
	nDuplicates := nRowsRaw - nDeduped

	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	rows := make([]domain.MetricsRow, 0, nDeduped)
	for _, idx := range order {
		rows = append(rows, firstSeen[idx])
	}

	needsRewrite := nDuplicates > 0 || hadTrailingPartial

	if len(rows) > nTarget {
		rows = rows[:nTarget]
		needsRewrite = true
	}

	var startIdx uint32
	if len(rows) == 0 {
		startIdx = 0
	} else {
		startIdx = rows[len(rows)-1].PermIndex + 1
	}

	return DedupeResult{
		Rows:               rows,
		NRowsRaw:           nRowsRaw,
		NRowsDeduped:       len(rows),
		NDuplicatesDropped: nDuplicates,
		NeedsRewrite:       needsRewrite,
		StartIdx:           startIdx,
	}
}
