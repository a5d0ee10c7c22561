package cellrunner_test

import (
	"testing"

	"github.com/alejandrodnm/montecarlo/internal/application/cellrunner"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/stretchr/testify/assert"
)

func rowsN(n int) []domain.MetricsRow {
	rows := make([]domain.MetricsRow, n)
	for i := range rows {
		rows[i] = domain.MetricsRow{PermIndex: uint32(i), TradesExecuted: 1}
	}
	return rows
}

func TestDedupe_NoDuplicatesNoRewrite(t *testing.T) {
	rows := rowsN(200)
	res := cellrunner.Dedupe(rows, 200, false, 200)
	assert.False(t, res.NeedsRewrite)
	assert.Equal(t, 0, res.NDuplicatesDropped)
	assert.Equal(t, 200, res.NRowsDeduped)
	assert.Equal(t, uint32(200), res.StartIdx)
}

func TestDedupe_DuplicatesAndTrailingPartial(t *testing.T) {
	// 200 valid rows, plus 50 duplicates of an arbitrary subset, matching
	// the spec's end-to-end dedupe-under-corruption scenario.
	rows := rowsN(200)
	for i := 0; i < 50; i++ {
		rows = append(rows, rows[i*2])
	}
	res := cellrunner.Dedupe(rows, len(rows), true, 200)

	assert.True(t, res.NeedsRewrite)
	assert.Equal(t, 50, res.NDuplicatesDropped)
	assert.Len(t, res.Rows, 200)
	for i, r := range res.Rows {
		assert.Equal(t, uint32(i), r.PermIndex)
	}
	assert.Equal(t, uint32(200), res.StartIdx)
}

func TestDedupe_EmptyResumesAtZero(t *testing.T) {
	res := cellrunner.Dedupe(nil, 0, false, 200)
	assert.Equal(t, uint32(0), res.StartIdx)
	assert.Empty(t, res.Rows)
}

func TestDedupe_TruncatesOverTarget(t *testing.T) {
	rows := rowsN(210)
	res := cellrunner.Dedupe(rows, 210, false, 200)
	assert.True(t, res.NeedsRewrite)
	assert.Len(t, res.Rows, 200)
	assert.Equal(t, uint32(199), res.Rows[len(res.Rows)-1].PermIndex)
}

func TestDedupe_GapsNotFilled(t *testing.T) {
	rows := []domain.MetricsRow{{PermIndex: 0}, {PermIndex: 1}, {PermIndex: 2}, {PermIndex: 5}, {PermIndex: 6}}
	res := cellrunner.Dedupe(rows, 5, false, 200)
	assert.Equal(t, uint32(7), res.StartIdx) // max+1, not len(rows)
	assert.False(t, res.NeedsRewrite)
	assert.Len(t, res.Rows, 5)
}
