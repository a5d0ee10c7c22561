package grid_test

import (
	"testing"

	"github.com/alejandrodnm/montecarlo/internal/application/grid"
	"github.com/alejandrodnm/montecarlo/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestEnumerate_NoFiltersIncludesZeroSlip(t *testing.T) {
	cells := grid.Enumerate(grid.DefaultAxes(), domain.DefaultRunConfig())
	found := false
	for _, c := range cells {
		if c.Params.SlipMax == 0 {
			found = true
			break
		}
	}
	assert.True(t, found)
}

func TestEnumerate_SlipFilterExcludesZeroUnlessIncluded(t *testing.T) {
	min := 10.0
	cfg := domain.DefaultRunConfig()
	cfg.SlipMin = &min

	cells := grid.Enumerate(grid.DefaultAxes(), cfg)
	for _, c := range cells {
		assert.GreaterOrEqual(t, c.Params.SlipMax, min)
	}

	cfg.IncludeZeroSlip = true
	cellsWithZero := grid.Enumerate(grid.DefaultAxes(), cfg)
	hasZero := false
	for _, c := range cellsWithZero {
		if c.Params.SlipMax == 0 {
			hasZero = true
		}
	}
	assert.True(t, hasZero)
}

func TestEnumerate_FixedDelayFilter(t *testing.T) {
	fixed := 2
	cfg := domain.DefaultRunConfig()
	cfg.FixedDelay = &fixed

	cells := grid.Enumerate(grid.DefaultAxes(), cfg)
	assert.NotEmpty(t, cells)
	for _, c := range cells {
		assert.Equal(t, fixed, c.Params.DelayBarsMax)
	}
}

func TestEnumerate_BlockLenOnlyAppliesWhenUsed(t *testing.T) {
	cells := grid.Enumerate(grid.DefaultAxes(), domain.DefaultRunConfig())
	for _, c := range cells {
		if !c.Params.UsesBlockLen() {
			assert.Equal(t, -1, c.Key.BlockLenIdx)
			assert.Equal(t, 0, c.Params.BlockLen)
		} else {
			assert.GreaterOrEqual(t, c.Key.BlockLenIdx, 0)
			assert.NotZero(t, c.Params.BlockLen)
		}
	}
}

func TestEnumerate_KeysAreUnique(t *testing.T) {
	cells := grid.Enumerate(grid.DefaultAxes(), domain.DefaultRunConfig())
	seen := map[string]bool{}
	for _, c := range cells {
		key := c.Key.String()
		assert.False(t, seen[key], "duplicate cell key %s", key)
		seen[key] = true
	}
}
