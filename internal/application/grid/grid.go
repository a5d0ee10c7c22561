package grid

// grid.go enumerates the Cartesian product of the six parameter axes,
// applies run-level filters, and skips parameter combinations that would
// duplicate another cell's semantics (e.g. shuffle=none with a
// block_permute-only block_len has no effect, so block_len is only
// meaningful when shuffle or bootstrap actually consults it).

import (
	"github.com/alejandrodnm/montecarlo/internal/domain"
)

// Axes is the enumerable value set for each of the six parameter axes.
// A production run typically widens these; the defaults here mirror the
// grid sizes implied by spec.md §3's CellParams value ranges.
type Axes struct {
	PSkip      []float64
	SlipMax    []float64
	DelayBars  []int
	Shuffle    []domain.ShuffleMode
	Bootstrap  []domain.BootstrapMode
	BlockLen   []int
}

// DefaultAxes returns the documented default grid.
func DefaultAxes() Axes {
	return Axes{
		PSkip:     []float64{0, 0.05, 0.10, 0.20},
		SlipMax:   []float64{0, 10, 25, 50, 100},
		DelayBars: []int{0, 1, 2, 3},
		Shuffle:   []domain.ShuffleMode{domain.ShuffleNone, domain.ShufflePermute, domain.ShuffleBlockPermute},
		Bootstrap: []domain.BootstrapMode{domain.BootstrapNone, domain.BootstrapTrade, domain.BootstrapBlock},
		BlockLen:  []int{5, 10, 20},
	}
}

// Cell is one fully-resolved point in the grid: its canonical key, its
// resolved parameters, and the index tuple the key was built from.
type Cell struct {
	Key    domain.CellKey
	Params domain.CellParams
}

// Enumerate walks the full Cartesian product, applies cfg's filters, and
// skips degenerate combinations. Cells are returned in a stable, fully
// deterministic order (nested loop order over the axis slices), which the
// scheduler relies on only for reproducible logging, never for correctness.
func Enumerate(axes Axes, cfg domain.RunConfig) []Cell {
	var cells []Cell

	for pi, pSkip := range axes.PSkip {
		for si, slipMax := range axes.SlipMax {
			if !passesSlipFilter(slipMax, cfg) {
				continue
			}
			for di, delayBars := range axes.DelayBars {
				if cfg.FixedDelay != nil && delayBars != *cfg.FixedDelay {
					continue
				}
				for shi, shuffleMode := range axes.Shuffle {
					for bi, bootstrapMode := range axes.Bootstrap {
						params := domain.CellParams{
							PSkip: pSkip, SlipMax: slipMax, DelayBarsMax: delayBars,
							ShuffleMode: shuffleMode, BootstrapMode: bootstrapMode,
						}

						if !params.UsesBlockLen() {
							cells = append(cells, Cell{
								Key:    domain.CellKey{PSkipIdx: pi, SlipIdx: si, DelayIdx: di, ShuffleIdx: shi, BootstrapIdx: bi, BlockLenIdx: -1},
								Params: params,
							})
							continue
						}

						for bli, blockLen := range axes.BlockLen {
							p := params
							p.BlockLen = blockLen
							cells = append(cells, Cell{
								Key:    domain.CellKey{PSkipIdx: pi, SlipIdx: si, DelayIdx: di, ShuffleIdx: shi, BootstrapIdx: bi, BlockLenIdx: bli},
								Params: p,
							})
						}
					}
				}
			}
		}
	}
	return cells
}

func passesSlipFilter(slipMax float64, cfg domain.RunConfig) bool {
	if slipMax == 0 {
		return cfg.IncludeZeroSlip || (cfg.SlipMin == nil && cfg.SlipMax == nil)
	}
	if cfg.SlipMin != nil && slipMax < *cfg.SlipMin {
		return false
	}
	if cfg.SlipMax != nil && slipMax > *cfg.SlipMax {
		return false
	}
	return true
}
