package domain

import "fmt"

// ShuffleMode selects the sequence-shuffle stage of the perturbation kernel.
type ShuffleMode int

const (
	ShuffleNone ShuffleMode = iota
	ShufflePermute
	ShuffleBlockPermute
)

func (m ShuffleMode) String() string {
	switch m {
	case ShufflePermute:
		return "permute"
	case ShuffleBlockPermute:
		return "block_permute"
	default:
		return "none"
	}
}

// BootstrapMode selects the resampling stage of the perturbation kernel.
type BootstrapMode int

const (
	BootstrapNone BootstrapMode = iota
	BootstrapTrade
	BootstrapBlock
)

func (m BootstrapMode) String() string {
	switch m {
	case BootstrapTrade:
		return "trade_bootstrap"
	case BootstrapBlock:
		return "block_bootstrap"
	default:
		return "none"
	}
}

// CellKey is the 6-tuple of parameter-axis indices identifying one point in
// the Cartesian grid. BlockLenIdx is -1 when block_len is not applicable to
// this cell's shuffle/bootstrap mode; the canonical string then folds down
// to 5 components.
type CellKey struct {
	PSkipIdx      int
	SlipIdx       int
	DelayIdx      int
	ShuffleIdx    int
	BootstrapIdx  int
	BlockLenIdx   int
}

// String returns the stable identifier used in on-disk paths and seeding:
// "<a>_<b>_<c>_<d>_<e>" with the block_len index folded into the last
// position when applicable, omitted otherwise.
func (k CellKey) String() string {
	if k.BlockLenIdx >= 0 {
		return fmt.Sprintf("%d_%d_%d_%d_%d_%d", k.PSkipIdx, k.SlipIdx, k.DelayIdx, k.ShuffleIdx, k.BootstrapIdx, k.BlockLenIdx)
	}
	return fmt.Sprintf("%d_%d_%d_%d_%d", k.PSkipIdx, k.SlipIdx, k.DelayIdx, k.ShuffleIdx, k.BootstrapIdx)
}

// CellParams are the concrete parameter values a CellKey resolves to.
type CellParams struct {
	PSkip         float64
	SlipMax       float64 // interpreted per RunConfig.SlipUnit (dollars, R multiples, or pct of notional)
	DelayBarsMax  int
	ShuffleMode   ShuffleMode
	BootstrapMode BootstrapMode
	BlockLen      int // 0 when neither shuffle nor bootstrap is block-based
}

// UsesBlockLen reports whether this cell's modes consult BlockLen at all.
func (p CellParams) UsesBlockLen() bool {
	return p.ShuffleMode == ShuffleBlockPermute || p.BootstrapMode == BootstrapBlock
}
