package kernel

import "github.com/alejandrodnm/montecarlo/internal/domain"

// bootstrapSequence resamples the already-shuffled sequence with
// replacement, producing exactly len(order) entries. Shuffling runs before
// bootstrap (bootstrap changes the sample; shuffling afterwards would be
// redundant), per the kernel's ordering rationale.
func bootstrapSequence(rng *domain.RNG, order []int, params domain.CellParams) []int {
	n := len(order)
	if n == 0 {
		return order
	}
	switch params.BootstrapMode {
	case domain.BootstrapTrade:
		out := make([]int, n)
		for i := range out {
			out[i] = order[rng.Intn(n)]
		}
		return out
	case domain.BootstrapBlock:
		return blockBootstrap(rng, order, params.BlockLen)
	default:
		return order
	}
}

// blockBootstrap repeatedly draws a uniform start in [0, n-blockLen], emits
// blockLen consecutive entries, and truncates to exactly n.
func blockBootstrap(rng *domain.RNG, order []int, blockLen int) []int {
	n := len(order)
	if blockLen <= 0 || blockLen > n {
		blockLen = n
	}
	out := make([]int, 0, n)
	maxStart := n - blockLen
	for len(out) < n {
		start := 0
		if maxStart > 0 {
			start = rng.Intn(maxStart + 1)
		}
		out = append(out, order[start:start+blockLen]...)
	}
	return out[:n]
}
