package kernel

import "github.com/alejandrodnm/montecarlo/internal/domain"

// executedOrder returns the trade indices marked executed, in original
// entry-time order — the sequence the shuffle stage operates on.
func executedOrder(executed []bool) []int {
	order := make([]int, 0, len(executed))
	for i, e := range executed {
		if e {
			order = append(order, i)
		}
	}
	return order
}

// shuffleSequence reorders order in place per params.ShuffleMode and returns
// it (same backing slice, for call-site convenience).
func shuffleSequence(rng *domain.RNG, order []int, params domain.CellParams) []int {
	switch params.ShuffleMode {
	case domain.ShufflePermute:
		fisherYates(rng, order)
	case domain.ShuffleBlockPermute:
		return blockPermute(rng, order, params.BlockLen)
	}
	return order
}

// fisherYates performs an in-place Fisher-Yates shuffle.
func fisherYates(rng *domain.RNG, xs []int) {
	for i := len(xs) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		xs[i], xs[j] = xs[j], xs[i]
	}
}

// blockPermute partitions xs into contiguous blocks of length blockLen (the
// final block may be short), permutes the block order, and concatenates.
func blockPermute(rng *domain.RNG, xs []int, blockLen int) []int {
	if blockLen <= 0 || blockLen >= len(xs) {
		return xs
	}

	var blocks [][]int
	for i := 0; i < len(xs); i += blockLen {
		end := i + blockLen
		if end > len(xs) {
			end = len(xs)
		}
		blocks = append(blocks, xs[i:end])
	}

	order := make([]int, len(blocks))
	for i := range order {
		order[i] = i
	}
	fisherYates(rng, order)

	out := make([]int, 0, len(xs))
	for _, bi := range order {
		out = append(out, blocks[bi]...)
	}
	return out
}
