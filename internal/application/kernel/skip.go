package kernel

import "github.com/alejandrodnm/montecarlo/internal/domain"

// applySkipMask draws an independent uniform per trade and marks it executed
// when U_i > pSkip. To avoid degenerate simulations it redraws (the whole
// mask, fresh draws) up to maxRedraws times until at least minTrades survive.
// If still below after maxRedraws, it proceeds with the last draw and
// reports the simulation as degenerate — it is never dropped.
func applySkipMask(rng *domain.RNG, n int, pSkip float64, minTrades, maxRedraws int) (executed []bool, degenerate bool) {
	executed = make([]bool, n)
	if pSkip <= 0 {
		for i := range executed {
			executed[i] = true
		}
		return executed, false
	}

	for attempt := 0; ; attempt++ {
		count := 0
		for i := 0; i < n; i++ {
			u := rng.Float64()
			executed[i] = u > pSkip
			if executed[i] {
				count++
			}
		}
		if count >= minTrades || attempt >= maxRedraws {
			return executed, count < minTrades
		}
	}
}
