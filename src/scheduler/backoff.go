package scheduler

import (
	"math/rand"
	"time"

	"browser-engine/src/internal/constants"
)

// computeBackoff returns the retry delay after the given number of completed
// attempts: base doubled per attempt, capped, with ±20% jitter so retrying
// tasks do not stampede.
func computeBackoff(attempts int, base, cap time.Duration, rnd *rand.Rand) time.Duration {
	if base <= 0 {
		base = constants.DefaultBackoffBase
	}
	if cap <= 0 {
		cap = constants.DefaultBackoffCap
	}

	delay := base
	for i := 1; i < attempts; i++ {
		delay *= 2
		if delay >= cap {
			delay = cap
			break
		}
	}
	if delay > cap {
		delay = cap
	}

	jitter := constants.BackoffJitterFraction
	// Uniform in [1-jitter, 1+jitter]
	factor := 1.0 + jitter*(2.0*rnd.Float64()-1.0)
	return time.Duration(float64(delay) * factor)
}
