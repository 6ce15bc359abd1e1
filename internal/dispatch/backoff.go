package dispatch

import (
	"math/rand"
	"time"
)

// backoffDelay returns the jittered exponential delay before the given
// attempt number (1-based). The exponential curve is capped at max and the
// jitter spreads delays across [0.5, 1.5) of the computed value.
func backoffDelay(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	jittered := time.Duration(float64(delay) * (0.5 + rand.Float64()))
	if jittered > max {
		jittered = max
	}
	return jittered
}
