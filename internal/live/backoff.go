package live

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// newBackOff returns the reconnect schedule: min, 2*min, 4*min, ... capped at
// max, with no jitter and no overall deadline. Reset returns it to min.
func newBackOff(min, max time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = min
	b.MaxInterval = max
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
