package reminder

import (
	"math/rand"
	"time"
)

// Backoff policy for transient delivery failures. Delays grow exponentially
// from the base, are capped, and carry jitter so reminders that failed in
// the same sweep do not retry in lockstep.
const (
	backoffBase    = 30 * time.Second
	backoffCap     = 30 * time.Minute
	jitterFraction = 0.2
)

// nextBackoff returns the delay before the given retry attempt.
// retryCount is the number of failures so far, starting at 1 for the first
// retry.
func nextBackoff(retryCount int) time.Duration {
	if retryCount < 1 {
		retryCount = 1
	}

	delay := backoffBase
	for i := 1; i < retryCount; i++ {
		delay *= 2
		if delay >= backoffCap {
			delay = backoffCap
			break
		}
	}

	// Jitter of +/- 20% around the computed delay.
	jitter := time.Duration((rand.Float64()*2 - 1) * jitterFraction * float64(delay))
	return delay + jitter
}
