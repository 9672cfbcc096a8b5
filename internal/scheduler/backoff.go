package scheduler

import "time"

// Backoff returns the delay before the next check after a number of
// consecutive failures: the source's own frequency doubled per additional
// failure, capped. failures is the count including the failure being
// recorded.
func Backoff(frequency time.Duration, failures int, cap time.Duration) time.Duration {
	if failures < 1 {
		failures = 1
	}
	delay := frequency
	for i := 1; i < failures; i++ {
		delay *= 2
		if cap > 0 && delay >= cap {
			return cap
		}
	}
	if cap > 0 && delay > cap {
		return cap
	}
	return delay
}
