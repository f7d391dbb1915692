package follow

import "time"

// Delays used when the recognition config leaves them unset.
const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 10 * time.Second
)

// backoff computes the delay before retry number attempt (1-based). The
// delay starts at initial, doubles per attempt and is capped at ceiling.
func backoff(attempt int, initial, ceiling time.Duration) time.Duration {
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	if ceiling <= 0 {
		ceiling = defaultMaxBackoff
	}
	d := initial
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	return min(d, ceiling)
}
