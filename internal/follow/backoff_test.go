package follow

import (
	"testing"
	"time"
)

func TestBackoff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		attempt int
		initial time.Duration
		max     time.Duration
		want    time.Duration
	}{
		{1, 100 * time.Millisecond, time.Second, 100 * time.Millisecond},
		{2, 100 * time.Millisecond, time.Second, 200 * time.Millisecond},
		{4, 100 * time.Millisecond, time.Second, 800 * time.Millisecond},
		{5, 100 * time.Millisecond, time.Second, time.Second},
		{60, 100 * time.Millisecond, time.Second, time.Second},
		{1, 2 * time.Second, time.Second, time.Second},
		{1, 0, 0, defaultInitialBackoff},
	}
	for _, tt := range tests {
		if got := backoff(tt.attempt, tt.initial, tt.max); got != tt.want {
			t.Errorf("backoff(%d, %s, %s) = %s, want %s", tt.attempt, tt.initial, tt.max, got, tt.want)
		}
	}
}
