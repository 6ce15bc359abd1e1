package dispatch

import (
	"testing"
	"time"
)

func TestBackoffDelayGrowsAndCaps(t *testing.T) {
	base := 100 * time.Millisecond
	max := time.Second

	for attempt := 1; attempt <= 10; attempt++ {
		got := backoffDelay(attempt, base, max)
		if got <= 0 {
			t.Errorf("attempt %d: non-positive delay %v", attempt, got)
		}
		if got > max {
			t.Errorf("attempt %d: delay %v exceeds cap %v", attempt, got, max)
		}
	}

	// Jitter spreads around the exponential value: attempt 1 stays within
	// [base/2, 1.5*base).
	for i := 0; i < 100; i++ {
		got := backoffDelay(1, base, max)
		if got < base/2 || got >= base*3/2 {
			t.Fatalf("attempt 1 delay %v outside jitter window", got)
		}
	}
}

func TestBackoffDelayHandlesBadAttempt(t *testing.T) {
	if got := backoffDelay(0, 10*time.Millisecond, time.Second); got <= 0 {
		t.Errorf("attempt 0 should behave as attempt 1, got %v", got)
	}
}
