package connector

import (
	"context"
	"time"

	"github.com/jpillora/backoff"
)

// NewReconnectBackoff returns the exponential-backoff-with-jitter schedule
// spec.md §4.4 requires for RECONNECTING -> SUBSCRIBING: starts at 500ms,
// doubles to a 30s ceiling. Call Reset() on every successful transition back
// to STREAMING.
func NewReconnectBackoff() *backoff.Backoff {
	return &backoff.Backoff{
		Min:    500 * time.Millisecond,
		Max:    30 * time.Second,
		Factor: 2,
		Jitter: true,
	}
}

// WaitBackoff sleeps for the next backoff duration or returns false early if
// ctx is cancelled first.
func WaitBackoff(ctx context.Context, b *backoff.Backoff) bool {
	timer := time.NewTimer(b.Duration())
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
