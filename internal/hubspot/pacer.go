package hubspot

import (
	"context"
	"sync"
	"time"
)

// Pacer enforces a hard minimum spacing between consecutive request
// dispatches. One Pacer is shared by every job using the same credential:
// the HubSpot limit (150 requests per 10 seconds) is account-wide, so the
// serialization point must be too. The last-dispatch timestamp is the only
// cross-job mutable state in the connector and is guarded by a single
// critical section per dispatch.
type Pacer struct {
	mu       sync.Mutex
	interval time.Duration
	last     time.Time
}

// NewPacer returns a pacer spacing dispatches at least interval apart.
func NewPacer(interval time.Duration) *Pacer {
	return &Pacer{interval: interval}
}

// Wait blocks until the spacing floor has elapsed since the previous
// dispatch, then claims the current slot. Holding the lock across the sleep
// is intentional: concurrent callers queue behind it, which is exactly the
// account-wide serialization the source API requires.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.last.IsZero() {
		if wait := p.interval - time.Since(p.last); wait > 0 {
			timer := time.NewTimer(wait)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
	p.last = time.Now()
	return nil
}
