package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// DefaultMinInterval is the minimum spacing between two outgoing calls.
const DefaultMinInterval = 100 * time.Millisecond

var limiterWaitSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
	Name:    "unsplash_ratelimit_wait_seconds",
	Help:    "Time callers spent waiting for a request slot",
	Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
})

// Limiter spaces callers so that consecutive slots are at least
// MinInterval apart. Safe for concurrent use.
type Limiter struct {
	interval time.Duration

	mu   sync.Mutex
	last time.Time // time of the most recently reserved slot
}

// NewLimiter creates a limiter. A non-positive interval uses DefaultMinInterval.
func NewLimiter(interval time.Duration) *Limiter {
	if interval <= 0 {
		interval = DefaultMinInterval
	}
	return &Limiter{interval: interval}
}

// Interval returns the configured minimum spacing.
func (l *Limiter) Interval() time.Duration {
	return l.interval
}

// AwaitSlot blocks until the caller's slot is due. The slot is reserved
// under the lock before sleeping, so concurrent callers queue up one
// interval apart instead of racing on a stale timestamp. A cancelled
// caller gives up its wait but the reserved slot is not reused.
func (l *Limiter) AwaitSlot(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	now := time.Now()
	slot := now
	if !l.last.IsZero() {
		if next := l.last.Add(l.interval); next.After(now) {
			slot = next
		}
	}
	l.last = slot
	l.mu.Unlock()

	wait := slot.Sub(now)
	limiterWaitSeconds.Observe(wait.Seconds())
	if wait <= 0 {
		return nil
	}

	timer := time.NewTimer(wait)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
