package ratelimit

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
)

// Prometheus metrics for quota tracking.
var (
	quotaRemaining = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "unsplash_ratelimit_remaining",
		Help: "Requests remaining in the current Unsplash quota window",
	})

	quotaBlocksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "unsplash_ratelimit_blocks_total",
		Help: "Total number of requests blocked because the quota was exhausted",
	})
)

// Tracker keeps the last quota reported by the server and gates requests
// while it is exhausted. Safe for concurrent use.
type Tracker struct {
	mu     sync.RWMutex
	state  QuotaState
	window time.Duration
	logger zerolog.Logger
}

// NewTracker creates a quota tracker. A non-positive window uses DefaultResetWindow.
func NewTracker(window time.Duration, logger zerolog.Logger) *Tracker {
	if window <= 0 {
		window = DefaultResetWindow
	}
	return &Tracker{
		window: window,
		logger: logger,
	}
}

// State returns a copy of the current quota state.
func (t *Tracker) State() QuotaState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state
}

// UpdateFromHeaders parses the quota headers of a response.
// Responses without the headers leave the state untouched.
func (t *Tracker) UpdateFromHeaders(headers http.Header) error {
	remainStr := headers.Get(HeaderRemaining)
	if remainStr == "" {
		return nil
	}

	remain, err := strconv.Atoi(remainStr)
	if err != nil {
		return fmt.Errorf("parse %s header: %w", HeaderRemaining, err)
	}

	limit := 0
	if limitStr := headers.Get(HeaderLimit); limitStr != "" {
		limit, err = strconv.Atoi(limitStr)
		if err != nil {
			return fmt.Errorf("parse %s header: %w", HeaderLimit, err)
		}
	}

	state := QuotaState{
		Limit:      limit,
		Remaining:  remain,
		LastUpdate: time.Now(),
	}

	t.mu.Lock()
	t.state = state
	t.mu.Unlock()

	quotaRemaining.Set(float64(remain))

	switch {
	case state.Exhausted(t.window):
		t.logger.Error().
			Int("remaining", remain).
			Int("limit", limit).
			Msg("Unsplash quota exhausted - requests will be blocked")
	case state.NeedsWarning():
		t.logger.Warn().
			Int("remaining", remain).
			Int("limit", limit).
			Msg("Unsplash quota running low")
	default:
		t.logger.Debug().
			Int("remaining", remain).
			Int("limit", limit).
			Msg("Unsplash quota updated")
	}

	return nil
}

// ShouldAllowRequest returns false while the quota is exhausted.
func (t *Tracker) ShouldAllowRequest() bool {
	state := t.State()
	if !state.Exhausted(t.window) {
		return true
	}

	t.logger.Warn().
		Dur("wait_duration", state.TimeUntilReset(t.window)).
		Msg("Unsplash quota exhausted - blocking request")
	quotaBlocksTotal.Inc()
	return false
}
