// Package ratelimit paces outgoing Unsplash API calls and tracks the
// server-reported request quota from the X-Ratelimit-* response headers.
package ratelimit

import (
	"time"
)

// Response headers carrying the request quota.
const (
	HeaderLimit     = "X-Ratelimit-Limit"
	HeaderRemaining = "X-Ratelimit-Remaining"
)

// Thresholds for quota decisions.
const (
	// RemainingThresholdWarning logs a warning when the remaining quota falls below this value.
	RemainingThresholdWarning = 10

	// DefaultResetWindow is how long an exhausted quota blocks requests after it was observed.
	// Unsplash resets the demo quota hourly and does not send a reset header.
	DefaultResetWindow = time.Hour
)

// QuotaState represents the last observed request quota.
type QuotaState struct {
	// Limit is the quota size for the current window (X-Ratelimit-Limit).
	Limit int `json:"limit"`

	// Remaining is the number of requests left in the window (X-Ratelimit-Remaining).
	Remaining int `json:"remaining"`

	// LastUpdate is when the headers were observed. Zero means never.
	LastUpdate time.Time `json:"last_update"`
}

// Known reports whether the state has been populated from a response.
func (s QuotaState) Known() bool {
	return !s.LastUpdate.IsZero()
}

// IsStale returns true if the state is older than maxAge.
func (s QuotaState) IsStale(maxAge time.Duration) bool {
	return time.Since(s.LastUpdate) > maxAge
}

// Exhausted returns true if no requests remain and the observation is still
// inside the reset window.
func (s QuotaState) Exhausted(window time.Duration) bool {
	return s.Known() && s.Remaining <= 0 && !s.IsStale(window)
}

// NeedsWarning returns true if the remaining quota is low but not exhausted.
func (s QuotaState) NeedsWarning() bool {
	return s.Known() && s.Remaining > 0 && s.Remaining < RemainingThresholdWarning
}

// TimeUntilReset returns the remaining block time for an exhausted quota, or 0.
func (s QuotaState) TimeUntilReset(window time.Duration) time.Duration {
	if !s.Known() {
		return 0
	}
	d := time.Until(s.LastUpdate.Add(window))
	if d < 0 {
		return 0
	}
	return d
}
