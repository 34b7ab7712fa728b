// Package debounce coalesces bursts of triggers into a single delayed call.
package debounce

import (
	"sync"
	"time"
)

// Debouncer runs only the last function passed to Trigger once Window has
// elapsed without another Trigger. The zero value is not usable; use New.
type Debouncer struct {
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
	gen   uint64
}

// New creates a Debouncer with the given quiet window.
func New(window time.Duration) *Debouncer {
	return &Debouncer{window: window}
}

// Window returns the configured quiet window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// Trigger (re)arms the timer. A previously armed fn that has not started
// yet will never run.
func (d *Debouncer) Trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	gen := d.gen
	if d.timer != nil {
		d.timer.Stop()
	}

	// Stop does not guarantee the old callback is not already running up to
	// the generation check, so the check below is what actually drops it.
	d.timer = time.AfterFunc(d.window, func() {
		d.mu.Lock()
		if gen != d.gen {
			d.mu.Unlock()
			return
		}
		d.timer = nil
		d.mu.Unlock()
		fn()
	})
}

// Cancel drops any pending call.
func (d *Debouncer) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gen++
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

// Pending reports whether a call is armed and has not started.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil
}
