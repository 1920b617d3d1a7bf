// Package debounce provides a cancelable single-slot timer.
//
// Schedule replaces any pending action and restarts the quiet window, so a
// burst of calls results in exactly one execution of the last action.
package debounce

import (
	"sync"
	"time"
)

type Debouncer struct {
	mu      sync.Mutex
	delay   time.Duration
	timer   *time.Timer
	pending func()
	gen     uint64
}

func New(delay time.Duration) *Debouncer {
	return &Debouncer{delay: delay}
}

// Schedule arranges for action to run once the quiet window elapses.
func (d *Debouncer) Schedule(action func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.gen++
	gen := d.gen
	d.pending = action
	d.timer = time.AfterFunc(d.delay, func() {
		d.fire(gen)
	})
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	// A newer Schedule or a Cancel superseded this timer.
	if gen != d.gen || d.pending == nil {
		d.mu.Unlock()
		return
	}
	action := d.pending
	d.pending = nil
	d.timer = nil
	d.mu.Unlock()

	action()
}

// Cancel drops the pending action. It reports whether one was pending.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	had := d.pending != nil
	d.stopLocked()
	d.gen++
	return had
}

// Flush runs the pending action now, on the caller's goroutine.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	action := d.pending
	d.stopLocked()
	d.gen++
	d.mu.Unlock()

	if action == nil {
		return false
	}
	action()
	return true
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending != nil
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.pending = nil
}
