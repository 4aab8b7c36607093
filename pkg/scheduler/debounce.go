package scheduler

import (
	"sync"
	"time"
)

// Debouncer runs at most one pending callback. Scheduling again cancels the
// previous one, so a burst of calls results in a single run after the last.
type Debouncer struct {
	mu      sync.Mutex
	clock   Clock
	timer   Timer
	seq     uint64
	pending bool
}

func NewDebouncer(clock Clock) *Debouncer {
	if clock == nil {
		clock = RealClock{}
	}
	return &Debouncer{clock: clock}
}

func (d *Debouncer) Schedule(delay time.Duration, fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.stopLocked()
	d.seq++
	seq := d.seq
	d.pending = true
	d.timer = d.clock.AfterFunc(delay, func() {
		d.mu.Lock()
		if seq != d.seq || !d.pending {
			d.mu.Unlock()
			return
		}
		d.pending = false
		d.timer = nil
		d.mu.Unlock()

		fn()
	})
}

// Cancel drops the pending callback and reports whether there was one.
func (d *Debouncer) Cancel() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	was := d.pending
	d.stopLocked()
	return was
}

func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

func (d *Debouncer) stopLocked() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.seq++
	d.pending = false
}
