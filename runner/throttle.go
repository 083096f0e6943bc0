package runner

import (
	"sync"
	"time"
)

// defaultThrottleInterval is the minimum spacing between progress emissions.
const defaultThrottleInterval = 50 * time.Millisecond

// emitThrottler rate-limits progress emissions. A request arriving inside the
// throttle window is coalesced into a single trailing emission rather than
// dropped; Force bypasses the window for latency-sensitive transitions.
type emitThrottler struct {
	interval time.Duration
	emit     func()

	mu      sync.Mutex
	last    time.Time
	timer   *time.Timer
	pending bool
	stopped bool
}

func newEmitThrottler(interval time.Duration, emit func()) *emitThrottler {
	if interval <= 0 {
		interval = defaultThrottleInterval
	}
	return &emitThrottler{interval: interval, emit: emit}
}

// Request emits immediately when outside the throttle window, otherwise
// schedules one trailing emission at the window boundary.
func (t *emitThrottler) Request() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	now := time.Now()
	if now.Sub(t.last) >= t.interval {
		t.last = now
		t.mu.Unlock()
		t.emit()
		return
	}
	if !t.pending {
		t.pending = true
		t.timer = time.AfterFunc(t.interval-now.Sub(t.last), t.fire)
	}
	t.mu.Unlock()
}

// Force emits immediately, cancelling any scheduled trailing emission and
// resetting the throttle window.
func (t *emitThrottler) Force() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = false
	t.last = time.Now()
	t.mu.Unlock()
	t.emit()
}

// Stop cancels any scheduled emission and silences the throttler.
func (t *emitThrottler) Stop() {
	t.mu.Lock()
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
	}
	t.pending = false
	t.mu.Unlock()
}

func (t *emitThrottler) fire() {
	t.mu.Lock()
	if t.stopped || !t.pending {
		t.mu.Unlock()
		return
	}
	t.pending = false
	t.last = time.Now()
	t.mu.Unlock()
	t.emit()
}
