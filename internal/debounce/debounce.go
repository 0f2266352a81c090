package debounce

import (
	"sync"
	"time"
)

// State is the debouncer's position in its idle -> pending -> forced cycle.
type State int

const (
	// Idle: no call is waiting.
	Idle State = iota
	// Pending: a trailing call is armed and each new call pushes it back by the quiet interval.
	Pending
	// Forced: the max-wait deadline has been reached; the timer is pinned and further calls do not move it.
	Forced
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Pending:
		return "pending"
	case Forced:
		return "forced"
	default:
		return "unknown"
	}
}

// Debouncer collapses bursts of Call into a single trailing invocation of fn.
// A burst that keeps arriving for longer than maxWait still invokes fn once the
// max-wait deadline passes, so sustained pressure cannot starve fn.
type Debouncer struct {
	mu      sync.Mutex
	wait    time.Duration
	maxWait time.Duration
	fn      func()
	clock   Clock

	state      State
	burstStart time.Time
	deadline   time.Time
	timer      Timer
	gen        uint64 // bumped on every re-arm; stale callbacks compare against it
	stopped    bool
}

// Option customises a Debouncer.
type Option func(*Debouncer)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(c Clock) Option {
	return func(d *Debouncer) {
		if c != nil {
			d.clock = c
		}
	}
}

// New returns a debouncer with quiet interval wait and upper bound maxWait.
// maxWait <= 0 disables the bound.
func New(wait, maxWait time.Duration, fn func(), opts ...Option) *Debouncer {
	if wait < 0 {
		wait = 0
	}
	d := &Debouncer{wait: wait, maxWait: maxWait, fn: fn, clock: RealClock()}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Call requests an invocation of fn.
func (d *Debouncer) Call() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	now := d.clock.Now()
	switch d.state {
	case Idle:
		d.burstStart = now
		d.schedule(now, now.Add(d.wait))
	case Pending:
		d.schedule(now, now.Add(d.wait))
	case Forced:
		// deadline is fixed
	}
}

// schedule arms the timer for at, clamped to the max-wait deadline. Caller holds mu.
func (d *Debouncer) schedule(now, at time.Time) {
	next := Pending
	if d.maxWait > 0 {
		limit := d.burstStart.Add(d.maxWait)
		if !at.Before(limit) {
			at = limit
			next = Forced
		}
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.gen++
	gen := d.gen
	d.state = next
	d.deadline = at
	delay := at.Sub(now)
	if delay < 0 {
		delay = 0
	}
	d.timer = d.clock.AfterFunc(delay, func() { d.fire(gen) })
}

func (d *Debouncer) fire(gen uint64) {
	d.mu.Lock()
	if gen != d.gen || d.state == Idle || d.stopped {
		d.mu.Unlock()
		return
	}
	d.reset()
	d.mu.Unlock()
	d.fn()
}

// reset returns to Idle. Caller holds mu.
func (d *Debouncer) reset() {
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.gen++
	d.state = Idle
	d.burstStart = time.Time{}
	d.deadline = time.Time{}
}

// Flush runs a waiting invocation immediately. It reports whether fn ran.
func (d *Debouncer) Flush() bool {
	d.mu.Lock()
	if d.state == Idle || d.stopped {
		d.mu.Unlock()
		return false
	}
	d.reset()
	d.mu.Unlock()
	d.fn()
	return true
}

// Stop cancels any waiting invocation and makes later calls no-ops.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.reset()
	d.stopped = true
	d.mu.Unlock()
}

// State returns the current state.
func (d *Debouncer) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Deadline returns when the armed invocation will fire, or the zero time when idle.
func (d *Debouncer) Deadline() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.deadline
}
