package engine

import (
	"sync"
	"time"
)

// Clock is a single-resolution countdown for one bounded interval. It ticks
// once per second, reporting the remaining time, and fires its expiry
// callback exactly once. Cancel stops future ticks and disarms the expiry
// latch; it is safe to call repeatedly and after expiry.
//
// Two independent Clocks exist per active session: one for total session
// time, one re-armed per question.
type Clock struct {
	interval time.Duration

	mu        sync.Mutex
	remaining int
	running   bool
	expired   bool
	stop      chan struct{}
}

// NewClock returns a clock ticking at the standard one-second resolution.
func NewClock() *Clock {
	return NewClockWithInterval(time.Second)
}

// NewClockWithInterval is test-only plumbing for fast deterministic ticks.
func NewClockWithInterval(interval time.Duration) *Clock {
	if interval <= 0 {
		interval = time.Second
	}
	return &Clock{interval: interval}
}

// Start arms the clock for durationSeconds. onTick receives each remaining
// value down to 0; onExpire fires once when the countdown reaches zero.
// Starting an already-running clock cancels the previous countdown first.
func (c *Clock) Start(durationSeconds int, onTick func(remaining int), onExpire func()) {
	c.Cancel()

	c.mu.Lock()
	c.remaining = durationSeconds
	c.running = true
	c.expired = false
	c.stop = make(chan struct{})
	stop := c.stop
	c.mu.Unlock()

	if durationSeconds <= 0 {
		// Already past the deadline: expire on arm, still exactly once.
		if c.latchExpiry(stop) && onExpire != nil {
			onExpire()
		}
		return
	}

	go c.loop(stop, onTick, onExpire)
}

func (c *Clock) loop(stop chan struct{}, onTick func(int), onExpire func()) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			// A Restart swaps c.stop before this goroutine observes the close;
			// a tick from the superseded countdown must not touch the new one.
			if c.stop != stop || !c.running || c.expired {
				c.mu.Unlock()
				return
			}
			if c.remaining > 0 {
				c.remaining--
			}
			remaining := c.remaining
			c.mu.Unlock()

			if onTick != nil {
				onTick(remaining)
			}
			if remaining <= 0 {
				if c.latchExpiry(stop) && onExpire != nil {
					onExpire()
				}
				return
			}
		}
	}
}

// latchExpiry flips the exactly-once latch for the countdown identified by
// stop. A tick already queued behind an expiry, a concurrent Cancel, or a
// countdown superseded by a Restart sees the latch set (or a newer stop
// channel) and does nothing.
func (c *Clock) latchExpiry(stop chan struct{}) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != stop || !c.running || c.expired {
		return false
	}
	c.expired = true
	c.running = false
	return true
}

// Cancel stops future ticks and disarms the expiry latch. Idempotent.
func (c *Clock) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.stop != nil {
		close(c.stop)
		c.stop = nil
	}
	c.running = false
}

// Remaining returns the last counted remaining value.
func (c *Clock) Remaining() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.remaining
}
