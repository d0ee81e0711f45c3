// Package fakeclock is a manually advanced eventbuffer.Clock for tests.
package fakeclock

import (
	"sync"
	"time"

	"drafter/pkg/eventbuffer"
)

// Clock only moves when Advance is called. Timers fire synchronously inside
// Advance, in deadline order; timers created by a firing callback fire in the
// same Advance call when they fall due before its target.
type Clock struct {
	mu     sync.Mutex
	now    time.Time
	seq    uint64
	timers []*timer
}

var _ eventbuffer.Clock = (*Clock)(nil)

func New(start time.Time) *Clock {
	return &Clock{now: start}
}

type timer struct {
	c    *Clock
	when time.Time
	seq  uint64
	f    func()
	done bool
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since is the elapsed fake time since t.
func (c *Clock) Since(t time.Time) time.Duration { return c.Now().Sub(t) }

func (c *Clock) AfterFunc(d time.Duration, f func()) eventbuffer.Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d < 0 {
		d = 0
	}
	c.seq++
	t := &timer{c: c, when: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *timer) Stop() bool {
	t.c.mu.Lock()
	defer t.c.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	t.c.removeLocked(t)
	return true
}

// Pending is the number of timers that have not fired or been stopped.
func (c *Clock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.timers)
}

// Advance moves the clock forward by d, firing every timer that falls due.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.mu.Unlock()

	for {
		c.mu.Lock()
		t := c.nextDueLocked(target)
		if t == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if t.when.After(c.now) {
			c.now = t.when
		}
		t.done = true
		c.removeLocked(t)
		c.mu.Unlock()

		t.f()
	}
}

// AdvanceTo moves the clock to at, which must not be before Now.
func (c *Clock) AdvanceTo(at time.Time) {
	c.Advance(at.Sub(c.Now()))
}

func (c *Clock) nextDueLocked(target time.Time) *timer {
	var best *timer
	for _, t := range c.timers {
		if t.when.After(target) {
			continue
		}
		if best == nil || t.when.Before(best.when) || (t.when.Equal(best.when) && t.seq < best.seq) {
			best = t
		}
	}
	return best
}

func (c *Clock) removeLocked(t *timer) {
	for i, x := range c.timers {
		if x == t {
			c.timers = append(c.timers[:i], c.timers[i+1:]...)
			return
		}
	}
}
