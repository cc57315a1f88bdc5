package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock. Time moves only through Set and
// Advance, which run due AfterFunc callbacks synchronously in deadline order.
// Callbacks may call back into the clock.
type FakeClock struct {
	mu        sync.Mutex
	now       time.Time
	sinceBoot time.Duration
	loc       *time.Location
	waiters   []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	callback func()
	ticks    chan time.Time
	interval time.Duration
	stopped  bool
}

// Fake returns a FakeClock at initial, reporting initial's location
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{now: initial, loc: initial.Location()}
}

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *FakeClock) Location() *time.Location {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loc
}

func (c *FakeClock) SinceBoot() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sinceBoot
}

// SetSinceBoot overrides the elapsed-since-boot reading
func (c *FakeClock) SetSinceBoot(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sinceBoot = d
}

// AfterFunc registers f to run when time reaches now+d. Non-positive d
// fires on the next Advance or Set.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.now.Add(d), callback: f}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return &fakeTimer{clock: c, waiter: w}
}

func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}
	ch := make(chan time.Time, 1)
	c.mu.Lock()
	w := &fakeWaiter{deadline: c.now.Add(d), ticks: ch, interval: d}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	return &Ticker{C: ch, stop: func() {
		c.mu.Lock()
		w.stopped = true
		c.mu.Unlock()
	}}
}

// Pending returns the number of timers and tickers not yet fired or stopped
func (c *FakeClock) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, w := range c.waiters {
		if !w.stopped {
			n++
		}
	}
	return n
}

// Advance moves time forward by d, boot-elapsed time included
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.now.Add(d)
	c.sinceBoot += d
	c.mu.Unlock()
	c.runUntil(target)
}

// Set jumps the wall clock to t. Boot-elapsed time moves by the same amount
// when t is in the future.
func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	if t.After(c.now) {
		c.sinceBoot += t.Sub(c.now)
	}
	c.mu.Unlock()
	c.runUntil(t)
}

func (c *FakeClock) runUntil(target time.Time) {
	for {
		c.mu.Lock()
		w := c.nextDue(target)
		if w == nil {
			c.now = target
			c.mu.Unlock()
			return
		}
		if w.deadline.After(c.now) {
			c.now = w.deadline
		}
		fireAt := c.now
		if w.interval > 0 {
			w.deadline = w.deadline.Add(w.interval)
		} else {
			w.stopped = true
		}
		c.mu.Unlock()

		if w.callback != nil {
			w.callback()
		}
		if w.ticks != nil {
			select {
			case w.ticks <- fireAt:
			default:
			}
		}
	}
}

// nextDue returns the earliest live waiter due at or before target.
// Caller holds c.mu.
func (c *FakeClock) nextDue(target time.Time) *fakeWaiter {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.stopped {
			live = append(live, w)
		}
	}
	c.waiters = live
	sort.SliceStable(c.waiters, func(i, j int) bool {
		return c.waiters[i].deadline.Before(c.waiters[j].deadline)
	})
	if len(c.waiters) == 0 || c.waiters[0].deadline.After(target) {
		return nil
	}
	return c.waiters[0]
}

type fakeTimer struct {
	clock  *FakeClock
	waiter *fakeWaiter
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.waiter.stopped {
		return false
	}
	t.waiter.stopped = true
	return true
}
