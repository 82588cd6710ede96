package clock

import (
	"sort"
	"sync"
	"time"
)

// FakeClock is a deterministic Clock for tests. Time moves only when
// Advance or Set is called. AfterFunc callbacks run synchronously inside
// Advance, in deadline order; they must not call Advance themselves.
//
// FakeClock is safe for concurrent use.
type FakeClock struct {
	mu      sync.Mutex
	current time.Time
	waiters []*fakeWaiter
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time // tickers
	callback func()         // AfterFunc
	interval time.Duration  // non-zero for tickers
	stopped  bool
	fired    bool
}

// Fake returns a FakeClock set to initial.
func Fake(initial time.Time) *FakeClock {
	return &FakeClock{current: initial}
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// NewTicker registers a ticker that fires each time the clock advances
// past its next deadline.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		channel:  channel,
		interval: d,
	}
	c.waiters = append(c.waiters, waiter)

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// AfterFunc schedules f to run when the clock reaches now+d. If d <= 0, f
// runs before AfterFunc returns.
func (c *FakeClock) AfterFunc(d time.Duration, f func()) *Timer {
	if d <= 0 {
		f()
		return &Timer{stopFunc: func() bool { return false }}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	waiter := &fakeWaiter{
		deadline: c.current.Add(d),
		callback: f,
	}
	c.waiters = append(c.waiters, waiter)

	return &Timer{
		stopFunc: func() bool {
			c.mu.Lock()
			defer c.mu.Unlock()
			if waiter.stopped || waiter.fired {
				return false
			}
			waiter.stopped = true
			return true
		},
	}
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline falls within the window.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	target := c.current.Add(d)
	c.mu.Unlock()
	c.advanceTo(target)
}

// Set jumps the clock to t. Waiters due at or before t fire; setting a
// time in the past fires nothing.
func (c *FakeClock) Set(t time.Time) {
	c.advanceTo(t)
}

// PendingTimers reports how many AfterFunc callbacks are still scheduled.
func (c *FakeClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	count := 0
	for _, w := range c.waiters {
		if w.callback != nil && !w.stopped && !w.fired {
			count++
		}
	}
	return count
}

func (c *FakeClock) advanceTo(target time.Time) {
	for {
		c.mu.Lock()
		c.compact()
		sort.SliceStable(c.waiters, func(i, j int) bool {
			return c.waiters[i].deadline.Before(c.waiters[j].deadline)
		})

		var next *fakeWaiter
		for _, w := range c.waiters {
			if !w.deadline.After(target) {
				next = w
				break
			}
		}
		if next == nil {
			if target.After(c.current) {
				c.current = target
			}
			c.mu.Unlock()
			return
		}

		if next.deadline.After(c.current) {
			c.current = next.deadline
		}
		fireTime := c.current

		if next.interval > 0 {
			next.deadline = next.deadline.Add(next.interval)
			select {
			case next.channel <- fireTime:
			default:
			}
			c.mu.Unlock()
			continue
		}

		next.fired = true
		callback := next.callback
		c.mu.Unlock()
		if callback != nil {
			callback()
		}
	}
}

// compact drops stopped and fired waiters. Caller holds mu.
func (c *FakeClock) compact() {
	live := c.waiters[:0]
	for _, w := range c.waiters {
		if w.stopped || w.fired {
			continue
		}
		live = append(live, w)
	}
	c.waiters = live
}
