// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package clock

import (
	"sort"
	"sync"
	"time"
)

// Fake returns a FakeClock initialized to the given time. Time stands
// still until Advance is called.
func Fake(initial time.Time) *FakeClock {
	clock := &FakeClock{current: initial}
	clock.waitersChanged = sync.NewCond(&clock.mu)
	return clock
}

// FakeClock is a deterministic Clock for tests. It is safe for
// concurrent use.
type FakeClock struct {
	mu             sync.Mutex
	current        time.Time
	waiters        []*fakeWaiter
	waitersChanged *sync.Cond
}

type fakeWaiter struct {
	deadline time.Time
	channel  chan time.Time

	// interval is non-zero for tickers, which are rescheduled at
	// deadline + interval after firing.
	interval time.Duration
	stopped  bool
}

// Now returns the current fake time.
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// After returns a channel that receives once the clock has advanced by
// d. If d <= 0 the channel receives immediately.
func (c *FakeClock) After(d time.Duration) <-chan time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	if d <= 0 {
		channel <- c.current
		return channel
	}
	c.waiters = append(c.waiters, &fakeWaiter{deadline: c.current.Add(d), channel: channel})
	c.waitersChanged.Broadcast()
	return channel
}

// NewTicker returns a Ticker that fires every d of advanced time.
func (c *FakeClock) NewTicker(d time.Duration) *Ticker {
	if d <= 0 {
		panic("clock: non-positive interval for NewTicker")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	channel := make(chan time.Time, 1)
	waiter := &fakeWaiter{deadline: c.current.Add(d), channel: channel, interval: d}
	c.waiters = append(c.waiters, waiter)
	c.waitersChanged.Broadcast()

	return &Ticker{
		C: channel,
		stopFunc: func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			waiter.stopped = true
		},
	}
}

// Advance moves the clock forward by d, firing every waiter whose
// deadline falls within the advanced interval in deadline order.
// Tickers that fall behind drop ticks, as time.Ticker does.
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	target := c.current.Add(d)
	for {
		waiter := c.nextDueLocked(target)
		if waiter == nil {
			break
		}
		c.current = waiter.deadline
		select {
		case waiter.channel <- waiter.deadline:
		default:
		}
		if waiter.interval > 0 {
			waiter.deadline = waiter.deadline.Add(waiter.interval)
		} else {
			waiter.stopped = true
		}
	}
	c.current = target
	c.pruneLocked()
}

// nextDueLocked returns the earliest active waiter with a deadline at
// or before target, or nil.
func (c *FakeClock) nextDueLocked(target time.Time) *fakeWaiter {
	active := make([]*fakeWaiter, 0, len(c.waiters))
	for _, waiter := range c.waiters {
		if !waiter.stopped && !waiter.deadline.After(target) {
			active = append(active, waiter)
		}
	}
	if len(active) == 0 {
		return nil
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].deadline.Before(active[j].deadline)
	})
	return active[0]
}

func (c *FakeClock) pruneLocked() {
	remaining := c.waiters[:0]
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			remaining = append(remaining, waiter)
		}
	}
	c.waiters = remaining
}

// WaitForTimers blocks until at least n timers or tickers are pending.
// This removes the race between a goroutine registering a timer and
// the test advancing the clock.
func (c *FakeClock) WaitForTimers(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.pendingCountLocked() < n {
		c.waitersChanged.Wait()
	}
}

// PendingCount returns the number of active pending waiters.
func (c *FakeClock) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pendingCountLocked()
}

func (c *FakeClock) pendingCountLocked() int {
	count := 0
	for _, waiter := range c.waiters {
		if !waiter.stopped {
			count++
		}
	}
	return count
}
