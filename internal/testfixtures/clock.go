// Package testfixtures holds deterministic collaborators shared by package
// tests: a clock, an id generator, an in-memory remote store and a
// connectivity probe.
package testfixtures

import (
	"sync"
	"time"
)

// ReferenceTime is the default instant for test clocks.
func ReferenceTime() time.Time {
	return time.Date(2026, time.February, 25, 9, 0, 0, 0, time.UTC)
}

// Clock provides a controllable time source for tests. With a non-zero step
// every call to Now advances the clock by step after reading it, which gives
// strictly increasing timestamps to records created in sequence.
type Clock struct {
	mu      sync.Mutex
	current time.Time
	step    time.Duration
}

// NewClock returns a clock initialised to start, or ReferenceTime when start
// is zero.
func NewClock(start time.Time) *Clock {
	if start.IsZero() {
		start = ReferenceTime()
	}
	return &Clock{current: start}
}

// NewTickingClock is NewClock with an automatic step.
func NewTickingClock(start time.Time, step time.Duration) *Clock {
	c := NewClock(start)
	c.step = step
	return c
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.current
	c.current = c.current.Add(c.step)
	return now
}

// NowFunc exposes Now for dependency injection.
func (c *Clock) NowFunc() func() time.Time {
	if c == nil {
		return time.Now
	}
	return c.Now
}

func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.current = c.current.Add(d)
	updated := c.current
	c.mu.Unlock()
	return updated
}
