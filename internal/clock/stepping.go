package clock

import (
	"sync"
	"time"
)

// SteppingClock is a deterministic Clock whose time moves only through
// Sleep and Advance. It is safe for concurrent use.
type SteppingClock struct {
	mu      sync.Mutex
	current time.Time
	slept   time.Duration
	sleeps  int
}

// Stepping returns a SteppingClock starting at initial.
func Stepping(initial time.Time) *SteppingClock {
	return &SteppingClock{current: initial}
}

// Now returns the current fake time.
func (c *SteppingClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Sleep advances the clock by d and returns immediately. Non-positive
// durations are counted but do not move time.
func (c *SteppingClock) Sleep(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps++
	if d <= 0 {
		return
	}
	c.current = c.current.Add(d)
	c.slept += d
}

// Advance moves the clock forward by d without recording a sleep.
func (c *SteppingClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
}

// Slept returns the total duration passed to Sleep.
func (c *SteppingClock) Slept() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.slept
}

// Sleeps returns the number of Sleep calls.
func (c *SteppingClock) Sleeps() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sleeps
}
