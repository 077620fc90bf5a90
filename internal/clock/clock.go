// Package clock abstracts time so poll loops and settle delays can be
// driven deterministically in tests.
//
// Production code injects Real(). Tests inject Stepping(), whose Sleep
// advances the clock instead of blocking, so a single-goroutine poll loop
// reaches its deadline without a second goroutine calling Advance.
package clock

import "time"

// Clock is the subset of the time package used by the commit sequencer.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// Sleep pauses for at least d.
	Sleep(d time.Duration)
}

// Real returns a Clock backed by the standard time package.
func Real() Clock { return realClock{} }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

func (realClock) Sleep(d time.Duration) { time.Sleep(d) }

// Deadline returns the instant d after c.Now().
func Deadline(c Clock, d time.Duration) time.Time {
	return c.Now().Add(d)
}

// Expired reports whether c has reached deadline.
func Expired(c Clock, deadline time.Time) bool {
	return !c.Now().Before(deadline)
}
