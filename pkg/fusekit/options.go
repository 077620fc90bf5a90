package fusekit

import (
	"log/slog"

	"github.com/joshuapare/fusekit/fuse/commit"
	"github.com/joshuapare/fusekit/fuse/journal"
	"github.com/joshuapare/fusekit/internal/clock"
)

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. It is passed down to the allocator,
// the repair overlay and the commit sequencer.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock sets the clock used for hardware polling and journal timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Session) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithJournal records every commit in j. The session does not close j.
func WithJournal(j *journal.Journal) Option {
	return func(s *Session) { s.journal = j }
}

// WithAttempts overrides the geometry's commit attempt count.
func WithAttempts(n int) Option {
	return func(s *Session) { s.attempts = n }
}

// WithProgress reports per-row commit progress.
func WithProgress(fn commit.ProgressFunc) Option {
	return func(s *Session) { s.progress = fn }
}
