package commit

import (
	"log/slog"

	"github.com/joshuapare/fusekit/internal/clock"
)

// Progress reports one programmed row.
type Progress struct {
	Attempt   int
	Row       int
	RowsDone  int
	RowsTotal int
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

// Option configures a Sequencer.
type Option func(*Sequencer)

// WithLogger sets the structured logger. The default discards output.
func WithLogger(l *slog.Logger) Option {
	return func(s *Sequencer) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock replaces the real clock used for polls and the settle delay.
//
// Example:
//
//	seq := commit.New(geo, cache, commit.WithClock(clock.Stepping(start)))
func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithAttempts overrides the geometry's attempt count.
func WithAttempts(n int) Option {
	return func(s *Sequencer) {
		if n > 0 {
			s.timing.Attempts = n
		}
	}
}

// WithProgress sets a callback invoked after every row is programmed.
func WithProgress(fn ProgressFunc) Option {
	return func(s *Sequencer) {
		s.progress = fn
	}
}
