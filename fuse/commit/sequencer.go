package commit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/image"
	"github.com/joshuapare/fusekit/fuse/verify"
	"github.com/joshuapare/fusekit/internal/clock"
)

// Result describes a successful commit.
type Result struct {
	Attempts int         // attempts used, starting at 1
	Rows     []int       // rows programmed by the final attempt
	Before   image.Image // array state sensed at the start of the first attempt
	After    image.Image // verified array state
	Warnings []error     // non-fatal pre-flight findings
}

// Sequencer programs requested images into a device.
type Sequencer struct {
	geo      fuse.Geometry
	timing   fuse.Timing
	cache    *image.Cache
	dev      fuse.Device
	clock    clock.Clock
	logger   *slog.Logger
	progress ProgressFunc

	state   State
	trace   []State
	enabled bool
}

// New returns a sequencer writing through cache's device.
func New(g fuse.Geometry, cache *image.Cache, opts ...Option) *Sequencer {
	s := &Sequencer{
		geo:    g,
		timing: g.Timing.WithDefaults(),
		cache:  cache,
		dev:    cache.Device(),
		clock:  clock.Real(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current state.
func (s *Sequencer) State() State { return s.state }

// Trace returns every state entered by the last Commit, in order.
func (s *Sequencer) Trace() []State {
	out := make([]State, len(s.trace))
	copy(out, s.trace)
	return out
}

func (s *Sequencer) enter(st State) {
	s.state = st
	s.trace = append(s.trace, st)
}

// Commit programs requested into the device. Bits already set in hardware
// but clear in requested are kept (rowsToBlow is a union) and reported as a
// warning.
func (s *Sequencer) Commit(ctx context.Context, requested image.Image) (*Result, error) {
	s.trace = s.trace[:0]
	s.enter(StateIdle)
	defer func() {
		if !s.state.Terminal() {
			s.enter(StateFailed)
		}
		s.cache.Invalidate()
	}()

	if err := verify.Bounds(s.geo, requested); err != nil {
		return nil, err
	}

	res := &Result{}
	var last error
	for attempt := 1; attempt <= s.timing.Attempts; attempt++ {
		res.Attempts = attempt
		if attempt > 1 {
			s.enter(StateRetry)
			s.logger.Warn("retrying commit", "attempt", attempt, "error", last)
		}

		after, rows, err := s.attempt(ctx, attempt, requested, res)
		s.disable()
		if err == nil {
			if err := s.dev.Latch(); err != nil {
				return nil, fmt.Errorf("latch: %w", err)
			}
			res.Rows = rows
			res.After = after
			s.enter(StateDone)
			s.logger.Info("commit complete", "attempts", attempt, "rows", len(rows))
			return res, nil
		}
		last = err
		if !retryable(err) {
			break
		}
	}

	s.enter(StateFailed)
	s.logger.Error("commit failed", "attempts", res.Attempts, "error", last)
	if retryable(last) {
		return nil, &ExhaustedError{Attempts: res.Attempts, Last: last}
	}
	return nil, last
}

func retryable(err error) bool {
	return errors.Is(err, fuse.ErrTimeout) || errors.Is(err, fuse.ErrVerificationMismatch)
}

func (s *Sequencer) attempt(ctx context.Context, attempt int, requested image.Image, res *Result) (image.Image, []int, error) {
	s.cache.Invalidate()
	current, err := s.cache.Get(ctx)
	if err != nil {
		return nil, nil, err
	}
	if attempt == 1 {
		res.Before = current
		if err := verify.Monotonic(current, requested); err != nil {
			s.logger.Warn("requested image clears programmed bits; keeping them",
				"rows", current.Cleared(requested), "error", err)
			res.Warnings = append(res.Warnings, err)
		}
	}

	rowsToBlow, err := current.Or(requested)
	if err != nil {
		return nil, nil, err
	}
	tr := image.NewTracker()
	tr.Track(current, rowsToBlow)
	rows := tr.Rows()
	s.logger.Debug("commit attempt", "attempt", attempt, "rows", len(rows), "spans", len(tr.Spans()))

	for i, row := range rows {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		if err := s.program(attempt, row, rowsToBlow[row]); err != nil {
			return nil, nil, err
		}
		if s.progress != nil {
			s.progress(Progress{Attempt: attempt, Row: row, RowsDone: i + 1, RowsTotal: len(rows)})
		}
	}

	s.disable()
	s.enter(StateVerify)
	s.clock.Sleep(s.timing.SettleDelay)
	got, err := image.Read(ctx, s.dev)
	if err != nil {
		return nil, nil, err
	}
	for r := range rowsToBlow {
		if got[r] != rowsToBlow[r] {
			return nil, nil, &MismatchError{Row: r, Want: rowsToBlow[r], Got: got[r]}
		}
	}
	return got, rows, nil
}

// program writes one row, enabling programming on first use.
func (s *Sequencer) program(attempt, row int, word uint32) error {
	if !s.enabled {
		s.enter(StateSenseEnable)
		if err := s.dev.SetProgrammingEnable(true); err != nil {
			return fmt.Errorf("enable programming: %w", err)
		}
		s.enabled = true
	}

	s.enter(StateSetAddress)
	s.enter(StateWrite)
	if err := s.dev.WriteWord(row, word); err != nil {
		return fmt.Errorf("write row %d: %w", row, err)
	}

	s.enter(StatePollIdle)
	deadline := clock.Deadline(s.clock, s.timing.PollTimeout)
	for {
		busy, err := s.dev.Busy()
		if err != nil {
			return fmt.Errorf("poll row %d: %w", row, err)
		}
		if !busy {
			return nil
		}
		if clock.Expired(s.clock, deadline) {
			return &TimeoutError{Row: row, Attempt: attempt}
		}
		s.clock.Sleep(s.timing.PollInterval)
	}
}

func (s *Sequencer) disable() {
	if !s.enabled {
		return
	}
	if err := s.dev.SetProgrammingEnable(false); err != nil {
		s.logger.Warn("disable programming", "error", err)
	}
	s.enabled = false
}
