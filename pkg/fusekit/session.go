package fusekit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/alloc"
	"github.com/joshuapare/fusekit/fuse/commit"
	"github.com/joshuapare/fusekit/fuse/image"
	"github.com/joshuapare/fusekit/fuse/journal"
	"github.com/joshuapare/fusekit/fuse/patch"
	"github.com/joshuapare/fusekit/fuse/repair"
	"github.com/joshuapare/fusekit/internal/clock"
	"github.com/joshuapare/fusekit/pkg/definition"
)

// Session programs one definition into one device.
//
// Methods are safe for concurrent use; they are serialized because the
// device is a single-writer resource.
type Session struct {
	mu     sync.Mutex
	def    *definition.Definition
	geo    fuse.Geometry
	cache  *image.Cache
	closed bool

	logger   *slog.Logger
	clock    clock.Clock
	journal  *journal.Journal
	attempts int
	progress commit.ProgressFunc
}

// Open returns a session over dev. The device must have exactly the
// definition's row count.
func Open(dev fuse.Device, def *definition.Definition, opts ...Option) (*Session, error) {
	if dev == nil || def == nil {
		return nil, fmt.Errorf("%w: nil device or definition", fuse.ErrBadParameter)
	}
	if dev.Rows() != def.Geometry.Rows {
		return nil, fmt.Errorf("%w: device has %d rows, geometry %q has %d",
			ErrGeometryMismatch, dev.Rows(), def.Geometry.Name, def.Geometry.Rows)
	}
	s := &Session{
		def:    def,
		geo:    def.Geometry,
		cache:  image.NewCache(dev),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		clock:  clock.Real(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close ends the session. The device and journal are left open.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.cache.Invalidate()
	return nil
}

// Definition returns the session's definition.
func (s *Session) Definition() *definition.Definition { return s.def }

// Image returns the current array contents.
func (s *Session) Image(ctx context.Context) (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	return s.cache.Get(ctx)
}

// ReadLogicalValue returns the value the chip sees for the named fuse.
func (s *Session) ReadLogicalValue(ctx context.Context, name string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrClosed
	}
	f, err := s.def.Fuse(name)
	if err != nil {
		return 0, err
	}
	p, err := s.current(ctx)
	if err != nil {
		return 0, err
	}
	v, err := p.read(f.Locators)
	if err != nil {
		return 0, fmt.Errorf("fuse %s: %w", f.Name, err)
	}
	return v, nil
}

// Reading is one fuse value.
type Reading struct {
	Fuse  string
	Value uint64
	Width int
}

// ReadAll returns the value of every defined fuse, in definition order.
func (s *Session) ReadAll(ctx context.Context) ([]Reading, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	p, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Reading, 0, len(s.def.Fuses))
	for _, f := range s.def.Fuses {
		v, err := p.read(f.Locators)
		if err != nil {
			return nil, fmt.Errorf("fuse %s: %w", f.Name, err)
		}
		out = append(out, Reading{Fuse: f.Name, Value: v, Width: f.Width()})
	}
	return out, nil
}

func (s *Session) current(ctx context.Context) (*planner, error) {
	img, err := s.cache.Get(ctx)
	if err != nil {
		return nil, err
	}
	return newPlanner(s.geo, img, s.logger)
}

// Plan is the outcome of planning a change against the current array.
type Plan struct {
	Target    string
	Before    image.Image
	Requested image.Image
	Rows      []int           // rows whose word changes
	Steps     []alloc.Step    // record allocator decisions
	Repairs   []repair.Action // repair table changes
	Patch     *patch.Plan     // nil when the change carries no patches
}

// Empty reports whether the plan leaves the array untouched.
func (p *Plan) Empty() bool { return len(p.Rows) == 0 }

// PlanProfile computes the image that CommitProfile would program, without
// touching the device.
func (s *Session) PlanProfile(ctx context.Context, name string) (*Plan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	prof, err := s.def.Profile(name)
	if err != nil {
		return nil, err
	}
	return s.plan(ctx, prof)
}

func (s *Session) plan(ctx context.Context, prof *definition.Profile) (*Plan, error) {
	p, err := s.current(ctx)
	if err != nil {
		return nil, err
	}
	for _, a := range prof.Values {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := p.apply(a.Fuse.Name, a.Fuse.Locators, a.Value); err != nil {
			return nil, err
		}
	}
	if prof.Patches != nil {
		if err := p.mergePatches(prof.Patches); err != nil {
			return nil, err
		}
	}
	requested, err := p.finish()
	if err != nil {
		return nil, err
	}

	tr := image.NewTracker()
	tr.Track(p.before, requested)
	plan := &Plan{
		Target:    prof.Name,
		Before:    p.before,
		Requested: requested,
		Rows:      tr.Rows(),
		Steps:     p.alloc.Plan(),
		Patch:     p.patch,
	}
	if p.rep != nil {
		plan.Repairs = p.rep.Actions()
	}
	s.logger.Debug("planned", "target", prof.Name, "rows", len(plan.Rows),
		"steps", len(plan.Steps), "repairs", len(plan.Repairs), "refreshes", s.cache.Refreshes())
	return plan, nil
}

// Report describes a commit.
type Report struct {
	Plan    *Plan
	Result  *commit.Result // nil when the plan was empty
	Journal *journal.Entry // nil without a journal or for empty plans
}

// CommitProfile programs every value and patch of the named profile.
func (s *Session) CommitProfile(ctx context.Context, name string) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	prof, err := s.def.Profile(name)
	if err != nil {
		return nil, err
	}
	return s.commit(ctx, "profile", prof)
}

// CommitSingleFuse programs one fuse.
func (s *Session) CommitSingleFuse(ctx context.Context, name string, value uint64) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	f, err := s.def.Fuse(name)
	if err != nil {
		return nil, err
	}
	prof := &definition.Profile{
		Name:   f.Name,
		Values: []definition.Assignment{{Fuse: f, Value: value}},
	}
	return s.commit(ctx, "fuse", prof)
}

func (s *Session) commit(ctx context.Context, op string, prof *definition.Profile) (*Report, error) {
	plan, err := s.plan(ctx, prof)
	if err != nil {
		return nil, err
	}
	rep := &Report{Plan: plan}
	if plan.Empty() {
		s.logger.Info("nothing to commit", "op", op, "target", prof.Name)
		return rep, nil
	}

	s.logger.Info("committing", "op", op, "target", prof.Name, "rows", len(plan.Rows))
	seq := commit.New(s.geo, s.cache,
		commit.WithLogger(s.logger),
		commit.WithClock(s.clock),
		commit.WithAttempts(s.attempts),
		commit.WithProgress(s.progress),
	)
	res, cerr := seq.Commit(ctx, plan.Requested)
	rep.Result = res
	if cerr == nil {
		cerr = s.check(ctx, prof)
	}
	for _, w := range resultWarnings(res) {
		s.logger.Warn("commit warning", "target", prof.Name, "warning", w)
	}

	if s.journal != nil {
		e, jerr := s.journal.Append(s.entry(ctx, op, prof.Name, plan, res, cerr))
		if jerr != nil {
			cerr = errors.Join(cerr, fmt.Errorf("journal: %w", jerr))
		} else {
			rep.Journal = &e
		}
	}
	if cerr != nil {
		return rep, fmt.Errorf("commit %s %s: %w", op, prof.Name, cerr)
	}
	return rep, nil
}

func resultWarnings(res *commit.Result) []error {
	if res == nil {
		return nil
	}
	return res.Warnings
}

// check re-reads every value of prof from the device.
func (s *Session) check(ctx context.Context, prof *definition.Profile) error {
	p, err := s.current(ctx)
	if err != nil {
		return err
	}
	for _, a := range prof.Values {
		got, err := p.read(a.Fuse.Locators)
		if err != nil {
			return err
		}
		if got != a.Value {
			return &ValueError{Fuse: a.Fuse.Name, Want: a.Value, Got: got}
		}
	}
	return nil
}

func (s *Session) entry(ctx context.Context, op, target string, plan *Plan, res *commit.Result, err error) journal.Entry {
	e := journal.Entry{
		Geometry:  s.geo.Name,
		Operation: op,
		Target:    target,
		Rows:      plan.Rows,
		Before:    journal.DigestImage(plan.Before),
	}
	if res != nil {
		e.Attempts = res.Attempts
		e.Rows = res.Rows
		e.After = journal.DigestImage(res.After)
	} else if after, gerr := s.cache.Get(ctx); gerr == nil {
		e.After = journal.DigestImage(after)
	}
	var ex *commit.ExhaustedError
	if errors.As(err, &ex) {
		e.Attempts = ex.Attempts
	}
	if err != nil {
		e.Error = err.Error()
	}
	return e
}
