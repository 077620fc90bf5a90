package fusekit

import (
	"fmt"
	"log/slog"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/alloc"
	"github.com/joshuapare/fusekit/fuse/image"
	"github.com/joshuapare/fusekit/fuse/patch"
	"github.com/joshuapare/fusekit/fuse/record"
	"github.com/joshuapare/fusekit/fuse/repair"
	"github.com/joshuapare/fusekit/fuse/verify"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// planner turns logical values into a requested image. It reads and writes
// a private copy of the sensed image.
type planner struct {
	geo    fuse.Geometry
	before image.Image
	work   image.Image
	store  *record.Store
	alloc  *alloc.Allocator
	rep    *repair.Overlay // nil without a repair table
	patch  *patch.Plan
}

func newPlanner(g fuse.Geometry, img image.Image, logger *slog.Logger) (*planner, error) {
	if err := verify.Bounds(g, img); err != nil {
		return nil, err
	}
	p := &planner{geo: g, before: img.Clone(), work: img.Clone()}
	store, err := record.Load(p.work, g)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	p.store = store
	p.alloc = alloc.New(store, alloc.WithLogger(logger))
	if g.RepairSupported() {
		if p.rep, err = repair.Load(p.work, g, repair.WithLogger(logger)); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// read returns the logical value of locs.
func (p *planner) read(locs []fuse.Locator) (uint64, error) {
	parts := make([]uint64, len(locs))
	for i, l := range locs {
		stored, err := p.readRange(l.Range)
		if err != nil {
			return 0, err
		}
		if l.Redundant != nil {
			red, err := p.readRange(*l.Redundant)
			if err != nil {
				return 0, err
			}
			stored |= red
		}
		var undo uint64
		if l.Polarity == fuse.PolarityEnableUndo && l.Undo != nil {
			if undo, err = p.readRange(*l.Undo); err != nil {
				return 0, err
			}
		}
		parts[i] = l.Polarity.Decode(stored, undo, l.Width())
	}
	return fuse.Join(locs, parts), nil
}

func (p *planner) readRange(r fuse.Range) (uint64, error) {
	switch {
	case r.Kind == fuse.KindChain:
		return p.store.Overlay().Read(r.Chain, r.MSB, r.LSB)
	case p.rep != nil:
		return p.rep.Read(r)
	default:
		if err := r.Validate(p.geo); err != nil {
			return 0, err
		}
		v, _, err := bitcursor.ReadField(p.work, r.Width(), r.AbsoluteBit(0))
		return v, err
	}
}

// apply makes locs read back value.
func (p *planner) apply(name string, locs []fuse.Locator, value uint64) error {
	parts, err := fuse.Split(locs, value)
	if err != nil {
		return fmt.Errorf("fuse %s: %w", name, err)
	}
	for i, l := range locs {
		if l.Kind == fuse.KindChain {
			err = p.alloc.Apply([]fuse.Locator{l}, parts[i])
		} else {
			err = p.applyRow(l, parts[i])
		}
		if err != nil {
			return fmt.Errorf("fuse %s: %w", name, err)
		}
	}
	got, err := p.read(locs)
	if err != nil {
		return fmt.Errorf("fuse %s: %w", name, err)
	}
	if got != value {
		return &ValueError{Fuse: name, Want: value, Got: got}
	}
	return nil
}

func (p *planner) applyRow(l fuse.Locator, part uint64) error {
	if p.rep != nil {
		return p.repairRow(l, part)
	}

	if l.Polarity == fuse.PolarityEnableUndo {
		enable, err := p.readRange(l.Range)
		if err != nil {
			return err
		}
		undo, err := p.readRange(*l.Undo)
		if err != nil {
			return err
		}
		enable |= part
		undo |= enable &^ part
		if got := enable &^ undo; got != part {
			return fmt.Errorf("%w: %s is undone, cannot re-enable to 0x%X", fuse.ErrMonotonic, l.Range, part)
		}
		if err := p.blow(l.Range, enable); err != nil {
			return err
		}
		return p.blow(*l.Undo, undo)
	}

	stored := l.Polarity.Encode(part, l.Width())
	ranges := []fuse.Range{l.Range}
	if l.Redundant != nil {
		ranges = append(ranges, *l.Redundant)
	}
	for _, r := range ranges {
		cur, err := p.readRange(r)
		if err != nil {
			return err
		}
		if lost := cur &^ stored; lost != 0 {
			return fmt.Errorf("%w: %s holds 0x%X, want 0x%X", fuse.ErrMonotonic, r, cur, stored)
		}
		if err := p.blow(r, stored); err != nil {
			return err
		}
	}
	return nil
}

// repairRow routes a row locator through the repair table, which can force
// bits either way.
func (p *planner) repairRow(l fuse.Locator, part uint64) error {
	if l.Polarity == fuse.PolarityEnableUndo {
		if err := p.rep.Repair(l.Range, part); err != nil {
			return err
		}
		return p.rep.Repair(*l.Undo, 0)
	}
	stored := l.Polarity.Encode(part, l.Width())
	if err := p.rep.Repair(l.Range, stored); err != nil {
		return err
	}
	if l.Redundant != nil {
		return p.rep.Repair(*l.Redundant, stored)
	}
	return nil
}

func (p *planner) blow(r fuse.Range, v uint64) error {
	if r.Kind != fuse.KindRow {
		return fmt.Errorf("%w: %s mixed into a row locator", fuse.ErrBadParameter, r)
	}
	_, err := bitcursor.WriteField(p.work, v, r.Width(), r.AbsoluteBit(0))
	return err
}

// mergePatches merges desired into the patch tail and places the boot
// marker that hands the tail to the boot ROM.
func (p *planner) mergePatches(desired []patch.Instruction) error {
	if !p.geo.PatchSupported() {
		return fmt.Errorf("%w: geometry %q has no patch tail", fuse.ErrUnsupportedOperation, p.geo.Name)
	}
	start, end := p.geo.PatchStartRow(), p.geo.PatchEndRow()
	plan, err := patch.Merge(p.work[start:end].Clone(), desired)
	if err != nil {
		return fmt.Errorf("patch tail: %w", err)
	}
	for i, w := range plan.Rows {
		p.work[start+i] |= w
	}
	p.patch = &plan
	if len(desired) > 0 {
		if _, err := p.store.PlaceMarker(); err != nil {
			return err
		}
	}
	return nil
}

// finish folds the store and repair table into the requested image and
// checks it.
func (p *planner) finish() (image.Image, error) {
	out := p.work.Clone()
	if p.rep != nil {
		var err error
		if out, err = out.Or(p.rep.Image()); err != nil {
			return nil, err
		}
	}
	if err := p.store.Encode(out); err != nil {
		return nil, err
	}
	if err := verify.Store(p.store); err != nil {
		return nil, err
	}
	if err := verify.Monotonic(p.before, out); err != nil {
		return nil, err
	}
	return out, nil
}
