package alloc

import (
	"fmt"
	"io"
	"log/slog"
	"math/bits"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/record"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// StepKind says what the allocator did for one record decision.
type StepKind int

const (
	StepSkip StepKind = iota
	StepEdit
	StepAppend
)

func (k StepKind) String() string {
	switch k {
	case StepEdit:
		return "edit"
	case StepAppend:
		return "append"
	default:
		return "skip"
	}
}

// Step records one allocator decision.
type Step struct {
	Kind   StepKind
	Case   Case   // overlap case that led to the step, CaseNone for skips and spills
	Slot   int    // slot edited or appended, -1 for skips
	Chain  uint64 // chain id
	Offset uint64 // record offset
	Data   uint64 // record data after the step
}

func (s Step) String() string {
	if s.Kind == StepSkip {
		return fmt.Sprintf("skip chain%d[%d]", s.Chain, s.Offset)
	}
	return fmt.Sprintf("%s slot %d chain%d off=%d data=0x%X (%s)", s.Kind, s.Slot, s.Chain, s.Offset, s.Data, s.Case)
}

// Option configures an Allocator.
type Option func(*Allocator)

// WithLogger sets the logger for allocator decisions.
func WithLogger(l *slog.Logger) Option {
	return func(a *Allocator) {
		if l != nil {
			a.logger = l
		}
	}
}

// Allocator applies logical chain fuse values to a record store.
type Allocator struct {
	store  *record.Store
	geo    fuse.Geometry
	logger *slog.Logger
	plan   []Step
}

// New returns an allocator over store.
func New(store *record.Store, opts ...Option) *Allocator {
	a := &Allocator{
		store:  store,
		geo:    store.Geometry(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Plan returns every step taken since the allocator was created.
func (a *Allocator) Plan() []Step {
	out := make([]Step, len(a.plan))
	copy(out, a.plan)
	return out
}

// Read returns the logical value of chain locators, decoding polarity.
func (a *Allocator) Read(locs []fuse.Locator) (uint64, error) {
	parts := make([]uint64, len(locs))
	ov := a.store.Overlay()
	for i, l := range locs {
		if l.Kind != fuse.KindChain {
			return 0, ErrRowLocator
		}
		stored, err := ov.Read(l.Chain, l.MSB, l.LSB)
		if err != nil {
			return 0, err
		}
		if l.Redundant != nil {
			red, err := ov.Read(l.Redundant.Chain, l.Redundant.MSB, l.Redundant.LSB)
			if err != nil {
				return 0, err
			}
			stored |= red
		}
		var undo uint64
		if l.Polarity == fuse.PolarityEnableUndo && l.Undo != nil {
			if undo, err = ov.Read(l.Undo.Chain, l.Undo.MSB, l.Undo.LSB); err != nil {
				return 0, err
			}
		}
		parts[i] = l.Polarity.Decode(stored, undo, l.Width())
	}
	return fuse.Join(locs, parts), nil
}

// Apply makes the chain locators read back value.
func (a *Allocator) Apply(locs []fuse.Locator, value uint64) error {
	for _, l := range locs {
		if l.Kind != fuse.KindChain {
			return ErrRowLocator
		}
		if err := l.Validate(a.geo); err != nil {
			return err
		}
	}
	parts, err := fuse.Split(locs, value)
	if err != nil {
		return err
	}

	for i, l := range locs {
		stored := l.Polarity.Encode(parts[i], l.Width())
		if err := a.applyRange(l.Range, stored); err != nil {
			return fmt.Errorf("apply %s: %w", l.Range, err)
		}
		if l.Redundant != nil {
			if err := a.applyRange(*l.Redundant, stored); err != nil {
				return fmt.Errorf("apply redundant %s: %w", *l.Redundant, err)
			}
		}
		if l.Polarity == fuse.PolarityEnableUndo && l.Undo != nil {
			// Records can clear bits logically, so the undo half is simply reset.
			if err := a.applyRange(*l.Undo, 0); err != nil {
				return fmt.Errorf("apply undo %s: %w", *l.Undo, err)
			}
		}
	}

	got, err := a.Read(locs)
	if err != nil {
		return err
	}
	if got != value {
		return fmt.Errorf("%w: want 0x%X, read 0x%X", ErrReadback, value, got)
	}
	return nil
}

// applyRange splits a chain range into sub-ranges no wider than one record.
func (a *Allocator) applyRange(r fuse.Range, stored uint64) error {
	w := a.geo.DataWidth
	for lo := r.LSB; lo <= r.MSB; lo += w {
		hi := min(lo+w-1, r.MSB)
		sub := stored >> (lo - r.LSB) & bitcursor.Mask(hi-lo+1)
		if err := a.applySubRange(r.Chain, lo, hi, sub); err != nil {
			return err
		}
	}
	return nil
}

// applySubRange realizes want on chain bits [lo, hi].
func (a *Allocator) applySubRange(chain uint64, lo, hi int, want uint64) error {
	ov := a.store.Overlay()
	cur, err := ov.Read(chain, hi, lo)
	if err != nil {
		return err
	}
	if cur == want {
		a.record(Step{Kind: StepSkip, Slot: -1, Chain: chain, Offset: uint64(lo)})
		return nil
	}

	// Bits of [lo, hi] not yet claimed by a newer record, relative to lo.
	remaining := bitcursor.Mask(hi - lo + 1)

	for i := a.store.Len() - 1; i >= 0 && remaining != 0; i-- {
		rec := a.store.Record(i)
		if a.store.State(i) != record.SlotReplace || rec.ChainID != chain {
			continue
		}
		o := classify(rec, lo, hi)
		visible := o.rangeMask(lo) & remaining
		if visible == 0 {
			continue
		}

		merged := merge(rec, o, lo, visible, want)
		switch {
		case merged == rec.Data:
			// Already correct on the bits this record owns.
		case rec.Data&^merged != 0:
			// Editing would clear a programmed bit: supersede with a younger
			// record carrying the current block plus the requested bits.
			block := a.store.Overlay().Block(chain, rec.Offset, rec.DataWidth)
			fresh := merge(fuse.Record{Offset: rec.Offset, Data: block, DataWidth: rec.DataWidth}, o, lo, visible, want)
			slot, err := a.store.Append(chain, rec.Offset, fresh)
			if err != nil {
				return err
			}
			a.record(Step{Kind: StepAppend, Case: o.Case, Slot: slot, Chain: chain, Offset: rec.Offset, Data: fresh})
		default:
			if err := a.store.Edit(i, merged); err != nil {
				return err
			}
			a.record(Step{Kind: StepEdit, Case: o.Case, Slot: i, Chain: chain, Offset: rec.Offset, Data: merged})
		}
		remaining &^= visible
	}

	// Uncovered bits read 0; only the ones that must become 1 need records.
	return a.spill(chain, lo, hi, remaining&want, want)
}

// spill places the bits in pending (relative to lo) into new records at their
// canonical data-width-aligned blocks, one record per block touched.
func (a *Allocator) spill(chain uint64, lo, hi int, pending, want uint64) error {
	w := a.geo.DataWidth
	for pending != 0 {
		first := lo + bits.TrailingZeros64(pending)
		blockOff := uint64(first / w * w)
		if blockOff > a.geo.MaxOffset() {
			return fmt.Errorf("%w: chain%d block offset %d exceeds %d-bit address field",
				fuse.ErrOutOfRange, chain, blockOff, a.geo.AddressWidth)
		}

		block := fuse.Record{
			Offset:    blockOff,
			Data:      a.store.Overlay().Block(chain, blockOff, w),
			DataWidth: w,
		}
		o := classify(block, lo, hi)
		sel := o.rangeMask(lo) & pending
		data := merge(block, o, lo, sel, want)

		slot, err := a.store.Append(chain, blockOff, data)
		if err != nil {
			return err
		}
		a.record(Step{Kind: StepAppend, Case: CaseNone, Slot: slot, Chain: chain, Offset: blockOff, Data: data})
		pending &^= sel
	}
	return nil
}

func (a *Allocator) record(s Step) {
	a.plan = append(a.plan, s)
	if s.Kind != StepSkip {
		a.logger.Debug("record step",
			"kind", s.Kind.String(),
			"case", s.Case.String(),
			"slot", s.Slot,
			"chain", s.Chain,
			"offset", s.Offset,
			"data", fmt.Sprintf("0x%X", s.Data),
		)
	}
}
