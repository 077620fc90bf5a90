// Package repair manages the repair instruction table of later-generation
// fuse arrays.
//
// A repair entry forces one absolute array bit to a value, overriding the raw
// fuse. Entries are allocated from a pool of blank slots and are never
// erased: an entry is undone by blowing its disable bit, after which the raw
// bit (or an older active entry) is visible again. Rows listed as sealed may
// not be raw-blown, so 0 to 1 changes there are realized as entries too.
package repair

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// Option configures an Overlay.
type Option func(*Overlay)

// WithLogger sets the structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Overlay) {
		if l != nil {
			o.logger = l
		}
	}
}

// Action is one change made by Repair.
type Action struct {
	Kind  ActionKind
	Bit   int
	Entry int // entry index, -1 for raw blows
}

// ActionKind classifies an Action.
type ActionKind int

const (
	ActionRawBlow ActionKind = iota
	ActionAllocate
	ActionDisable
)

func (k ActionKind) String() string {
	switch k {
	case ActionRawBlow:
		return "raw-blow"
	case ActionAllocate:
		return "allocate"
	case ActionDisable:
		return "disable"
	default:
		return "unknown"
	}
}

// Overlay is the effective view of an array with a repair table.
//
// NOT thread-safe.
type Overlay struct {
	geo     fuse.Geometry
	words   []uint32
	entries []Entry
	actions []Action
	logger  *slog.Logger
}

// Load parses the repair table of words. The image is copied; mutations
// are visible through Image.
func Load(words []uint32, g fuse.Geometry, opts ...Option) (*Overlay, error) {
	if !g.RepairSupported() {
		return nil, fmt.Errorf("%w: geometry %q has no repair table", fuse.ErrUnsupportedOperation, g.Name)
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(words) < g.Rows {
		return nil, fmt.Errorf("%w: %d rows, want %d", fuse.ErrBadParameter, len(words), g.Rows)
	}
	o := &Overlay{
		geo:     g,
		words:   append([]uint32(nil), words[:g.Rows]...),
		entries: make([]Entry, g.Repair.Entries),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(o)
	}
	for i := range o.entries {
		raw, _, err := bitcursor.ReadField(o.words, fuse.RepairEntryBits, o.entryOffset(i))
		if err != nil {
			return nil, fmt.Errorf("repair entry %d: %w", i, err)
		}
		o.entries[i] = DecodeEntry(raw)
	}
	return o, nil
}

func (o *Overlay) entryOffset(i int) int {
	return o.geo.Repair.Start + i*fuse.RepairEntryBits
}

// Raw returns the physical value of an array bit.
func (o *Overlay) Raw(bit int) bool {
	v, _ := bitcursor.Bit(o.words, bit)
	return v
}

// Effective returns the value the chip sees for bit: the newest active entry
// for it, or the raw fuse.
func (o *Overlay) Effective(bit int) bool {
	for i := len(o.entries) - 1; i >= 0; i-- {
		if e := o.entries[i]; e.Active() && e.Address == bit {
			return e.Value
		}
	}
	return o.Raw(bit)
}

// Read returns the effective value of a row range.
func (o *Overlay) Read(r fuse.Range) (uint64, error) {
	if r.Kind != fuse.KindRow {
		return 0, fmt.Errorf("%w: repair applies to row locators, got %s", fuse.ErrBadParameter, r)
	}
	if err := r.Validate(o.geo); err != nil {
		return 0, err
	}
	var v uint64
	for i := 0; i < r.Width(); i++ {
		if o.Effective(r.AbsoluteBit(i)) {
			v |= 1 << i
		}
	}
	return v, nil
}

// Repair makes the effective value of r equal value.
func (o *Overlay) Repair(r fuse.Range, value uint64) error {
	if r.Kind != fuse.KindRow {
		return fmt.Errorf("%w: repair applies to row locators, got %s", fuse.ErrBadParameter, r)
	}
	if err := r.Validate(o.geo); err != nil {
		return err
	}
	if value&^bitcursor.Mask(r.Width()) != 0 {
		return fmt.Errorf("%w: value 0x%X wider than %s", fuse.ErrOutOfRange, value, r)
	}
	sealed := o.geo.IsSealed(r.Row)
	for i := 0; i < r.Width(); i++ {
		if err := o.repairBit(r.AbsoluteBit(i), value>>i&1 == 1, sealed); err != nil {
			return err
		}
	}
	return nil
}

func (o *Overlay) repairBit(bit int, want, sealed bool) error {
	if o.Effective(bit) == want {
		return nil
	}
	// Undo entries that force the wrong value.
	for i, e := range o.entries {
		if e.Active() && e.Address == bit && e.Value != want {
			if err := o.disable(i); err != nil {
				return err
			}
		}
	}
	if o.Effective(bit) == want {
		return nil
	}
	if want && !sealed {
		if err := bitcursor.SetBit(o.words, bit); err != nil {
			return err
		}
		o.record(Action{Kind: ActionRawBlow, Bit: bit, Entry: -1})
		return nil
	}
	return o.allocate(bit, want)
}

func (o *Overlay) disable(i int) error {
	o.entries[i].Disable = true
	if _, err := bitcursor.WriteField(o.words, o.entries[i].Encode(), fuse.RepairEntryBits, o.entryOffset(i)); err != nil {
		return err
	}
	o.record(Action{Kind: ActionDisable, Bit: o.entries[i].Address, Entry: i})
	return nil
}

func (o *Overlay) allocate(bit int, value bool) error {
	for i, e := range o.entries {
		if !e.Blank() {
			continue
		}
		o.entries[i] = Entry{Enable: true, Value: value, Address: bit}
		if _, err := bitcursor.WriteField(o.words, o.entries[i].Encode(), fuse.RepairEntryBits, o.entryOffset(i)); err != nil {
			return err
		}
		o.record(Action{Kind: ActionAllocate, Bit: bit, Entry: i})
		return nil
	}
	return fmt.Errorf("%w: repair pool of %d entries is full", fuse.ErrAllocationExhausted, len(o.entries))
}

func (o *Overlay) record(a Action) {
	o.actions = append(o.actions, a)
	o.logger.Debug("repair", "action", a.Kind.String(), "bit", a.Bit, "entry", a.Entry)
}

// Image returns a copy of the array with every repair applied.
func (o *Overlay) Image() []uint32 {
	return append([]uint32(nil), o.words...)
}

// Entries returns a copy of the decoded table.
func (o *Overlay) Entries() []Entry {
	return append([]Entry(nil), o.entries...)
}

// Actions returns the changes made since Load.
func (o *Overlay) Actions() []Action {
	return append([]Action(nil), o.actions...)
}

// Free returns the number of blank entries.
func (o *Overlay) Free() int {
	n := 0
	for _, e := range o.entries {
		if e.Blank() {
			n++
		}
	}
	return n
}
