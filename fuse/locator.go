package fuse

import (
	"fmt"

	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// Kind says which address space a locator points into.
type Kind int

const (
	// KindChain addresses bits of a logical chain, realized through records.
	KindChain Kind = iota

	// KindRow addresses bits of one physical row.
	KindRow
)

func (k Kind) String() string {
	if k == KindRow {
		return "row"
	}
	return "chain"
}

// Polarity describes how the logical value maps onto stored bits.
type Polarity int

const (
	// PolarityPlain stores the logical value as is.
	PolarityPlain Polarity = iota

	// PolarityInvertedDisable stores the complement: an unblown fuse reads
	// as logical 1 (feature enabled) and blowing it disables the feature.
	PolarityInvertedDisable

	// PolarityEnableUndo pairs each enable bit with an undo bit in Undo.
	// The logical bit is enable AND NOT undo.
	PolarityEnableUndo
)

func (p Polarity) String() string {
	switch p {
	case PolarityPlain:
		return "plain"
	case PolarityInvertedDisable:
		return "inverted-disable"
	case PolarityEnableUndo:
		return "enable-undo"
	default:
		return fmt.Sprintf("polarity(%d)", int(p))
	}
}

// ParsePolarity parses a polarity name.
func ParsePolarity(s string) (Polarity, error) {
	switch s {
	case "", "plain":
		return PolarityPlain, nil
	case "inverted-disable":
		return PolarityInvertedDisable, nil
	case "enable-undo":
		return PolarityEnableUndo, nil
	default:
		return 0, fmt.Errorf("%w: unknown polarity %q", ErrBadParameter, s)
	}
}

// Range is an inclusive bit range [LSB, MSB] in a chain or row.
type Range struct {
	Kind  Kind
	Chain uint64 // chain id, KindChain only
	Row   int    // row index, KindRow only
	MSB   int
	LSB   int
}

// Width returns the number of bits in the range.
func (r Range) Width() int {
	return r.MSB - r.LSB + 1
}

// AbsoluteBit returns the array bit index of row bit i. Only valid for KindRow.
func (r Range) AbsoluteBit(i int) int {
	return r.Row*WordBits + r.LSB + i
}

func (r Range) String() string {
	if r.Kind == KindRow {
		return fmt.Sprintf("row%d[%d:%d]", r.Row, r.MSB, r.LSB)
	}
	return fmt.Sprintf("chain%d[%d:%d]", r.Chain, r.MSB, r.LSB)
}

// Validate checks the range against the geometry.
func (r Range) Validate(g Geometry) error {
	if r.LSB < 0 || r.MSB < r.LSB {
		return fmt.Errorf("%w: bad bit range %s", ErrBadParameter, r)
	}
	if r.Width() > 64 {
		return fmt.Errorf("%w: range %s wider than 64 bits", ErrBadParameter, r)
	}
	switch r.Kind {
	case KindRow:
		if r.Row < 0 || r.Row >= g.Rows || r.MSB >= WordBits {
			return fmt.Errorf("%w: %s outside array", ErrBadParameter, r)
		}
		lo, hi := r.AbsoluteBit(0), r.AbsoluteBit(r.Width())
		if lo < g.RegionEnd && hi > g.RegionStart {
			return fmt.Errorf("%w: %s overlaps record region [%d,%d)", ErrBadParameter, r, g.RegionStart, g.RegionEnd)
		}
		if t := g.Repair; t.Entries > 0 {
			if end := t.Start + t.Entries*RepairEntryBits; lo < end && hi > t.Start {
				return fmt.Errorf("%w: %s overlaps repair table [%d,%d)", ErrBadParameter, r, t.Start, end)
			}
		}
	case KindChain:
		if r.Chain == 0 || r.Chain >= g.TombstoneChain() {
			return fmt.Errorf("%w: chain id %d is reserved or too wide", ErrBadParameter, r.Chain)
		}
		last := uint64(r.MSB)
		if last > g.MaxOffset()+uint64(g.DataWidth)-1 {
			return fmt.Errorf("%w: %s beyond addressable chain bits", ErrOutOfRange, r)
		}
	default:
		return fmt.Errorf("%w: unknown locator kind %d", ErrBadParameter, int(r.Kind))
	}
	return nil
}

// Locator is one sub-range of a logical fuse. A fuse may span several
// locators; they are consumed LSB-first from the fuse value.
type Locator struct {
	Range
	Polarity Polarity

	// Undo is the paired undo range for PolarityEnableUndo.
	Undo *Range

	// Redundant is a second copy of the same bits. Reads OR the two copies
	// together and writes program both.
	Redundant *Range
}

// Validate checks the locator and its companions against the geometry.
func (l Locator) Validate(g Geometry) error {
	if err := l.Range.Validate(g); err != nil {
		return err
	}
	if l.Polarity == PolarityEnableUndo {
		if l.Undo == nil {
			return fmt.Errorf("%w: %s is enable-undo without an undo range", ErrBadParameter, l.Range)
		}
		if l.Undo.Width() != l.Width() {
			return fmt.Errorf("%w: undo range %s width differs from %s", ErrBadParameter, l.Undo, l.Range)
		}
		if err := l.Undo.Validate(g); err != nil {
			return err
		}
	}
	if l.Redundant != nil {
		if l.Redundant.Width() != l.Width() {
			return fmt.Errorf("%w: redundant range %s width differs from %s", ErrBadParameter, l.Redundant, l.Range)
		}
		if err := l.Redundant.Validate(g); err != nil {
			return err
		}
	}
	return nil
}

// Width returns the total logical width of a locator list.
func Width(locs []Locator) int {
	n := 0
	for _, l := range locs {
		n += l.Width()
	}
	return n
}

// Split slices value across locators LSB-first and returns one part per
// locator. It fails with ErrOutOfRange if value has bits above the total width.
func Split(locs []Locator, value uint64) ([]uint64, error) {
	total := Width(locs)
	if total < 64 && value>>total != 0 {
		return nil, fmt.Errorf("%w: value 0x%X wider than %d fuse bits", ErrOutOfRange, value, total)
	}
	parts := make([]uint64, len(locs))
	for i, l := range locs {
		w := l.Width()
		parts[i] = value & bitcursor.Mask(w)
		if w < 64 {
			value >>= w
		} else {
			value = 0
		}
	}
	return parts, nil
}

// Join is the inverse of Split.
func Join(locs []Locator, parts []uint64) uint64 {
	var value uint64
	shift := 0
	for i, l := range locs {
		if shift < 64 {
			value |= (parts[i] & bitcursor.Mask(l.Width())) << shift
		}
		shift += l.Width()
	}
	return value
}

// Encode maps a logical value onto stored bits for polarities that do not
// depend on existing state. EnableUndo encodes the enable half only.
func (p Polarity) Encode(value uint64, width int) uint64 {
	m := bitcursor.Mask(width)
	if p == PolarityInvertedDisable {
		return ^value & m
	}
	return value & m
}

// Decode maps stored bits to the logical value. undo is ignored unless the
// polarity is EnableUndo.
func (p Polarity) Decode(stored, undo uint64, width int) uint64 {
	m := bitcursor.Mask(width)
	switch p {
	case PolarityInvertedDisable:
		return ^stored & m
	case PolarityEnableUndo:
		return stored &^ undo & m
	default:
		return stored & m
	}
}
