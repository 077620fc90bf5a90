package fuse

import (
	"fmt"
	"slices"
	"time"

	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// WordBits is the width of one OTP row.
const WordBits = bitcursor.WordBits

// Record types understood by the engine.
const (
	// TypeReplace overwrites DataWidth chain bits starting at the record offset.
	TypeReplace uint64 = 1

	// TypeBootMarker ends the record stream. The rows after it hold the boot
	// instruction patch stream.
	TypeBootMarker uint64 = 7
)

// Variant selects per-generation strategy hooks: how non-replace records are
// handled and whether a repair table exists.
type Variant int

const (
	// VariantClassic has a record region and an optional patch tail.
	VariantClassic Variant = iota

	// VariantRepair adds the single-bit repair table.
	VariantRepair
)

// String returns the variant name used in definition files.
func (v Variant) String() string {
	switch v {
	case VariantClassic:
		return "classic"
	case VariantRepair:
		return "repair"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

// ParseVariant parses a variant name.
func ParseVariant(s string) (Variant, error) {
	switch s {
	case "", "classic":
		return VariantClassic, nil
	case "repair":
		return VariantRepair, nil
	default:
		return 0, fmt.Errorf("%w: unknown variant %q", ErrBadParameter, s)
	}
}

// RepairTable locates the repair entry pool.
type RepairTable struct {
	// Start is the absolute bit offset of entry 0.
	Start int

	// Entries is the pool size. Zero means the geometry has no repair table.
	Entries int

	// SealedRows lists rows whose bits may not be raw-blown, for example
	// rows covered by a merged ECC word. Changes to them go through repair
	// entries.
	SealedRows []int
}

// Timing holds the programming protocol parameters.
type Timing struct {
	PollTimeout  time.Duration // per-row busy wait limit
	PollInterval time.Duration // busy poll period
	SettleDelay  time.Duration // delay after dropping programming enable
	Attempts     int           // whole-sequence commit attempts
}

// DefaultTiming returns conservative protocol parameters.
func DefaultTiming() Timing {
	return Timing{
		PollTimeout:  10 * time.Millisecond,
		PollInterval: 100 * time.Microsecond,
		SettleDelay:  time.Millisecond,
		Attempts:     3,
	}
}

// Geometry describes one chip generation's fuse array. It is immutable once
// validated.
type Geometry struct {
	Name    string
	Variant Variant

	// Rows is the number of 32-bit rows in the array.
	Rows int

	// RegionStart and RegionEnd bound the programmable record region in
	// absolute bits, [RegionStart, RegionEnd).
	RegionStart int
	RegionEnd   int

	ChainIDWidth int
	TypeWidth    int
	AddressWidth int
	DataWidth    int

	// PatchRows is the number of trailing region rows reserved for the boot
	// instruction stream. Zero disables patching.
	PatchRows int

	Repair RepairTable
	Timing Timing
}

// RecordWidth returns the width of one record slot in bits.
func (g Geometry) RecordWidth() int {
	return g.ChainIDWidth + g.TypeWidth + g.AddressWidth + g.DataWidth
}

// Slots returns the number of record slots that fit in the region.
func (g Geometry) Slots() int {
	w := g.RecordWidth()
	if w == 0 {
		return 0
	}
	return (g.RegionEnd - g.RegionStart) / w
}

// SlotOffset returns the absolute bit offset of slot i.
func (g Geometry) SlotOffset(i int) int {
	return g.RegionStart + i*g.RecordWidth()
}

// TotalBits returns the size of the array in bits.
func (g Geometry) TotalBits() int {
	return g.Rows * WordBits
}

// TombstoneChain returns the all-ones chain id that marks a dead slot.
func (g Geometry) TombstoneChain() uint64 {
	return bitcursor.Mask(g.ChainIDWidth)
}

// MaxOffset returns the largest chain offset a record can address.
func (g Geometry) MaxOffset() uint64 {
	return bitcursor.Mask(g.AddressWidth)
}

// PatchSupported reports whether the geometry reserves a patch tail.
func (g Geometry) PatchSupported() bool {
	return g.PatchRows > 0
}

// RepairSupported reports whether the geometry has a repair table.
func (g Geometry) RepairSupported() bool {
	return g.Variant == VariantRepair && g.Repair.Entries > 0
}

// ReservedMarkerSlot returns the slot index where the boot marker is placed
// when patching is first used. Records may only use slots before it.
func (g Geometry) ReservedMarkerSlot() int {
	if !g.PatchSupported() {
		return g.Slots()
	}
	patchStart := g.RegionEnd - g.PatchRows*WordBits
	return (patchStart-g.RegionStart)/g.RecordWidth() - 1
}

// IsSealed reports whether row is listed as sealed.
func (g Geometry) IsSealed(row int) bool {
	return slices.Contains(g.Repair.SealedRows, row)
}

// Validate checks the geometry for internal consistency.
func (g Geometry) Validate() error {
	if g.Rows <= 0 {
		return fmt.Errorf("%w: rows must be positive, got %d", ErrBadParameter, g.Rows)
	}
	if g.RegionStart < 0 || g.RegionStart >= g.RegionEnd || g.RegionEnd > g.TotalBits() {
		return fmt.Errorf("%w: region [%d,%d) outside array of %d bits",
			ErrBadParameter, g.RegionStart, g.RegionEnd, g.TotalBits())
	}
	for _, f := range []struct {
		name  string
		width int
	}{
		{"chain id", g.ChainIDWidth},
		{"type", g.TypeWidth},
		{"address", g.AddressWidth},
		{"data", g.DataWidth},
	} {
		if f.width <= 0 || f.width > 32 {
			return fmt.Errorf("%w: %s width %d not in 1..32", ErrBadParameter, f.name, f.width)
		}
	}
	if g.ChainIDWidth < 2 {
		return fmt.Errorf("%w: chain id width must leave room for a tombstone", ErrBadParameter)
	}
	if g.TypeWidth < 3 {
		return fmt.Errorf("%w: type width %d cannot encode the boot marker", ErrBadParameter, g.TypeWidth)
	}
	if g.RecordWidth() > 64 {
		return fmt.Errorf("%w: record width %d exceeds 64 bits", ErrBadParameter, g.RecordWidth())
	}
	if g.Slots() == 0 {
		return fmt.Errorf("%w: region holds no record slot", ErrBadParameter)
	}
	if g.PatchRows < 0 {
		return fmt.Errorf("%w: negative patch rows", ErrBadParameter)
	}
	if g.PatchSupported() {
		if g.RegionEnd%WordBits != 0 {
			return fmt.Errorf("%w: patch tail needs a row-aligned region end", ErrBadParameter)
		}
		if g.ReservedMarkerSlot() < 0 {
			return fmt.Errorf("%w: %d patch rows leave no room for the boot marker", ErrBadParameter, g.PatchRows)
		}
	}
	if err := g.validateRepair(); err != nil {
		return err
	}
	if g.Timing.Attempts < 0 {
		return fmt.Errorf("%w: negative attempt count", ErrBadParameter)
	}
	return nil
}

func (g Geometry) validateRepair() error {
	r := g.Repair
	if r.Entries == 0 {
		return nil
	}
	if g.Variant != VariantRepair {
		return fmt.Errorf("%w: repair table requires the %s variant", ErrBadParameter, VariantRepair)
	}
	end := r.Start + r.Entries*RepairEntryBits
	if r.Start < 0 || end > g.TotalBits() {
		return fmt.Errorf("%w: repair table [%d,%d) outside array", ErrBadParameter, r.Start, end)
	}
	if r.Start < g.RegionEnd && end > g.RegionStart {
		return fmt.Errorf("%w: repair table overlaps record region", ErrBadParameter)
	}
	if g.TotalBits() > 1<<RepairAddressBits {
		return fmt.Errorf("%w: %d-bit array exceeds repair address space", ErrBadParameter, g.TotalBits())
	}
	for _, row := range r.SealedRows {
		if row < 0 || row >= g.Rows {
			return fmt.Errorf("%w: sealed row %d outside array", ErrBadParameter, row)
		}
	}
	return nil
}

// RepairEntryBits is the width of one repair entry.
const RepairEntryBits = 16

// RepairAddressBits is the width of the repair entry address field.
const RepairAddressBits = 13

// WithDefaults returns t with zero fields replaced by DefaultTiming values.
func (t Timing) WithDefaults() Timing {
	d := DefaultTiming()
	if t.PollTimeout <= 0 {
		t.PollTimeout = d.PollTimeout
	}
	if t.PollInterval <= 0 {
		t.PollInterval = d.PollInterval
	}
	if t.SettleDelay < 0 {
		t.SettleDelay = 0
	}
	if t.Attempts <= 0 {
		t.Attempts = d.Attempts
	}
	return t
}

// PatchStartRow returns the first row of the patch tail. It equals
// RegionEnd/WordBits when patching is unsupported.
func (g Geometry) PatchStartRow() int {
	return g.RegionEnd/WordBits - g.PatchRows
}

// PatchEndRow returns the row just past the patch tail.
func (g Geometry) PatchEndRow() int {
	return g.RegionEnd / WordBits
}
