// Package verify checks fuse image and record store invariants.
// The commit sequencer runs Monotonic and Bounds before programming; the
// remaining checks back tests and fusectl dump.
package verify

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/overlay"
	"github.com/joshuapare/fusekit/fuse/record"
)

// ValidationError describes one failed invariant.
type ValidationError struct {
	Type    string
	Message string
	Row     int // -1 when not tied to a row
	Err     error
}

func (e *ValidationError) Error() string {
	if e.Row >= 0 {
		return fmt.Sprintf("%s at row %d: %s", e.Type, e.Row, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// AllInvariants loads words against g and runs every structural check.
// Returns the first error encountered, or nil if all checks pass.
func AllInvariants(g fuse.Geometry, words []uint32) error {
	if err := Bounds(g, words); err != nil {
		return err
	}
	s, err := record.Load(words, g)
	if err != nil {
		return &ValidationError{Type: "RecordStream", Message: err.Error(), Row: -1, Err: err}
	}
	return Store(s)
}

// Bounds checks that words covers exactly the geometry's rows.
func Bounds(g fuse.Geometry, words []uint32) error {
	if len(words) != g.Rows {
		return &ValidationError{
			Type:    "Bounds",
			Message: fmt.Sprintf("image has %d rows, geometry has %d", len(words), g.Rows),
			Row:     -1,
			Err:     fuse.ErrBadParameter,
		}
	}
	return nil
}

// Monotonic checks that requested keeps every bit set in current. The first
// row that would need a 1 to 0 transition is reported.
func Monotonic(current, requested []uint32) error {
	if len(current) != len(requested) {
		return &ValidationError{
			Type:    "Monotonic",
			Message: fmt.Sprintf("length mismatch: %d vs %d rows", len(current), len(requested)),
			Row:     -1,
			Err:     fuse.ErrBadParameter,
		}
	}
	for i := range current {
		if lost := current[i] &^ requested[i]; lost != 0 {
			return &ValidationError{
				Type:    "Monotonic",
				Message: fmt.Sprintf("bits 0x%08X would clear (0x%08X -> 0x%08X)", lost, current[i], requested[i]),
				Row:     i,
				Err:     fuse.ErrMonotonic,
			}
		}
	}
	return nil
}

// Store checks allocation bookkeeping and that the overlay matches a fresh
// replay of the store's slots.
func Store(s *record.Store) error {
	g := s.Geometry()
	if s.AllocCursor() > s.Limit() {
		return &ValidationError{
			Type:    "Store",
			Message: fmt.Sprintf("allocation cursor %d beyond limit %d", s.AllocCursor(), s.Limit()),
			Row:     -1,
		}
	}

	recs := s.Snapshot()
	for i := s.AllocCursor(); i < s.Limit(); i++ {
		if s.State(i) == record.SlotReplace {
			return &ValidationError{
				Type:    "Store",
				Message: fmt.Sprintf("replace record in slot %d after allocation cursor %d", i, s.AllocCursor()),
				Row:     slotRow(g, i),
			}
		}
	}

	fresh := overlay.New(g)
	fresh.Rebuild(recs)
	live := s.Overlay()
	if fresh.Len() != live.Len() {
		return &ValidationError{
			Type:    "Overlay",
			Message: fmt.Sprintf("overlay covers %d bits, replay covers %d", live.Len(), fresh.Len()),
			Row:     -1,
		}
	}
	for _, r := range recs {
		if !r.IsReplace(g) {
			continue
		}
		for b := int(r.Offset); b <= r.Last(); b++ {
			if fresh.Bit(r.ChainID, b) != live.Bit(r.ChainID, b) || fresh.Owner(r.ChainID, b) != live.Owner(r.ChainID, b) {
				return &ValidationError{
					Type:    "Overlay",
					Message: fmt.Sprintf("chain %d bit %d disagrees with replay", r.ChainID, b),
					Row:     -1,
				}
			}
		}
	}
	return nil
}

func slotRow(g fuse.Geometry, slot int) int {
	return g.SlotOffset(slot) / fuse.WordBits
}
