// Package record parses and holds the ordered record stream stored in the
// programmable region of an OTP image.
//
// Slots are RecordWidth bits wide and packed from RegionStart. Each slot is
// laid out LSB-first as chain id, type, offset, data. Slot position is the
// hardware scan order, so a later replace record overrides an earlier one on
// every chain bit they share.
//
// The store is append-only. New records always land after the last replace
// record so that they are the youngest in scan order; the allocation cursor
// that tracks this position only moves through advanceAllocation.
package record

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/overlay"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// SlotState classifies a slot after Load.
type SlotState int

const (
	SlotEmpty SlotState = iota
	SlotReplace
	SlotTombstone
	SlotMarker
	SlotOther
)

func (s SlotState) String() string {
	switch s {
	case SlotEmpty:
		return "empty"
	case SlotReplace:
		return "replace"
	case SlotTombstone:
		return "tombstone"
	case SlotMarker:
		return "marker"
	default:
		return "other"
	}
}

// Option configures Load.
type Option func(*Store)

// WithHandler overrides the variant's default non-replace record handler.
func WithHandler(h Handler) Option {
	return func(s *Store) { s.handler = h }
}

// Store is the in-memory record stream.
//
// NOT thread-safe.
type Store struct {
	geo     fuse.Geometry
	handler Handler

	slots  []fuse.Record
	states []SlotState
	blank  []bool

	limit       int // usable record slots are [0, limit)
	marker      int // boot marker slot, -1 when absent
	allocCursor int // first slot after the last replace record

	modified map[int]struct{}
	overlay  *overlay.Overlay
}

// Load walks the record region of words and returns the parsed store.
func Load(words []uint32, g fuse.Geometry, opts ...Option) (*Store, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	if len(words) < g.Rows {
		return nil, fmt.Errorf("%w: %d rows, want %d", ErrShortImage, len(words), g.Rows)
	}

	s := &Store{
		geo:      g,
		marker:   -1,
		modified: make(map[int]struct{}),
		overlay:  overlay.New(g),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.handler == nil {
		s.handler = HandlerFor(g)
	}

	reserved := g.ReservedMarkerSlot()
	scanEnd := reserved
	if g.PatchSupported() {
		// The reserved marker slot is scanned too; it is either blank or the marker.
		scanEnd = reserved + 1
	}
	s.limit = reserved

	cur := bitcursor.NewCursor(words, g.RegionStart)
	for i := 0; i < scanEnd; i++ {
		off := g.SlotOffset(i)
		cur.Seek(off)
		rec, err := readRecord(cur, g)
		if err != nil {
			return nil, &ParseError{Slot: i, Offset: off, Err: err}
		}
		s.push(rec)

		switch {
		case rec.ChainID == 0:
			// Empty: the cursor moves one record width, the allocation cursor stays.
			s.states[i] = SlotEmpty
		case rec.ChainID == g.TombstoneChain():
			s.states[i] = SlotTombstone
		case rec.Type == fuse.TypeReplace:
			if i >= reserved {
				return nil, &ParseError{Slot: i, Offset: off, Type: rec.Type,
					Err: fmt.Errorf("%w: replace record in reserved marker slot", fuse.ErrBadParameter)}
			}
			s.states[i] = SlotReplace
			s.advanceAllocation(i)
		default:
			action, err := s.handler.Handle(i, rec)
			if err != nil {
				return nil, &ParseError{Slot: i, Offset: off, Type: rec.Type, Err: err}
			}
			if action == ActionTruncate {
				s.states[i] = SlotMarker
				s.marker = i
				s.limit = i
				s.overlay.Rebuild(s.slots)
				return s, nil
			}
			s.states[i] = SlotOther
		}
	}

	s.overlay.Rebuild(s.slots)
	return s, nil
}

func readRecord(cur *bitcursor.Cursor, g fuse.Geometry) (fuse.Record, error) {
	rec := fuse.Record{DataWidth: g.DataWidth, TotalWidth: g.RecordWidth()}
	var err error
	if rec.ChainID, err = cur.Read(g.ChainIDWidth); err != nil {
		return rec, err
	}
	if rec.Type, err = cur.Read(g.TypeWidth); err != nil {
		return rec, err
	}
	if rec.Offset, err = cur.Read(g.AddressWidth); err != nil {
		return rec, err
	}
	if rec.Data, err = cur.Read(g.DataWidth); err != nil {
		return rec, err
	}
	return rec, nil
}

func (s *Store) push(rec fuse.Record) {
	s.slots = append(s.slots, rec)
	s.states = append(s.states, SlotEmpty)
	s.blank = append(s.blank, rec.IsEmpty())
}

// advanceAllocation moves the allocation cursor past replace record i. It is
// the only place the cursor moves: empty and tombstoned slots never advance it.
func (s *Store) advanceAllocation(i int) {
	if i+1 > s.allocCursor {
		s.allocCursor = i + 1
	}
}

// Append writes a new replace record into the first blank slot at or after
// the allocation cursor and returns its index.
func (s *Store) Append(chain, offset, data uint64) (int, error) {
	if chain == 0 || chain >= s.geo.TombstoneChain() {
		return -1, fmt.Errorf("%w: chain id %d", fuse.ErrBadParameter, chain)
	}
	if offset > s.geo.MaxOffset() {
		return -1, fmt.Errorf("%w: offset %d exceeds %d-bit address field", fuse.ErrOutOfRange, offset, s.geo.AddressWidth)
	}
	if data&^bitcursor.Mask(s.geo.DataWidth) != 0 {
		return -1, fmt.Errorf("%w: data 0x%X exceeds %d-bit data field", fuse.ErrOutOfRange, data, s.geo.DataWidth)
	}

	idx := -1
	for i := s.allocCursor; i < s.limit; i++ {
		if s.states[i] == SlotEmpty && s.blank[i] {
			idx = i
			break
		}
	}
	if idx < 0 {
		return -1, fmt.Errorf("%w: no blank record slot after slot %d", fuse.ErrAllocationExhausted, s.allocCursor)
	}

	s.slots[idx] = fuse.Record{
		ChainID:    chain,
		Type:       fuse.TypeReplace,
		Offset:     offset,
		Data:       data,
		DataWidth:  s.geo.DataWidth,
		TotalWidth: s.geo.RecordWidth(),
	}
	s.states[idx] = SlotReplace
	s.blank[idx] = false
	s.advanceAllocation(idx)
	s.modified[idx] = struct{}{}
	s.overlay.Rebuild(s.slots)
	return idx, nil
}

// Edit replaces the data of replace record i in place. The new data must be a
// superset of the old data; anything else returns fuse.ErrMonotonic.
func (s *Store) Edit(i int, data uint64) error {
	if i < 0 || i >= len(s.slots) || s.states[i] != SlotReplace {
		return fmt.Errorf("%w: slot %d", ErrNotReplace, i)
	}
	if data&^bitcursor.Mask(s.geo.DataWidth) != 0 {
		return fmt.Errorf("%w: data 0x%X exceeds %d-bit data field", fuse.ErrOutOfRange, data, s.geo.DataWidth)
	}
	old := s.slots[i].Data
	if data&old != old {
		return fmt.Errorf("%w: slot %d data 0x%X -> 0x%X", fuse.ErrMonotonic, i, old, data)
	}
	if data == old {
		return nil
	}
	s.slots[i].Data = data
	s.modified[i] = struct{}{}
	s.overlay.Rebuild(s.slots)
	return nil
}

// Tombstone kills slot i by setting every chain id bit. Tombstoned slots
// never hold data again and never move the allocation cursor.
func (s *Store) Tombstone(i int) error {
	if i < 0 || i >= s.limit {
		return fmt.Errorf("%w: slot %d outside usable range [0, %d)", fuse.ErrBadParameter, i, s.limit)
	}
	if s.states[i] == SlotTombstone {
		return nil
	}
	s.slots[i].ChainID = s.geo.TombstoneChain()
	s.states[i] = SlotTombstone
	s.blank[i] = false
	s.modified[i] = struct{}{}
	s.overlay.Rebuild(s.slots)
	return nil
}

// PlaceMarker writes the boot marker into the reserved slot, ending the usable
// record range. It returns the marker slot and is a no-op when one exists.
func (s *Store) PlaceMarker() (int, error) {
	if !s.geo.PatchSupported() {
		return -1, fmt.Errorf("%w: geometry has no patch tail", fuse.ErrUnsupportedOperation)
	}
	if s.marker >= 0 {
		return s.marker, nil
	}
	i := s.geo.ReservedMarkerSlot()
	if !s.blank[i] {
		return -1, fmt.Errorf("%w: reserved marker slot %d is not blank", fuse.ErrAllocationExhausted, i)
	}
	s.slots[i] = fuse.Record{
		ChainID:    1,
		Type:       fuse.TypeBootMarker,
		DataWidth:  s.geo.DataWidth,
		TotalWidth: s.geo.RecordWidth(),
	}
	s.states[i] = SlotMarker
	s.blank[i] = false
	s.marker = i
	s.modified[i] = struct{}{}
	return i, nil
}

// Encode ORs every non-blank slot into words.
func (s *Store) Encode(words []uint32) error {
	if len(words) < s.geo.Rows {
		return fmt.Errorf("%w: %d rows, want %d", ErrShortImage, len(words), s.geo.Rows)
	}
	for i, rec := range s.slots {
		if s.blank[i] {
			continue
		}
		cur := bitcursor.NewCursor(words, s.geo.SlotOffset(i))
		for _, f := range []struct {
			v uint64
			w int
		}{
			{rec.ChainID, s.geo.ChainIDWidth},
			{rec.Type, s.geo.TypeWidth},
			{rec.Offset, s.geo.AddressWidth},
			{rec.Data, s.geo.DataWidth},
		} {
			if err := cur.Write(f.v, f.w); err != nil {
				return fmt.Errorf("encode slot %d: %w", i, err)
			}
		}
	}
	return nil
}

// Geometry returns the store's geometry.
func (s *Store) Geometry() fuse.Geometry { return s.geo }

// Overlay returns the chain overlay, rebuilt after every mutation.
func (s *Store) Overlay() *overlay.Overlay { return s.overlay }

// Len returns the number of parsed slots, including the marker slot.
func (s *Store) Len() int { return len(s.slots) }

// Limit returns the number of slots usable for records.
func (s *Store) Limit() int { return s.limit }

// AllocCursor returns the first slot after the last replace record.
func (s *Store) AllocCursor() int { return s.allocCursor }

// Marker returns the boot marker slot, or -1.
func (s *Store) Marker() int { return s.marker }

// Record returns slot i.
func (s *Store) Record(i int) fuse.Record { return s.slots[i] }

// State returns the state of slot i.
func (s *Store) State(i int) SlotState { return s.states[i] }

// Free returns the number of blank slots still reachable by Append.
func (s *Store) Free() int {
	n := 0
	for i := s.allocCursor; i < s.limit; i++ {
		if s.states[i] == SlotEmpty && s.blank[i] {
			n++
		}
	}
	return n
}

// Snapshot returns a copy of all slots in scan order.
func (s *Store) Snapshot() []fuse.Record {
	out := make([]fuse.Record, len(s.slots))
	copy(out, s.slots)
	return out
}

// Records returns the live replace records and their slots in scan order.
func (s *Store) Records() ([]int, []fuse.Record) {
	var slots []int
	var recs []fuse.Record
	for i, st := range s.states {
		if st == SlotReplace {
			slots = append(slots, i)
			recs = append(recs, s.slots[i])
		}
	}
	return slots, recs
}

// Modified returns the slots changed since Load, in ascending order.
func (s *Store) Modified() []int {
	out := make([]int, 0, len(s.modified))
	for i := range s.slots {
		if _, ok := s.modified[i]; ok {
			out = append(out, i)
		}
	}
	return out
}
