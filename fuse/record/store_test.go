package record

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

func scenarioGeometry() fuse.Geometry {
	return fuse.Geometry{
		Rows: 4, RegionStart: 64, RegionEnd: 128,
		ChainIDWidth: 5, TypeWidth: 3, AddressWidth: 13, DataWidth: 11,
	}
}

// wideGeometry has eight record slots and a two-row patch tail.
func wideGeometry() fuse.Geometry {
	return fuse.Geometry{
		Rows: 12, RegionStart: 64, RegionEnd: 384, PatchRows: 2,
		ChainIDWidth: 5, TypeWidth: 3, AddressWidth: 13, DataWidth: 11,
	}
}

// putSlot writes a raw record into words at slot i.
func putSlot(t *testing.T, g fuse.Geometry, words []uint32, i int, chain, typ, off, data uint64) {
	t.Helper()
	c := bitcursor.NewCursor(words, g.SlotOffset(i))
	require.NoError(t, c.Write(chain, g.ChainIDWidth))
	require.NoError(t, c.Write(typ, g.TypeWidth))
	require.NoError(t, c.Write(off, g.AddressWidth))
	require.NoError(t, c.Write(data, g.DataWidth))
}

func Test_Load_BlankImage(t *testing.T) {
	g := scenarioGeometry()
	s, err := Load(make([]uint32, g.Rows), g)
	require.NoError(t, err)

	assert.Equal(t, 2, s.Len())
	assert.Equal(t, 2, s.Limit())
	assert.Equal(t, 0, s.AllocCursor())
	assert.Equal(t, 2, s.Free())
	assert.Equal(t, -1, s.Marker())
}

func Test_Append_Encode_Reload(t *testing.T) {
	g := scenarioGeometry()
	words := make([]uint32, g.Rows)
	s, err := Load(words, g)
	require.NoError(t, err)

	idx, err := s.Append(1, 0, 0xA)
	require.NoError(t, err)
	assert.Equal(t, 0, idx)
	assert.Equal(t, []int{0}, s.Modified())

	require.NoError(t, s.Encode(words))
	// chain=1 (5 bits), type=1 (3 bits) at bit 5, offset 0, data 0xA at bit 21.
	assert.Equal(t, uint32(1|1<<5|0xA<<21), words[2])
	assert.Zero(t, words[3])

	reloaded, err := Load(words, g)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), reloaded.Snapshot())
	assert.Equal(t, 1, reloaded.AllocCursor())

	v, err := reloaded.Overlay().Read(1, 3, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA), v)
}

func Test_Append_NeverFillsGapBeforeReplace(t *testing.T) {
	g := wideGeometry()
	words := make([]uint32, g.Rows)
	// Slot 0 blank, slot 1 replace, slot 2 tombstone, slot 3 blank.
	putSlot(t, g, words, 1, 2, fuse.TypeReplace, 0, 1)
	putSlot(t, g, words, 2, g.TombstoneChain(), 0, 0, 0)

	s, err := Load(words, g)
	require.NoError(t, err)
	assert.Equal(t, SlotEmpty, s.State(0))
	assert.Equal(t, SlotReplace, s.State(1))
	assert.Equal(t, SlotTombstone, s.State(2))
	assert.Equal(t, 2, s.AllocCursor(), "tombstones must not advance the allocation cursor")

	idx, err := s.Append(2, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, idx, "append lands after the tombstone, never in the earlier gap")
	assert.Equal(t, 4, s.AllocCursor())
}

func Test_Append_Exhausted(t *testing.T) {
	g := scenarioGeometry()
	s, err := Load(make([]uint32, g.Rows), g)
	require.NoError(t, err)

	_, err = s.Append(1, 0, 1)
	require.NoError(t, err)
	_, err = s.Append(1, 11, 1)
	require.NoError(t, err)
	_, err = s.Append(1, 22, 1)
	require.ErrorIs(t, err, fuse.ErrAllocationExhausted)
}

func Test_Append_RejectsOversizedFields(t *testing.T) {
	g := scenarioGeometry()
	s, err := Load(make([]uint32, g.Rows), g)
	require.NoError(t, err)

	_, err = s.Append(1, 1<<13, 0)
	require.ErrorIs(t, err, fuse.ErrOutOfRange)
	_, err = s.Append(1, 0, 1<<11)
	require.ErrorIs(t, err, fuse.ErrOutOfRange)
	_, err = s.Append(g.TombstoneChain(), 0, 0)
	require.ErrorIs(t, err, fuse.ErrBadParameter)
	assert.Equal(t, 2, s.Free())
}

func Test_Edit_IsMonotonic(t *testing.T) {
	g := scenarioGeometry()
	s, err := Load(make([]uint32, g.Rows), g)
	require.NoError(t, err)
	idx, err := s.Append(1, 0, 0b1010)
	require.NoError(t, err)

	require.NoError(t, s.Edit(idx, 0b1011))
	assert.Equal(t, uint64(0b1011), s.Record(idx).Data)

	err = s.Edit(idx, 0b0011)
	require.ErrorIs(t, err, fuse.ErrMonotonic)
	assert.Equal(t, uint64(0b1011), s.Record(idx).Data)

	require.ErrorIs(t, s.Edit(1, 1), ErrNotReplace)
}

func Test_Load_UnknownTypeIsParseError(t *testing.T) {
	g := scenarioGeometry()
	words := make([]uint32, g.Rows)
	putSlot(t, g, words, 0, 3, 2, 0, 0)

	_, err := Load(words, g)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 0, perr.Slot)
	assert.Equal(t, uint64(2), perr.Type)
	require.ErrorIs(t, err, fuse.ErrBadParameter)
}

func Test_Load_MarkerTruncates(t *testing.T) {
	g := wideGeometry()
	words := make([]uint32, g.Rows)
	putSlot(t, g, words, 0, 1, fuse.TypeReplace, 0, 5)
	putSlot(t, g, words, 2, 1, fuse.TypeBootMarker, 0, 0)
	// Garbage after the marker belongs to the patch stream and must not be parsed.
	putSlot(t, g, words, 3, 4, 5, 6, 7)

	s, err := Load(words, g)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Marker())
	assert.Equal(t, 2, s.Limit())
	assert.Equal(t, 3, s.Len())
	assert.Equal(t, SlotMarker, s.State(2))
	assert.Equal(t, 1, s.Free())
}

func Test_PlaceMarker(t *testing.T) {
	g := wideGeometry()
	words := make([]uint32, g.Rows)
	s, err := Load(words, g)
	require.NoError(t, err)
	assert.Equal(t, g.ReservedMarkerSlot(), s.Limit())

	idx, err := s.PlaceMarker()
	require.NoError(t, err)
	assert.Equal(t, g.ReservedMarkerSlot(), idx)

	again, err := s.PlaceMarker()
	require.NoError(t, err)
	assert.Equal(t, idx, again)

	require.NoError(t, s.Encode(words))
	reloaded, err := Load(words, g)
	require.NoError(t, err)
	assert.Equal(t, idx, reloaded.Marker())

	plain, err := Load(make([]uint32, 4), scenarioGeometry())
	require.NoError(t, err)
	_, err = plain.PlaceMarker()
	require.ErrorIs(t, err, fuse.ErrUnsupportedOperation)
}

func Test_Load_CustomHandler(t *testing.T) {
	g := scenarioGeometry()
	words := make([]uint32, g.Rows)
	putSlot(t, g, words, 0, 3, 4, 0, 0)
	putSlot(t, g, words, 1, 3, fuse.TypeReplace, 0, 1)

	var seen []int
	h := HandlerFunc(func(slot int, r fuse.Record) (Action, error) {
		seen = append(seen, slot)
		return ActionKeep, nil
	})
	s, err := Load(words, g, WithHandler(h))
	require.NoError(t, err)
	assert.Equal(t, []int{0}, seen)
	assert.Equal(t, SlotOther, s.State(0))
	assert.Equal(t, 2, s.AllocCursor())
}

func Test_Tombstone(t *testing.T) {
	g := wideGeometry()
	words := make([]uint32, g.Rows)
	s, err := Load(words, g)
	require.NoError(t, err)

	first, err := s.Append(2, 0, 0x3)
	require.NoError(t, err)
	_, err = s.Append(3, 0, 0x1)
	require.NoError(t, err)

	require.NoError(t, s.Tombstone(first))
	require.NoError(t, s.Tombstone(first))
	assert.Equal(t, SlotTombstone, s.State(first))
	v, err := s.Overlay().Read(2, 1, 0)
	require.NoError(t, err)
	assert.Zero(t, v, "tombstoned record no longer contributes")

	slots, recs := s.Records()
	assert.Equal(t, []int{1}, slots)
	require.Len(t, recs, 1)
	assert.Equal(t, uint64(3), recs[0].ChainID)

	require.NoError(t, s.Encode(words))
	again, err := Load(words, g)
	require.NoError(t, err)
	assert.Equal(t, SlotTombstone, again.State(0))
	assert.Equal(t, 2, again.AllocCursor())

	require.ErrorIs(t, s.Tombstone(s.Limit()), fuse.ErrBadParameter)
}
