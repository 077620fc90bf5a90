package alloc

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/record"
)

func scenarioGeometry() fuse.Geometry {
	return fuse.Geometry{
		Rows: 4, RegionStart: 64, RegionEnd: 128,
		ChainIDWidth: 5, TypeWidth: 3, AddressWidth: 13, DataWidth: 11,
	}
}

// roomyGeometry has 62 record slots.
func roomyGeometry() fuse.Geometry {
	return fuse.Geometry{
		Rows: 64, RegionStart: 64, RegionEnd: 64 * 32,
		ChainIDWidth: 5, TypeWidth: 3, AddressWidth: 13, DataWidth: 11,
	}
}

func chainLoc(chain uint64, msb, lsb int) fuse.Locator {
	return fuse.Locator{Range: fuse.Range{Kind: fuse.KindChain, Chain: chain, MSB: msb, LSB: lsb}}
}

func newAllocator(t *testing.T, g fuse.Geometry) (*record.Store, *Allocator) {
	t.Helper()
	s, err := record.Load(make([]uint32, g.Rows), g)
	require.NoError(t, err)
	return s, New(s)
}

func liveRecords(s *record.Store) []fuse.Record {
	var out []fuse.Record
	for i := 0; i < s.Len(); i++ {
		if s.State(i) == record.SlotReplace {
			out = append(out, s.Record(i))
		}
	}
	return out
}

func Test_Apply_Scenario(t *testing.T) {
	s, a := newAllocator(t, scenarioGeometry())
	f := []fuse.Locator{chainLoc(1, 3, 0)}

	require.NoError(t, a.Apply(f, 0xA))
	recs := liveRecords(s)
	require.Len(t, recs, 1, "first apply creates exactly one record")
	assert.Equal(t, uint64(0xA), recs[0].Data)
	v, err := a.Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xA), v)

	before := s.Snapshot()
	require.NoError(t, a.Apply(f, 0x2))
	recs = liveRecords(s)
	require.Len(t, recs, 2, "clearing bit 3 appends a second record")
	assert.Equal(t, before[0], s.Record(0), "the verified record is not edited")
	assert.Equal(t, uint64(0x2), recs[1].Data)

	v, err = a.Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x2), v)

	// Both slots are used now; another clearing change cannot be placed.
	require.ErrorIs(t, a.Apply(f, 0x0), fuse.ErrAllocationExhausted)
}

func Test_Apply_SkipsWhenAlreadyEqual(t *testing.T) {
	s, a := newAllocator(t, scenarioGeometry())
	f := []fuse.Locator{chainLoc(1, 3, 0)}

	require.NoError(t, a.Apply(f, 0))
	assert.Empty(t, liveRecords(s))
	require.Len(t, a.Plan(), 1)
	assert.Equal(t, StepSkip, a.Plan()[0].Kind)
}

func Test_Apply_EditsInPlaceWhenOnlySettingBits(t *testing.T) {
	s, a := newAllocator(t, scenarioGeometry())
	low := []fuse.Locator{chainLoc(1, 3, 0)}
	high := []fuse.Locator{chainLoc(1, 7, 4)}

	require.NoError(t, a.Apply(low, 0xF))
	require.NoError(t, a.Apply(high, 0x1))

	recs := liveRecords(s)
	require.Len(t, recs, 1, "setting neighbor bits in the same block reuses the record")
	assert.Equal(t, uint64(0x1F), recs[0].Data)
	assert.Equal(t, StepEdit, a.Plan()[1].Kind)
	assert.Equal(t, CaseRangeInterior, a.Plan()[1].Case)

	// Clearing the low nibble supersedes the record without disturbing high.
	require.NoError(t, a.Apply(low, 0))
	v, err := a.Read(high)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
	v, err = a.Read(low)
	require.NoError(t, err)
	assert.Zero(t, v)
}

func Test_Apply_SpillsIntoAdjacentBlock(t *testing.T) {
	s, a := newAllocator(t, roomyGeometry())
	f := []fuse.Locator{chainLoc(2, 15, 8)} // straddles blocks [0,10] and [11,21]

	require.NoError(t, a.Apply(f, 0xFF))
	recs := liveRecords(s)
	require.Len(t, recs, 2)
	assert.Equal(t, uint64(0), recs[0].Offset)
	assert.Equal(t, uint64(0b111<<8), recs[0].Data)
	assert.Equal(t, uint64(11), recs[1].Offset)
	assert.Equal(t, uint64(0b11111), recs[1].Data)

	v, err := a.Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xFF), v)
}

func Test_Apply_SplitsWideLocator(t *testing.T) {
	s, a := newAllocator(t, roomyGeometry())
	f := []fuse.Locator{chainLoc(3, 31, 0)}

	require.NoError(t, a.Apply(f, 0xDEADBEEF))
	v, err := a.Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xDEADBEEF), v)
	assert.Len(t, liveRecords(s), 3, "32 bits need three 11-bit blocks")
}

func Test_Apply_LowEdgeInteriorRecord(t *testing.T) {
	g := roomyGeometry()
	s, a := newAllocator(t, g)
	// A factory record at an unaligned offset covering chain bits [5,15].
	_, err := s.Append(1, 5, 0b1)
	require.NoError(t, err)

	f := []fuse.Locator{chainLoc(1, 7, 0)}
	require.NoError(t, a.Apply(f, 0xE1)) // bits 5..7 = 0b111, bit 0 = 1

	var sawLow bool
	for _, step := range a.Plan() {
		if step.Case == CaseLowEdgeInterior {
			sawLow = true
			assert.Equal(t, StepEdit, step.Kind)
			assert.Equal(t, uint64(0b111), step.Data)
		}
	}
	assert.True(t, sawLow)

	v, err := a.Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xE1), v)
}

func Test_Apply_HighEdgeInteriorRecord(t *testing.T) {
	g := roomyGeometry()
	s, a := newAllocator(t, g)
	_, err := s.Append(1, 0, 0b111<<8) // covers [0,10], bits 8..10 set

	require.NoError(t, err)
	f := []fuse.Locator{chainLoc(1, 15, 8)}
	require.NoError(t, a.Apply(f, 0b1000_0011)) // clears bit 10, sets bit 15

	var sawHigh bool
	for _, step := range a.Plan() {
		if step.Case == CaseHighEdgeInterior {
			sawHigh = true
			assert.Equal(t, StepAppend, step.Kind, "clearing bit 10 needs a new record")
		}
	}
	assert.True(t, sawHigh)

	v, err := a.Read(f)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b1000_0011), v)
}

func Test_Apply_Polarity(t *testing.T) {
	_, a := newAllocator(t, roomyGeometry())

	inv := []fuse.Locator{{Range: fuse.Range{Kind: fuse.KindChain, Chain: 4, MSB: 1, LSB: 0}, Polarity: fuse.PolarityInvertedDisable}}
	v, err := a.Read(inv)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b11), v, "unblown inverted fuses read enabled")

	require.NoError(t, a.Apply(inv, 0b01))
	v, err = a.Read(inv)
	require.NoError(t, err)
	assert.Equal(t, uint64(0b01), v)

	undo := []fuse.Locator{{
		Range:    fuse.Range{Kind: fuse.KindChain, Chain: 5, MSB: 0, LSB: 0},
		Polarity: fuse.PolarityEnableUndo,
		Undo:     &fuse.Range{Kind: fuse.KindChain, Chain: 5, MSB: 20, LSB: 20},
	}}
	require.NoError(t, a.Apply(undo, 1))
	require.NoError(t, a.Apply(undo, 0))
	require.NoError(t, a.Apply(undo, 1))
	v, err = a.Read(undo)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)
}

func Test_Apply_Errors(t *testing.T) {
	_, a := newAllocator(t, scenarioGeometry())

	err := a.Apply([]fuse.Locator{chainLoc(1, 3, 0)}, 0x10)
	require.ErrorIs(t, err, fuse.ErrOutOfRange)

	row := fuse.Locator{Range: fuse.Range{Kind: fuse.KindRow, Row: 0, MSB: 0, LSB: 0}}
	require.ErrorIs(t, a.Apply([]fuse.Locator{row}, 1), fuse.ErrBadParameter)

	// Chain bit 8191 lives in block 8184 which fits; 8200 does not.
	far := chainLoc(1, 8200, 8200)
	require.ErrorIs(t, a.Apply([]fuse.Locator{far}, 1), fuse.ErrOutOfRange)
}

// Test_Property_ApplyThenReadRoundTrips applies random values to a set of
// disjoint fuses and checks every fuse reads back its latest value.
func Test_Property_ApplyThenReadRoundTrips(t *testing.T) {
	g := roomyGeometry()
	g.Rows = 512
	g.RegionEnd = 512 * 32

	fuses := [][]fuse.Locator{
		{chainLoc(1, 3, 0)},
		{chainLoc(1, 9, 4)},
		{chainLoc(1, 17, 10)},
		{chainLoc(2, 40, 30), chainLoc(3, 2, 0)},
		{chainLoc(2, 12, 12)},
	}

	rng := rand.New(rand.NewSource(42))
	for trial := range 20 {
		s, a := newAllocator(t, g)
		want := make([]uint64, len(fuses))

		for step := range 40 {
			fi := rng.Intn(len(fuses))
			width := fuse.Width(fuses[fi])
			v := rng.Uint64() & (1<<width - 1)

			snapshot := s.Snapshot()
			err := a.Apply(fuses[fi], v)
			require.NoError(t, err, "trial %d step %d", trial, step)
			want[fi] = v

			// Monotonic: every slot is a bitwise superset of its earlier self.
			for i, old := range snapshot {
				cur := s.Record(i)
				if old.IsEmpty() {
					continue
				}
				require.Equal(t, old.ChainID, cur.ChainID)
				require.Equal(t, old.Offset, cur.Offset)
				require.Equal(t, old.Data, cur.Data&old.Data, "trial %d step %d: slot %d lost a bit", trial, step, i)
			}

			for j, f := range fuses {
				got, err := a.Read(f)
				require.NoError(t, err)
				require.Equal(t, want[j], got, "trial %d step %d fuse %d", trial, step, j)
			}
		}
	}
}
