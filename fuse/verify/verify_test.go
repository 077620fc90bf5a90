package verify

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/record"
)

func testGeometry() fuse.Geometry {
	return fuse.Geometry{
		Rows: 4, RegionStart: 64, RegionEnd: 128,
		ChainIDWidth: 5, TypeWidth: 3, AddressWidth: 13, DataWidth: 11,
	}
}

func Test_Monotonic(t *testing.T) {
	require.NoError(t, Monotonic([]uint32{0x1, 0x0}, []uint32{0x3, 0x0}))

	err := Monotonic([]uint32{0x1, 0x6}, []uint32{0x1, 0x2})
	require.ErrorIs(t, err, fuse.ErrMonotonic)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, 1, vErr.Row)
	assert.Contains(t, err.Error(), "0x00000004")

	require.ErrorIs(t, Monotonic([]uint32{0}, nil), fuse.ErrBadParameter)
}

func Test_Bounds(t *testing.T) {
	g := testGeometry()
	require.NoError(t, Bounds(g, make([]uint32, 4)))
	require.ErrorIs(t, Bounds(g, make([]uint32, 5)), fuse.ErrBadParameter)
}

func Test_AllInvariants(t *testing.T) {
	g := testGeometry()
	words := make([]uint32, g.Rows)
	s, err := record.Load(words, g)
	require.NoError(t, err)
	_, err = s.Append(1, 0, 0xA)
	require.NoError(t, err)
	_, err = s.Append(1, 0, 0x2)
	require.NoError(t, err)
	require.NoError(t, s.Encode(words))

	require.NoError(t, AllInvariants(g, words))
	require.NoError(t, Store(s))
}

func Test_AllInvariants_BadStream(t *testing.T) {
	g := testGeometry()
	words := make([]uint32, g.Rows)
	// chain 1, type 2 (unknown on a geometry without a patch tail)
	words[2] = 1 | 2<<5

	err := AllInvariants(g, words)
	require.Error(t, err)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "RecordStream", vErr.Type)
	require.ErrorIs(t, err, fuse.ErrBadParameter)
}
