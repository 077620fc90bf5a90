package definition

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/charmap"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/patch"
)

const sample = `
geometry:
  name: demo
  rows: 32
  region: {start: 64, end: 1024}
  fields: {chain_id: 5, type: 3, address: 13, data: 11}
  patch_rows: 4
  timing: {poll_timeout: 5ms, poll_interval: 50us, attempts: 4}
fuses:
  - name: Secure_Boot
    locators:
      - {chain: 1, bits: "3:0"}
  - name: debug_lock
    locators:
      - {row: 1, bits: "7:4", polarity: enable-undo, undo: {row: 1, bits: "11:8"}}
  - name: wide
    locators:
      - {chain: 2, bits: "7:0"}
      - {chain: 3, bits: "0", redundant: {chain: 4, bits: "0"}}
profiles:
  - name: production
    fuses:
      secure_boot: 0x9
      DEBUG_LOCK: 0xF
    patches:
      - {op: write, address: 0x4000, value: 0xDEAD}
      - {op: modify, address: 0x4004, and: 0xFFFF0000, or: 0x12}
      - {op: set-field, base: 2, lsb: 4, width: 4, offset: 0x10, value: 0x5}
`

func Test_Parse_Sample(t *testing.T) {
	d, err := Parse([]byte(sample))
	require.NoError(t, err)

	g := d.Geometry
	assert.Equal(t, "demo", g.Name)
	assert.Equal(t, fuse.VariantClassic, g.Variant)
	assert.Equal(t, 32, g.RecordWidth())
	assert.Equal(t, 4, g.PatchRows)
	assert.Equal(t, 5*time.Millisecond, g.Timing.PollTimeout)
	assert.Equal(t, 50*time.Microsecond, g.Timing.PollInterval)
	assert.Equal(t, 4, g.Timing.Attempts)

	require.Len(t, d.Fuses, 3)
	lock, err := d.Fuse("debug_lock")
	require.NoError(t, err)
	require.Len(t, lock.Locators, 1)
	l := lock.Locators[0]
	assert.Equal(t, fuse.KindRow, l.Kind)
	assert.Equal(t, fuse.PolarityEnableUndo, l.Polarity)
	require.NotNil(t, l.Undo)
	assert.Equal(t, 11, l.Undo.MSB)
	assert.Equal(t, 8, l.Undo.LSB)

	wide, err := d.Fuse("wide")
	require.NoError(t, err)
	assert.Equal(t, 9, wide.Width())
	require.NotNil(t, wide.Locators[1].Redundant)
	assert.Equal(t, uint64(4), wide.Locators[1].Redundant.Chain)

	p, err := d.Profile("PRODUCTION")
	require.NoError(t, err)
	require.Len(t, p.Values, 2)
	assert.Equal(t, "Secure_Boot", p.Values[0].Fuse.Name)
	assert.Equal(t, uint64(0x9), p.Values[0].Value)
	assert.Equal(t, "debug_lock", p.Values[1].Fuse.Name)

	require.Len(t, p.Patches, 3)
	assert.Equal(t, patch.Instruction{Op: patch.OpWrite, Address: 0x4000, Value: 0xDEAD}, p.Patches[0])
	assert.Equal(t, patch.Instruction{Op: patch.OpModify, Address: 0x4004, And: 0xFFFF0000, Or: 0x12}, p.Patches[1])
	assert.Equal(t, patch.Instruction{Op: patch.OpSetField, Base: 2, LSB: 4, Width: 4, Offset: 0x10, Value: 0x5}, p.Patches[2])
}

func Test_Lookup_FoldsCase(t *testing.T) {
	d, err := Parse([]byte(sample))
	require.NoError(t, err)

	for _, name := range []string{"secure_boot", "SECURE_BOOT", " Secure_Boot "} {
		f, err := d.Fuse(name)
		require.NoError(t, err, name)
		assert.Equal(t, "Secure_Boot", f.Name)
	}

	_, err = d.Fuse("nope")
	require.ErrorIs(t, err, ErrUnknownName)
	require.ErrorIs(t, err, fuse.ErrBadParameter)
	_, err = d.Profile("nope")
	require.ErrorIs(t, err, ErrUnknownName)
}

func Test_Load_Windows1252(t *testing.T) {
	doc := strings.Replace(sample, "name: wide", "name: café", 1)
	encoded, err := charmap.Windows1252.NewEncoder().Bytes([]byte(doc))
	require.NoError(t, err)
	require.Contains(t, string(encoded), "caf\xe9")

	path := filepath.Join(t.TempDir(), "legacy.yaml")
	require.NoError(t, os.WriteFile(path, encoded, 0o600))

	d, err := Load(path, WithEncoding(charmap.Windows1252))
	require.NoError(t, err)
	f, err := d.Fuse("CAFÉ")
	require.NoError(t, err)
	assert.Equal(t, "café", f.Name)
}

func Test_Load_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, os.ErrNotExist)
}

func Test_ParseBits(t *testing.T) {
	msb, lsb, err := ParseBits("15:8")
	require.NoError(t, err)
	assert.Equal(t, 15, msb)
	assert.Equal(t, 8, lsb)

	msb, lsb, err = ParseBits("3")
	require.NoError(t, err)
	assert.Equal(t, 3, msb)
	assert.Equal(t, 3, lsb)

	for _, bad := range []string{"", "a:b", "3:4", "-1", "1:"} {
		_, _, err := ParseBits(bad)
		require.ErrorIs(t, err, fuse.ErrBadParameter, bad)
	}
}

func Test_Parse_Errors(t *testing.T) {
	tests := []struct {
		name string
		edit func(string) string
		want error
		path string
	}{
		{
			name: "unknown field",
			edit: func(s string) string { return strings.Replace(s, "patch_rows: 4", "patch_rows: 4\n  colour: red", 1) },
			want: fuse.ErrBadParameter,
		},
		{
			name: "bad geometry",
			edit: func(s string) string { return strings.Replace(s, "rows: 32", "rows: 0", 1) },
			want: fuse.ErrBadParameter,
			path: "geometry",
		},
		{
			name: "bad duration",
			edit: func(s string) string { return strings.Replace(s, "5ms", "soon", 1) },
			want: fuse.ErrBadParameter,
			path: "geometry.timing.poll_timeout",
		},
		{
			name: "duplicate fuse after folding",
			edit: func(s string) string { return strings.Replace(s, "name: wide", "name: SECURE_boot", 1) },
			want: ErrDuplicateName,
			path: "fuses[2].name",
		},
		{
			name: "unknown fuse in profile",
			edit: func(s string) string { return strings.Replace(s, "secure_boot: 0x9", "missing: 0x9", 1) },
			want: ErrUnknownName,
		},
		{
			name: "value too wide",
			edit: func(s string) string { return strings.Replace(s, "secure_boot: 0x9", "secure_boot: 0x19", 1) },
			want: fuse.ErrOutOfRange,
		},
		{
			name: "row outside array",
			edit: func(s string) string { return strings.Replace(s, "{row: 1, bits: \"7:4\"", "{row: 40, bits: \"7:4\"", 1) },
			want: fuse.ErrBadParameter,
			path: "fuses[1].locators[0]",
		},
		{
			name: "row inside record region",
			edit: func(s string) string { return strings.Replace(s, "{row: 1, bits: \"7:4\"", "{row: 2, bits: \"7:4\"", 1) },
			want: fuse.ErrBadParameter,
			path: "fuses[1].locators[0]",
		},
		{
			name: "undo inside patch tail",
			edit: func(s string) string { return strings.Replace(s, "undo: {row: 1,", "undo: {row: 31,", 1) },
			want: fuse.ErrBadParameter,
			path: "fuses[1].locators[0]",
		},
		{
			name: "chain and row",
			edit: func(s string) string { return strings.Replace(s, "{chain: 1, bits", "{chain: 1, row: 1, bits", 1) },
			want: fuse.ErrBadParameter,
			path: "fuses[0].locators[0]",
		},
		{
			name: "bad polarity",
			edit: func(s string) string { return strings.Replace(s, "enable-undo", "sideways", 1) },
			want: fuse.ErrBadParameter,
		},
		{
			name: "bad opcode",
			edit: func(s string) string { return strings.Replace(s, "op: write", "op: jump", 1) },
			want: fuse.ErrBadParameter,
			path: "profiles[0].patches[0]",
		},
		{
			name: "patches without tail",
			edit: func(s string) string { return strings.Replace(s, "patch_rows: 4", "patch_rows: 0", 1) },
			want: fuse.ErrUnsupportedOperation,
			path: "profiles[0].patches",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.edit(sample)))
			require.ErrorIs(t, err, tt.want)
			if tt.path != "" {
				var fe *FieldError
				require.ErrorAs(t, err, &fe)
				assert.Equal(t, tt.path, fe.Path)
			}
		})
	}
}
