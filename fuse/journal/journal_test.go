package journal

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fusekit/fuse/image"
	"github.com/joshuapare/fusekit/internal/clock"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func Test_Journal_AppendAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits.journal")
	clk := clock.Stepping(epoch)

	j, err := Open(path, WithClock(clk))
	require.NoError(t, err)

	before := image.Image{0, 0, 0, 0}
	after := image.Image{0, 0, 0x2A, 0}
	e1, err := j.Append(Entry{
		Geometry: "demo", Operation: "profile", Target: "secure-boot",
		Attempts: 1, Rows: []int{2},
		Before: DigestImage(before), After: DigestImage(after),
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), e1.Seq)
	assert.Equal(t, epoch.UnixNano(), e1.UnixNano)
	assert.Equal(t, Digest{}, e1.Prev)

	clk.Advance(time.Second)
	e2, err := j.Append(Entry{Geometry: "demo", Operation: "fuse", Target: "debug", Error: "fuse: allocation exhausted"})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), e2.Seq)
	assert.NotEqual(t, Digest{}, e2.Prev)
	require.NoError(t, j.Close())

	entries, err := Read(path)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, e1, entries[0])
	assert.Equal(t, e2, entries[1])
}

func Test_Journal_ReopenContinuesChain(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits.journal")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Append(Entry{Operation: "profile"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	j, err = Open(path)
	require.NoError(t, err)
	e, err := j.Append(Entry{Operation: "patch"})
	require.NoError(t, err)
	require.NoError(t, j.Close())
	assert.Equal(t, uint64(2), e.Seq)

	entries, err := Read(path)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func Test_Journal_DetectsTamper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commits.journal")
	j, err := Open(path)
	require.NoError(t, err)
	_, err = j.Append(Entry{Operation: "profile", Target: "aaaa"})
	require.NoError(t, err)
	_, err = j.Append(Entry{Operation: "profile", Target: "bbbb"})
	require.NoError(t, err)
	require.NoError(t, j.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	edited := bytes.Clone(data)
	idx := bytes.Index(edited, []byte("aaaa"))
	require.Positive(t, idx)
	copy(edited[idx:], "cccc")
	require.NoError(t, os.WriteFile(path, edited, 0o644))
	_, err = Read(path)
	require.ErrorIs(t, err, ErrCorrupt)

	require.NoError(t, os.WriteFile(path, data[:len(data)-3], 0o644))
	_, err = Read(path)
	require.ErrorIs(t, err, ErrCorrupt)
}

func Test_DigestImage(t *testing.T) {
	a := DigestImage(image.Image{1, 2})
	assert.Equal(t, a, DigestImage(image.Image{1, 2}))
	assert.NotEqual(t, a, DigestImage(image.Image{1, 3}))
}

