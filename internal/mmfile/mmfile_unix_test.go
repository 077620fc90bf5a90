//go:build unix

package mmfile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func Test_Open_CreatesAndGrows(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.bin")

	m, err := Open(path, 16)
	require.NoError(t, err)
	require.Len(t, m.Data, 16)
	m.Data[3] = 0xAB
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Len(t, got, 16)
	assert.Equal(t, byte(0xAB), got[3])
}

func Test_Open_PreservesContents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.bin")
	require.NoError(t, os.WriteFile(path, []byte{1, 2, 3, 4}, 0o644))

	m, err := Open(path, 8)
	require.NoError(t, err)
	defer m.Close()
	assert.Equal(t, []byte{1, 2, 3, 4, 0, 0, 0, 0}, m.Data)
}

func Test_Open_Rejects(t *testing.T) {
	path := filepath.Join(t.TempDir(), "otp.bin")
	require.NoError(t, os.WriteFile(path, make([]byte, 32), 0o644))

	_, err := Open(path, 16)
	require.Error(t, err)

	_, err = Open(path, 0)
	require.Error(t, err)
}

func Test_Mapping_SyncAfterClose(t *testing.T) {
	m, err := Open(filepath.Join(t.TempDir(), "otp.bin"), 4)
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.ErrorIs(t, m.Sync(), ErrClosed)
}
