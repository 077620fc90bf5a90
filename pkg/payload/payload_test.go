package payload

import (
	"bytes"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"filippo.io/age"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/secret"
)

func testKey() []byte {
	key := make([]byte, 64)
	for i := range key {
		key[i] = byte(i)
	}
	return key
}

func Test_SealOpen_RoundTrip(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		opts []Option
	}{
		{"empty", nil, nil},
		{"unaligned", []byte("firmware"), nil},
		{"compressible", bytes.Repeat([]byte("OTP!"), 4096), nil},
		{"small sectors", bytes.Repeat([]byte{0xAB, 0xCD, 0xEF}, 700), []Option{WithSectorSize(32), WithBaseSector(9)}},
		{"no compression", bytes.Repeat([]byte{1}, 1000), []Option{WithCompression(false)}},
		{"zstd lookalike", append([]byte{0x28, 0xB5, 0x2F, 0xFD}, 1, 2, 3), nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sealed, err := Seal(testKey(), tt.data, tt.opts...)
			require.NoError(t, err)
			_, err = Inspect(sealed)
			require.NoError(t, err)

			got, err := Open(testKey(), sealed)
			require.NoError(t, err)
			assert.Equal(t, len(tt.data), len(got))
			if len(tt.data) > 0 {
				assert.Equal(t, tt.data, got)
			}
		})
	}
}

func Test_Seal_Compresses(t *testing.T) {
	data := bytes.Repeat([]byte("fuse"), 4096)
	sealed, err := Seal(testKey(), data)
	require.NoError(t, err)
	info, err := Inspect(sealed)
	require.NoError(t, err)
	assert.Less(t, info.BodyLen, len(data))
	assert.Equal(t, DefaultSectorSize, info.SectorSize)

	raw, err := Seal(testKey(), data, WithCompression(false))
	require.NoError(t, err)
	info, err = Inspect(raw)
	require.NoError(t, err)
	assert.Equal(t, len(data), info.BodyLen)
}

func Test_Open_WrongKeyOrTamper(t *testing.T) {
	sealed, err := Seal(testKey(), []byte("secret firmware image"))
	require.NoError(t, err)

	other := testKey()
	other[0] ^= 1
	_, err = Open(other, sealed)
	require.ErrorIs(t, err, ErrIntegrity)

	sealed[headerSize] ^= 0x80
	_, err = Open(testKey(), sealed)
	require.ErrorIs(t, err, ErrIntegrity)
}

func Test_Open_BadFormat(t *testing.T) {
	_, err := Open(testKey(), []byte("nope"))
	require.ErrorIs(t, err, fuse.ErrBadParameter)

	sealed, err := Seal(testKey(), []byte("x"))
	require.NoError(t, err)
	_, err = Inspect(sealed[:len(sealed)-1])
	require.ErrorIs(t, err, ErrFormat)

	_, err = Seal(testKey(), nil, WithSectorSize(10))
	require.ErrorIs(t, err, ErrFormat)
	_, err = Seal(make([]byte, 16), nil)
	require.ErrorIs(t, err, fuse.ErrBadParameter)
}

func Test_Decompress_SizeLimit(t *testing.T) {
	frame := zstdEncoder.EncodeAll(make([]byte, 64<<10), nil)
	require.Less(t, len(frame), 1024)

	small, err := newDecoder(1024)
	require.NoError(t, err)
	defer small.Close()
	_, err = small.DecodeAll(frame, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, zstd.ErrDecoderSizeExceeded) || errors.Is(err, zstd.ErrWindowSizeExceeded), err.Error())

	out, err := decompress(frame)
	require.NoError(t, err)
	assert.Len(t, out, 64<<10)
}

func Test_ParseKey_Plain(t *testing.T) {
	key, err := ParseKey([]byte(hex.EncodeToString(testKey())+"\n"), nil)
	require.NoError(t, err)
	defer key.Close()
	data, err := key.Bytes()
	require.NoError(t, err)
	assert.Equal(t, testKey(), data)

	_, err = ParseKey([]byte("abcd"), nil)
	require.ErrorIs(t, err, ErrKeyFile)
	_, err = ParseKey([]byte("zz"), nil)
	require.ErrorIs(t, err, ErrKeyFile)
}

func Test_KeyFile_AgeRoundTrip(t *testing.T) {
	ident, err := age.GenerateX25519Identity()
	require.NoError(t, err)

	sealedKey, err := SealKey(testKey(), ident.Recipient().String())
	require.NoError(t, err)
	assert.Contains(t, string(sealedKey), "BEGIN AGE ENCRYPTED FILE")

	path := filepath.Join(t.TempDir(), "xts.key.age")
	require.NoError(t, os.WriteFile(path, sealedKey, 0o600))

	idBuf, err := secret.NewFromBytes([]byte(ident.String()))
	require.NoError(t, err)
	defer idBuf.Close()

	key, err := LoadKey(path, idBuf)
	require.NoError(t, err)
	defer key.Close()
	data, err := key.Bytes()
	require.NoError(t, err)
	assert.Equal(t, testKey(), data)

	_, err = LoadKey(path, nil)
	require.ErrorIs(t, err, ErrKeyFile)

	_, err = SealKey(testKey())
	require.ErrorIs(t, err, ErrKeyFile)
}

func Test_GenerateKey(t *testing.T) {
	a, err := GenerateKey()
	require.NoError(t, err)
	defer a.Close()
	b, err := GenerateKey()
	require.NoError(t, err)
	defer b.Close()

	ad, _ := a.Bytes()
	bd, _ := b.Bytes()
	assert.Len(t, ad, KeySize)
	assert.NotEqual(t, ad, bd)
}
