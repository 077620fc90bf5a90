package payload

import (
	"bytes"
	"fmt"

	"github.com/klauspost/compress/zstd"
)

// MaxBodySize caps the size of a payload body, before and after compression.
const MaxBodySize = 256 << 20

// zstdMagic starts every zstd frame.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// Shared encoder and decoder. EncodeAll and DecodeAll are safe for
// concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		panic("payload: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = newDecoder(MaxBodySize)
	if err != nil {
		panic("payload: zstd decoder initialization failed: " + err.Error())
	}
}

// compress returns the zstd frame of data when it is smaller. Data that
// already starts with the frame magic is always wrapped so Open can tell
// the two apart.
func compress(data []byte) ([]byte, bool) {
	c := zstdEncoder.EncodeAll(data, make([]byte, 0, len(data)))
	if len(c) >= len(data) && !isCompressed(data) {
		return data, false
	}
	return c, true
}

func isCompressed(data []byte) bool {
	return bytes.HasPrefix(data, zstdMagic)
}

func newDecoder(limit uint64) (*zstd.Decoder, error) {
	return zstd.NewReader(nil, zstd.WithDecoderMaxMemory(limit))
}

func decompress(data []byte) ([]byte, error) {
	out, err := zstdDecoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}
	return out, nil
}
