package payload

import (
	"crypto/subtle"
	"fmt"

	"github.com/zeebo/blake3"

	"github.com/joshuapare/fusekit/internal/buf"
	"github.com/joshuapare/fusekit/pkg/aesxts"
)

const (
	magic      = "FKX1"
	headerSize = 24
	tagSize    = 32

	// DefaultSectorSize is the XTS data unit used when none is configured.
	DefaultSectorSize = 512

	macContext = "fusekit 2026 payload tag"
)

type config struct {
	sectorSize int
	baseSector uint64
	compress   bool
}

// Option configures Seal.
type Option func(*config)

// WithSectorSize sets the XTS data unit size. It must be a positive
// multiple of 16.
func WithSectorSize(n int) Option {
	return func(c *config) { c.sectorSize = n }
}

// WithBaseSector sets the sector number of the first data unit.
func WithBaseSector(s uint64) Option {
	return func(c *config) { c.baseSector = s }
}

// WithCompression enables or disables zstd compression. Enabled by default.
func WithCompression(on bool) Option {
	return func(c *config) { c.compress = on }
}

// Info describes a sealed payload.
type Info struct {
	SectorSize int
	BaseSector uint64
	BodyLen    int
	Compressed bool
}

// Seal encrypts plaintext under key (32, 48 or 64 bytes).
func Seal(key, plaintext []byte, opts ...Option) ([]byte, error) {
	cfg := config{sectorSize: DefaultSectorSize, compress: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sectorSize <= 0 || cfg.sectorSize%aesxts.BlockSize != 0 {
		return nil, fmt.Errorf("%w: sector size %d", ErrFormat, cfg.sectorSize)
	}
	if len(plaintext) > MaxBodySize {
		return nil, fmt.Errorf("%w: %d-byte payload exceeds %d", ErrFormat, len(plaintext), MaxBodySize)
	}
	c, err := aesxts.New(key)
	if err != nil {
		return nil, err
	}
	defer c.Wipe()

	body := plaintext
	if cfg.compress {
		body, _ = compress(plaintext)
	} else if isCompressed(plaintext) {
		return nil, fmt.Errorf("%w: uncompressed body starts with the zstd magic", ErrFormat)
	}

	padded := (len(body) + aesxts.BlockSize - 1) / aesxts.BlockSize * aesxts.BlockSize
	out := make([]byte, headerSize+padded+tagSize)
	copy(out, magic)
	buf.PutU32LE(out[4:], uint32(cfg.sectorSize))
	buf.PutU64LE(out[8:], cfg.baseSector)
	buf.PutU64LE(out[16:], uint64(len(body)))

	ct := out[headerSize : headerSize+padded]
	copy(ct, body)
	if err := cryptSectors(c.EncryptSector, ct, cfg.sectorSize, cfg.baseSector); err != nil {
		return nil, err
	}

	tag, err := mac(key, out[:headerSize+padded])
	if err != nil {
		return nil, err
	}
	copy(out[headerSize+padded:], tag)
	return out, nil
}

// Open verifies and decrypts a sealed payload.
func Open(key, sealed []byte) ([]byte, error) {
	info, err := Inspect(sealed)
	if err != nil {
		return nil, err
	}
	end := len(sealed) - tagSize
	tag, err := mac(key, sealed[:end])
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare(tag, sealed[end:]) != 1 {
		return nil, ErrIntegrity
	}

	c, err := aesxts.New(key)
	if err != nil {
		return nil, err
	}
	defer c.Wipe()

	ct, ok := buf.Slice(sealed, headerSize, end-headerSize)
	if !ok {
		return nil, ErrFormat
	}
	pt := append([]byte(nil), ct...)
	if err := cryptSectors(c.DecryptSector, pt, info.SectorSize, info.BaseSector); err != nil {
		return nil, err
	}
	body := pt[:info.BodyLen]
	if isCompressed(body) {
		return decompress(body)
	}
	return body, nil
}

// Inspect parses the header of a sealed payload without a key. Compressed
// is unknown until decryption and always false here.
func Inspect(sealed []byte) (Info, error) {
	if len(sealed) < headerSize+tagSize || string(sealed[:4]) != magic {
		return Info{}, ErrFormat
	}
	info := Info{
		SectorSize: int(buf.U32LE(sealed[4:])),
		BaseSector: buf.U64LE(sealed[8:]),
	}
	bodyLen := buf.U64LE(sealed[16:])
	ctLen := len(sealed) - headerSize - tagSize
	if info.SectorSize <= 0 || info.SectorSize%aesxts.BlockSize != 0 || ctLen%aesxts.BlockSize != 0 ||
		bodyLen > uint64(ctLen) || uint64(ctLen)-bodyLen >= aesxts.BlockSize {
		return Info{}, fmt.Errorf("%w: inconsistent header", ErrFormat)
	}
	info.BodyLen = int(bodyLen)
	return info, nil
}

func cryptSectors(fn func(dst, src []byte, sector uint64) error, data []byte, size int, base uint64) error {
	for off, s := 0, base; off < len(data); off, s = off+size, s+1 {
		end := min(off+size, len(data))
		if err := fn(data[off:end], data[off:end], s); err != nil {
			return fmt.Errorf("sector %d: %w", s, err)
		}
	}
	return nil
}

func mac(key, data []byte) ([]byte, error) {
	var mk [32]byte
	blake3.DeriveKey(macContext, key, mk[:])
	defer clear(mk[:])
	h, err := blake3.NewKeyed(mk[:])
	if err != nil {
		return nil, err
	}
	h.Write(data)
	return h.Sum(nil), nil
}
