package aesxts

import (
	"errors"
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrMisaligned is returned for input that is not a multiple of BlockSize.
	ErrMisaligned = fmt.Errorf("%w: length is not a multiple of %d", fuse.ErrCryptoInputMisaligned, BlockSize)

	// ErrShortBuffer is returned when dst is smaller than src.
	ErrShortBuffer = errors.New("aesxts: output buffer too small")
)

// KeySizeError reports an unsupported key length.
type KeySizeError int

func (k KeySizeError) Error() string {
	return fmt.Sprintf("aesxts: invalid key size %d", int(k))
}

func (k KeySizeError) Unwrap() error { return fuse.ErrBadParameter }
