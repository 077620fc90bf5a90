package fusekit

import (
	"errors"
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrClosed indicates use of a closed session.
	ErrClosed = errors.New("fusekit: session closed")

	// ErrGeometryMismatch indicates a device whose row count differs from the definition.
	ErrGeometryMismatch = fmt.Errorf("%w: device does not match geometry", fuse.ErrBadParameter)
)

// ValueError reports a fuse that reads back a different value than planned.
type ValueError struct {
	Fuse string
	Want uint64
	Got  uint64
}

func (e *ValueError) Error() string {
	return fmt.Sprintf("fuse %s: want 0x%X, read 0x%X", e.Fuse, e.Want, e.Got)
}

func (e *ValueError) Unwrap() error { return fuse.ErrVerificationMismatch }
