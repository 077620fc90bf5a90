package definition

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrUnknownName indicates a fuse or profile that is not defined.
	ErrUnknownName = fmt.Errorf("%w: unknown name", fuse.ErrBadParameter)

	// ErrDuplicateName indicates two entries whose names fold to the same key.
	ErrDuplicateName = fmt.Errorf("%w: duplicate name", fuse.ErrBadParameter)
)

// FieldError locates a problem in the definition file.
type FieldError struct {
	Path string // e.g. fuses[2].locators[0].bits
	Err  error
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *FieldError) Unwrap() error { return e.Err }
