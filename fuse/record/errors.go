package record

import (
	"errors"
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrUnknownRecordType indicates a slot whose type no handler recognizes.
	ErrUnknownRecordType = fmt.Errorf("%w: unknown record type", fuse.ErrBadParameter)

	// ErrNotReplace indicates an edit of a slot that is not a live replace record.
	ErrNotReplace = errors.New("record: slot is not a replace record")

	// ErrShortImage indicates an image smaller than the geometry.
	ErrShortImage = fmt.Errorf("%w: image shorter than geometry", fuse.ErrBadParameter)
)

// ParseError reports a slot that could not be interpreted during Load.
type ParseError struct {
	Slot   int    // slot index
	Offset int    // absolute bit offset of the slot
	Type   uint64 // raw type field
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("record: slot %d at bit %d (type %d): %v", e.Slot, e.Offset, e.Type, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
