package alloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrRowLocator indicates a row locator was passed to the record allocator.
	ErrRowLocator = fmt.Errorf("%w: row locators are programmed directly, not through records", fuse.ErrBadParameter)

	// ErrReadback indicates the overlay disagreed with the requested value after Apply.
	ErrReadback = errors.New("alloc: overlay readback differs from request")
)
