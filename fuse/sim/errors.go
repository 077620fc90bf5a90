package sim

import (
	"errors"
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrNotEnabled is returned by WriteWord while programming is disabled.
	ErrNotEnabled = errors.New("sim: programming not enabled")

	// ErrWriteWhileBusy is returned by WriteWord during a program cycle.
	ErrWriteWhileBusy = errors.New("sim: write issued while busy")

	// ErrRowRange is returned for rows outside the array.
	ErrRowRange = fmt.Errorf("%w: row outside array", fuse.ErrBadParameter)
)
