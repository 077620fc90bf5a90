package payload

import (
	"errors"
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

var (
	// ErrFormat indicates a payload that is not a sealed container.
	ErrFormat = fmt.Errorf("%w: not a sealed payload", fuse.ErrBadParameter)

	// ErrIntegrity indicates a tag mismatch: wrong key or modified payload.
	ErrIntegrity = errors.New("payload: integrity check failed")

	// ErrKeyFile indicates an unreadable key file.
	ErrKeyFile = fmt.Errorf("%w: invalid key file", fuse.ErrBadParameter)
)
