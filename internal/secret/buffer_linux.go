//go:build linux

package secret

import (
	"errors"
	"fmt"

	"golang.org/x/sys/unix"
)

func allocate(size int) (*Buffer, error) {
	data, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mmap failed: %w", err)
	}

	// A low RLIMIT_MEMLOCK (containers, CI) leaves the buffer unlocked.
	locked := unix.Mlock(data) == nil
	// MADV_DONTDUMP is unavailable on some kernels; the mapping is still private.
	_ = unix.Madvise(data, unix.MADV_DONTDUMP)

	return &Buffer{
		data:   data,
		locked: locked,
		free: func(d []byte) error {
			var errs []error
			if locked {
				if err := unix.Munlock(d); err != nil {
					errs = append(errs, fmt.Errorf("secret: munlock failed: %w", err))
				}
			}
			if err := unix.Munmap(d); err != nil {
				errs = append(errs, fmt.Errorf("secret: munmap failed: %w", err))
			}
			return errors.Join(errs...)
		},
	}, nil
}
