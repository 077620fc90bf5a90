//go:build unix

package mmfile

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// Open maps the file at path read/write, creating it or growing it with
// zero bytes to size. A file larger than size is rejected.
func Open(path string, size int64) (*Mapping, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close() // mapping keeps pages alive

	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	switch {
	case info.Size() > size:
		return nil, fmt.Errorf("mmfile: %s is %d bytes, want at most %d", path, info.Size(), size)
	case info.Size() < size:
		if err := f.Truncate(size); err != nil {
			return nil, err
		}
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("mmfile: mmap %s: %w", path, err)
	}
	m := &Mapping{Data: data}
	m.sync = func() error {
		return unix.Msync(data, unix.MS_SYNC)
	}
	m.close = func() error {
		syncErr := unix.Msync(data, unix.MS_SYNC)
		err := unix.Munmap(data)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as no-op for callers.
			err = nil
		}
		return errors.Join(syncErr, err)
	}
	return m, nil
}
