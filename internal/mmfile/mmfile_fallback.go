//go:build !unix

package mmfile

import (
	"fmt"
	"os"
)

// Open reads the file into memory when mmap is not available; Sync and
// Close write it back.
func Open(path string, size int64) (*Mapping, error) {
	if err := checkSize(size); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		data = nil
	case err != nil:
		return nil, err
	}
	if int64(len(data)) > size {
		return nil, fmt.Errorf("mmfile: %s is %d bytes, want at most %d", path, len(data), size)
	}
	buf := make([]byte, size)
	copy(buf, data)

	m := &Mapping{Data: buf}
	m.sync = func() error { return os.WriteFile(path, buf, 0o644) }
	m.close = m.sync
	return m, nil
}
