// Package mmfile maps fuse image files into memory for the simulated device.
package mmfile

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by operations on a closed Mapping.
var ErrClosed = errors.New("mmfile: mapping closed")

// Mapping is a writable view of a file. Writes to Data reach the file on
// Sync or Close.
type Mapping struct {
	Data []byte

	sync  func() error
	close func() error
}

// Sync flushes Data to the file.
func (m *Mapping) Sync() error {
	if m.sync == nil {
		return ErrClosed
	}
	return m.sync()
}

// Close flushes and releases the mapping. Closing twice is a no-op.
func (m *Mapping) Close() error {
	if m.close == nil {
		return nil
	}
	err := m.close()
	m.Data, m.sync, m.close = nil, nil, nil
	return err
}

func checkSize(size int64) error {
	if size <= 0 {
		return fmt.Errorf("mmfile: invalid size %d", size)
	}
	if size > int64(^uint(0)>>1) {
		return fmt.Errorf("mmfile: file too large to map (%d bytes)", size)
	}
	return nil
}
