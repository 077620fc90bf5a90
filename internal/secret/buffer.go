// Package secret holds transient key material outside the Go heap.
//
// On Linux a Buffer is an anonymous mapping that is locked into RAM where
// the memlock limit allows it and excluded from core dumps. Elsewhere it is
// an ordinary slice. In both cases Close zeroes the contents.
package secret

import (
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned when a closed buffer is read.
var ErrClosed = errors.New("secret: buffer closed")

// Buffer holds sensitive bytes. It must not be copied after creation.
type Buffer struct {
	mu     sync.Mutex
	data   []byte
	locked bool
	closed bool
	free   func([]byte) error
}

// New allocates a zeroed buffer of size bytes.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	return allocate(size)
}

// NewFromBytes copies source into a new buffer and zeroes source.
func NewFromBytes(source []byte) (*Buffer, error) {
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}
	b, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(b.data, source)
	Zero(source)
	return b, nil
}

// Bytes returns the secret. The slice aliases the protected region and is
// only valid until Close.
func (b *Buffer) Bytes() ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}
	return b.data, nil
}

// Len returns the secret's length, or 0 after Close.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Locked reports whether the memory is pinned against swapping.
func (b *Buffer) Locked() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.locked
}

// Close zeroes and releases the buffer. Close is idempotent.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	Zero(b.data)
	var err error
	if b.free != nil {
		err = b.free(b.data)
	}
	b.data = nil
	return err
}

// Zero overwrites data with zeroes.
func Zero(data []byte) {
	clear(data)
}
