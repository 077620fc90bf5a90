// Package sim provides a simulated OTP device.
//
// The simulated array honors the monotonic constraint: WriteWord ORs into
// the stored row. Writes require programming enable and start a program
// cycle that keeps Busy true for a configurable number of polls. Faults
// (stuck bits, unstable reads, cycles that never finish) can be injected
// to exercise the commit sequencer's retry and verify paths.
//
// A device is either held in memory (New) or backed by an image file
// mapped with internal/mmfile (OpenFile), so state survives across
// fusectl invocations.
package sim

import (
	"fmt"
	"sync"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/buf"
	"github.com/joshuapare/fusekit/internal/mmfile"
)

// Option configures a Device.
type Option func(*Device)

// WithBusyCycles sets how many Busy polls return true after each write.
func WithBusyCycles(n int) Option {
	return func(d *Device) {
		if n >= 0 {
			d.busyCycles = n
		}
	}
}

// Stats counts device operations.
type Stats struct {
	Reads       int
	Writes      int
	Polls       int
	Latches     int
	EnableEdges int
}

// Device is an in-memory or file-backed simulated OTP array. It is safe
// for concurrent use.
type Device struct {
	mu sync.Mutex

	data    []byte
	mapping *mmfile.Mapping

	enabled    bool
	busyCycles int
	busyLeft   int
	hang       bool

	stuckLow map[int]uint32
	flaky    map[int][]uint32
	writes   []Write
	stats    Stats
}

// Write records one WriteWord call.
type Write struct {
	Row  int
	Word uint32
}

// New returns an in-memory device of rows blank rows.
func New(rows int, opts ...Option) (*Device, error) {
	size, err := imageSize(rows)
	if err != nil {
		return nil, err
	}
	return newDevice(make([]byte, size), nil, opts), nil
}

func imageSize(rows int) (int, error) {
	size, ok := buf.MulOverflowSafe(rows, 4)
	if rows <= 0 || !ok {
		return 0, fmt.Errorf("%w: %d rows", fuse.ErrBadParameter, rows)
	}
	return size, nil
}

// OpenFile maps the image file at path, creating it blank if needed.
// Close must be called to flush and release the mapping.
func OpenFile(path string, rows int, opts ...Option) (*Device, error) {
	size, err := imageSize(rows)
	if err != nil {
		return nil, err
	}
	m, err := mmfile.Open(path, int64(size))
	if err != nil {
		return nil, fmt.Errorf("open image %s: %w", path, err)
	}
	return newDevice(m.Data, m, opts), nil
}

func newDevice(data []byte, m *mmfile.Mapping, opts []Option) *Device {
	d := &Device{
		data:       data,
		mapping:    m,
		busyCycles: 1,
		stuckLow:   make(map[int]uint32),
		flaky:      make(map[int][]uint32),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Close flushes a file-backed device. It is a no-op for in-memory devices.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mapping == nil {
		return nil
	}
	err := d.mapping.Close()
	d.mapping = nil
	d.data = nil
	return err
}

// Rows returns the number of rows.
func (d *Device) Rows() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.data) / 4
}

func (d *Device) word(row int) uint32 {
	return buf.U32LE(d.data[4*row:])
}

func (d *Device) setWord(row int, w uint32) {
	buf.PutU32LE(d.data[4*row:], w)
}

func (d *Device) checkRow(row int) error {
	if row < 0 || row >= len(d.data)/4 {
		return fmt.Errorf("%w: %d", ErrRowRange, row)
	}
	return nil
}

// ReadWord returns the stored row, or the next queued unstable value.
func (d *Device) ReadWord(row int) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkRow(row); err != nil {
		return 0, err
	}
	d.stats.Reads++
	if q := d.flaky[row]; len(q) > 0 {
		d.flaky[row] = q[1:]
		return q[0], nil
	}
	return d.word(row), nil
}

// WriteWord ORs word into the row, minus any stuck-low bits.
func (d *Device) WriteWord(row int, word uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.checkRow(row); err != nil {
		return err
	}
	if !d.enabled {
		return ErrNotEnabled
	}
	if d.busyLeft > 0 {
		return ErrWriteWhileBusy
	}
	d.stats.Writes++
	d.writes = append(d.writes, Write{Row: row, Word: word})
	d.setWord(row, d.word(row)|word&^d.stuckLow[row])
	d.busyLeft = d.busyCycles
	return nil
}

// Busy reports an in-flight program cycle. Each poll consumes one cycle.
func (d *Device) Busy() (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Polls++
	if d.busyLeft > 0 {
		d.busyLeft--
		return true, nil
	}
	return d.hang, nil
}

// SetProgrammingEnable raises or lowers programming supply.
func (d *Device) SetProgrammingEnable(enabled bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.enabled != enabled {
		d.stats.EnableEdges++
	}
	d.enabled = enabled
	return nil
}

// Latch counts latch pulses and flushes a file-backed image.
func (d *Device) Latch() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats.Latches++
	if d.mapping != nil {
		return d.mapping.Sync()
	}
	return nil
}

// Enabled reports whether programming is enabled.
func (d *Device) Enabled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled
}

// Snapshot returns a copy of the stored rows.
func (d *Device) Snapshot() []uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]uint32, len(d.data)/4)
	for i := range out {
		out[i] = d.word(i)
	}
	return out
}

// Program ORs words into the array directly, bypassing enable and busy.
// It seeds factory state in tests and tools.
func (d *Device) Program(words []uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(words) > len(d.data)/4 {
		return fmt.Errorf("%w: %d words for %d rows", fuse.ErrBadParameter, len(words), len(d.data)/4)
	}
	for i, w := range words {
		d.setWord(i, d.word(i)|w)
	}
	return nil
}

// Writes returns every WriteWord call in order.
func (d *Device) Writes() []Write {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Write, len(d.writes))
	copy(out, d.writes)
	return out
}

// Stats returns operation counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}
