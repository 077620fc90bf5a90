package fuse

// Device is the physical OTP programming controller.
//
// A Device is a single-writer resource. Implementations need not be safe for
// concurrent use; the commit sequencer and the image cache serialize access.
type Device interface {
	// Rows returns the number of 32-bit rows in the array.
	Rows() int

	// ReadWord senses one row. Reads near the programming threshold may be
	// unstable, so callers vote across several reads.
	ReadWord(row int) (uint32, error)

	// WriteWord latches the row address and data and starts a program
	// cycle. Only bits set in word are blown.
	WriteWord(row int, word uint32) error

	// Busy reports whether a program cycle is still running.
	Busy() (bool, error)

	// SetProgrammingEnable raises or lowers the programming supply.
	SetProgrammingEnable(enabled bool) error

	// Latch copies the array into the shadow registers consumed by the chip.
	Latch() error
}
