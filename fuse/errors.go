package fuse

import "errors"

// Error kinds shared by every fusekit package. Package-level errors wrap one
// of these so callers can classify failures with errors.Is.
var (
	// ErrBadParameter indicates malformed input: an invalid geometry, locator or value.
	ErrBadParameter = errors.New("fuse: bad parameter")

	// ErrAllocationExhausted indicates no free record slot, repair entry or patch row remains.
	ErrAllocationExhausted = errors.New("fuse: allocation exhausted")

	// ErrOutOfRange indicates a field or offset does not fit the geometry's field widths.
	ErrOutOfRange = errors.New("fuse: out of range")

	// ErrVerificationMismatch indicates post-commit readback disagrees with the programmed image.
	ErrVerificationMismatch = errors.New("fuse: verification mismatch")

	// ErrInconsistentReadback indicates three reads of a row returned three distinct values.
	ErrInconsistentReadback = errors.New("fuse: inconsistent readback")

	// ErrUnsupportedOperation indicates the feature is absent on this geometry.
	ErrUnsupportedOperation = errors.New("fuse: unsupported operation")

	// ErrCryptoInputMisaligned indicates cipher input that is not a multiple of the block size.
	ErrCryptoInputMisaligned = errors.New("fuse: crypto input misaligned")

	// ErrTimeout indicates a hardware poll did not complete in time.
	ErrTimeout = errors.New("fuse: hardware timeout")

	// ErrMonotonic indicates a change that would clear a programmed bit.
	ErrMonotonic = errors.New("fuse: bit cannot transition 1 to 0")
)
