package commit

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

// MismatchError indicates that a row read back differently from what was
// programmed.
type MismatchError struct {
	Row  int
	Want uint32
	Got  uint32
}

func (e *MismatchError) Error() string {
	return fmt.Sprintf("row %d verify mismatch: want 0x%08X, got 0x%08X (missing 0x%08X)",
		e.Row, e.Want, e.Got, e.Want&^e.Got)
}

func (e *MismatchError) Unwrap() error { return fuse.ErrVerificationMismatch }

// TimeoutError indicates a program cycle that did not finish in time.
type TimeoutError struct {
	Row     int
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("row %d program cycle did not finish (attempt %d)", e.Row, e.Attempt)
}

func (e *TimeoutError) Unwrap() error { return fuse.ErrTimeout }

// ExhaustedError wraps the last failure after every attempt was used.
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("commit failed after %d attempts: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error { return e.Last }
