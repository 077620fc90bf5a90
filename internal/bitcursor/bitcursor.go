// Package bitcursor packs and unpacks fixed-width fields at arbitrary bit
// offsets across a flat array of 32-bit words.
//
// Bit order is LSB-first: absolute bit b lives in words[b/32] at bit
// position b%32, and bit i of a field starting at cursor c lives at absolute
// bit c+i. Fields may straddle word boundaries.
//
// Writes are OR-accumulating. A write never clears a bit that is already set,
// which mirrors the physical behavior of OTP cells.
package bitcursor

import (
	"errors"
	"fmt"
	"math"

	"github.com/joshuapare/fusekit/internal/buf"
)

// WordBits is the width of one array word.
const WordBits = 32

var (
	// ErrOutOfBounds indicates a field extends past the end of the word array.
	ErrOutOfBounds = errors.New("bitcursor: field out of bounds")

	// ErrValueTooWide indicates a value has bits set above the field width.
	ErrValueTooWide = errors.New("bitcursor: value wider than field")

	// ErrBadWidth indicates a field width outside 1..64.
	ErrBadWidth = errors.New("bitcursor: invalid field width")
)

// ReadField returns the width-bit field starting at cursor and the cursor
// advanced past it.
func ReadField(words []uint32, width, cursor int) (uint64, int, error) {
	end, err := checkField(len(words), width, cursor)
	if err != nil {
		return 0, cursor, err
	}

	var value uint64
	pos := cursor
	shift := 0
	for pos < end {
		word := words[pos/WordBits]
		bit := pos % WordBits
		take := min(WordBits-bit, end-pos)
		chunk := (uint64(word) >> bit) & mask(take)
		value |= chunk << shift
		shift += take
		pos += take
	}
	return value, end, nil
}

// WriteField ORs value into the width-bit field starting at cursor and returns
// the cursor advanced past it. Bits already set in the array stay set.
func WriteField(words []uint32, value uint64, width, cursor int) (int, error) {
	end, err := checkField(len(words), width, cursor)
	if err != nil {
		return cursor, err
	}
	if width < 64 && value>>width != 0 {
		return cursor, fmt.Errorf("%w: 0x%X in %d bits", ErrValueTooWide, value, width)
	}

	pos := cursor
	for pos < end {
		bit := pos % WordBits
		take := min(WordBits-bit, end-pos)
		chunk := uint32(value & mask(take))
		words[pos/WordBits] |= chunk << bit
		value >>= take
		pos += take
	}
	return end, nil
}

// Bit reports the value of the absolute bit index.
func Bit(words []uint32, index int) (bool, error) {
	v, _, err := ReadField(words, 1, index)
	return v == 1, err
}

// SetBit ORs a single bit into the array.
func SetBit(words []uint32, index int) error {
	_, err := WriteField(words, 1, 1, index)
	return err
}

// Mask returns a value with the low width bits set.
func Mask(width int) uint64 {
	return mask(width)
}

func mask(width int) uint64 {
	if width >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << width) - 1
}

// checkField validates width and bounds and returns the end cursor.
func checkField(numWords, width, cursor int) (int, error) {
	if width < 1 || width > 64 {
		return 0, fmt.Errorf("%w: %d", ErrBadWidth, width)
	}
	if cursor < 0 {
		return 0, fmt.Errorf("%w: negative cursor %d", ErrOutOfBounds, cursor)
	}
	totalBits, ok := buf.MulOverflowSafe(numWords, WordBits)
	if !ok {
		return 0, fmt.Errorf("%w: array too large", ErrOutOfBounds)
	}
	end, ok := buf.AddOverflowSafe(cursor, width)
	if !ok || end > totalBits {
		return 0, fmt.Errorf("%w: bits [%d,%d) of %d", ErrOutOfBounds, cursor, cursor+width, totalBits)
	}
	return end, nil
}
