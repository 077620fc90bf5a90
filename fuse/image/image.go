package image

import (
	"context"
	"fmt"
	"strings"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/buf"
)

// Image mirrors the OTP array, one word per row.
type Image []uint32

// New returns a blank image with rows rows.
func New(rows int) Image {
	return make(Image, rows)
}

// Clone returns a copy of the image.
func (img Image) Clone() Image {
	out := make(Image, len(img))
	copy(out, img)
	return out
}

// Or returns the row-wise union of img and other. Both must be the same length.
func (img Image) Or(other Image) (Image, error) {
	if len(img) != len(other) {
		return nil, fmt.Errorf("%w: image lengths %d and %d differ", fuse.ErrBadParameter, len(img), len(other))
	}
	out := img.Clone()
	for i, w := range other {
		out[i] |= w
	}
	return out, nil
}

// Cleared returns the rows where img has a bit set that next lacks, i.e.
// rows where next would require a 1 to 0 transition.
func (img Image) Cleared(next Image) []int {
	var rows []int
	for i := range img {
		if i < len(next) && img[i]&^next[i] != 0 {
			rows = append(rows, i)
		}
	}
	return rows
}

// Equal reports whether both images hold the same words.
func (img Image) Equal(other Image) bool {
	if len(img) != len(other) {
		return false
	}
	for i := range img {
		if img[i] != other[i] {
			return false
		}
	}
	return true
}

// Bytes returns the image as little-endian bytes.
func (img Image) Bytes() []byte {
	return buf.WordBytes(img)
}

// FromBytes parses little-endian bytes into an image.
func FromBytes(b []byte) (Image, error) {
	words, err := buf.Words(b)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", fuse.ErrBadParameter, err)
	}
	return words, nil
}

// String renders the image as one hex row per line.
func (img Image) String() string {
	var sb strings.Builder
	for i, w := range img {
		fmt.Fprintf(&sb, "%4d: %08X\n", i, w)
	}
	return sb.String()
}

// ReadbackError identifies a row whose three reads all disagreed.
type ReadbackError struct {
	Row    int
	Values [3]uint32
}

func (e *ReadbackError) Error() string {
	return fmt.Sprintf("row %d read 0x%08X, 0x%08X, 0x%08X", e.Row, e.Values[0], e.Values[1], e.Values[2])
}

func (e *ReadbackError) Unwrap() error { return fuse.ErrInconsistentReadback }

// Majority returns the value at least two of a, b, c agree on.
func Majority(a, b, c uint32) (uint32, bool) {
	switch {
	case a == b || a == c:
		return a, true
	case b == c:
		return b, true
	default:
		return 0, false
	}
}

// Read senses every row of dev three times and returns the per-row majority.
// The three passes are taken over the whole array rather than per row so
// that each read of a row is separated in time.
func Read(ctx context.Context, dev fuse.Device) (Image, error) {
	rows := dev.Rows()
	var passes [3]Image
	for p := range passes {
		passes[p] = New(rows)
		for r := 0; r < rows; r++ {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			w, err := dev.ReadWord(r)
			if err != nil {
				return nil, fmt.Errorf("read row %d pass %d: %w", r, p, err)
			}
			passes[p][r] = w
		}
	}

	img := New(rows)
	for r := range img {
		v, ok := Majority(passes[0][r], passes[1][r], passes[2][r])
		if !ok {
			return nil, &ReadbackError{Row: r, Values: [3]uint32{passes[0][r], passes[1][r], passes[2][r]}}
		}
		img[r] = v
	}
	return img, nil
}
