// Package journal records commits in an append-only file.
//
// Each entry is a 4-byte little-endian length followed by the entry encoded
// as deterministic CBOR. Entries carry BLAKE3 digests of the array before and
// after the commit, and Prev chains every entry to the digest of the previous
// encoded entry, so truncation in the middle or an edited entry is detected
// by Read.
package journal

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/joshuapare/fusekit/fuse/image"
	"github.com/joshuapare/fusekit/internal/buf"
	"github.com/joshuapare/fusekit/internal/clock"
)

// ErrCorrupt indicates a journal that does not parse or whose chain breaks.
var ErrCorrupt = errors.New("journal: corrupt")

// maxEntry bounds a single encoded entry.
const maxEntry = 1 << 20

// Digest is a BLAKE3-256 hash.
type Digest [32]byte

// DigestImage hashes an image in its little-endian byte form.
func DigestImage(img image.Image) Digest {
	return blake3.Sum256(img.Bytes())
}

// Entry is one journaled commit.
type Entry struct {
	Seq       uint64 `cbor:"seq"`
	UnixNano  int64  `cbor:"time"`
	Geometry  string `cbor:"geometry"`
	Operation string `cbor:"op"`
	Target    string `cbor:"target,omitempty"`
	Attempts  int    `cbor:"attempts"`
	Rows      []int  `cbor:"rows,omitempty"`
	Before    Digest `cbor:"before"`
	After     Digest `cbor:"after"`
	Error     string `cbor:"error,omitempty"`
	Prev      Digest `cbor:"prev"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

// Option configures a Journal.
type Option func(*Journal)

// WithClock sets the timestamp source.
func WithClock(c clock.Clock) Option {
	return func(j *Journal) { j.clock = c }
}

// Journal appends entries to a file. It is safe for concurrent use.
type Journal struct {
	mu    sync.Mutex
	f     *os.File
	clock clock.Clock
	seq   uint64
	prev  Digest
}

// Open opens or creates the journal at path, replaying it to find the chain
// head.
func Open(path string, opts ...Option) (*Journal, error) {
	entries, head, err := readFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, err
	}
	j := &Journal{f: f, clock: clock.Real(), prev: head}
	if n := len(entries); n > 0 {
		j.seq = entries[n-1].Seq
	}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Append stamps e with the next sequence number, time and chain link, and
// writes it. The stamped entry is returned.
func (j *Journal) Append(e Entry) (Entry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	e.Seq = j.seq + 1
	e.UnixNano = j.clock.Now().UnixNano()
	e.Prev = j.prev
	data, err := encMode.Marshal(e)
	if err != nil {
		return Entry{}, fmt.Errorf("encode journal entry: %w", err)
	}
	frame := make([]byte, 4+len(data))
	buf.PutU32LE(frame, uint32(len(data)))
	copy(frame[4:], data)
	if _, err := j.f.Write(frame); err != nil {
		return Entry{}, fmt.Errorf("write journal entry: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return Entry{}, fmt.Errorf("sync journal: %w", err)
	}
	j.seq = e.Seq
	j.prev = blake3.Sum256(data)
	return e, nil
}

// Close closes the file.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.f.Close()
}

// Read returns every entry in the journal at path, verifying the chain.
func Read(path string) ([]Entry, error) {
	entries, _, err := readFile(path)
	return entries, err
}

func readFile(path string) ([]Entry, Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Digest{}, err
	}
	defer f.Close()
	return decode(bufio.NewReader(f))
}

func decode(r io.Reader) ([]Entry, Digest, error) {
	var entries []Entry
	var prev Digest
	var lenBuf [4]byte
	for {
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			if errors.Is(err, io.EOF) {
				return entries, prev, nil
			}
			return nil, Digest{}, fmt.Errorf("%w: truncated length after entry %d", ErrCorrupt, len(entries))
		}
		n := buf.U32LE(lenBuf[:])
		if n == 0 || n > maxEntry {
			return nil, Digest{}, fmt.Errorf("%w: entry %d length %d", ErrCorrupt, len(entries)+1, n)
		}
		data := make([]byte, n)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, Digest{}, fmt.Errorf("%w: truncated entry %d", ErrCorrupt, len(entries)+1)
		}
		var e Entry
		if err := decMode.Unmarshal(data, &e); err != nil {
			return nil, Digest{}, fmt.Errorf("%w: entry %d: %v", ErrCorrupt, len(entries)+1, err)
		}
		if e.Prev != prev || e.Seq != uint64(len(entries))+1 {
			return nil, Digest{}, fmt.Errorf("%w: chain broken at entry %d", ErrCorrupt, len(entries)+1)
		}
		entries = append(entries, e)
		prev = blake3.Sum256(data)
	}
}
