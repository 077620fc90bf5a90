// Package overlay replays the record stream to derive logical chain values.
//
// A chain's value is never stored. It is the fold of every live replace
// record in scan order, where a later record overrides an earlier one on each
// bit it covers. Bits no record covers read 0.
package overlay

import (
	"fmt"
	"sort"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

type bitKey struct {
	chain uint64
	bit   int
}

// Overlay is the sparse (chain, bit) -> value map produced by Rebuild.
//
// NOT thread-safe. The owning record store rebuilds it after each mutation.
type Overlay struct {
	geo  fuse.Geometry
	bits map[bitKey]bool
	// owner maps each covered bit to the index of the newest record covering it.
	owner map[bitKey]int
}

// New returns an empty overlay for the geometry.
func New(g fuse.Geometry) *Overlay {
	return &Overlay{
		geo:   g,
		bits:  make(map[bitKey]bool),
		owner: make(map[bitKey]int),
	}
}

// Rebuild replays records in store order. Non-replace records are ignored.
func (o *Overlay) Rebuild(records []fuse.Record) {
	clear(o.bits)
	clear(o.owner)
	for i, r := range records {
		if !r.IsReplace(o.geo) {
			continue
		}
		for b := 0; b < r.DataWidth; b++ {
			k := bitKey{chain: r.ChainID, bit: int(r.Offset) + b}
			o.bits[k] = r.Data>>b&1 == 1
			o.owner[k] = i
		}
	}
}

// Bit returns the current value of one chain bit.
func (o *Overlay) Bit(chain uint64, bit int) bool {
	return o.bits[bitKey{chain: chain, bit: bit}]
}

// Owner returns the index of the newest record covering the bit, or -1.
func (o *Overlay) Owner(chain uint64, bit int) int {
	if i, ok := o.owner[bitKey{chain: chain, bit: bit}]; ok {
		return i
	}
	return -1
}

// Read folds chain bits [lsb, msb] into a value, lsb first.
func (o *Overlay) Read(chain uint64, msb, lsb int) (uint64, error) {
	if lsb < 0 || msb < lsb || msb-lsb >= 64 {
		return 0, fmt.Errorf("%w: chain range [%d:%d]", fuse.ErrBadParameter, msb, lsb)
	}
	var v uint64
	for b := lsb; b <= msb; b++ {
		if o.Bit(chain, b) {
			v |= 1 << (b - lsb)
		}
	}
	return v, nil
}

// Block returns the current value of the width-bit block starting at offset.
func (o *Overlay) Block(chain uint64, offset uint64, width int) uint64 {
	v, _ := o.Read(chain, int(offset)+width-1, int(offset))
	return v & bitcursor.Mask(width)
}

// Chains returns the ids of every chain with at least one covered bit, sorted.
func (o *Overlay) Chains() []uint64 {
	seen := make(map[uint64]struct{})
	for k := range o.bits {
		seen[k.chain] = struct{}{}
	}
	out := make([]uint64, 0, len(seen))
	for c := range seen {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of covered bits.
func (o *Overlay) Len() int {
	return len(o.bits)
}
