package repair

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

// Entry field positions, LSB first.
const (
	enableBit   = 0
	valueBit    = 1
	addressLSB  = 2
	disableBit  = addressLSB + fuse.RepairAddressBits
	addressMask = 1<<fuse.RepairAddressBits - 1
)

// Entry is one decoded repair instruction.
type Entry struct {
	Enable  bool
	Value   bool
	Address int // absolute array bit
	Disable bool
}

// Active reports whether the entry currently overrides its bit.
func (e Entry) Active() bool { return e.Enable && !e.Disable }

// Blank reports whether the slot was never written.
func (e Entry) Blank() bool {
	return !e.Enable && !e.Value && e.Address == 0 && !e.Disable
}

// Encode returns the 16-bit raw form.
func (e Entry) Encode() uint64 {
	var raw uint64
	if e.Enable {
		raw |= 1 << enableBit
	}
	if e.Value {
		raw |= 1 << valueBit
	}
	raw |= uint64(e.Address&addressMask) << addressLSB
	if e.Disable {
		raw |= 1 << disableBit
	}
	return raw
}

// DecodeEntry parses a 16-bit raw entry.
func DecodeEntry(raw uint64) Entry {
	return Entry{
		Enable:  raw>>enableBit&1 == 1,
		Value:   raw>>valueBit&1 == 1,
		Address: int(raw >> addressLSB & addressMask),
		Disable: raw>>disableBit&1 == 1,
	}
}

func (e Entry) String() string {
	state := "blank"
	switch {
	case e.Disable:
		state = "disabled"
	case e.Enable:
		state = "active"
	}
	v := 0
	if e.Value {
		v = 1
	}
	return fmt.Sprintf("bit %d = %d (%s)", e.Address, v, state)
}
