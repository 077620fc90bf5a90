// Package patch encodes the boot instruction stream kept in the patch tail
// of the record region.
//
// The boot ROM executes the stream in row order after loading fuse records.
// Each instruction starts with a header row whose top two bits carry the
// opcode, followed by operand rows:
//
//	OpWrite     header(addr)            value          reg = value
//	OpModify    header(addr)  and-mask  or-mask        reg = reg&and | or
//	OpSetField  header(base,lsb,width,offset)  value   reg field = value
//
// A row of 0 is blank and a row of all ones is a tombstone. Since bits only
// move 0 to 1, instructions are never rewritten: Merge tombstones what it
// cannot reuse and places new instructions in the blank rows ahead of the
// live stream.
package patch

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

// Opcode selects the instruction format.
type Opcode uint32

const (
	OpWrite    Opcode = 1
	OpModify   Opcode = 2
	OpSetField Opcode = 3
)

const (
	opShift = 30
	// Tombstone marks a dead row.
	Tombstone uint32 = 0xFFFFFFFF
	// Blank is a never-written row.
	Blank uint32 = 0

	addrMask = 1<<opShift - 1

	// MaxBase is the largest SetField base id. 15 is reserved so a header
	// can never read as a tombstone.
	MaxBase = 14
)

func (op Opcode) String() string {
	switch op {
	case OpWrite:
		return "write"
	case OpModify:
		return "modify"
	case OpSetField:
		return "set-field"
	default:
		return fmt.Sprintf("opcode(%d)", uint32(op))
	}
}

// ParseOpcode parses an opcode name.
func ParseOpcode(s string) (Opcode, error) {
	for _, op := range []Opcode{OpWrite, OpModify, OpSetField} {
		if op.String() == s {
			return op, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown patch opcode %q", fuse.ErrBadParameter, s)
}

// Rows returns the number of rows an instruction of op occupies.
func (op Opcode) Rows() int {
	if op == OpModify {
		return 3
	}
	return 2
}

// Instruction is one decoded patch instruction. Only the fields of its
// opcode are meaningful; the rest must be zero so instructions compare with ==.
type Instruction struct {
	Op Opcode

	// OpWrite, OpModify: register word address (30 bits).
	Address uint32

	// OpModify masks.
	And uint32
	Or  uint32

	// OpSetField: register at bases[Base]+Offset, field [LSB, LSB+Width).
	Base   int
	LSB    int
	Width  int
	Offset uint16

	// OpWrite and OpSetField value.
	Value uint32
}

// Validate checks field ranges.
func (in Instruction) Validate() error {
	switch in.Op {
	case OpWrite, OpModify:
		if in.Address > addrMask {
			return fmt.Errorf("%w: %s address 0x%X exceeds 30 bits", fuse.ErrOutOfRange, in.Op, in.Address)
		}
	case OpSetField:
		if in.Base < 0 || in.Base > MaxBase {
			return fmt.Errorf("%w: set-field base %d outside 0..%d", fuse.ErrOutOfRange, in.Base, MaxBase)
		}
		if in.LSB < 0 || in.LSB > 31 || in.Width < 1 || in.LSB+in.Width > 32 {
			return fmt.Errorf("%w: set-field bits [%d,+%d) outside a word", fuse.ErrOutOfRange, in.LSB, in.Width)
		}
		if in.Width < 32 && in.Value>>in.Width != 0 {
			return fmt.Errorf("%w: set-field value 0x%X wider than %d bits", fuse.ErrOutOfRange, in.Value, in.Width)
		}
	default:
		return fmt.Errorf("%w: unknown opcode %d", fuse.ErrBadParameter, uint32(in.Op))
	}
	return nil
}

func (in Instruction) String() string {
	switch in.Op {
	case OpWrite:
		return fmt.Sprintf("write [0x%X] = 0x%08X", in.Address, in.Value)
	case OpModify:
		return fmt.Sprintf("modify [0x%X] &= 0x%08X |= 0x%08X", in.Address, in.And, in.Or)
	case OpSetField:
		return fmt.Sprintf("set-field base%d+0x%X [%d:%d] = 0x%X", in.Base, in.Offset, in.LSB+in.Width-1, in.LSB, in.Value)
	default:
		return in.Op.String()
	}
}

// Encode returns the instruction's rows.
func (in Instruction) Encode() ([]uint32, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}
	head := uint32(in.Op) << opShift
	switch in.Op {
	case OpWrite:
		return []uint32{head | in.Address, in.Value}, nil
	case OpModify:
		return []uint32{head | in.Address, in.And, in.Or}, nil
	default:
		head |= uint32(in.Base)<<26 | uint32(in.LSB)<<21 | uint32(in.Width-1)<<16 | uint32(in.Offset)
		return []uint32{head, in.Value}, nil
	}
}

// decodeAt parses the instruction whose header is rows[i].
func decodeAt(rows []uint32, i int) (Instruction, error) {
	head := rows[i]
	op := Opcode(head >> opShift)
	if op == 0 {
		return Instruction{}, fmt.Errorf("%w: row %d has no opcode", fuse.ErrBadParameter, i)
	}
	if i+op.Rows() > len(rows) {
		return Instruction{}, fmt.Errorf("%w: %s at row %d runs past the tail", fuse.ErrBadParameter, op, i)
	}
	in := Instruction{Op: op}
	switch op {
	case OpWrite:
		in.Address = head & addrMask
		in.Value = rows[i+1]
	case OpModify:
		in.Address = head & addrMask
		in.And = rows[i+1]
		in.Or = rows[i+2]
	case OpSetField:
		in.Base = int(head >> 26 & 0xF)
		in.LSB = int(head >> 21 & 0x1F)
		in.Width = int(head>>16&0x1F) + 1
		in.Offset = uint16(head)
		in.Value = rows[i+1]
		if in.Base > MaxBase {
			return Instruction{}, fmt.Errorf("%w: set-field base %d at row %d", fuse.ErrBadParameter, in.Base, i)
		}
	}
	return in, nil
}

// Exec runs instrs against mem. bases resolves SetField base ids.
func Exec(instrs []Instruction, mem map[uint32]uint32, bases []uint32) error {
	for _, in := range instrs {
		switch in.Op {
		case OpWrite:
			mem[in.Address] = in.Value
		case OpModify:
			mem[in.Address] = mem[in.Address]&in.And | in.Or
		case OpSetField:
			if in.Base >= len(bases) {
				return fmt.Errorf("%w: set-field base %d undefined", fuse.ErrBadParameter, in.Base)
			}
			addr := bases[in.Base] + uint32(in.Offset)
			mask := (uint32(1)<<in.Width - 1) << in.LSB
			mem[addr] = mem[addr]&^mask | in.Value<<in.LSB&mask
		default:
			return fmt.Errorf("%w: unknown opcode %d", fuse.ErrBadParameter, uint32(in.Op))
		}
	}
	return nil
}
