package patch

import (
	"fmt"

	"github.com/joshuapare/fusekit/fuse"
)

// Live is a decoded instruction and the tail row of its header.
type Live struct {
	Instruction
	Row int
}

// Stream is the decoded content of a patch tail.
type Stream struct {
	Start int    // first non-blank row; len(rows) when the tail is blank
	Live  []Live // live instructions in execution order
	Dead  int    // tombstoned rows
}

// Decode parses a patch tail. Leading blank rows are free space; from the
// first non-blank row on, every row is a header, an operand or a tombstone.
func Decode(rows []uint32) (Stream, error) {
	s := Stream{Start: len(rows)}
	for i, r := range rows {
		if r != Blank {
			s.Start = i
			break
		}
	}
	for i := s.Start; i < len(rows); {
		if rows[i] == Tombstone {
			s.Dead++
			i++
			continue
		}
		in, err := decodeAt(rows, i)
		if err != nil {
			return Stream{}, err
		}
		s.Live = append(s.Live, Live{Instruction: in, Row: i})
		i += in.Op.Rows()
	}
	return s, nil
}

// Instructions returns the live instructions in execution order.
func (s Stream) Instructions() []Instruction {
	out := make([]Instruction, len(s.Live))
	for i, l := range s.Live {
		out[i] = l.Instruction
	}
	return out
}

// Encode lays instrs out right-aligned in a tail of n rows.
func Encode(instrs []Instruction, n int) ([]uint32, error) {
	rows := make([]uint32, n)
	plan, err := Merge(rows, instrs)
	if err != nil {
		return nil, err
	}
	return plan.Rows, nil
}

// Plan is the result of a Merge.
type Plan struct {
	Rows       []uint32 // the merged tail; a superset of the input rows
	Retained   int      // instructions reused in place
	Written    []int    // rows newly programmed with instruction content
	Tombstoned []int    // rows killed
}

// Changed reports whether the plan alters the tail.
func (p Plan) Changed() bool {
	return len(p.Written) > 0 || len(p.Tombstoned) > 0
}

// Merge computes the tail that executes exactly desired, starting from rows.
//
// The longest suffix of desired that appears in order among the live
// instructions is kept in place. Every other live instruction is tombstoned.
// The remaining prefix of desired is written into the blank rows directly
// before the first non-blank row, so it runs before the kept suffix.
func Merge(rows []uint32, desired []Instruction) (Plan, error) {
	for i, in := range desired {
		if err := in.Validate(); err != nil {
			return Plan{}, fmt.Errorf("instruction %d: %w", i, err)
		}
	}
	stream, err := Decode(rows)
	if err != nil {
		return Plan{}, err
	}

	// Match desired against live instructions from the end.
	keep := make([]bool, len(stream.Live))
	d := len(desired) - 1
	for j := len(stream.Live) - 1; j >= 0 && d >= 0; j-- {
		if stream.Live[j].Instruction == desired[d] {
			keep[j] = true
			d--
		}
	}
	fresh := desired[:d+1]

	var encoded []uint32
	for _, in := range fresh {
		r, err := in.Encode()
		if err != nil {
			return Plan{}, err
		}
		encoded = append(encoded, r...)
	}
	if len(encoded) > stream.Start {
		return Plan{}, fmt.Errorf("%w: %d patch rows needed, %d blank", fuse.ErrAllocationExhausted, len(encoded), stream.Start)
	}

	plan := Plan{
		Rows:     append([]uint32(nil), rows...),
		Retained: len(desired) - len(fresh),
	}
	for j, l := range stream.Live {
		if keep[j] {
			continue
		}
		for k := 0; k < l.Op.Rows(); k++ {
			plan.Rows[l.Row+k] = Tombstone
			plan.Tombstoned = append(plan.Tombstoned, l.Row+k)
		}
	}
	base := stream.Start - len(encoded)
	for k, w := range encoded {
		plan.Rows[base+k] = w
		plan.Written = append(plan.Written, base+k)
	}
	return plan, nil
}
