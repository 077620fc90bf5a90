package fuse

import "fmt"

// Record is one slot of the record stream.
type Record struct {
	ChainID    uint64
	Type       uint64
	Offset     uint64
	Data       uint64
	DataWidth  int
	TotalWidth int
}

// IsEmpty reports whether the slot has never been written.
func (r Record) IsEmpty() bool { return r.ChainID == 0 && r.Type == 0 && r.Offset == 0 && r.Data == 0 }

// IsReplace reports whether the record is a live replace record.
func (r Record) IsReplace(g Geometry) bool {
	return r.ChainID != 0 && r.ChainID != g.TombstoneChain() && r.Type == TypeReplace
}

// Covers reports whether chain bit lies inside the record's data field.
func (r Record) Covers(chain uint64, bit int) bool {
	return r.ChainID == chain && uint64(bit) >= r.Offset && uint64(bit) < r.Offset+uint64(r.DataWidth)
}

// Last returns the highest chain bit the record writes.
func (r Record) Last() int {
	return int(r.Offset) + r.DataWidth - 1
}

func (r Record) String() string {
	return fmt.Sprintf("{chain=%d type=%d off=%d data=0x%X}", r.ChainID, r.Type, r.Offset, r.Data)
}
