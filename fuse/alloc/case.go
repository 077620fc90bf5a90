package alloc

import (
	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/internal/bitcursor"
)

// Case is the overlap classification of a record against a requested range.
// All intervals are closed: a record covers [off, off+DataWidth-1] and the
// range is [lo, hi].
type Case int

const (
	// CaseNone means the record and range do not intersect.
	CaseNone Case = iota

	// CaseLowEdgeInterior means the record starts inside the range:
	// lo < off <= hi. The record may also end inside the range.
	CaseLowEdgeInterior

	// CaseHighEdgeInterior means the record starts at or before lo and ends
	// inside the range: off <= lo <= last < hi.
	CaseHighEdgeInterior

	// CaseRangeInterior means the range lies wholly inside the record:
	// off <= lo and hi <= last.
	CaseRangeInterior
)

func (c Case) String() string {
	switch c {
	case CaseLowEdgeInterior:
		return "low-edge-interior"
	case CaseHighEdgeInterior:
		return "high-edge-interior"
	case CaseRangeInterior:
		return "range-interior"
	default:
		return "none"
	}
}

// overlap describes the intersection of a record with a range.
type overlap struct {
	Case Case
	Lo   int // first shared chain bit
	Hi   int // last shared chain bit
}

// classify intersects record r with chain bits [lo, hi].
func classify(r fuse.Record, lo, hi int) overlap {
	off := int(r.Offset)
	last := r.Last()
	switch {
	case last < lo || off > hi:
		return overlap{Case: CaseNone}
	case off <= lo && hi <= last:
		return overlap{Case: CaseRangeInterior, Lo: lo, Hi: hi}
	case lo < off:
		return overlap{Case: CaseLowEdgeInterior, Lo: off, Hi: min(hi, last)}
	default:
		return overlap{Case: CaseHighEdgeInterior, Lo: lo, Hi: last}
	}
}

// rangeMask returns the overlap as a mask relative to lo.
func (o overlap) rangeMask(lo int) uint64 {
	if o.Case == CaseNone {
		return 0
	}
	return bitcursor.Mask(o.Hi-o.Lo+1) << (o.Lo - lo)
}

// merge returns the record data after writing want (relative to lo) into the
// bits selected by sel (relative to lo). sel must lie inside the overlap.
func merge(r fuse.Record, o overlap, lo int, sel, want uint64) uint64 {
	off := int(r.Offset)
	var recMask, recBits uint64
	switch o.Case {
	case CaseRangeInterior, CaseHighEdgeInterior:
		// Record starts at or before lo: range bit j is record bit j+shift.
		shift := lo - off
		recMask = sel << shift
		recBits = want << shift
	case CaseLowEdgeInterior:
		// Record starts inside the range: range bit j is record bit j-shift.
		shift := off - lo
		recMask = sel >> shift
		recBits = want >> shift
	default:
		return r.Data
	}
	w := bitcursor.Mask(r.DataWidth)
	recMask &= w
	return (r.Data&^recMask | recBits&recMask) & w
}
