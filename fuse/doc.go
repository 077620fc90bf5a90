// Package fuse defines the shared vocabulary of the fusekit engine: the
// immutable fuse array geometry, logical fuse locators, the hardware device
// contract and the error kinds every other package wraps.
//
// # Overview
//
// An OTP fuse array is a fixed number of 32-bit rows. Physically a bit can
// only move from 0 to 1. Logical configuration is layered on top of the
// array in three ways:
//
//   - Row fuses: a bit range inside one row, blown directly.
//   - Chain fuses: a bit range inside a logical chain. Chains are derived by
//     replaying the append-only record stream stored in the record region
//     (see fuse/record, fuse/overlay, fuse/alloc).
//   - Repairs: single-bit override entries in a separate table on later
//     generations (see fuse/repair).
//
// The trailing rows of the record region may hold a boot-time register patch
// stream (see fuse/patch).
//
// # Geometry
//
// Geometry describes one chip generation:
//
//	g := fuse.Geometry{
//	    Variant:      fuse.VariantClassic,
//	    Rows:         4,
//	    RegionStart:  64,
//	    RegionEnd:    128,
//	    ChainIDWidth: 5,
//	    TypeWidth:    3,
//	    AddressWidth: 13,
//	    DataWidth:    11,
//	}
//	if err := g.Validate(); err != nil {
//	    return err
//	}
//
// A record occupies ChainIDWidth+TypeWidth+AddressWidth+DataWidth bits and
// records are packed back to back from RegionStart.
//
// # Errors
//
// Every package wraps one of the sentinel errors declared here:
//
//	if errors.Is(err, fuse.ErrAllocationExhausted) {
//	    // the array is full; the part must be remanufactured
//	}
//
// # Related Packages
//
//   - github.com/joshuapare/fusekit/fuse/commit: physical write protocol
//   - github.com/joshuapare/fusekit/pkg/fusekit: session-level API
package fuse
