// Package alloc decides how a logical fuse change is realized in the record
// stream.
//
// # Overview
//
// A chain fuse is one or more chain bit ranges (locators). The allocator
// consumes the requested value LSB-first across the locators, splits each
// locator into sub-ranges no wider than one record's data field, and for
// each sub-range:
//
//  1. Skips it if the chain already reads the requested bits.
//  2. Walks replace records newest to oldest. Every record overlapping the
//     still-unresolved bits is classified as one of three interval cases
//     (see Case) and the merged record value is computed.
//  3. If the merge would clear a bit the record has set, the record is left
//     alone and a new record is appended at the same chain and offset. Being
//     younger, it wins the hardware scan.
//  4. Otherwise the record's data is edited in place (bits only ever set).
//  5. Bits no record covers are placed in new records at their canonical,
//     data-width-aligned block, spilling into the next block when needed.
//
// The store rebuilds its chain overlay after every edit and append, so each
// step sees the effect of the previous one.
//
// # Usage
//
//	store, err := record.Load(words, geometry)
//	if err != nil {
//	    return err
//	}
//	a := alloc.New(store)
//	if err := a.Apply(fuseLocators, 0xA); err != nil {
//	    return err
//	}
//	for _, step := range a.Plan() {
//	    fmt.Println(step)
//	}
//
// # Thread Safety
//
// An Allocator shares its store and is not thread-safe.
package alloc
