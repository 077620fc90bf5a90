// Package image holds the last-known state of the OTP array and the
// majority-vote reconciliation used whenever it is read from hardware.
//
// # Overview
//
// An Image is one uint32 per row. Reads near the programming threshold can
// flip, so every hardware read takes three passes and keeps the per-row
// majority; three distinct values for a row is fuse.ErrInconsistentReadback.
//
// # Cache Lifetime
//
// A Cache is created per session and owns the cached Image. It starts
// dirty, refreshes lazily on Get and is invalidated by the commit sequencer
// after every commit attempt, successful or not:
//
//	c := image.NewCache(dev)
//	img, err := c.Get(ctx) // three hardware passes
//	img, err = c.Get(ctx)  // served from memory
//	c.Invalidate()         // next Get reads hardware again
//
// # Dirty Rows
//
// Tracker computes the rows a requested image would change and coalesces
// them into contiguous row ranges for logging and journaling.
//
// # Thread Safety
//
// Cache is safe for concurrent use; concurrent refreshes collapse into one
// hardware pass. Image and Tracker are not.
package image
