// Package fusekit is the high-level API for programming fuse definitions
// into an OTP array.
//
// A Session binds a parsed definition to a device. It owns the image cache
// for that device: reads are served from the cache and every commit
// invalidates it.
//
// # Reading
//
//	def, err := definition.Load("chip.yaml")
//	dev, err := sim.OpenFile("chip.otp", def.Geometry.Rows)
//	s, err := fusekit.Open(dev, def)
//	v, err := s.ReadLogicalValue(ctx, "secure_boot")
//
// # Committing
//
// CommitProfile applies every value of a profile, plus its boot instruction
// patches, in a single commit. CommitSingleFuse does the same for one fuse.
// Both plan first: chain fuses go through the record allocator, row fuses are
// blown directly (or repaired through the repair table when the geometry has
// one) and patches are merged into the patch tail. The resulting image is
// handed to the commit sequencer, which programs and verifies it.
//
// PlanProfile runs the planning step alone and touches nothing.
//
// # Payloads
//
// Encrypt and Decrypt seal and open key or firmware payloads with AES-XTS.
// See package payload for the container format.
package fusekit
