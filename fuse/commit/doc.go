// Package commit drives the physical OTP write protocol.
//
// A Sequencer takes a requested image and makes the hardware hold at least
// those bits. Each attempt runs the full protocol:
//  1. Re-read the array (three passes, per-row majority)
//  2. rowsToBlow = current | requested
//  3. For every row that changes: raise programming enable once, write the
//     row, poll until the program cycle ends or Timing.PollTimeout expires
//  4. Lower enable, wait Timing.SettleDelay, re-read with majority vote
//  5. Compare the readback to rowsToBlow
//
// A timeout or a readback mismatch restarts the whole sequence, up to
// Timing.Attempts times, with rowsToBlow derived fresh each time. A row whose
// three reads all disagree fails the commit at once. On success the latch is
// pulsed. The image cache is invalidated after every commit, successful or not.
//
// Sequencers are single-writer and NOT thread-safe.
package commit
