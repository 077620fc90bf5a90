package commit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/fusekit/fuse"
	"github.com/joshuapare/fusekit/fuse/image"
	"github.com/joshuapare/fusekit/fuse/sim"
	"github.com/joshuapare/fusekit/internal/clock"
)

func testGeometry() fuse.Geometry {
	return fuse.Geometry{
		Rows: 4, RegionStart: 64, RegionEnd: 128,
		ChainIDWidth: 5, TypeWidth: 3, AddressWidth: 13, DataWidth: 11,
		Timing: fuse.Timing{
			PollTimeout:  time.Millisecond,
			PollInterval: 100 * time.Microsecond,
			SettleDelay:  time.Millisecond,
			Attempts:     3,
		},
	}
}

type fixture struct {
	dev   *sim.Device
	cache *image.Cache
	clk   *clock.SteppingClock
	seq   *Sequencer
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	dev, err := sim.New(4, sim.WithBusyCycles(2))
	require.NoError(t, err)
	clk := clock.Stepping(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	cache := image.NewCache(dev)
	opts = append([]Option{WithClock(clk)}, opts...)
	return &fixture{dev: dev, cache: cache, clk: clk, seq: New(testGeometry(), cache, opts...)}
}

func Test_Commit_ProgramsDirtyRowsOnly(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dev.Program([]uint32{0, 0, 0x1}))

	var progress []Progress
	f.seq.progress = func(p Progress) { progress = append(progress, p) }

	res, err := f.seq.Commit(context.Background(), image.Image{0, 0, 0x3, 0x10})
	require.NoError(t, err)

	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, []int{2, 3}, res.Rows)
	assert.Equal(t, image.Image{0, 0, 0x3, 0x10}, res.After)
	assert.Equal(t, image.Image{0, 0, 0x1, 0}, res.Before)
	assert.Empty(t, res.Warnings)
	assert.Equal(t, []sim.Write{{Row: 2, Word: 0x3}, {Row: 3, Word: 0x10}}, f.dev.Writes())
	assert.Len(t, progress, 2)
	assert.Equal(t, Progress{Attempt: 1, Row: 3, RowsDone: 2, RowsTotal: 2}, progress[1])

	stats := f.dev.Stats()
	assert.Equal(t, 1, stats.Latches)
	assert.Equal(t, 2, stats.EnableEdges, "enable raised once and lowered once")
	assert.False(t, f.dev.Enabled())
	assert.True(t, f.cache.Dirty())
	assert.Equal(t, StateDone, f.seq.State())
}

func Test_Commit_StateTrace(t *testing.T) {
	f := newFixture(t)
	_, err := f.seq.Commit(context.Background(), image.Image{0, 0x1, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []State{
		StateIdle, StateSenseEnable, StateSetAddress, StateWrite, StatePollIdle, StateVerify, StateDone,
	}, f.seq.Trace())
}

func Test_Commit_NothingToDo(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dev.Program([]uint32{0x5}))

	res, err := f.seq.Commit(context.Background(), image.Image{0x1, 0, 0, 0})
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
	assert.Empty(t, f.dev.Writes())
	assert.Equal(t, 0, f.dev.Stats().EnableEdges)
	assert.Equal(t, 1, f.dev.Stats().Latches)
}

func Test_Commit_KeepsProgrammedBitsAndWarns(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.dev.Program([]uint32{0x4}))

	res, err := f.seq.Commit(context.Background(), image.Image{0x1, 0, 0, 0})
	require.NoError(t, err)
	require.Len(t, res.Warnings, 1)
	assert.ErrorIs(t, res.Warnings[0], fuse.ErrMonotonic)
	assert.Equal(t, image.Image{0x5, 0, 0, 0}, res.After)
}

func Test_Commit_RetriesOnMismatch(t *testing.T) {
	f := newFixture(t)
	// Bit 1 of row 1 fails to program on the first attempt only.
	f.dev.StickLow(1, 0x2)

	var attempts []int
	f.seq.progress = func(p Progress) {
		attempts = append(attempts, p.Attempt)
		if p.Attempt == 1 {
			f.dev.Unstick()
		}
	}

	res, err := f.seq.Commit(context.Background(), image.Image{0, 0x3, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, []int{1}, res.Rows)
	assert.Equal(t, image.Image{0, 0x3, 0, 0}, res.After)
	assert.Contains(t, f.seq.Trace(), StateRetry)
}

func Test_Commit_ExhaustsAttempts(t *testing.T) {
	f := newFixture(t)
	f.dev.StickLow(0, 0x1)

	_, err := f.seq.Commit(context.Background(), image.Image{0x1, 0, 0, 0})
	require.Error(t, err)
	require.ErrorIs(t, err, fuse.ErrVerificationMismatch)

	var exhausted *ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)

	var mismatch *MismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 0, mismatch.Row)
	assert.Equal(t, uint32(0x1), mismatch.Want)
	assert.Equal(t, uint32(0x0), mismatch.Got)

	assert.Len(t, f.dev.Writes(), 3)
	assert.Equal(t, 0, f.dev.Stats().Latches)
	assert.Equal(t, StateFailed, f.seq.State())
	assert.True(t, f.cache.Dirty())
	assert.False(t, f.dev.Enabled())
}

func Test_Commit_PollTimeout(t *testing.T) {
	f := newFixture(t, WithAttempts(2))
	f.dev.Hang(true)

	_, err := f.seq.Commit(context.Background(), image.Image{0, 0, 0, 0x8})
	require.ErrorIs(t, err, fuse.ErrTimeout)
	var te *TimeoutError
	require.ErrorAs(t, err, &te)
	assert.Equal(t, 3, te.Row)
	assert.Equal(t, 2, te.Attempt)
	assert.GreaterOrEqual(t, f.clk.Slept(), 2*time.Millisecond)
	assert.False(t, f.dev.Enabled())
}

func Test_Commit_InconsistentReadbackIsFatal(t *testing.T) {
	f := newFixture(t)
	// Row 2 senses 0x1, 0x2 and then the stored 0x0.
	f.dev.QueueReads(2, 0x1, 0x2)

	_, err := f.seq.Commit(context.Background(), image.Image{0x1, 0, 0, 0})
	require.ErrorIs(t, err, fuse.ErrInconsistentReadback)
	var rb *image.ReadbackError
	require.ErrorAs(t, err, &rb)
	assert.Equal(t, 2, rb.Row)
	assert.Empty(t, f.dev.Writes())
	assert.NotContains(t, f.seq.Trace(), StateRetry)
	assert.Equal(t, StateFailed, f.seq.State())
}

func Test_Commit_RejectsWrongRowCount(t *testing.T) {
	f := newFixture(t)
	_, err := f.seq.Commit(context.Background(), image.Image{0})
	require.ErrorIs(t, err, fuse.ErrBadParameter)
	assert.Empty(t, f.dev.Writes())
	assert.Equal(t, []State{StateIdle, StateFailed}, f.seq.Trace())
	assert.True(t, f.cache.Dirty())
}

func Test_State_String(t *testing.T) {
	assert.Equal(t, "poll-idle", StatePollIdle.String())
	assert.Equal(t, "unknown", State(99).String())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateVerify.Terminal())
}
