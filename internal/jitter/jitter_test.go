package jitter

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReorderedPacketsPlayInSequence(t *testing.T) {
	t.Parallel()
	b := New()
	base := time.Now()

	// Feed seqs [0,2,1,3] spaced 20ms apart, per §8 scenario 4.
	seqs := []uint32{0, 2, 1, 3}
	for i, seq := range seqs {
		b.Insert(Frame{Seq: seq, Payload: []byte{byte(seq)}}, base.Add(time.Duration(i)*DefaultFramePeriod))
	}

	for expected := uint32(0); expected <= 3; expected++ {
		res := b.Playout()
		require.Equal(t, ConcealmentNone, res.Concealment, "seq %d should have been a real frame, not concealment", expected)
		assert.Equal(t, expected, res.Frame.Seq)
	}
}

func TestLatePacketIsDroppedSilently(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()

	b.Insert(Frame{Seq: 0}, now)
	_ = b.Playout() // advances playoutSeq to 1

	// A packet for seq 0 arriving after it already played is late.
	b.Insert(Frame{Seq: 0}, now.Add(DefaultFramePeriod))

	res := b.Playout()
	assert.NotEqual(t, uint32(0), res.Frame.Seq)
}

func TestMissCountDrivesConcealmentMode(t *testing.T) {
	t.Parallel()
	b := New()
	now := time.Now()
	b.Insert(Frame{Seq: 0, Payload: []byte("a")}, now)
	_ = b.Playout() // real frame, seq 0

	// seq 1 never arrives: first miss -> replay.
	res := b.Playout()
	assert.Equal(t, ConcealmentReplay, res.Concealment)

	// seq 2, 3 still missing: comfort noise.
	res = b.Playout()
	assert.Equal(t, ConcealmentComfortNoise, res.Concealment)
	res = b.Playout()
	assert.Equal(t, ConcealmentComfortNoise, res.Concealment)

	// seq 4 missing: silence + discontinuity.
	res = b.Playout()
	assert.Equal(t, ConcealmentSilence, res.Concealment)
	assert.True(t, res.Discontinuity)
}

func TestInsertAtCapacityEvictsOldestUnplayed(t *testing.T) {
	t.Parallel()
	b := NewWithConfig(DefaultFramePeriod, 2, DefaultBaseDelay, DefaultMaxDelay)
	now := time.Now()

	b.Insert(Frame{Seq: 0}, now)
	b.Insert(Frame{Seq: 1}, now)
	// Window is full (size 2); a third distinct seq should evict oldest (0).
	b.Insert(Frame{Seq: 2}, now)

	res := b.Playout()
	// seq 0 was evicted, so playing it out is a miss (concealment), not a
	// real frame.
	assert.NotEqual(t, ConcealmentNone, res.Concealment)
}

func TestResetClearsBufferedState(t *testing.T) {
	t.Parallel()
	b := New()
	b.Insert(Frame{Seq: 5}, time.Now())
	b.Reset()

	res := b.Playout()
	// After reset, nothing is initialized/buffered, so the first playout
	// is a miss.
	assert.NotEqual(t, ConcealmentNone, res.Concealment)
}

func TestTargetDelayWidensUnderJitter(t *testing.T) {
	t.Parallel()
	b := New()
	base := time.Now()
	stableDelay := b.TargetDelay()

	// Feed highly irregular arrivals to push the jitter EWMA up.
	interval := DefaultFramePeriod
	arrival := base
	for i := uint32(0); i < 20; i++ {
		jitterSpike := time.Duration(i%2) * 5 * interval
		arrival = arrival.Add(interval + jitterSpike)
		b.Insert(Frame{Seq: i}, arrival)
	}

	widened := b.TargetDelay()
	assert.GreaterOrEqual(t, widened, stableDelay)
}
