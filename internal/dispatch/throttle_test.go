package dispatch

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// waitTimers blocks until n timers are pending on c.
func waitTimers(t *testing.T, c *clockwork.FakeClock, n int) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, c.BlockUntilContext(ctx, n))
}

func TestThrottleLeadingAndTrailing(t *testing.T) {
	c := clockwork.NewFakeClockAt(time.Unix(100, 0))
	var calls atomic.Int32
	th := NewThrottle(c, 2*time.Second, func() { calls.Add(1) })

	th.Trigger()
	assert.EqualValues(t, 1, calls.Load(), "leading call is synchronous")

	c.Advance(500 * time.Millisecond)
	th.Trigger()
	th.Trigger()
	assert.EqualValues(t, 1, calls.Load())
	waitTimers(t, c, 1)

	c.Advance(1500 * time.Millisecond)
	require.Eventually(t, func() bool { return calls.Load() == 2 }, 2*time.Second, time.Millisecond)

	c.Advance(3 * time.Second)
	th.Trigger()
	assert.EqualValues(t, 3, calls.Load())
}

func TestThrottleAtMostOncePerInterval(t *testing.T) {
	c := clockwork.NewFakeClockAt(time.Unix(0, 0))
	var calls atomic.Int32
	th := NewThrottle(c, 2*time.Second, func() { calls.Add(1) })

	// 10s of continuous triggering allows the leading call plus one per
	// elapsed interval.
	for rep := 0; rep < 40; rep++ {
		th.Trigger()
		c.Advance(250 * time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	assert.GreaterOrEqual(t, calls.Load(), int32(2))
	assert.LessOrEqual(t, calls.Load(), int32(6))
}

func TestThrottleStop(t *testing.T) {
	c := clockwork.NewFakeClockAt(time.Unix(0, 0))
	var calls atomic.Int32
	th := NewThrottle(c, time.Second, func() { calls.Add(1) })
	th.Trigger()
	th.Trigger()
	waitTimers(t, c, 1)
	th.Stop()
	c.Advance(5 * time.Second)
	th.Trigger()
	time.Sleep(20 * time.Millisecond)
	assert.EqualValues(t, 1, calls.Load())
}
