package scheduler

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newScheduler(t *testing.T) *Scheduler {
	t.Helper()
	s := New(zap.NewNop())
	t.Cleanup(s.Stop)
	return s
}

// settled waits until a counter stops moving, then returns its value.
func settled(c *atomic.Int32) int32 {
	for {
		v := c.Load()
		time.Sleep(60 * time.Millisecond)
		if c.Load() == v {
			return v
		}
	}
}

func TestScheduler_TickerFires(t *testing.T) {
	s := newScheduler(t)

	var ticks atomic.Int32
	s.AddTicker("client:autosync", 15*time.Millisecond, func() { ticks.Add(1) })

	require.Eventually(t, func() bool { return ticks.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
}

func TestScheduler_ReArmingReplacesSchedule(t *testing.T) {
	s := newScheduler(t)

	var old, fresh atomic.Int32
	s.AddTicker("presence:heartbeat", 15*time.Millisecond, func() { old.Add(1) })
	require.Eventually(t, func() bool { return old.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	// Joining a new room re-arms the same name.
	s.AddTicker("presence:heartbeat", 15*time.Millisecond, func() { fresh.Add(1) })

	stale := settled(&old)
	require.Eventually(t, func() bool { return fresh.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, stale, old.Load(), "replaced ticker must stop for good")
}

func TestScheduler_DelayFiresExactlyOnce(t *testing.T) {
	s := newScheduler(t)

	var runs atomic.Int32
	s.AddDelay("retry", 20*time.Millisecond, func() { runs.Add(1) })

	require.Eventually(t, func() bool { return runs.Load() == 1 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(1), settled(&runs))
	assert.NotContains(t, s.ListTickers(), "retry", "a fired delay leaves no task behind")
}

func TestScheduler_ReArmedDelaySupersedesOld(t *testing.T) {
	s := newScheduler(t)

	var got atomic.Int32
	s.AddDelay("retry", time.Hour, func() { got.Store(1) })
	s.AddDelay("retry", 20*time.Millisecond, func() { got.Store(2) })

	require.Eventually(t, func() bool { return got.Load() != 0 },
		2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(2), got.Load(), "only the re-armed delay may run")
}

func TestScheduler_RemoveStopsTicker(t *testing.T) {
	s := newScheduler(t)

	var ticks atomic.Int32
	s.AddTicker("client:autosync", 15*time.Millisecond, func() { ticks.Add(1) })
	require.Eventually(t, func() bool { return ticks.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	s.Remove("client:autosync")
	stale := settled(&ticks)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, stale, ticks.Load())
	assert.Empty(t, s.ListTickers())
}

func TestScheduler_RemoveCancelsPendingDelay(t *testing.T) {
	s := newScheduler(t)

	var runs atomic.Int32
	s.AddDelay("retry", 50*time.Millisecond, func() { runs.Add(1) })
	s.Remove("retry")

	time.Sleep(120 * time.Millisecond)
	assert.Zero(t, runs.Load())
}

func TestScheduler_RemoveUnknownName(t *testing.T) {
	s := newScheduler(t)
	s.Remove("never-registered")
}

func TestScheduler_StopHaltsEverything(t *testing.T) {
	s := New(zap.NewNop())

	var a, b atomic.Int32
	s.AddTicker("client:autosync", 15*time.Millisecond, func() { a.Add(1) })
	s.AddTicker("presence:heartbeat", 15*time.Millisecond, func() { b.Add(1) })
	require.Eventually(t, func() bool { return a.Load() >= 1 && b.Load() >= 1 },
		2*time.Second, 10*time.Millisecond)

	s.Stop()
	s.Stop() // idempotent

	staleA, staleB := settled(&a), settled(&b)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, staleA, a.Load())
	assert.Equal(t, staleB, b.Load())
	assert.Empty(t, s.ListTickers())
}

func TestScheduler_ListTickersExcludesDelays(t *testing.T) {
	s := newScheduler(t)

	s.AddTicker("client:autosync", time.Hour, func() {})
	s.AddTicker("presence:heartbeat", time.Hour, func() {})
	s.AddDelay("retry", time.Hour, func() {})

	names := s.ListTickers()
	assert.ElementsMatch(t, []string{"client:autosync", "presence:heartbeat"}, names)
}

func TestScheduler_PanicDoesNotKillTicker(t *testing.T) {
	s := newScheduler(t)

	var ticks atomic.Int32
	s.AddTicker("client:autosync", 15*time.Millisecond, func() {
		ticks.Add(1)
		panic("sync blew up")
	})

	// Ticks keep arriving after the first panic.
	require.Eventually(t, func() bool { return ticks.Load() >= 3 },
		2*time.Second, 10*time.Millisecond)
}
