package netmon_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/fitroom/fitroom-client/netmon"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestMonitor_DefaultsOnline(t *testing.T) {
	m := netmon.NewMonitor(nil, zap.NewNop())
	assert.True(t, m.IsOnline(), "no probe must fail safe to online")
}

func TestMonitor_SetOnlineTransitions(t *testing.T) {
	m := netmon.NewMonitor(nil, zap.NewNop())

	ch, cancel := m.Subscribe()
	defer cancel()

	m.SetOnline(false)
	select {
	case v := <-ch:
		assert.False(t, v)
	case <-time.After(time.Second):
		t.Fatal("no transition delivered")
	}
	assert.False(t, m.IsOnline())

	// Same state again must not notify.
	m.SetOnline(false)
	select {
	case <-ch:
		t.Fatal("duplicate transition delivered")
	case <-time.After(50 * time.Millisecond):
	}

	m.SetOnline(true)
	select {
	case v := <-ch:
		assert.True(t, v)
	case <-time.After(time.Second):
		t.Fatal("no transition delivered")
	}
}

func TestMonitor_ProbeDrivesState(t *testing.T) {
	var fail bool
	probe := func(ctx context.Context) error {
		if fail {
			return errors.New("unreachable")
		}
		return nil
	}
	m := netmon.NewMonitor(probe, zap.NewNop())
	m.Start(10*time.Millisecond, time.Second)
	defer m.Stop()

	ch, cancel := m.Subscribe()
	defer cancel()

	fail = true
	select {
	case v := <-ch:
		require.False(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("probe failure not observed")
	}

	fail = false
	select {
	case v := <-ch:
		require.True(t, v)
	case <-time.After(2 * time.Second):
		t.Fatal("probe recovery not observed")
	}
}

func TestMonitor_CancelSubscription(t *testing.T) {
	m := netmon.NewMonitor(nil, zap.NewNop())
	ch, cancel := m.Subscribe()
	cancel()
	_, open := <-ch
	assert.False(t, open, "cancelled subscription channel must be closed")
	// A transition after cancel must not panic.
	m.SetOnline(false)
}
