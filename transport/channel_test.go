package transport_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fitroom/fitroom-client/transport"
	rtlocal "github.com/fitroom/fitroom-client/transport/local"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestClient() (*transport.Client, transport.Wire) {
	wire := transport.WrapLocal(rtlocal.NewWire(64))
	return transport.NewClient(wire, 64, zap.NewNop()), wire
}

// nextEvent pulls events until one of the wanted kind arrives.
func nextEvent(t *testing.T, ch *transport.Channel, kind transport.EventKind) transport.Event {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev, ok := <-ch.Events():
			require.True(t, ok, "event stream closed waiting for %s", kind)
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s event", kind)
		}
	}
}

func TestChannel_SubscribeEmitsStatusAndSync(t *testing.T) {
	c, _ := newTestClient()
	ch, err := c.Open(context.Background(), "room:1")
	require.NoError(t, err)
	defer ch.Close()

	ev := nextEvent(t, ch, transport.EventStatus)
	assert.Equal(t, transport.StatusSubscribed, ev.Status)

	sync := nextEvent(t, ch, transport.EventSync)
	assert.Empty(t, sync.Roster)
}

func TestChannel_RowDeltasDelivered(t *testing.T) {
	c, _ := newTestClient()
	ch, err := c.Open(context.Background(), "edges:user-1")
	require.NoError(t, err)
	defer ch.Close()
	nextEvent(t, ch, transport.EventSync) // wait until live

	type row struct {
		OwnerID string `json:"owner_id"`
	}
	require.NoError(t, c.PublishChange(context.Background(), "edges:user-1", transport.EventUpdate, row{OwnerID: "user-2"}))

	ev := nextEvent(t, ch, transport.EventUpdate)
	var got row
	require.NoError(t, json.Unmarshal(ev.Row, &got))
	assert.Equal(t, "user-2", got.OwnerID)
}

func TestChannel_TrackBroadcastsJoinAndRegisters(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	a, err := c.Open(ctx, "room:1")
	require.NoError(t, err)
	defer a.Close()
	b, err := c.Open(ctx, "room:1")
	require.NoError(t, err)
	defer b.Close()
	nextEvent(t, a, transport.EventSync)
	nextEvent(t, b, transport.EventSync)

	require.NoError(t, a.Track(ctx, "user-a", map[string]string{"status": "online"}))

	join := nextEvent(t, b, transport.EventJoin)
	assert.Equal(t, "user-a", join.Key)

	roster, err := b.PresenceState(ctx)
	require.NoError(t, err)
	assert.Contains(t, roster, "user-a")
}

func TestChannel_UntrackBroadcastsLeave(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()

	a, err := c.Open(ctx, "room:1")
	require.NoError(t, err)
	defer a.Close()
	b, err := c.Open(ctx, "room:1")
	require.NoError(t, err)
	defer b.Close()
	nextEvent(t, b, transport.EventSync)

	require.NoError(t, a.Track(ctx, "user-a", map[string]string{"status": "online"}))
	nextEvent(t, b, transport.EventJoin)

	require.NoError(t, a.Untrack(ctx))
	leave := nextEvent(t, b, transport.EventLeave)
	assert.Equal(t, "user-a", leave.Key)

	roster, err := b.PresenceState(ctx)
	require.NoError(t, err)
	assert.NotContains(t, roster, "user-a")
}

func TestChannel_UntrackWithoutTrackIsNoop(t *testing.T) {
	c, _ := newTestClient()
	ch, err := c.Open(context.Background(), "room:1")
	require.NoError(t, err)
	defer ch.Close()
	require.NoError(t, ch.Untrack(context.Background()))
}

func TestChannel_ResyncEmitsRoster(t *testing.T) {
	c, _ := newTestClient()
	ctx := context.Background()
	ch, err := c.Open(ctx, "room:1")
	require.NoError(t, err)
	defer ch.Close()
	nextEvent(t, ch, transport.EventSync)

	require.NoError(t, ch.Track(ctx, "user-a", map[string]string{"status": "online"}))
	require.NoError(t, ch.Resync(ctx))

	sync := nextEvent(t, ch, transport.EventSync)
	assert.Contains(t, sync.Roster, "user-a")
}

func TestChannel_CloseEndsStream(t *testing.T) {
	c, _ := newTestClient()
	ch, err := c.Open(context.Background(), "room:1")
	require.NoError(t, err)
	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close()) // idempotent

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-ch.Events():
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("event stream not closed")
		}
	}
}
