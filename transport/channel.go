package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Client opens typed realtime channels over a Wire. It is the
// client-side counterpart of the backend's realtime hub: deltas are
// delivered at-least-once while subscribed, with per-row ordering only.
type Client struct {
	wire    Wire
	bufSize int
	logger  *zap.Logger
}

// NewClient creates a realtime Client over the given wire.
func NewClient(wire Wire, bufSize int, logger *zap.Logger) *Client {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Client{wire: wire, bufSize: bufSize, logger: logger}
}

// Open subscribes to a topic and returns a live Channel. The first
// events delivered are a SUBSCRIBED status followed by a full presence
// sync snapshot.
func (c *Client) Open(ctx context.Context, topic string) (*Channel, error) {
	ch := &Channel{
		topic:   topic,
		wire:    c.wire,
		events:  make(chan Event, c.bufSize),
		closeCh: make(chan struct{}),
		logger:  c.logger,
	}
	msgs, cancel, err := c.wire.Subscribe(ctx, topic)
	if err != nil {
		return nil, fmt.Errorf("transport: subscribe %s: %w", topic, err)
	}
	ch.setCancel(cancel)
	go ch.run(msgs)
	return ch, nil
}

// PublishChange broadcasts a row delta on a topic. Used by local
// producers (tests, in-process demo); the reference backend emits the
// same frames from its hub.
func (c *Client) PublishChange(ctx context.Context, topic string, kind EventKind, row any) error {
	raw, err := json.Marshal(row)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(frame{Kind: kind, Row: raw})
	if err != nil {
		return err
	}
	return c.wire.Publish(ctx, topic, string(payload))
}

// Channel is one live topic subscription delivering typed events. On an
// unexpected drop it surfaces a CHANNEL_ERROR status, resubscribes with
// backoff, and re-emits a fresh sync snapshot — callers treat the gap as
// a stale cache, not data loss.
type Channel struct {
	topic   string
	wire    Wire
	events  chan Event
	closeCh chan struct{}
	closed  sync.Once
	logger  *zap.Logger

	mu      sync.Mutex
	cancel  func()
	selfKey string
}

func (ch *Channel) setCancel(cancel func()) {
	ch.mu.Lock()
	ch.cancel = cancel
	ch.mu.Unlock()
}

// Topic returns the subscribed topic.
func (ch *Channel) Topic() string {
	return ch.topic
}

// Events returns the typed event stream. The channel is closed after Close.
func (ch *Channel) Events() <-chan Event {
	return ch.events
}

// Track registers self presence on the topic and broadcasts a join
// frame. Re-tracking with a fresh payload is the heartbeat.
func (ch *Channel) Track(ctx context.Context, key string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	ch.mu.Lock()
	ch.selfKey = key
	ch.mu.Unlock()
	if err := ch.wire.Track(ctx, ch.topic, key, string(raw)); err != nil {
		return err
	}
	return ch.publishFrame(ctx, frame{Kind: EventJoin, Key: key, Presence: raw})
}

// Untrack removes self presence and broadcasts a leave frame. Safe to
// call when not tracked.
func (ch *Channel) Untrack(ctx context.Context) error {
	ch.mu.Lock()
	key := ch.selfKey
	ch.selfKey = ""
	ch.mu.Unlock()
	if key == "" {
		return nil
	}
	if err := ch.wire.Untrack(ctx, ch.topic, key); err != nil {
		return err
	}
	return ch.publishFrame(ctx, frame{Kind: EventLeave, Key: key})
}

// PresenceState reads the authoritative roster from the wire.
func (ch *Channel) PresenceState(ctx context.Context) (map[string]json.RawMessage, error) {
	raw, err := ch.wire.PresenceState(ctx, ch.topic)
	if err != nil {
		return nil, err
	}
	out := make(map[string]json.RawMessage, len(raw))
	for k, v := range raw {
		out[k] = json.RawMessage(v)
	}
	return out, nil
}

// Resync reads the roster and emits it as a sync event, correcting any
// missed join/leave deltas.
func (ch *Channel) Resync(ctx context.Context) error {
	roster, err := ch.PresenceState(ctx)
	if err != nil {
		return err
	}
	ch.emit(Event{Kind: EventSync, Topic: ch.topic, Roster: roster})
	return nil
}

// Close tears down the subscription. Idempotent.
func (ch *Channel) Close() error {
	ch.closed.Do(func() {
		close(ch.closeCh)
		ch.mu.Lock()
		cancel := ch.cancel
		ch.mu.Unlock()
		if cancel != nil {
			cancel()
		}
	})
	return nil
}

func (ch *Channel) publishFrame(ctx context.Context, f frame) error {
	payload, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return ch.wire.Publish(ctx, ch.topic, string(payload))
}

func (ch *Channel) run(msgs <-chan *Message) {
	defer close(ch.events)

	ch.emit(Event{Kind: EventStatus, Topic: ch.topic, Status: StatusSubscribed})
	if err := ch.Resync(context.Background()); err != nil {
		ch.logger.Warn("initial presence sync failed",
			zap.String("topic", ch.topic), zap.Error(err))
	}

	for {
		for msg := range msgs {
			ch.dispatch(msg)
		}
		// Stream closed underneath us.
		select {
		case <-ch.closeCh:
			ch.emit(Event{Kind: EventStatus, Topic: ch.topic, Status: StatusClosed})
			return
		default:
		}

		ch.emit(Event{Kind: EventStatus, Topic: ch.topic, Status: StatusChannelError})
		ch.logger.Warn("realtime channel dropped, resubscribing",
			zap.String("topic", ch.topic))

		var err error
		msgs, err = ch.resubscribe()
		if err != nil {
			ch.emit(Event{Kind: EventStatus, Topic: ch.topic, Status: StatusClosed})
			return
		}
		ch.emit(Event{Kind: EventStatus, Topic: ch.topic, Status: StatusSubscribed})
		if err := ch.Resync(context.Background()); err != nil {
			ch.logger.Warn("presence resync failed",
				zap.String("topic", ch.topic), zap.Error(err))
		}
	}
}

// resubscribe retries with backoff until subscribed or closed.
func (ch *Channel) resubscribe() (<-chan *Message, error) {
	backoff := time.Second
	for {
		select {
		case <-ch.closeCh:
			return nil, context.Canceled
		case <-time.After(backoff):
		}
		msgs, cancel, err := ch.wire.Subscribe(context.Background(), ch.topic)
		if err == nil {
			ch.setCancel(cancel)
			return msgs, nil
		}
		ch.logger.Warn("resubscribe failed",
			zap.String("topic", ch.topic), zap.Error(err))
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (ch *Channel) dispatch(msg *Message) {
	var f frame
	if err := json.Unmarshal([]byte(msg.Payload), &f); err != nil {
		ch.logger.Warn("malformed realtime frame dropped",
			zap.String("topic", ch.topic), zap.Error(err))
		return
	}
	ev := Event{Kind: f.Kind, Topic: ch.topic}
	switch f.Kind {
	case EventInsert, EventUpdate, EventDelete:
		ev.Row = f.Row
	case EventJoin:
		ev.Key = f.Key
		ev.Presence = f.Presence
	case EventLeave:
		ev.Key = f.Key
	case EventSync:
		// Full snapshots arrive via Resync; a pushed sync frame carries
		// the roster inline (reference backend hub does this on demand).
		var roster map[string]json.RawMessage
		if err := json.Unmarshal(f.Row, &roster); err != nil {
			ch.logger.Warn("malformed sync frame dropped", zap.Error(err))
			return
		}
		ev.Roster = roster
	default:
		ch.logger.Warn("unknown frame kind dropped", zap.String("kind", string(f.Kind)))
		return
	}
	ch.emit(ev)
}

// emit delivers without blocking. A full buffer drops the event; the
// next pull or resync repairs the gap.
func (ch *Channel) emit(ev Event) {
	select {
	case ch.events <- ev:
	default:
		ch.logger.Warn("event buffer full, dropping",
			zap.String("topic", ch.topic), zap.String("kind", string(ev.Kind)))
	}
}
