package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Message is a received wire message.
type Message struct {
	Topic   string
	Payload string
}

// Config holds the realtime endpoint settings. Token is read per dial so
// a refreshed access token is picked up on reconnect.
type Config struct {
	URL   string
	Buf   int
	Token func() string
}

// wireFrame is the JSON envelope exchanged with the backend's realtime
// hub. Client ops: subscribe, unsubscribe, publish, track, untrack,
// presence. Server ops: message, presence.
type wireFrame struct {
	Op      string            `json:"op"`
	Topic   string            `json:"topic,omitempty"`
	Key     string            `json:"key,omitempty"`
	Payload string            `json:"payload,omitempty"`
	Roster  map[string]string `json:"roster,omitempty"`
}

type subscriber struct {
	topic string
	ch    chan *Message
}

// Wire is a WebSocket-backed realtime fabric speaking to the backend's
// /rt hub. One connection multiplexes every topic; a dropped connection
// closes all subscriber channels and redials on the next Subscribe.
type Wire struct {
	cfg    Config
	logger *zap.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	subs    []*subscriber
	rosters map[string]map[string]string
	waiters map[string][]chan map[string]string
	closed  bool
}

// NewWire creates a Wire. The connection is dialed lazily on first use.
func NewWire(cfg Config, logger *zap.Logger) *Wire {
	if cfg.Buf <= 0 {
		cfg.Buf = 256
	}
	return &Wire{
		cfg:     cfg,
		logger:  logger,
		rosters: make(map[string]map[string]string),
		waiters: make(map[string][]chan map[string]string),
	}
}

// dialLocked ensures a live connection. Caller holds w.mu.
func (w *Wire) dialLocked(ctx context.Context) error {
	if w.closed {
		return errors.New("ws: wire closed")
	}
	if w.conn != nil {
		return nil
	}
	url := w.cfg.URL
	if w.cfg.Token != nil {
		if tok := w.cfg.Token(); tok != "" {
			url += "?token=" + tok
		}
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	w.conn = conn
	go w.readPump(conn)
	return nil
}

// sendLocked writes a frame. Caller holds w.mu, which also serializes
// writes on the connection.
func (w *Wire) sendLocked(f *wireFrame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

func (w *Wire) send(ctx context.Context, f *wireFrame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.dialLocked(ctx); err != nil {
		return err
	}
	return w.sendLocked(f)
}

func (w *Wire) readPump(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			w.dropConn(conn, err)
			return
		}
		var f wireFrame
		if err := json.Unmarshal(data, &f); err != nil {
			w.logger.Warn("malformed hub frame dropped", zap.Error(err))
			continue
		}
		switch f.Op {
		case "message":
			w.fanout(&Message{Topic: f.Topic, Payload: f.Payload})
		case "presence":
			w.deliverRoster(f.Topic, f.Roster)
		default:
			w.logger.Warn("unknown hub op dropped", zap.String("op", f.Op))
		}
	}
}

func (w *Wire) fanout(msg *Message) {
	w.mu.Lock()
	subs := make([]*subscriber, 0, len(w.subs))
	for _, s := range w.subs {
		if s.topic == msg.Topic {
			subs = append(subs, s)
		}
	}
	w.mu.Unlock()
	for _, s := range subs {
		select {
		case s.ch <- msg:
		default:
			// Drop when the buffer is full (non-blocking).
		}
	}
}

func (w *Wire) deliverRoster(topic string, roster map[string]string) {
	if roster == nil {
		roster = map[string]string{}
	}
	w.mu.Lock()
	w.rosters[topic] = roster
	waiters := w.waiters[topic]
	delete(w.waiters, topic)
	w.mu.Unlock()
	for _, wait := range waiters {
		wait <- roster
	}
}

// dropConn tears down a dead connection: closes every subscriber channel
// so channel consumers notice and resubscribe, which redials.
func (w *Wire) dropConn(conn *websocket.Conn, err error) {
	w.mu.Lock()
	if w.conn != conn {
		w.mu.Unlock()
		return
	}
	w.conn = nil
	subs := w.subs
	w.subs = nil
	waiters := w.waiters
	w.waiters = make(map[string][]chan map[string]string)
	closed := w.closed
	w.mu.Unlock()

	if !closed {
		w.logger.Warn("realtime connection lost", zap.Error(err))
	}
	conn.Close()
	for _, s := range subs {
		close(s.ch)
	}
	for _, list := range waiters {
		for _, wait := range list {
			close(wait)
		}
	}
}

// Publish sends a payload to every subscriber of the topic via the hub.
func (w *Wire) Publish(ctx context.Context, topic, payload string) error {
	return w.send(ctx, &wireFrame{Op: "publish", Topic: topic, Payload: payload})
}

// Subscribe registers for a topic, dialing if necessary.
func (w *Wire) Subscribe(ctx context.Context, topic string) (<-chan *Message, func(), error) {
	w.mu.Lock()
	if err := w.dialLocked(ctx); err != nil {
		w.mu.Unlock()
		return nil, nil, err
	}
	s := &subscriber{topic: topic, ch: make(chan *Message, w.cfg.Buf)}
	w.subs = append(w.subs, s)
	err := w.sendLocked(&wireFrame{Op: "subscribe", Topic: topic})
	w.mu.Unlock()
	if err != nil {
		return nil, nil, err
	}

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		for i, sub := range w.subs {
			if sub == s {
				w.subs = append(w.subs[:i], w.subs[i+1:]...)
				close(s.ch)
				break
			}
		}
		if w.conn != nil {
			_ = w.sendLocked(&wireFrame{Op: "unsubscribe", Topic: topic})
		}
	}
	return s.ch, cancel, nil
}

// Track upserts self presence on the hub's registry for the topic.
func (w *Wire) Track(ctx context.Context, topic, key, payload string) error {
	return w.send(ctx, &wireFrame{Op: "track", Topic: topic, Key: key, Payload: payload})
}

// Untrack removes self presence from the hub's registry.
func (w *Wire) Untrack(ctx context.Context, topic, key string) error {
	return w.send(ctx, &wireFrame{Op: "untrack", Topic: topic, Key: key})
}

// PresenceState requests the authoritative roster from the hub. On
// timeout the last delivered roster is returned, which the next sync
// snapshot corrects.
func (w *Wire) PresenceState(ctx context.Context, topic string) (map[string]string, error) {
	wait := make(chan map[string]string, 1)
	w.mu.Lock()
	w.waiters[topic] = append(w.waiters[topic], wait)
	w.mu.Unlock()

	if err := w.send(ctx, &wireFrame{Op: "presence", Topic: topic}); err != nil {
		return nil, err
	}

	select {
	case roster, ok := <-wait:
		if !ok {
			return nil, errors.New("ws: connection lost awaiting roster")
		}
		return roster, nil
	case <-time.After(5 * time.Second):
		w.mu.Lock()
		cached := make(map[string]string, len(w.rosters[topic]))
		for k, v := range w.rosters[topic] {
			cached[k] = v
		}
		w.mu.Unlock()
		w.logger.Warn("roster request timed out, serving cache",
			zap.String("topic", topic))
		return cached, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close shuts the connection down for good.
func (w *Wire) Close() error {
	w.mu.Lock()
	w.closed = true
	conn := w.conn
	w.mu.Unlock()
	if conn != nil {
		w.dropConn(conn, errors.New("closed"))
	}
	return nil
}
