package transport

import (
	"context"
	"fmt"

	"github.com/fitroom/fitroom-client/auth"
	"github.com/fitroom/fitroom-client/config"
	rtlocal "github.com/fitroom/fitroom-client/transport/local"
	rtredis "github.com/fitroom/fitroom-client/transport/redisrt"
	rtws "github.com/fitroom/fitroom-client/transport/ws"
	"go.uber.org/zap"
)

// NewWire returns the realtime fabric for the configured mode: an
// in-process hub, Redis pub/sub, or a WebSocket connection to the
// backend's realtime endpoint.
func NewWire(cfg config.TransportConfig, session *auth.Session, logger *zap.Logger) (Wire, error) {
	switch cfg.Mode {
	case "", "local":
		return &localWireAdapter{w: rtlocal.NewWire(cfg.EventBuf)}, nil
	case "redis":
		w, err := rtredis.NewWire(rtredis.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
			Buf:      cfg.EventBuf,
		})
		if err != nil {
			return nil, err
		}
		return &redisWireAdapter{w: w}, nil
	case "ws":
		w := rtws.NewWire(rtws.Config{
			URL: cfg.WSURL,
			Buf: cfg.EventBuf,
			Token: func() string {
				return session.Token()
			},
		}, logger)
		return &wsWireAdapter{w: w}, nil
	default:
		return nil, fmt.Errorf("transport: unknown mode %q", cfg.Mode)
	}
}

// WrapLocal adapts an existing in-process wire. Tests and the
// single-process demo use it so every participant shares one hub.
func WrapLocal(w *rtlocal.Wire) Wire {
	return &localWireAdapter{w: w}
}

// ---- adapters to bridge sub-package message types to transport.Message ----

type localWireAdapter struct {
	w *rtlocal.Wire
}

func (a *localWireAdapter) Publish(ctx context.Context, topic, payload string) error {
	return a.w.Publish(ctx, topic, payload)
}

func (a *localWireAdapter) Subscribe(ctx context.Context, topic string) (<-chan *Message, func(), error) {
	in, cancel, err := a.w.Subscribe(ctx, topic)
	if err != nil {
		return nil, nil, err
	}
	return bridge(in, func(m *rtlocal.Message) *Message {
		return &Message{Topic: m.Topic, Payload: m.Payload}
	}), cancel, nil
}

func (a *localWireAdapter) Track(ctx context.Context, topic, key, payload string) error {
	return a.w.Track(ctx, topic, key, payload)
}

func (a *localWireAdapter) Untrack(ctx context.Context, topic, key string) error {
	return a.w.Untrack(ctx, topic, key)
}

func (a *localWireAdapter) PresenceState(ctx context.Context, topic string) (map[string]string, error) {
	return a.w.PresenceState(ctx, topic)
}

func (a *localWireAdapter) Close() error { return a.w.Close() }

type redisWireAdapter struct {
	w *rtredis.Wire
}

func (a *redisWireAdapter) Publish(ctx context.Context, topic, payload string) error {
	return a.w.Publish(ctx, topic, payload)
}

func (a *redisWireAdapter) Subscribe(ctx context.Context, topic string) (<-chan *Message, func(), error) {
	in, cancel, err := a.w.Subscribe(ctx, topic)
	if err != nil {
		return nil, nil, err
	}
	return bridge(in, func(m *rtredis.Message) *Message {
		return &Message{Topic: m.Topic, Payload: m.Payload}
	}), cancel, nil
}

func (a *redisWireAdapter) Track(ctx context.Context, topic, key, payload string) error {
	return a.w.Track(ctx, topic, key, payload)
}

func (a *redisWireAdapter) Untrack(ctx context.Context, topic, key string) error {
	return a.w.Untrack(ctx, topic, key)
}

func (a *redisWireAdapter) PresenceState(ctx context.Context, topic string) (map[string]string, error) {
	return a.w.PresenceState(ctx, topic)
}

func (a *redisWireAdapter) Close() error { return a.w.Close() }

type wsWireAdapter struct {
	w *rtws.Wire
}

func (a *wsWireAdapter) Publish(ctx context.Context, topic, payload string) error {
	return a.w.Publish(ctx, topic, payload)
}

func (a *wsWireAdapter) Subscribe(ctx context.Context, topic string) (<-chan *Message, func(), error) {
	in, cancel, err := a.w.Subscribe(ctx, topic)
	if err != nil {
		return nil, nil, err
	}
	return bridge(in, func(m *rtws.Message) *Message {
		return &Message{Topic: m.Topic, Payload: m.Payload}
	}), cancel, nil
}

func (a *wsWireAdapter) Track(ctx context.Context, topic, key, payload string) error {
	return a.w.Track(ctx, topic, key, payload)
}

func (a *wsWireAdapter) Untrack(ctx context.Context, topic, key string) error {
	return a.w.Untrack(ctx, topic, key)
}

func (a *wsWireAdapter) PresenceState(ctx context.Context, topic string) (map[string]string, error) {
	return a.w.PresenceState(ctx, topic)
}

func (a *wsWireAdapter) Close() error { return a.w.Close() }

func bridge[T any](in <-chan *T, conv func(*T) *Message) <-chan *Message {
	out := make(chan *Message, 256)
	go func() {
		defer close(out)
		for m := range in {
			out <- conv(m)
		}
	}()
	return out
}
