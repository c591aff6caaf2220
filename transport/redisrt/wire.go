package redisrt

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// presenceTTL bounds how long a crashed client's presence entry can
// outlive its heartbeats in Redis.
const presenceTTL = 2 * time.Minute

// Message is a received wire message.
type Message struct {
	Topic   string
	Payload string
}

// Config holds Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	Buf      int
}

// Wire is a Redis-backed realtime fabric: pub/sub for deltas and a hash
// per topic for the presence registry.
type Wire struct {
	client *goredis.Client
	buf    int
}

// NewWire connects to Redis and verifies the connection.
func NewWire(cfg Config) (*Wire, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}
	buf := cfg.Buf
	if buf <= 0 {
		buf = 256
	}
	return &Wire{client: client, buf: buf}, nil
}

func (w *Wire) Publish(ctx context.Context, topic, payload string) error {
	return w.client.Publish(ctx, topic, payload).Err()
}

func (w *Wire) Subscribe(ctx context.Context, topic string) (<-chan *Message, func(), error) {
	ps := w.client.Subscribe(ctx, topic)
	ch := make(chan *Message, w.buf)

	go func() {
		defer close(ch)
		for msg := range ps.Channel() {
			ch <- &Message{Topic: msg.Channel, Payload: msg.Payload}
		}
	}()

	cancel := func() {
		_ = ps.Close()
	}
	return ch, cancel, nil
}

func presenceKey(topic string) string {
	return "presence:" + topic
}

func (w *Wire) Track(ctx context.Context, topic, key, payload string) error {
	pipe := w.client.TxPipeline()
	pipe.HSet(ctx, presenceKey(topic), key, payload)
	pipe.Expire(ctx, presenceKey(topic), presenceTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (w *Wire) Untrack(ctx context.Context, topic, key string) error {
	return w.client.HDel(ctx, presenceKey(topic), key).Err()
}

func (w *Wire) PresenceState(ctx context.Context, topic string) (map[string]string, error) {
	return w.client.HGetAll(ctx, presenceKey(topic)).Result()
}

func (w *Wire) Close() error {
	return w.client.Close()
}
