package local

import (
	"context"
	"sync"
)

// Message is an in-process wire message.
type Message struct {
	Topic   string
	Payload string
}

type subscriber struct {
	ch chan *Message
}

// Wire is an in-process realtime fabric: fan-out pub/sub plus a shared
// presence registry per topic. It backs tests and the single-process
// demo; every participant must share the one instance.
type Wire struct {
	mu          sync.RWMutex
	subscribers map[string][]*subscriber
	presence    map[string]map[string]string
	bufSize     int
	closed      bool
}

// NewWire creates a Wire with the given per-subscriber buffer size.
func NewWire(bufSize int) *Wire {
	if bufSize <= 0 {
		bufSize = 256
	}
	return &Wire{
		subscribers: make(map[string][]*subscriber),
		presence:    make(map[string]map[string]string),
		bufSize:     bufSize,
	}
}

// Publish sends a payload to all subscribers of the topic.
func (w *Wire) Publish(_ context.Context, topic, payload string) error {
	msg := &Message{Topic: topic, Payload: payload}
	w.mu.RLock()
	subs := w.subscribers[topic]
	w.mu.RUnlock()
	for _, s := range subs {
		select {
		case s.ch <- msg:
		default:
			// Drop when the buffer is full (non-blocking).
		}
	}
	return nil
}

// Subscribe returns a message channel for the topic and a cancel func.
func (w *Wire) Subscribe(_ context.Context, topic string) (<-chan *Message, func(), error) {
	s := &subscriber{ch: make(chan *Message, w.bufSize)}

	w.mu.Lock()
	w.subscribers[topic] = append(w.subscribers[topic], s)
	w.mu.Unlock()

	cancel := func() {
		w.mu.Lock()
		defer w.mu.Unlock()
		list := w.subscribers[topic]
		for i, sub := range list {
			if sub == s {
				w.subscribers[topic] = append(list[:i], list[i+1:]...)
				close(s.ch)
				return
			}
		}
	}
	return s.ch, cancel, nil
}

// Track upserts a presence entry for key on the topic.
func (w *Wire) Track(_ context.Context, topic, key, payload string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	m, ok := w.presence[topic]
	if !ok {
		m = make(map[string]string)
		w.presence[topic] = m
	}
	m[key] = payload
	return nil
}

// Untrack removes a presence entry. Unknown keys are not an error.
func (w *Wire) Untrack(_ context.Context, topic, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if m, ok := w.presence[topic]; ok {
		delete(m, key)
		if len(m) == 0 {
			delete(w.presence, topic)
		}
	}
	return nil
}

// PresenceState returns a copy of the topic's presence registry.
func (w *Wire) PresenceState(_ context.Context, topic string) (map[string]string, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]string, len(w.presence[topic]))
	for k, v := range w.presence[topic] {
		out[k] = v
	}
	return out, nil
}

// Close drops all subscriptions and presence state.
func (w *Wire) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	for topic, subs := range w.subscribers {
		for _, s := range subs {
			close(s.ch)
		}
		delete(w.subscribers, topic)
	}
	w.presence = make(map[string]map[string]string)
	return nil
}
