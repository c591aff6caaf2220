package transport

import (
	"context"
	"encoding/json"
)

// EventKind discriminates the typed realtime events a Channel delivers.
type EventKind string

const (
	EventInsert EventKind = "insert"
	EventUpdate EventKind = "update"
	EventDelete EventKind = "delete"
	EventJoin   EventKind = "join"
	EventLeave  EventKind = "leave"
	EventSync   EventKind = "sync"   // full presence roster snapshot
	EventStatus EventKind = "status" // channel status transition
)

// ChannelStatus is a subscription lifecycle state surfaced as an
// EventStatus event. Errors are recoverable conditions: durable state is
// re-fetched via the sync engine's pull, never via the stream alone.
type ChannelStatus string

const (
	StatusSubscribed   ChannelStatus = "SUBSCRIBED"
	StatusChannelError ChannelStatus = "CHANNEL_ERROR"
	StatusTimedOut     ChannelStatus = "TIMED_OUT"
	StatusClosed       ChannelStatus = "CLOSED"
)

// Event is one typed delta delivered by a Channel. Exactly the fields
// for its Kind are set.
type Event struct {
	Kind     EventKind
	Topic    string
	Row      json.RawMessage            // insert / update / delete
	Key      string                     // join / leave participant id
	Presence json.RawMessage            // join payload
	Roster   map[string]json.RawMessage // sync snapshot
	Status   ChannelStatus              // status transitions
}

// Message is one raw wire message.
type Message struct {
	Topic   string
	Payload string
}

// Wire is the low-level realtime fabric: string-payload pub/sub plus a
// shared per-topic presence registry. Implementations are deliberately
// dumb; all frame semantics live in Channel.
type Wire interface {
	Publish(ctx context.Context, topic, payload string) error
	Subscribe(ctx context.Context, topic string) (<-chan *Message, func(), error)
	Track(ctx context.Context, topic, key, payload string) error
	Untrack(ctx context.Context, topic, key string) error
	PresenceState(ctx context.Context, topic string) (map[string]string, error)
	Close() error
}

// frame is the JSON envelope carried as a wire payload.
type frame struct {
	Kind     EventKind       `json:"kind"`
	Key      string          `json:"key,omitempty"`
	Row      json.RawMessage `json:"row,omitempty"`
	Presence json.RawMessage `json:"presence,omitempty"`
}
