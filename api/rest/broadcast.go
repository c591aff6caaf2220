package rest

import (
	"encoding/json"

	apiws "github.com/fitroom/fitroom-client/api/ws"
)

// deltaFrame mirrors the client channel envelope for row deltas.
type deltaFrame struct {
	Kind string          `json:"kind"`
	Row  json.RawMessage `json:"row,omitempty"`
}

// TopicFor names the per-user realtime topic of one collection.
func TopicFor(userID, collection string) string {
	return "user:" + userID + ":" + collection
}

// broadcastRow pushes one row delta to a user's collection topic. Other
// devices of the same user (and any party the row names) fold it in
// without waiting for their next pull.
func broadcastRow(hub *apiws.Hub, userID, collection, kind string, row any) {
	if hub == nil {
		return
	}
	raw, err := json.Marshal(row)
	if err != nil {
		return
	}
	payload, err := json.Marshal(&deltaFrame{Kind: kind, Row: raw})
	if err != nil {
		return
	}
	hub.Broadcast(TopicFor(userID, collection), string(payload))
}
