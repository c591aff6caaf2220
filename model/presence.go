package model

import "time"

// PresenceStatus is a room participant's broadcast activity state.
type PresenceStatus string

const (
	PresenceOnline     PresenceStatus = "online"
	PresenceWorkingOut PresenceStatus = "working_out"
	PresenceResting    PresenceStatus = "resting"
	PresenceOffline    PresenceStatus = "offline"
)

// PresenceState is the last-known broadcast state of one room
// participant. It is ephemeral: never persisted, rebuilt from scratch on
// every full resubscription, and expired by staleness rather than
// deleted when a peer crashes without a leave event.
type PresenceState struct {
	UserID          string         `json:"user_id"`
	DisplayName     string         `json:"display_name,omitempty"`
	AvatarURL       string         `json:"avatar_url,omitempty"`
	Status          PresenceStatus `json:"status"`
	Activity        string         `json:"activity,omitempty"`
	CurrentExercise string         `json:"current_exercise,omitempty"`
	JoinedAt        time.Time      `json:"joined_at"`
	LastSeenAt      time.Time      `json:"last_seen_at"`
}
