package model

import "time"

// SyncStatus is the sync engine's per-collection state machine state.
type SyncStatus string

const (
	SyncIdle    SyncStatus = "idle"
	SyncSyncing SyncStatus = "syncing"
	SyncSuccess SyncStatus = "success"
	SyncError   SyncStatus = "error"
)

// SyncMetadata describes the sync state of one collection. It is owned
// exclusively by that collection's sync engine; everything else reads it
// through a copy.
type SyncMetadata struct {
	Collection       string     `json:"collection"`
	LastSyncAt       *time.Time `json:"last_sync_at"`
	LastSyncHash     string     `json:"last_sync_hash"`
	SyncStatus       SyncStatus `json:"sync_status"`
	SyncError        string     `json:"sync_error"`
	PendingMutations int        `json:"pending_mutations"`
}
