package model

import "time"

// SyncHistory records one completed pull or push for diagnostics.
// Written asynchronously; losing an entry under backpressure is fine.
type SyncHistory struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Collection string    `gorm:"index:idx_history_coll;size:32" json:"collection"`
	Op         string    `gorm:"size:8" json:"op"` // pull | push
	Outcome    string    `gorm:"size:16" json:"outcome"`
	Error      string    `gorm:"type:text" json:"error"`
	Items      int       `json:"items"`
	DurationMs int       `json:"duration_ms"`
	CreatedAt  time.Time `gorm:"index:idx_history_created;autoCreateTime:milli" json:"created_at"`
}
