package model

import "gorm.io/datatypes"

// QueuedMutation is one optimistic local write awaiting remote
// confirmation. Rows are appended in the same step as the local state
// change and only removed after the remote confirms the batch durable.
type QueuedMutation struct {
	Seq          int64          `gorm:"primaryKey;autoIncrement" json:"seq"`
	ID           string         `gorm:"uniqueIndex;size:36" json:"id"`
	Collection   string         `gorm:"index:idx_mutation_coll;size:32" json:"collection"`
	OpType       string         `gorm:"size:32" json:"op_type"`
	Payload      datatypes.JSON `json:"payload"`
	EnqueuedAtMs int64          `json:"enqueued_at_ms"`
}
