package model

import "time"

// SnapshotBlob is one durable key-value snapshot row. Writes go
// new-generation-first: the replacement row is inserted before the old
// one is deleted, inside a transaction, so a crash mid-write leaves the
// prior valid snapshot intact.
type SnapshotBlob struct {
	Key        string    `gorm:"primaryKey;size:128" json:"key"`
	Generation int64     `gorm:"primaryKey" json:"generation"`
	Value      []byte    `gorm:"type:blob" json:"value"`
	WrittenAt  time.Time `gorm:"autoCreateTime:milli" json:"written_at"`
}
