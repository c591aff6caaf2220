package model

// DirectMessage is one chat message between two users. Messages are
// immutable after send except for the read marker, so last-writer-wins
// on UpdatedAtMs is sufficient for merge.
type DirectMessage struct {
	ID          string `gorm:"primaryKey;size:36" json:"id"`
	SenderID    string `gorm:"index:idx_dm_sender;size:64" json:"sender_id"`
	RecipientID string `gorm:"index:idx_dm_recipient;size:64" json:"recipient_id"`
	Body        string `gorm:"type:text" json:"body"`
	SentAtMs    int64  `json:"sent_at_ms"`
	ReadAtMs    int64  `json:"read_at_ms"` // 0 = unread
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

func (m DirectMessage) Key() string {
	return m.ID
}
