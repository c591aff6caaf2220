package model

// FitnessProfile is a user's gamification profile. One row per user,
// last-writer-wins across devices.
type FitnessProfile struct {
	UserID      string `gorm:"primaryKey;size:64" json:"user_id"`
	DisplayName string `gorm:"size:64" json:"display_name"`
	AvatarURL   string `gorm:"size:256" json:"avatar_url"`
	XP          int64  `json:"xp"`
	Level       int    `json:"level"`
	StreakDays  int    `json:"streak_days"`
	UpdatedAtMs int64  `json:"updated_at_ms"`
}

func (p FitnessProfile) Key() string {
	return p.UserID
}
