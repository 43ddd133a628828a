package models

import "time"

// AchievementProgress records a user's standing against one achievement.
// Once EarnedAt is set the row is terminal and the achievement can never
// pay out again.
type AchievementProgress struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	UserID        string     `gorm:"not null;size:64;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementID string     `gorm:"not null;size:64;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	Progress      int64      `gorm:"not null;default:0" json:"progress"`
	EarnedAt      *time.Time `json:"earned_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// TableName specifies the table name for AchievementProgress model.
func (AchievementProgress) TableName() string {
	return "achievement_progress"
}

// Earned reports whether the achievement has been unlocked.
func (a *AchievementProgress) Earned() bool {
	return a.EarnedAt != nil
}
