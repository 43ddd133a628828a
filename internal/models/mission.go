package models

import (
	"time"

	"github.com/praxislms/progression-engine/internal/progression"
)

// Mission is a daily, typed progress goal for one user. Rows are never
// deleted: expiry is purely time-based, and a claimed mission is terminal.
// CycleDate+CycleIndex uniquely identify the mission within a generation
// cycle so concurrent generation cannot produce duplicate sets.
type Mission struct {
	ID              uint                      `gorm:"primaryKey" json:"id"`
	UserID          string                    `gorm:"not null;index;size:64;uniqueIndex:idx_mission_cycle" json:"user_id"`
	Type            progression.ActivityType  `gorm:"not null;size:32" json:"type"`
	Description     string                    `gorm:"size:255" json:"description"`
	TargetCount     int                       `gorm:"not null" json:"target_count"`
	CurrentProgress int                       `gorm:"not null;default:0" json:"current_progress"`
	RewardCoins     int64                     `gorm:"not null" json:"reward_coins"`
	RewardXP        int64                     `gorm:"not null" json:"reward_xp"`
	IsClaimed       bool                      `gorm:"not null;default:false" json:"is_claimed"`
	ExpiresAt       time.Time                 `gorm:"not null;index" json:"expires_at"`
	CycleDate       string                    `gorm:"not null;size:10;uniqueIndex:idx_mission_cycle" json:"-"`
	CycleIndex      int                       `gorm:"not null;uniqueIndex:idx_mission_cycle" json:"-"`
	CreatedAt       time.Time                 `json:"created_at"`
	UpdatedAt       time.Time                 `json:"updated_at"`
}

// TableName specifies the table name for Mission model.
func (Mission) TableName() string {
	return "missions"
}

// Completed reports whether the progress target has been reached.
func (m *Mission) Completed() bool {
	return m.CurrentProgress >= m.TargetCount
}

// Expired reports whether the mission window has passed at the given instant.
func (m *Mission) Expired(now time.Time) bool {
	return !now.Before(m.ExpiresAt)
}

// Active reports whether the mission can still accept progress: not claimed
// and not expired.
func (m *Mission) Active(now time.Time) bool {
	return !m.IsClaimed && !m.Expired(now)
}
