package models

import "time"

// StreakRecord tracks consecutive calendar days with qualifying activity.
// LastActivityDate is stored at day precision in the engine's timezone.
type StreakRecord struct {
	UserID           string    `gorm:"primaryKey;size:64" json:"user_id"`
	CurrentStreak    int       `gorm:"not null;default:0" json:"current_streak"`
	LongestStreak    int       `gorm:"not null;default:0" json:"longest_streak"`
	LastActivityDate time.Time `gorm:"not null" json:"last_activity_date"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for StreakRecord model.
func (StreakRecord) TableName() string {
	return "streak_records"
}

// UserStats holds cumulative activity counters per user. They feed
// achievement predicates and the leaderboard; every counter only grows.
type UserStats struct {
	UserID           string    `gorm:"primaryKey;size:64" json:"user_id"`
	DrillsCompleted  int64     `gorm:"not null;default:0" json:"drills_completed"`
	MissionsClaimed  int64     `gorm:"not null;default:0" json:"missions_claimed"`
	LessonsCompleted int64     `gorm:"not null;default:0" json:"lessons_completed"`
	MatchesPlayed    int64     `gorm:"not null;default:0" json:"matches_played"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// TableName specifies the table name for UserStats model.
func (UserStats) TableName() string {
	return "user_stats"
}
