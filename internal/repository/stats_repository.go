package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/praxislms/progression-engine/internal/models"
)

// Stat counter columns. Increment only accepts these.
const (
	StatDrillsCompleted  = "drills_completed"
	StatMissionsClaimed  = "missions_claimed"
	StatLessonsCompleted = "lessons_completed"
	StatMatchesPlayed    = "matches_played"
)

var statColumns = map[string]bool{
	StatDrillsCompleted:  true,
	StatMissionsClaimed:  true,
	StatLessonsCompleted: true,
	StatMatchesPlayed:    true,
}

// StatsRepository handles cumulative per-user activity counters using the
// same atomic-increment discipline as the ledger.
type StatsRepository struct {
	db *DB
}

// NewStatsRepository creates a new stats repository.
func NewStatsRepository(db *DB) *StatsRepository {
	return &StatsRepository{db: db}
}

// Get retrieves a user's counters; a user without a row has all zeroes.
func (r *StatsRepository) Get(userID string) (*models.UserStats, error) {
	var stats models.UserStats
	err := r.db.Where("user_id = ?", userID).First(&stats).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.UserStats{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get stats for %s: %w", userID, err)
	}
	return &stats, nil
}

// Increment atomically adds delta to one counter column, creating the row on
// first use.
func (r *StatsRepository) Increment(userID, column string, delta int64) error {
	if !statColumns[column] {
		return fmt.Errorf("unknown stat column %q", column)
	}
	if delta <= 0 {
		return nil
	}

	res := r.db.Model(&models.UserStats{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", delta))
	if res.Error != nil {
		return fmt.Errorf("failed to increment %s for %s: %w", column, userID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	stats := models.UserStats{UserID: userID}
	switch column {
	case StatDrillsCompleted:
		stats.DrillsCompleted = delta
	case StatMissionsClaimed:
		stats.MissionsClaimed = delta
	case StatLessonsCompleted:
		stats.LessonsCompleted = delta
	case StatMatchesPlayed:
		stats.MatchesPlayed = delta
	}

	create := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&stats)
	if create.Error != nil {
		return fmt.Errorf("failed to create stats for %s: %w", userID, create.Error)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	// Lost the insert race; the row exists now.
	retry := r.db.Model(&models.UserStats{}).
		Where("user_id = ?", userID).
		Update(column, gorm.Expr(column+" + ?", delta))
	if retry.Error != nil {
		return fmt.Errorf("failed to increment %s for %s: %w", column, userID, retry.Error)
	}
	return nil
}

// RecentlyActive returns ids of users whose counters changed since the given
// time. Used by the daily achievement sweep.
func (r *StatsRepository) RecentlyActive(since time.Time) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.UserStats{}).
		Where("updated_at >= ?", since).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list recently active users: %w", err)
	}
	return ids, nil
}
