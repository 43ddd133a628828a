package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/praxislms/progression-engine/internal/models"
)

// StreakRepository handles streak records. Updates are conditioned on the
// previously observed activity date so two same-day triggers cannot both
// advance the streak.
type StreakRepository struct {
	db *DB
}

// NewStreakRepository creates a new streak repository.
func NewStreakRepository(db *DB) *StreakRepository {
	return &StreakRepository{db: db}
}

// Get retrieves a user's streak record, or nil when the user has no
// recorded activity yet.
func (r *StreakRepository) Get(userID string) (*models.StreakRecord, error) {
	var record models.StreakRecord
	err := r.db.Where("user_id = ?", userID).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get streak for %s: %w", userID, err)
	}
	return &record, nil
}

// Create inserts the first streak record for a user. Returns false when a
// concurrent first activity already inserted one.
func (r *StreakRepository) Create(record *models.StreakRecord) (bool, error) {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(record)
	if res.Error != nil {
		return false, fmt.Errorf("failed to create streak for %s: %w", record.UserID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// UpdateIfUnchanged writes the advanced streak state conditioned on the
// last activity date the caller read. Returns false when another trigger
// advanced the record first.
func (r *StreakRepository) UpdateIfUnchanged(record *models.StreakRecord, observedDate time.Time) (bool, error) {
	res := r.db.Model(&models.StreakRecord{}).
		Where("user_id = ? AND last_activity_date = ?", record.UserID, observedDate).
		Updates(map[string]interface{}{
			"current_streak":     record.CurrentStreak,
			"longest_streak":     record.LongestStreak,
			"last_activity_date": record.LastActivityDate,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to update streak for %s: %w", record.UserID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
