package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/praxislms/progression-engine/internal/models"
)

// AchievementRepository handles achievement progress rows. Earning is a
// conditional update on earned_at IS NULL, which makes the unlock (and its
// payout) exactly-once by construction.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// GetForUser retrieves all of a user's achievement rows.
func (r *AchievementRepository) GetForUser(userID string) ([]models.AchievementProgress, error) {
	var rows []models.AchievementProgress
	err := r.db.
		Where("user_id = ?", userID).
		Order("achievement_id ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get achievements for %s: %w", userID, err)
	}
	return rows, nil
}

// Get retrieves one achievement row, or nil when the user has no progress
// against it yet.
func (r *AchievementRepository) Get(userID, achievementID string) (*models.AchievementProgress, error) {
	var row models.AchievementProgress
	err := r.db.Where("user_id = ? AND achievement_id = ?", userID, achievementID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get achievement %s for %s: %w", achievementID, userID, err)
	}
	return &row, nil
}

// UpsertProgress records the latest observed progress value for an unearned
// achievement. Earned rows are terminal and left untouched.
func (r *AchievementRepository) UpsertProgress(userID, achievementID string, progress int64) error {
	res := r.db.Model(&models.AchievementProgress{}).
		Where("user_id = ? AND achievement_id = ? AND earned_at IS NULL", userID, achievementID).
		Update("progress", progress)
	if res.Error != nil {
		return fmt.Errorf("failed to update achievement progress: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	create := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
		DoNothing: true,
	}).Create(&models.AchievementProgress{
		UserID:        userID,
		AchievementID: achievementID,
		Progress:      progress,
	})
	if create.Error != nil {
		return fmt.Errorf("failed to create achievement progress: %w", create.Error)
	}
	return nil
}

// MarkEarned sets earned_at conditioned on the achievement not having been
// earned. Returns true only for the single caller that crossed the
// threshold first; that caller owes (and pays) the reward.
func (r *AchievementRepository) MarkEarned(userID, achievementID string, at time.Time) (bool, error) {
	res := r.db.Model(&models.AchievementProgress{}).
		Where("user_id = ? AND achievement_id = ? AND earned_at IS NULL", userID, achievementID).
		Update("earned_at", at)
	if res.Error != nil {
		return false, fmt.Errorf("failed to mark achievement %s earned for %s: %w", achievementID, userID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
