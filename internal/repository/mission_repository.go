package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
)

// MissionRepository handles mission rows. Progress and claim writes are
// conditional updates so concurrent callers can never lose an increment or
// pay a reward twice.
type MissionRepository struct {
	db *DB
}

// NewMissionRepository creates a new mission repository.
func NewMissionRepository(db *DB) *MissionRepository {
	return &MissionRepository{db: db}
}

// CreateBatch persists a generated mission set in one transaction. Either
// every mission lands or none do; a unique-index conflict means another
// request generated the same cycle first.
func (r *MissionRepository) CreateBatch(missions []models.Mission) error {
	if len(missions) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for i := range missions {
			if err := tx.Create(&missions[i]).Error; err != nil {
				return fmt.Errorf("failed to create mission %d: %w", i, err)
			}
		}
		return nil
	})
}

// GetActive retrieves a user's non-expired missions, unclaimed first.
func (r *MissionRepository) GetActive(userID string, now time.Time) ([]models.Mission, error) {
	var missions []models.Mission
	err := r.db.
		Where("user_id = ? AND expires_at > ?", userID, now).
		Order("is_claimed ASC, id ASC").
		Find(&missions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active missions for %s: %w", userID, err)
	}
	return missions, nil
}

// GetMatching retrieves missions that can accept progress for an activity
// type: matching type, unclaimed, not expired.
func (r *MissionRepository) GetMatching(userID string, activityType progression.ActivityType, now time.Time) ([]models.Mission, error) {
	var missions []models.Mission
	err := r.db.
		Where("user_id = ? AND type = ? AND is_claimed = ? AND expires_at > ?",
			userID, activityType, false, now).
		Find(&missions).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get matching missions for %s: %w", userID, err)
	}
	return missions, nil
}

// GetByID retrieves a mission belonging to a user.
func (r *MissionRepository) GetByID(missionID uint, userID string) (*models.Mission, error) {
	var mission models.Mission
	err := r.db.Where("id = ? AND user_id = ?", missionID, userID).First(&mission).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, progression.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission %d: %w", missionID, err)
	}
	return &mission, nil
}

// UpdateProgress advances a mission's progress conditioned on its prior
// value. Returns false when the row changed underneath the caller (claimed,
// or progressed concurrently); the caller re-reads and retries.
func (r *MissionRepository) UpdateProgress(missionID uint, fromProgress, toProgress int) (bool, error) {
	res := r.db.Model(&models.Mission{}).
		Where("id = ? AND is_claimed = ? AND current_progress = ?", missionID, false, fromProgress).
		Update("current_progress", toProgress)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update progress for mission %d: %w", missionID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Claim flips the claim flag conditioned on it being unset. Exactly one of
// any number of concurrent claimers sees true; the mission row is terminal
// afterwards.
func (r *MissionRepository) Claim(missionID uint, userID string) (bool, error) {
	res := r.db.Model(&models.Mission{}).
		Where("id = ? AND user_id = ? AND is_claimed = ?", missionID, userID, false).
		Update("is_claimed", true)
	if res.Error != nil {
		return false, fmt.Errorf("failed to claim mission %d: %w", missionID, res.Error)
	}
	return res.RowsAffected == 1, nil
}
