package repository

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/praxislms/progression-engine/internal/models"
)

// DrillRepository handles drill slot rows. A slot is empty when no row
// exists for its (user, index) pair; claiming deletes the row.
type DrillRepository struct {
	db *DB
}

// NewDrillRepository creates a new drill repository.
func NewDrillRepository(db *DB) *DrillRepository {
	return &DrillRepository{db: db}
}

// GetSlots retrieves a user's occupied slots ordered by index.
func (r *DrillRepository) GetSlots(userID string) ([]models.DrillSlot, error) {
	var slots []models.DrillSlot
	err := r.db.
		Where("user_id = ?", userID).
		Order("slot_index ASC").
		Find(&slots).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get drill slots for %s: %w", userID, err)
	}
	return slots, nil
}

// GetSlot retrieves the drill occupying a slot, or nil when the slot is empty.
func (r *DrillRepository) GetSlot(userID string, slotIndex int) (*models.DrillSlot, error) {
	var slot models.DrillSlot
	err := r.db.Where("user_id = ? AND slot_index = ?", userID, slotIndex).First(&slot).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get drill slot %d for %s: %w", slotIndex, userID, err)
	}
	return &slot, nil
}

// Upsert starts a drill in a slot, replacing whatever row occupies it. The
// write is keyed on (user_id, slot_index) so two concurrent starts settle on
// a single row.
func (r *DrillRepository) Upsert(slot *models.DrillSlot) error {
	err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}, {Name: "slot_index"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"drill_type", "start_time", "end_time", "is_reward_claimed", "updated_at",
		}),
	}).Create(slot).Error
	if err != nil {
		return fmt.Errorf("failed to upsert drill slot %d for %s: %w", slot.SlotIndex, slot.UserID, err)
	}
	return nil
}

// DeleteIfUnchanged removes a drill row only if it still holds the drill the
// caller observed (same row id and end time). Returns false when another
// claim or a restart got there first. Deletion is the claim commit point:
// exactly one concurrent claimer sees true.
func (r *DrillRepository) DeleteIfUnchanged(slot *models.DrillSlot) (bool, error) {
	res := r.db.
		Where("id = ? AND end_time = ?", slot.ID, slot.EndTime).
		Delete(&models.DrillSlot{})
	if res.Error != nil {
		return false, fmt.Errorf("failed to delete drill slot %d for %s: %w", slot.SlotIndex, slot.UserID, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// CountMatured returns how many of a user's drills are claimable at the
// given instant.
func (r *DrillRepository) CountMatured(userID string, now time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&models.DrillSlot{}).
		Where("user_id = ? AND end_time <= ?", userID, now).
		Count(&count).Error
	return count, err
}
