package models

import "time"

// SlotCount is the fixed number of drill slots per user.
const SlotCount = 9

// DrillSlot holds one in-flight timed drill for a user. At most one row
// exists per (user, slot index); a successful claim deletes the row, which
// is the slot's empty state. "Matured" is computed from EndTime, never
// stored.
type DrillSlot struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UserID          string    `gorm:"not null;size:64;uniqueIndex:idx_user_slot" json:"user_id"`
	SlotIndex       int       `gorm:"not null;uniqueIndex:idx_user_slot" json:"slot_index"`
	DrillType       string    `gorm:"not null;size:64" json:"drill_type"`
	StartTime       time.Time `gorm:"not null" json:"start_time"`
	EndTime         time.Time `gorm:"not null" json:"end_time"`
	IsRewardClaimed bool      `gorm:"not null;default:false" json:"is_reward_claimed"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// TableName specifies the table name for DrillSlot model.
func (DrillSlot) TableName() string {
	return "drill_slots"
}

// Matured reports whether the drill has run to completion at the given
// instant and its reward is claimable.
func (d *DrillSlot) Matured(now time.Time) bool {
	return !now.Before(d.EndTime)
}
