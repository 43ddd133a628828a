// Package models defines domain models for the progression and reward engine.
package models

import "time"

// LedgerBalance holds a user's coin and XP balances. It is the only place
// balances live; all mutations go through the ledger service. Rows are
// created lazily on the first credit and never go negative (no debit path).
type LedgerBalance struct {
	UserID    string    `gorm:"primaryKey;size:64" json:"user_id"`
	Coins     int64     `gorm:"not null;default:0" json:"coins"`
	XP        int64     `gorm:"not null;default:0" json:"xp"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for LedgerBalance model.
func (LedgerBalance) TableName() string {
	return "ledger_balances"
}

// PendingCredit records a reward that is owed but not yet applied: the claim
// committed, the credit step failed. Reference is unique per claim so a retry
// can never pay the same claim twice.
type PendingCredit struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"not null;index;size:64" json:"user_id"`
	Coins     int64     `gorm:"not null" json:"coins"`
	XP        int64     `gorm:"not null" json:"xp"`
	Reference string    `gorm:"uniqueIndex;not null;size:128" json:"reference"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	LastError string    `gorm:"type:text" json:"last_error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for PendingCredit model.
func (PendingCredit) TableName() string {
	return "pending_credits"
}
