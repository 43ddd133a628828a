package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/praxislms/progression-engine/internal/models"
)

// LedgerRepository handles coin/XP balance operations. Balances are only
// ever mutated through atomic increment statements; there is no
// read-modify-write path.
type LedgerRepository struct {
	db *DB
}

// NewLedgerRepository creates a new ledger repository.
func NewLedgerRepository(db *DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// GetBalance retrieves a user's balance. A user with no row yet has a zero
// balance, not an error.
func (r *LedgerRepository) GetBalance(userID string) (*models.LedgerBalance, error) {
	var balance models.LedgerBalance
	err := r.db.Where("user_id = ?", userID).First(&balance).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.LedgerBalance{UserID: userID}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get balance for %s: %w", userID, err)
	}
	return &balance, nil
}

// Credit atomically adds coins and xp to a user's balance, creating the row
// on first credit. Concurrent credits for the same user are both reflected:
// the increment is a single conditional UPDATE (coins = coins + delta), never
// a read-then-write pair.
func (r *LedgerRepository) Credit(userID string, coins, xp int64) (*models.LedgerBalance, error) {
	if coins < 0 || xp < 0 {
		return nil, fmt.Errorf("credit deltas must be non-negative (coins=%d xp=%d)", coins, xp)
	}
	if coins == 0 && xp == 0 {
		return r.GetBalance(userID)
	}

	if err := r.increment(userID, coins, xp); err != nil {
		return nil, err
	}
	return r.GetBalance(userID)
}

func (r *LedgerRepository) increment(userID string, coins, xp int64) error {
	res := r.db.Model(&models.LedgerBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"coins": gorm.Expr("coins + ?", coins),
			"xp":    gorm.Expr("xp + ?", xp),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to credit %s: %w", userID, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	// No row yet: create it holding the delta. A concurrent first credit may
	// win the insert; the conflict clause turns that into a no-op and the
	// follow-up increment applies our delta on top.
	create := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&models.LedgerBalance{UserID: userID, Coins: coins, XP: xp})
	if create.Error != nil {
		return fmt.Errorf("failed to create balance for %s: %w", userID, create.Error)
	}
	if create.RowsAffected > 0 {
		return nil
	}

	retry := r.db.Model(&models.LedgerBalance{}).
		Where("user_id = ?", userID).
		Updates(map[string]interface{}{
			"coins": gorm.Expr("coins + ?", coins),
			"xp":    gorm.Expr("xp + ?", xp),
		})
	if retry.Error != nil {
		return fmt.Errorf("failed to credit %s: %w", userID, retry.Error)
	}
	if retry.RowsAffected == 0 {
		return fmt.Errorf("failed to credit %s: balance row vanished", userID)
	}
	return nil
}

// EnqueuePendingCredit records a reward that is owed after a committed claim
// whose credit step failed. The unique reference makes the enqueue idempotent:
// re-enqueueing an already-queued claim is a no-op.
func (r *LedgerRepository) EnqueuePendingCredit(pc *models.PendingCredit) error {
	res := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "reference"}},
		DoNothing: true,
	}).Create(pc)
	if res.Error != nil {
		return fmt.Errorf("failed to enqueue pending credit %s: %w", pc.Reference, res.Error)
	}
	return nil
}

// ListPendingCredits returns queued credits oldest first.
func (r *LedgerRepository) ListPendingCredits(limit int) ([]models.PendingCredit, error) {
	var pending []models.PendingCredit
	err := r.db.Order("created_at ASC").Limit(limit).Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list pending credits: %w", err)
	}
	return pending, nil
}

// RecordPendingAttempt bumps the attempt counter after a failed flush.
func (r *LedgerRepository) RecordPendingAttempt(id uint, lastError string) error {
	return r.db.Model(&models.PendingCredit{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"attempts":   gorm.Expr("attempts + 1"),
			"last_error": lastError,
		}).Error
}

// DeletePendingCredit removes a queued credit once it has been applied.
func (r *LedgerRepository) DeletePendingCredit(id uint) error {
	return r.db.Delete(&models.PendingCredit{}, id).Error
}

// ApplyPendingCredit applies a queued credit and removes it from the queue
// in one transaction, so a retry can never pay the same reference twice.
// Returns false when the queue row was already gone.
func (r *LedgerRepository) ApplyPendingCredit(pc *models.PendingCredit) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&models.PendingCredit{}, pc.ID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Another flusher got here first.
			return nil
		}

		upd := tx.Model(&models.LedgerBalance{}).
			Where("user_id = ?", pc.UserID).
			Updates(map[string]interface{}{
				"coins": gorm.Expr("coins + ?", pc.Coins),
				"xp":    gorm.Expr("xp + ?", pc.XP),
			})
		if upd.Error != nil {
			return upd.Error
		}
		if upd.RowsAffected == 0 {
			create := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "user_id"}},
				DoNothing: true,
			}).Create(&models.LedgerBalance{UserID: pc.UserID, Coins: pc.Coins, XP: pc.XP})
			if create.Error != nil {
				return create.Error
			}
			if create.RowsAffected == 0 {
				retry := tx.Model(&models.LedgerBalance{}).
					Where("user_id = ?", pc.UserID).
					Updates(map[string]interface{}{
						"coins": gorm.Expr("coins + ?", pc.Coins),
						"xp":    gorm.Expr("xp + ?", pc.XP),
					})
				if retry.Error != nil {
					return retry.Error
				}
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to apply pending credit %s: %w", pc.Reference, err)
	}
	return applied, nil
}

// TopBalances returns the highest balances ordered by the given column
// ("coins" or "xp").
func (r *LedgerRepository) TopBalances(orderBy string, limit int) ([]models.LedgerBalance, error) {
	if orderBy != "coins" && orderBy != "xp" {
		return nil, fmt.Errorf("unknown leaderboard metric %q", orderBy)
	}
	var balances []models.LedgerBalance
	err := r.db.Order(orderBy + " DESC").Limit(limit).Find(&balances).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list top balances: %w", err)
	}
	return balances, nil
}

// CountPendingCredits returns the current queue depth.
func (r *LedgerRepository) CountPendingCredits() (int64, error) {
	var count int64
	err := r.db.Model(&models.PendingCredit{}).Count(&count).Error
	return count, err
}
