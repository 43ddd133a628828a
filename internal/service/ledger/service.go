// Package ledger owns coin and XP balances. It is the only component that
// mutates them; every reward path in the engine pays out through Credit.
package ledger

import (
	"context"
	"fmt"

	"github.com/praxislms/progression-engine/internal/metrics"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/repository"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// flushBatchSize bounds how many queued credits one flush run processes.
const flushBatchSize = 100

// Repository interface for ledger operations.
type Repository interface {
	GetBalance(userID string) (*models.LedgerBalance, error)
	Credit(userID string, coins, xp int64) (*models.LedgerBalance, error)
	EnqueuePendingCredit(pc *models.PendingCredit) error
	ListPendingCredits(limit int) ([]models.PendingCredit, error)
	RecordPendingAttempt(id uint, lastError string) error
	ApplyPendingCredit(pc *models.PendingCredit) (bool, error)
	CountPendingCredits() (int64, error)
}

// Service applies reward payouts to balances and owns the pending-credit
// retry queue for credits whose claim already committed.
type Service struct {
	repo Repository
	log  *logger.Logger
}

// NewService creates a new ledger service.
func NewService(repo *repository.LedgerRepository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// NewServiceWithInterfaces creates a new ledger service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(repo Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// GetBalance returns a user's current balance; users without activity have a
// zero balance.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetBalance(ctx context.Context, userID string) (*models.LedgerBalance, error) {
	return s.repo.GetBalance(userID)
}

// Credit atomically adds coins and xp to a user's balance. A zero-delta
// credit is a no-op returning the current balance.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) Credit(ctx context.Context, userID string, coins, xp int64, source string) (*models.LedgerBalance, error) {
	balance, err := s.repo.Credit(userID, coins, xp)
	if err != nil {
		return nil, err
	}
	if coins > 0 || xp > 0 {
		metrics.RecordCredit(source, coins)
		s.log.Debug().
			Str("user_id", userID).
			Int64("coins", coins).
			Int64("xp", xp).
			Str("source", source).
			Msg("Ledger credited")
	}
	return balance, nil
}

// CreditOrQueue credits a reward whose claim has already committed. When the
// credit fails the reward is still owed, so it is queued for retry under the
// claim's unique reference instead of being dropped; the returned balance is
// nil in that case but no error is surfaced to the claimer.
func (s *Service) CreditOrQueue(ctx context.Context, userID string, coins, xp int64, reference, source string) *models.LedgerBalance {
	balance, err := s.Credit(ctx, userID, coins, xp, source)
	if err == nil {
		return balance
	}

	s.log.Warn().
		Err(err).
		Str("user_id", userID).
		Str("reference", reference).
		Msg("Credit failed after committed claim, queueing for retry")

	if qerr := s.repo.EnqueuePendingCredit(&models.PendingCredit{
		UserID:    userID,
		Coins:     coins,
		XP:        xp,
		Reference: reference,
		LastError: err.Error(),
	}); qerr != nil {
		// Both the credit and the queue write failed. The claim remains the
		// durable proof the reward is owed; log loudly for manual follow-up.
		s.log.Error().
			Err(qerr).
			Str("user_id", userID).
			Str("reference", reference).
			Int64("coins", coins).
			Int64("xp", xp).
			Msg("Failed to queue pending credit")
	}
	return nil
}

// FlushPending retries queued credits. Each applied credit is deleted from
// the queue; failures bump the attempt counter and stay queued. Returns the
// number of credits applied.
func (s *Service) FlushPending(ctx context.Context) (int, error) {
	pending, err := s.repo.ListPendingCredits(flushBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending credits: %w", err)
	}

	applied := 0
	for i := range pending {
		pc := &pending[i]
		ok, err := s.repo.ApplyPendingCredit(pc)
		if err != nil {
			s.log.Warn().
				Err(err).
				Str("reference", pc.Reference).
				Int("attempts", pc.Attempts+1).
				Msg("Pending credit retry failed")
			if aerr := s.repo.RecordPendingAttempt(pc.ID, err.Error()); aerr != nil {
				s.log.Error().Err(aerr).Str("reference", pc.Reference).Msg("Failed to record retry attempt")
			}
			continue
		}
		if !ok {
			// Another flusher applied it.
			continue
		}

		applied++
		metrics.RecordCredit("pending_retry", pc.Coins)
		s.log.Info().
			Str("user_id", pc.UserID).
			Str("reference", pc.Reference).
			Int64("coins", pc.Coins).
			Int64("xp", pc.XP).
			Msg("Pending credit applied")
	}

	if count, cerr := s.repo.CountPendingCredits(); cerr == nil {
		metrics.SetPendingCredits(count)
	}

	return applied, nil
}
