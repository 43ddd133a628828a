package missions

import (
	"context"
	"fmt"
	"time"

	"github.com/praxislms/progression-engine/internal/metrics"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/internal/repository"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// progressRetries bounds attempts when a conditional progress write loses a
// race and has to re-read.
const progressRetries = 3

// Repository interface for mission row operations.
type Repository interface {
	CreateBatch(missions []models.Mission) error
	GetActive(userID string, now time.Time) ([]models.Mission, error)
	GetMatching(userID string, activityType progression.ActivityType, now time.Time) ([]models.Mission, error)
	GetByID(missionID uint, userID string) (*models.Mission, error)
	UpdateProgress(missionID uint, fromProgress, toProgress int) (bool, error)
	Claim(missionID uint, userID string) (bool, error)
}

// LedgerService interface for reward payouts.
type LedgerService interface {
	CreditOrQueue(ctx context.Context, userID string, coins, xp int64, reference, source string) *models.LedgerBalance
}

// StatsRepository interface for cumulative counters.
type StatsRepository interface {
	Increment(userID, column string, delta int64) error
}

// ActivityObserver is notified after a successful claim so streaks and
// achievements can react. Notification failures never fail the claim.
type ActivityObserver interface {
	RecordActivity(ctx context.Context, userID string, activityDate time.Time) error
	EvaluateAchievements(ctx context.Context, userID string) error
}

// Service generates daily mission sets and advances and claims missions.
type Service struct {
	repo     Repository
	ledger   LedgerService
	stats    StatsRepository
	gen      *Generator
	observer ActivityObserver
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new mission service.
func NewService(
	repo *repository.MissionRepository,
	ledgerSvc LedgerService,
	stats *repository.StatsRepository,
	gen *Generator,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:   repo,
		ledger: ledgerSvc,
		stats:  stats,
		gen:    gen,
		now:    time.Now,
		log:    log,
	}
}

// NewServiceWithInterfaces creates a new mission service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	repo Repository,
	ledgerSvc LedgerService,
	stats StatsRepository,
	gen *Generator,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:   repo,
		ledger: ledgerSvc,
		stats:  stats,
		gen:    gen,
		now:    time.Now,
		log:    log,
	}
}

// SetObserver registers the streak/achievement hook invoked after claims.
func (s *Service) SetObserver(obs ActivityObserver) {
	s.observer = obs
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetActiveMissions returns the user's non-expired missions, unclaimed
// first, generating a fresh daily set when none exist.
func (s *Service) GetActiveMissions(ctx context.Context, userID string) ([]models.Mission, error) {
	now := s.now()

	missions, err := s.repo.GetActive(userID, now)
	if err != nil {
		return nil, err
	}
	if len(missions) > 0 {
		return missions, nil
	}

	generated := s.gen.Generate(userID, now)
	if err := s.repo.CreateBatch(generated); err != nil {
		// A concurrent request may have generated the same cycle; the unique
		// cycle key rejects the duplicate set. Re-read before giving up.
		existing, rerr := s.repo.GetActive(userID, now)
		if rerr == nil && len(existing) > 0 {
			return existing, nil
		}
		return nil, fmt.Errorf("failed to generate missions for %s: %w", userID, err)
	}

	for _, m := range generated {
		metrics.RecordMissionGenerated(m.Type.String())
	}
	s.log.Info().
		Str("user_id", userID).
		Int("count", len(generated)).
		Time("expires_at", generated[0].ExpiresAt).
		Msg("Generated daily missions")

	return s.repo.GetActive(userID, now)
}

// RecordProgress advances every active, unclaimed mission matching the
// activity type. Progress is clamped at the target; a mission whose progress
// would not change is skipped. Safe under concurrent triggers: each row write
// is conditioned on the prior progress value and retried on conflict.
func (s *Service) RecordProgress(ctx context.Context, userID string, activity progression.ActivityType, amount int) error {
	if !activity.Valid() {
		return fmt.Errorf("%w: unknown activity type %q", progression.ErrInvalidArgument, activity)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: progress amount must be positive", progression.ErrInvalidArgument)
	}

	now := s.now()
	missions, err := s.repo.GetMatching(userID, activity, now)
	if err != nil {
		return err
	}

	for i := range missions {
		if err := s.advance(&missions[i], amount, now); err != nil {
			s.log.Error().
				Err(err).
				Uint("mission_id", missions[i].ID).
				Str("user_id", userID).
				Msg("Failed to record mission progress")
		}
	}
	return nil
}

// advance applies one progress increment to a mission with bounded
// conditional-write retries.
func (s *Service) advance(m *models.Mission, amount int, now time.Time) error {
	for attempt := 0; attempt < progressRetries; attempt++ {
		target := m.TargetCount
		next := m.CurrentProgress + amount
		if next > target {
			next = target
		}
		if next == m.CurrentProgress {
			return nil
		}

		ok, err := s.repo.UpdateProgress(m.ID, m.CurrentProgress, next)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		// Lost the race; re-read and retry from the fresh state.
		fresh, err := s.repo.GetByID(m.ID, m.UserID)
		if err != nil {
			return err
		}
		if !fresh.Active(now) {
			return nil
		}
		*m = *fresh
	}
	return fmt.Errorf("mission %d: %w", m.ID, progression.ErrConflict)
}

// ClaimMission pays out a completed mission exactly once. The claim flag
// flip is the commit point; the credit is retried independently if it fails
// afterwards.
func (s *Service) ClaimMission(ctx context.Context, missionID uint, userID string) (*models.Mission, error) {
	mission, err := s.repo.GetByID(missionID, userID)
	if err != nil {
		metrics.RecordMissionClaim("not_found")
		return nil, err
	}
	if mission.IsClaimed {
		metrics.RecordMissionClaim("already_claimed")
		return nil, progression.ErrAlreadyClaimed
	}
	if !mission.Completed() {
		metrics.RecordMissionClaim("incomplete")
		return nil, progression.ErrIncomplete
	}

	ok, err := s.repo.Claim(missionID, userID)
	if err != nil {
		metrics.RecordMissionClaim("error")
		return nil, err
	}
	if !ok {
		// A concurrent claim flipped the flag first.
		metrics.RecordMissionClaim("already_claimed")
		return nil, progression.ErrAlreadyClaimed
	}
	mission.IsClaimed = true

	if err := s.stats.Increment(userID, repository.StatMissionsClaimed, 1); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to increment mission claim counter")
	}

	reference := fmt.Sprintf("mission:%d", missionID)
	s.ledger.CreditOrQueue(ctx, userID, mission.RewardCoins, mission.RewardXP, reference, "mission")
	metrics.RecordMissionClaim("success")

	s.log.Info().
		Str("user_id", userID).
		Uint("mission_id", missionID).
		Int64("coins", mission.RewardCoins).
		Int64("xp", mission.RewardXP).
		Msg("Mission claimed")

	// Earned coins advance coin-earning missions; the claim is also a
	// streak-qualifying activity. Both are best-effort.
	if mission.RewardCoins > 0 {
		if err := s.RecordProgress(ctx, userID, progression.ActivityEarnCoins, int(mission.RewardCoins)); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to propagate earned coins to missions")
		}
	}
	s.notifyClaim(ctx, userID)

	return mission, nil
}

func (s *Service) notifyClaim(ctx context.Context, userID string) {
	if s.observer == nil {
		return
	}
	if err := s.observer.RecordActivity(ctx, userID, s.now()); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to record streak activity")
	}
	if err := s.observer.EvaluateAchievements(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to evaluate achievements")
	}
}
