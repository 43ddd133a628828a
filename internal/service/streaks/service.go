// Package streaks tracks daily activity streaks and unlocks achievements
// derived from cumulative user statistics.
package streaks

import (
	"context"
	"fmt"
	"time"

	"github.com/praxislms/progression-engine/internal/catalog"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/internal/repository"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// streakRetries bounds attempts when a conditional streak write loses a race.
const streakRetries = 3

// StreakRepository interface for streak record operations.
type StreakRepository interface {
	Get(userID string) (*models.StreakRecord, error)
	Create(record *models.StreakRecord) (bool, error)
	UpdateIfUnchanged(record *models.StreakRecord, observedDate time.Time) (bool, error)
}

// AchievementRepository interface for achievement progress operations.
type AchievementRepository interface {
	GetForUser(userID string) ([]models.AchievementProgress, error)
	UpsertProgress(userID, achievementID string, progress int64) error
	MarkEarned(userID, achievementID string, at time.Time) (bool, error)
}

// StatsRepository interface for cumulative counters.
type StatsRepository interface {
	Get(userID string) (*models.UserStats, error)
	Increment(userID, column string, delta int64) error
}

// LedgerService interface for balances and achievement payouts.
type LedgerService interface {
	GetBalance(ctx context.Context, userID string) (*models.LedgerBalance, error)
	CreditOrQueue(ctx context.Context, userID string, coins, xp int64, reference, source string) *models.LedgerBalance
}

// Service derives streaks and achievements from the engine's event stream.
type Service struct {
	streaks      StreakRepository
	achievements AchievementRepository
	stats        StatsRepository
	ledger       LedgerService
	catalog      *catalog.Catalog
	loc          *time.Location
	now          func() time.Time
	log          *logger.Logger
}

// NewService creates a new streak and achievement service.
func NewService(
	streakRepo *repository.StreakRepository,
	achievementRepo *repository.AchievementRepository,
	statsRepo *repository.StatsRepository,
	ledgerSvc LedgerService,
	cat *catalog.Catalog,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	return &Service{
		streaks:      streakRepo,
		achievements: achievementRepo,
		stats:        statsRepo,
		ledger:       ledgerSvc,
		catalog:      cat,
		loc:          loc,
		now:          time.Now,
		log:          log,
	}
}

// NewServiceWithInterfaces creates a new streak service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	streakRepo StreakRepository,
	achievementRepo AchievementRepository,
	statsRepo StatsRepository,
	ledgerSvc LedgerService,
	cat *catalog.Catalog,
	loc *time.Location,
	log *logger.Logger,
) *Service {
	return &Service{
		streaks:      streakRepo,
		achievements: achievementRepo,
		stats:        statsRepo,
		ledger:       ledgerSvc,
		catalog:      cat,
		loc:          loc,
		now:          time.Now,
		log:          log,
	}
}

// SetClock overrides the time source. Used by tests.
func (s *Service) SetClock(now func() time.Time) {
	s.now = now
}

// GetStreak returns a user's streak record; users with no activity have a
// zero streak.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetStreak(ctx context.Context, userID string) (*models.StreakRecord, error) {
	record, err := s.streaks.Get(userID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return &models.StreakRecord{UserID: userID}, nil
	}
	return record, nil
}

// RecordActivity advances the daily streak for one qualifying activity.
// Same-day repeats are no-ops, which makes the call idempotent within a
// calendar day; a one-day gap increments, anything else resets to 1.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) RecordActivity(ctx context.Context, userID string, activityDate time.Time) error {
	day := dateOnly(activityDate, s.loc)

	for attempt := 0; attempt < streakRetries; attempt++ {
		record, err := s.streaks.Get(userID)
		if err != nil {
			return err
		}

		if record == nil {
			created, err := s.streaks.Create(&models.StreakRecord{
				UserID:           userID,
				CurrentStreak:    1,
				LongestStreak:    1,
				LastActivityDate: day,
			})
			if err != nil {
				return err
			}
			if created {
				return nil
			}
			// A concurrent first activity created the row; re-read.
			continue
		}

		last := dateOnly(record.LastActivityDate, s.loc)
		var current int
		switch {
		case last.Equal(day):
			return nil
		case last.AddDate(0, 0, 1).Equal(day):
			current = record.CurrentStreak + 1
		default:
			current = 1
		}

		longest := record.LongestStreak
		if current > longest {
			longest = current
		}

		ok, err := s.streaks.UpdateIfUnchanged(&models.StreakRecord{
			UserID:           userID,
			CurrentStreak:    current,
			LongestStreak:    longest,
			LastActivityDate: day,
		}, record.LastActivityDate)
		if err != nil {
			return err
		}
		if ok {
			s.log.Debug().
				Str("user_id", userID).
				Int("current_streak", current).
				Int("longest_streak", longest).
				Msg("Streak advanced")
			return nil
		}
	}
	return fmt.Errorf("streak for %s: %w", userID, progression.ErrConflict)
}

// RecordActivityEvent handles one external activity event end to end:
// cumulative counter, streak day, achievement evaluation. Mission progress
// is the mission tracker's job and is not touched here.
func (s *Service) RecordActivityEvent(ctx context.Context, userID string, activity progression.ActivityType, amount int, at time.Time) error {
	if !activity.Valid() {
		return fmt.Errorf("%w: unknown activity type %q", progression.ErrInvalidArgument, activity)
	}
	if amount <= 0 {
		return fmt.Errorf("%w: activity amount must be positive", progression.ErrInvalidArgument)
	}

	if column := statColumnFor(activity); column != "" {
		if err := s.stats.Increment(userID, column, int64(amount)); err != nil {
			return err
		}
	}

	if err := s.RecordActivity(ctx, userID, at); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to advance streak")
	}
	if err := s.EvaluateAchievements(ctx, userID); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to evaluate achievements")
	}
	return nil
}

// statColumnFor maps an activity type to its cumulative counter. Coin
// earnings are tracked by the ledger itself, not a counter.
func statColumnFor(activity progression.ActivityType) string {
	switch activity {
	case progression.ActivityTrainUnit:
		return repository.StatDrillsCompleted
	case progression.ActivityCompleteLesson:
		return repository.StatLessonsCompleted
	case progression.ActivityPlayMatch:
		return repository.StatMatchesPlayed
	default:
		return ""
	}
}

// dateOnly truncates t to its calendar day in the engine's timezone.
func dateOnly(t time.Time, loc *time.Location) time.Time {
	local := t.In(loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
}
