// Package scheduler runs the engine's background jobs: flushing the
// pending-credit queue and sweeping achievements for recently active users.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/praxislms/progression-engine/internal/config"
	prommetrics "github.com/praxislms/progression-engine/internal/metrics"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// sweepWindow bounds how far back the achievement sweep looks for activity.
const sweepWindow = 48 * time.Hour

// CreditFlusher retries queued reward credits.
type CreditFlusher interface {
	FlushPending(ctx context.Context) (int, error)
}

// AchievementSweeper re-evaluates achievements for a single user.
type AchievementSweeper interface {
	EvaluateAchievements(ctx context.Context, userID string) error
}

// ActivityLister reports users with recent stat updates.
type ActivityLister interface {
	RecentlyActive(since time.Time) ([]string, error)
}

// Service handles background job scheduling.
type Service struct {
	config   *config.Config
	ledger   CreditFlusher
	streaks  AchievementSweeper
	activity ActivityLister
	log      *logger.Logger
	cron     *cron.Cron
}

// NewService creates a new scheduler service.
func NewService(
	cfg *config.Config,
	ledger CreditFlusher,
	streaks AchievementSweeper,
	activity ActivityLister,
	log *logger.Logger,
) *Service {
	return &Service{
		config:   cfg,
		ledger:   ledger,
		streaks:  streaks,
		activity: activity,
		log:      log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Scheduler.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := time.LoadLocation(s.config.Scheduler.Timezone)
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Scheduler.Timezone, err)
	}

	s.cron = cron.New(cron.WithLocation(location))

	_, err = s.cron.AddFunc(s.config.Scheduler.CreditFlushSchedule, func() {
		s.runCreditFlush(context.Background())
	})
	if err != nil {
		return fmt.Errorf("failed to register credit flush job: %w", err)
	}

	if s.config.Scheduler.AchievementSweepSchedule != "" && s.streaks != nil {
		_, err = s.cron.AddFunc(s.config.Scheduler.AchievementSweepSchedule, func() {
			s.runAchievementSweep(context.Background())
		})
		if err != nil {
			return fmt.Errorf("failed to register achievement sweep job: %w", err)
		}
		s.log.Info().
			Str("schedule", s.config.Scheduler.AchievementSweepSchedule).
			Msg("Achievement sweep job registered")
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}

	s.log.Info().
		Str("credit_flush_schedule", s.config.Scheduler.CreditFlushSchedule).
		Str("timezone", s.config.Scheduler.Timezone).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler.
func (s *Service) Stop() {
	if s.cron != nil {
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// runCreditFlush retries every queued credit once.
func (s *Service) runCreditFlush(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJob("credit_flush", time.Since(start))
	}()

	s.log.Debug().Msg("Running credit flush job")

	applied, err := s.ledger.FlushPending(ctx)
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Credit flush job failed")
		return
	}

	if applied > 0 {
		s.log.Info().
			Int("applied", applied).
			Dur("duration", time.Since(start)).
			Msg("Credit flush job completed")
	}
}

// runAchievementSweep re-evaluates achievements for users active inside the
// sweep window. It catches unlocks missed when an inline evaluation failed.
func (s *Service) runAchievementSweep(ctx context.Context) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJob("achievement_sweep", time.Since(start))
	}()

	s.log.Info().Msg("Running achievement sweep job")

	userIDs, err := s.activity.RecentlyActive(start.Add(-sweepWindow))
	if err != nil {
		s.log.Error().
			Err(err).
			Dur("duration", time.Since(start)).
			Msg("Achievement sweep job failed to list active users")
		return
	}

	var failures int
	for _, userID := range userIDs {
		if err := s.streaks.EvaluateAchievements(ctx, userID); err != nil {
			failures++
			s.log.Warn().
				Err(err).
				Str("user_id", userID).
				Msg("Achievement sweep failed for user")
		}
	}

	s.log.Info().
		Int("users", len(userIDs)).
		Int("failures", failures).
		Dur("duration", time.Since(start)).
		Msg("Achievement sweep job completed")
}
