package streaks

import (
	"context"
	"fmt"
	"time"

	"github.com/praxislms/progression-engine/internal/catalog"
	"github.com/praxislms/progression-engine/internal/metrics"
	"github.com/praxislms/progression-engine/internal/models"
)

// AchievementView combines a catalog definition with the user's progress
// toward it.
type AchievementView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	Metric      string     `json:"metric"`
	Threshold   int64      `json:"threshold"`
	RewardCoins int64      `json:"reward_coins"`
	RewardXP    int64      `json:"reward_xp"`
	Progress    int64      `json:"progress"`
	Earned      bool       `json:"earned"`
	EarnedAt    *time.Time `json:"earned_at,omitempty"`
}

// GetAchievements returns the full achievement list for a user, including
// definitions they have made no progress toward.
//
//nolint:revive // ctx reserved for future context-aware operations (tracing, cancellation)
func (s *Service) GetAchievements(ctx context.Context, userID string) ([]AchievementView, error) {
	rows, err := s.achievements.GetForUser(userID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]*models.AchievementProgress, len(rows))
	for i := range rows {
		byID[rows[i].AchievementID] = &rows[i]
	}

	views := make([]AchievementView, 0, len(s.catalog.Achievements))
	for i := range s.catalog.Achievements {
		def := &s.catalog.Achievements[i]
		view := AchievementView{
			ID:          def.ID,
			Name:        def.Name,
			Description: def.Description,
			Metric:      def.Metric,
			Threshold:   def.Threshold,
			RewardCoins: def.RewardCoins,
			RewardXP:    def.RewardXP,
		}
		if row, ok := byID[def.ID]; ok {
			view.Progress = row.Progress
			view.Earned = row.Earned()
			view.EarnedAt = row.EarnedAt
		}
		views = append(views, view)
	}
	return views, nil
}

// EvaluateAchievements recomputes every achievement metric for a user and
// unlocks any whose threshold has been crossed. Unlocking is exactly-once:
// the conditional earned_at write decides the winner under concurrent
// evaluation, and only the winner is credited.
func (s *Service) EvaluateAchievements(ctx context.Context, userID string) error {
	stats, err := s.stats.Get(userID)
	if err != nil {
		return err
	}
	record, err := s.streaks.Get(userID)
	if err != nil {
		return err
	}
	balance, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return err
	}

	rows, err := s.achievements.GetForUser(userID)
	if err != nil {
		return err
	}
	earned := make(map[string]bool, len(rows))
	for i := range rows {
		if rows[i].Earned() {
			earned[rows[i].AchievementID] = true
		}
	}

	var firstErr error
	for i := range s.catalog.Achievements {
		def := &s.catalog.Achievements[i]
		if earned[def.ID] {
			continue
		}

		value := metricValue(def.Metric, stats, record, balance)
		if err := s.achievements.UpsertProgress(userID, def.ID, value); err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("achievement %s: %w", def.ID, err)
			}
			continue
		}
		if value < def.Threshold {
			continue
		}

		won, err := s.achievements.MarkEarned(userID, def.ID, s.now().UTC())
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("achievement %s: %w", def.ID, err)
			}
			continue
		}
		if !won {
			continue
		}

		metrics.RecordAchievementUnlocked(def.ID)
		s.log.Info().
			Str("user_id", userID).
			Str("achievement_id", def.ID).
			Int64("coins", def.RewardCoins).
			Int64("xp", def.RewardXP).
			Msg("Achievement unlocked")

		if def.RewardCoins > 0 || def.RewardXP > 0 {
			reference := fmt.Sprintf("achievement:%s:%s", userID, def.ID)
			s.ledger.CreditOrQueue(ctx, userID, def.RewardCoins, def.RewardXP, reference, "achievement")
		}
	}
	return firstErr
}

// metricValue resolves an achievement metric against the user's current
// state. Unknown metrics evaluate to zero; Load already rejects them.
func metricValue(metric string, stats *models.UserStats, record *models.StreakRecord, balance *models.LedgerBalance) int64 {
	switch metric {
	case catalog.MetricDrillsCompleted:
		return stats.DrillsCompleted
	case catalog.MetricMissionsClaimed:
		return stats.MissionsClaimed
	case catalog.MetricLessonsCompleted:
		return stats.LessonsCompleted
	case catalog.MetricMatchesPlayed:
		return stats.MatchesPlayed
	case catalog.MetricLongestStreak:
		if record == nil {
			return 0
		}
		return int64(record.LongestStreak)
	case catalog.MetricCoinsEarned:
		return balance.Coins
	case catalog.MetricXPEarned:
		return balance.XP
	}
	return 0
}
