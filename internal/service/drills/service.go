// Package drills manages the per-user slot grid of timed training drills.
package drills

import (
	"context"
	"fmt"
	"time"

	"github.com/praxislms/progression-engine/internal/catalog"
	"github.com/praxislms/progression-engine/internal/metrics"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/internal/repository"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// Slot statuses reported by GetSlots.
const (
	StatusEmpty     = "empty"
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// SlotView is one entry of the 9-slot grid: the stored drill, if any, plus
// its computed status at read time.
type SlotView struct {
	SlotIndex int               `json:"slot_index"`
	Status    string            `json:"status"`
	Drill     *models.DrillSlot `json:"drill,omitempty"`
}

// Repository interface for drill slot operations.
type Repository interface {
	GetSlots(userID string) ([]models.DrillSlot, error)
	GetSlot(userID string, slotIndex int) (*models.DrillSlot, error)
	Upsert(slot *models.DrillSlot) error
	DeleteIfUnchanged(slot *models.DrillSlot) (bool, error)
}

// LedgerService interface for reward payouts.
type LedgerService interface {
	CreditOrQueue(ctx context.Context, userID string, coins, xp int64, reference, source string) *models.LedgerBalance
}

// MissionTracker interface for progress events emitted by drills.
type MissionTracker interface {
	RecordProgress(ctx context.Context, userID string, activity progression.ActivityType, amount int) error
}

// StatsRepository interface for cumulative counters.
type StatsRepository interface {
	Increment(userID, column string, delta int64) error
}

// ActivityObserver is notified after a successful claim so streaks and
// achievements can react.
type ActivityObserver interface {
	RecordActivity(ctx context.Context, userID string, activityDate time.Time) error
	EvaluateAchievements(ctx context.Context, userID string) error
}

// Service runs the drill slot state machine: empty, active, matured
// (computed from end time, never stored), then empty again once claimed.
type Service struct {
	repo     Repository
	catalog  *catalog.Catalog
	ledger   LedgerService
	missions MissionTracker
	stats    StatsRepository
	observer ActivityObserver
	now      func() time.Time
	log      *logger.Logger
}

// NewService creates a new drill service.
func NewService(
	repo *repository.DrillRepository,
	cat *catalog.Catalog,
	ledgerSvc LedgerService,
	missionTracker MissionTracker,
	stats *repository.StatsRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		catalog:  cat,
		ledger:   ledgerSvc,
		missions: missionTracker,
		stats:    stats,
		now:      time.Now,
		log:      log,
	}
}

// NewServiceWithInterfaces creates a new drill service with interface dependencies (useful for testing).
func NewServiceWithInterfaces(
	repo Repository,
	cat *catalog.Catalog,
	ledgerSvc LedgerService,
	missionTracker MissionTracker,
	stats StatsRepository,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:     repo,
		catalog:  cat,
		ledger:   ledgerSvc,
		missions: missionTracker,
		stats:    stats,
		now:      time.Now,
		log:      log,
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

// GetSlots returns the full 9-slot grid, merging stored drills with empty
// placeholders for unoccupied indices.
func (s *Service) GetSlots(ctx context.Context, userID string) ([]SlotView, error) {
	rows, err := s.repo.GetSlots(userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	views := make([]SlotView, models.SlotCount)
	for i := range views {
		views[i] = SlotView{SlotIndex: i, Status: StatusEmpty}
	}
	for i := range rows {
		row := &rows[i]
		if row.SlotIndex < 0 || row.SlotIndex >= models.SlotCount {
			continue
		}
		status := StatusActive
		if row.Matured(now) {
			status = StatusCompleted
		}
		views[row.SlotIndex] = SlotView{SlotIndex: row.SlotIndex, Status: status, Drill: row}
	}
	return views, nil
}

// StartDrill places a drill of the given type into a slot. A slot holding a
// matured, unclaimed drill is refused so a pending reward cannot be silently
// discarded; a still-running drill is replaced. The train_unit progress event
// on success is best-effort and never rolls back the start.
func (s *Service) StartDrill(ctx context.Context, userID string, slotIndex int, drillType string) (*models.DrillSlot, error) {
	if slotIndex < 0 || slotIndex >= models.SlotCount {
		return nil, fmt.Errorf("%w: slot index %d out of range [0,%d]", progression.ErrInvalidArgument, slotIndex, models.SlotCount-1)
	}
	archetype := s.catalog.Drill(drillType)
	if archetype == nil {
		return nil, fmt.Errorf("%w: unknown drill type %q", progression.ErrInvalidArgument, drillType)
	}

	now := s.now()
	existing, err := s.repo.GetSlot(userID, slotIndex)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Matured(now) {
		return nil, fmt.Errorf("slot %d: %w", slotIndex, progression.ErrSlotOccupied)
	}

	slot := &models.DrillSlot{
		UserID:    userID,
		SlotIndex: slotIndex,
		DrillType: drillType,
		StartTime: now,
		EndTime:   now.Add(archetype.Duration()),
	}
	if err := s.repo.Upsert(slot); err != nil {
		return nil, err
	}

	metrics.RecordDrillStarted(drillType)
	s.log.Info().
		Str("user_id", userID).
		Int("slot", slotIndex).
		Str("drill_type", drillType).
		Time("end_time", slot.EndTime).
		Msg("Drill started")

	if err := s.missions.RecordProgress(ctx, userID, progression.ActivityTrainUnit, 1); err != nil {
		s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to emit train_unit progress event")
	}

	return slot, nil
}

// ClaimDrillReward pays out a matured drill and empties the slot. The
// conditional row deletion is the commit point: exactly one concurrent
// claimer wins it, and only the winner pays out.
func (s *Service) ClaimDrillReward(ctx context.Context, userID string, slotIndex int) (*models.LedgerBalance, error) {
	if slotIndex < 0 || slotIndex >= models.SlotCount {
		return nil, fmt.Errorf("%w: slot index %d out of range [0,%d]", progression.ErrInvalidArgument, slotIndex, models.SlotCount-1)
	}

	slot, err := s.repo.GetSlot(userID, slotIndex)
	if err != nil {
		metrics.RecordDrillClaim("error")
		return nil, err
	}
	if slot == nil {
		metrics.RecordDrillClaim("not_found")
		return nil, fmt.Errorf("slot %d is empty: %w", slotIndex, progression.ErrNotFound)
	}

	now := s.now()
	if !slot.Matured(now) {
		metrics.RecordDrillClaim("not_finished")
		return nil, fmt.Errorf("drill finishes at %s: %w", slot.EndTime.Format(time.RFC3339), progression.ErrNotFinished)
	}

	archetype := s.catalog.Drill(slot.DrillType)
	if archetype == nil {
		metrics.RecordDrillClaim("error")
		return nil, fmt.Errorf("%w: drill type %q no longer in catalog", progression.ErrInvalidArgument, slot.DrillType)
	}

	deleted, err := s.repo.DeleteIfUnchanged(slot)
	if err != nil {
		metrics.RecordDrillClaim("error")
		return nil, err
	}
	if !deleted {
		// Another claim emptied the slot, or a restart replaced the drill.
		metrics.RecordDrillClaim("not_found")
		return nil, fmt.Errorf("slot %d: %w", slotIndex, progression.ErrNotFound)
	}

	if err := s.stats.Increment(userID, repository.StatDrillsCompleted, 1); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to increment drill counter")
	}

	reference := fmt.Sprintf("drill:%s:%d:%d", userID, slotIndex, slot.EndTime.Unix())
	balance := s.ledger.CreditOrQueue(ctx, userID, archetype.RewardCoins, archetype.RewardXP, reference, "drill")
	metrics.RecordDrillClaim("success")

	s.log.Info().
		Str("user_id", userID).
		Int("slot", slotIndex).
		Str("drill_type", slot.DrillType).
		Int64("coins", archetype.RewardCoins).
		Int64("xp", archetype.RewardXP).
		Msg("Drill reward claimed")

	if archetype.RewardCoins > 0 {
		if err := s.missions.RecordProgress(ctx, userID, progression.ActivityEarnCoins, int(archetype.RewardCoins)); err != nil {
			s.log.Warn().Err(err).Str("user_id", userID).Msg("Failed to propagate earned coins to missions")
		}
	}
	s.notifyClaim(ctx, userID)

	return balance, nil
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
