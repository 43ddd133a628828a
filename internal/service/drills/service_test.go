package drills

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/praxislms/progression-engine/internal/catalog"
	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// Mock dependencies for testing

type mockDrillRepository struct {
	slots  map[int]*models.DrillSlot // slotIndex -> row, single test user
	nextID uint
}

func newMockDrillRepository() *mockDrillRepository {
	return &mockDrillRepository{
		slots:  make(map[int]*models.DrillSlot),
		nextID: 1,
	}
}

func (m *mockDrillRepository) GetSlots(userID string) ([]models.DrillSlot, error) {
	var result []models.DrillSlot
	for i := 0; i < models.SlotCount; i++ {
		if slot, ok := m.slots[i]; ok && slot.UserID == userID {
			result = append(result, *slot)
		}
	}
	return result, nil
}

func (m *mockDrillRepository) GetSlot(userID string, slotIndex int) (*models.DrillSlot, error) {
	slot, ok := m.slots[slotIndex]
	if !ok || slot.UserID != userID {
		return nil, nil
	}
	copied := *slot
	return &copied, nil
}

func (m *mockDrillRepository) Upsert(slot *models.DrillSlot) error {
	if existing, ok := m.slots[slot.SlotIndex]; ok {
		slot.ID = existing.ID
	} else {
		slot.ID = m.nextID
		m.nextID++
	}
	copied := *slot
	m.slots[slot.SlotIndex] = &copied
	return nil
}

func (m *mockDrillRepository) DeleteIfUnchanged(slot *models.DrillSlot) (bool, error) {
	existing, ok := m.slots[slot.SlotIndex]
	if !ok || existing.ID != slot.ID || !existing.EndTime.Equal(slot.EndTime) {
		return false, nil
	}
	delete(m.slots, slot.SlotIndex)
	return true, nil
}

type creditCall struct {
	coins     int64
	xp        int64
	reference string
	source    string
}

type mockLedgerService struct {
	credits []creditCall
}

func (m *mockLedgerService) CreditOrQueue(_ context.Context, userID string, coins, xp int64, reference, source string) *models.LedgerBalance {
	m.credits = append(m.credits, creditCall{coins, xp, reference, source})
	var total models.LedgerBalance
	total.UserID = userID
	for _, c := range m.credits {
		total.Coins += c.coins
		total.XP += c.xp
	}
	return &total
}

type progressCall struct {
	activity progression.ActivityType
	amount   int
}

type mockMissionTracker struct {
	calls []progressCall
}

func (m *mockMissionTracker) RecordProgress(_ context.Context, _ string, activity progression.ActivityType, amount int) error {
	m.calls = append(m.calls, progressCall{activity, amount})
	return nil
}

type mockStatsRepository struct {
	counters map[string]int64
}

func newMockStatsRepository() *mockStatsRepository {
	return &mockStatsRepository{counters: make(map[string]int64)}
}

func (m *mockStatsRepository) Increment(userID, column string, delta int64) error {
	m.counters[userID+"/"+column] += delta
	return nil
}

// Test setup helper
func setupTestService(t *testing.T) (*Service, *mockDrillRepository, *mockLedgerService, *mockMissionTracker, *mockStatsRepository) {
	t.Helper()

	cat, err := catalog.Load("")
	if err != nil {
		t.Fatalf("Failed to load catalog: %v", err)
	}

	repo := newMockDrillRepository()
	ledgerSvc := &mockLedgerService{}
	tracker := &mockMissionTracker{}
	stats := newMockStatsRepository()
	log := logger.New("debug", "text", "stdout")

	service := NewServiceWithInterfaces(repo, cat, ledgerSvc, tracker, stats, log)
	return service, repo, ledgerSvc, tracker, stats
}

func TestGetSlots_EmptyGrid(t *testing.T) {
	service, _, _, _, _ := setupTestService(t)

	slots, err := service.GetSlots(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetSlots() failed: %v", err)
	}
	if len(slots) != models.SlotCount {
		t.Fatalf("Expected %d slots, got %d", models.SlotCount, len(slots))
	}
	for i, slot := range slots {
		if slot.SlotIndex != i {
			t.Errorf("Slot %d: expected index %d, got %d", i, i, slot.SlotIndex)
		}
		if slot.Status != StatusEmpty {
			t.Errorf("Slot %d: expected empty, got %s", i, slot.Status)
		}
	}
}

// TestDrillLifecycle walks a drill through its whole life: start, claim too
// early, mature, claim, slot empty again.
func TestDrillLifecycle(t *testing.T) {
	service, _, ledgerSvc, tracker, stats := setupTestService(t)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := base
	service.SetClock(func() time.Time { return clock })

	// Start a 60-second drill in slot 0.
	slot, err := service.StartDrill(context.Background(), "alice", 0, "speed_ladder")
	if err != nil {
		t.Fatalf("StartDrill() failed: %v", err)
	}
	if !slot.EndTime.Equal(base.Add(60 * time.Second)) {
		t.Errorf("Expected end time 60s after start, got %v", slot.EndTime)
	}

	// Starting emits the training progress event.
	if len(tracker.calls) != 1 || tracker.calls[0].activity != progression.ActivityTrainUnit || tracker.calls[0].amount != 1 {
		t.Errorf("Expected one train_unit progress event, got %+v", tracker.calls)
	}

	// The grid shows the drill as active.
	views, err := service.GetSlots(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetSlots() failed: %v", err)
	}
	if views[0].Status != StatusActive {
		t.Errorf("Expected slot 0 active, got %s", views[0].Status)
	}

	// Claiming before maturity is refused and pays nothing.
	if _, err := service.ClaimDrillReward(context.Background(), "alice", 0); !errors.Is(err, progression.ErrNotFinished) {
		t.Fatalf("Expected ErrNotFinished, got %v", err)
	}
	if len(ledgerSvc.credits) != 0 {
		t.Fatalf("Expected no credit before maturity, got %d", len(ledgerSvc.credits))
	}

	// After the drill matures the claim succeeds with the archetype reward.
	clock = base.Add(61 * time.Second)

	views, _ = service.GetSlots(context.Background(), "alice")
	if views[0].Status != StatusCompleted {
		t.Errorf("Expected slot 0 completed, got %s", views[0].Status)
	}

	balance, err := service.ClaimDrillReward(context.Background(), "alice", 0)
	if err != nil {
		t.Fatalf("ClaimDrillReward() failed: %v", err)
	}
	if balance.Coins != 5 || balance.XP != 10 {
		t.Errorf("Expected balance 5 coins / 10 xp, got %d / %d", balance.Coins, balance.XP)
	}
	if stats.counters["alice/drills_completed"] != 1 {
		t.Errorf("Expected drills_completed counter at 1, got %d", stats.counters["alice/drills_completed"])
	}

	// The slot is empty again and a second claim finds nothing.
	views, _ = service.GetSlots(context.Background(), "alice")
	if views[0].Status != StatusEmpty {
		t.Errorf("Expected slot 0 empty after claim, got %s", views[0].Status)
	}
	if _, err := service.ClaimDrillReward(context.Background(), "alice", 0); !errors.Is(err, progression.ErrNotFound) {
		t.Errorf("Expected ErrNotFound after claim, got %v", err)
	}
	if len(ledgerSvc.credits) != 1 {
		t.Errorf("Expected exactly one payout, got %d", len(ledgerSvc.credits))
	}
}

func TestStartDrill_RejectsInvalidInput(t *testing.T) {
	service, _, _, _, _ := setupTestService(t)

	if _, err := service.StartDrill(context.Background(), "alice", -1, "speed_ladder"); !errors.Is(err, progression.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for negative slot, got %v", err)
	}
	if _, err := service.StartDrill(context.Background(), "alice", models.SlotCount, "speed_ladder"); !errors.Is(err, progression.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for out-of-range slot, got %v", err)
	}
	if _, err := service.StartDrill(context.Background(), "alice", 0, "underwater_basket_weaving"); !errors.Is(err, progression.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for unknown drill type, got %v", err)
	}
}

func TestStartDrill_ReplacesRunningDrill(t *testing.T) {
	service, repo, _, _, _ := setupTestService(t)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := base
	service.SetClock(func() time.Time { return clock })

	if _, err := service.StartDrill(context.Background(), "alice", 0, "endurance_run"); err != nil {
		t.Fatalf("StartDrill() failed: %v", err)
	}

	// Ten minutes in, the drill is still running; a restart abandons it.
	clock = base.Add(10 * time.Minute)
	if _, err := service.StartDrill(context.Background(), "alice", 0, "speed_ladder"); err != nil {
		t.Fatalf("StartDrill() replacing running drill failed: %v", err)
	}

	if repo.slots[0].DrillType != "speed_ladder" {
		t.Errorf("Expected replacement drill, got %q", repo.slots[0].DrillType)
	}
}

func TestStartDrill_RefusesSlotWithUnclaimedReward(t *testing.T) {
	service, _, _, _, _ := setupTestService(t)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := base
	service.SetClock(func() time.Time { return clock })

	if _, err := service.StartDrill(context.Background(), "alice", 0, "speed_ladder"); err != nil {
		t.Fatalf("StartDrill() failed: %v", err)
	}

	// The drill matured but was not claimed; starting over it would discard
	// the pending reward.
	clock = base.Add(2 * time.Minute)
	if _, err := service.StartDrill(context.Background(), "alice", 0, "speed_ladder"); !errors.Is(err, progression.ErrSlotOccupied) {
		t.Errorf("Expected ErrSlotOccupied, got %v", err)
	}

	// After claiming, the slot accepts a new drill.
	if _, err := service.ClaimDrillReward(context.Background(), "alice", 0); err != nil {
		t.Fatalf("ClaimDrillReward() failed: %v", err)
	}
	if _, err := service.StartDrill(context.Background(), "alice", 0, "speed_ladder"); err != nil {
		t.Errorf("Expected start after claim to succeed, got %v", err)
	}
}

func TestClaimDrillReward_UsesPerClaimReference(t *testing.T) {
	service, _, ledgerSvc, _, _ := setupTestService(t)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := base
	service.SetClock(func() time.Time { return clock })

	if _, err := service.StartDrill(context.Background(), "alice", 3, "speed_ladder"); err != nil {
		t.Fatalf("StartDrill() failed: %v", err)
	}
	clock = base.Add(2 * time.Minute)
	if _, err := service.ClaimDrillReward(context.Background(), "alice", 3); err != nil {
		t.Fatalf("ClaimDrillReward() failed: %v", err)
	}

	// Same slot again: the new drill's end time makes a distinct reference,
	// so the two payouts can never be deduplicated against each other.
	if _, err := service.StartDrill(context.Background(), "alice", 3, "speed_ladder"); err != nil {
		t.Fatalf("StartDrill() failed: %v", err)
	}
	clock = clock.Add(2 * time.Minute)
	if _, err := service.ClaimDrillReward(context.Background(), "alice", 3); err != nil {
		t.Fatalf("ClaimDrillReward() failed: %v", err)
	}

	if len(ledgerSvc.credits) != 2 {
		t.Fatalf("Expected 2 credits, got %d", len(ledgerSvc.credits))
	}
	if ledgerSvc.credits[0].reference == ledgerSvc.credits[1].reference {
		t.Errorf("Expected distinct references, both were %q", ledgerSvc.credits[0].reference)
	}
	for _, c := range ledgerSvc.credits {
		if c.source != "drill" {
			t.Errorf("Expected source drill, got %q", c.source)
		}
	}
}

func TestClaimDrillReward_PropagatesEarnedCoins(t *testing.T) {
	service, _, _, tracker, _ := setupTestService(t)

	base := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	clock := base
	service.SetClock(func() time.Time { return clock })

	if _, err := service.StartDrill(context.Background(), "alice", 0, "speed_ladder"); err != nil {
		t.Fatalf("StartDrill() failed: %v", err)
	}
	clock = base.Add(2 * time.Minute)
	if _, err := service.ClaimDrillReward(context.Background(), "alice", 0); err != nil {
		t.Fatalf("ClaimDrillReward() failed: %v", err)
	}

	// Start emits train_unit, claim emits earn_coins for the 5 coin reward.
	if len(tracker.calls) != 2 {
		t.Fatalf("Expected 2 progress events, got %d", len(tracker.calls))
	}
	last := tracker.calls[1]
	if last.activity != progression.ActivityEarnCoins || last.amount != 5 {
		t.Errorf("Expected earn_coins event for 5 coins, got %+v", last)
	}
}
