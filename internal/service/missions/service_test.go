package missions

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/praxislms/progression-engine/internal/models"
	"github.com/praxislms/progression-engine/internal/progression"
	"github.com/praxislms/progression-engine/pkg/logger"
)

// Mock repositories for testing

type mockMissionRepository struct {
	missions map[uint]*models.Mission
	nextID   uint

	failCreateBatch bool
	// progressFailures makes the first N conditional progress writes lose.
	progressFailures int
}

func newMockMissionRepository() *mockMissionRepository {
	return &mockMissionRepository{
		missions: make(map[uint]*models.Mission),
		nextID:   1,
	}
}

func (m *mockMissionRepository) CreateBatch(missions []models.Mission) error {
	if m.failCreateBatch {
		return errors.New("unique constraint violation")
	}
	for i := range missions {
		mission := missions[i]
		mission.ID = m.nextID
		m.nextID++
		m.missions[mission.ID] = &mission
	}
	return nil
}

func (m *mockMissionRepository) GetActive(userID string, now time.Time) ([]models.Mission, error) {
	var result []models.Mission
	for _, mission := range m.missions {
		if mission.UserID == userID && now.Before(mission.ExpiresAt) {
			result = append(result, *mission)
		}
	}
	return result, nil
}

func (m *mockMissionRepository) GetMatching(userID string, activity progression.ActivityType, now time.Time) ([]models.Mission, error) {
	var result []models.Mission
	for _, mission := range m.missions {
		if mission.UserID == userID && mission.Type == activity &&
			!mission.IsClaimed && now.Before(mission.ExpiresAt) {
			result = append(result, *mission)
		}
	}
	return result, nil
}

func (m *mockMissionRepository) GetByID(missionID uint, userID string) (*models.Mission, error) {
	mission, ok := m.missions[missionID]
	if !ok || mission.UserID != userID {
		return nil, progression.ErrNotFound
	}
	copied := *mission
	return &copied, nil
}

func (m *mockMissionRepository) UpdateProgress(missionID uint, fromProgress, toProgress int) (bool, error) {
	if m.progressFailures > 0 {
		m.progressFailures--
		return false, nil
	}
	mission, ok := m.missions[missionID]
	if !ok || mission.IsClaimed || mission.CurrentProgress != fromProgress {
		return false, nil
	}
	mission.CurrentProgress = toProgress
	return true, nil
}

func (m *mockMissionRepository) Claim(missionID uint, userID string) (bool, error) {
	mission, ok := m.missions[missionID]
	if !ok || mission.UserID != userID || mission.IsClaimed {
		return false, nil
	}
	mission.IsClaimed = true
	return true, nil
}

type creditCall struct {
	userID    string
	coins     int64
	xp        int64
	reference string
	source    string
}

type mockLedgerService struct {
	credits []creditCall
}

func (m *mockLedgerService) CreditOrQueue(_ context.Context, userID string, coins, xp int64, reference, source string) *models.LedgerBalance {
	m.credits = append(m.credits, creditCall{userID, coins, xp, reference, source})
	return &models.LedgerBalance{UserID: userID, Coins: coins, XP: xp}
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
func setupTestService(t *testing.T) (*Service, *mockMissionRepository, *mockLedgerService, *mockStatsRepository) {
	t.Helper()

	repo := newMockMissionRepository()
	ledgerSvc := &mockLedgerService{}
	stats := newMockStatsRepository()
	log := logger.New("debug", "text", "stdout")

	cat := testCatalog(t)
	gen := NewGenerator(cat, time.UTC, rand.New(rand.NewSource(1)))

	service := NewServiceWithInterfaces(repo, ledgerSvc, stats, gen, log)
	return service, repo, ledgerSvc, stats
}

// seedMission inserts a mission directly into the mock repository.
func seedMission(repo *mockMissionRepository, userID string, activity progression.ActivityType, target, progress int, claimed bool) uint {
	id := repo.nextID
	repo.nextID++
	repo.missions[id] = &models.Mission{
		ID:              id,
		UserID:          userID,
		Type:            activity,
		TargetCount:     target,
		CurrentProgress: progress,
		RewardCoins:     15,
		RewardXP:        25,
		IsClaimed:       claimed,
		ExpiresAt:       time.Now().Add(12 * time.Hour),
	}
	return id
}

func TestGetActiveMissions_GeneratesOnFirstCall(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	missions, err := service.GetActiveMissions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetActiveMissions() failed: %v", err)
	}
	if len(missions) != MissionsPerDay {
		t.Errorf("Expected %d generated missions, got %d", MissionsPerDay, len(missions))
	}
}

func TestGetActiveMissions_ReturnsExistingSet(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 1, false)

	missions, err := service.GetActiveMissions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetActiveMissions() failed: %v", err)
	}
	if len(missions) != 1 {
		t.Errorf("Expected the existing mission, got %d missions", len(missions))
	}
}

func TestGetActiveMissions_ConcurrentGenerationFallsBackToReread(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	// CreateBatch fails as if another request inserted the cycle first, and
	// the re-read finds that winner's set.
	repo.failCreateBatch = true
	seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 0, false)

	missions, err := service.GetActiveMissions(context.Background(), "alice")
	if err != nil {
		t.Fatalf("GetActiveMissions() failed: %v", err)
	}
	if len(missions) != 1 {
		t.Errorf("Expected the concurrently generated mission, got %d", len(missions))
	}
}

func TestRecordProgress_AdvancesMatchingMissionsOnly(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	matchID := seedMission(repo, "alice", progression.ActivityPlayMatch, 5, 0, false)
	lessonID := seedMission(repo, "alice", progression.ActivityCompleteLesson, 3, 0, false)

	if err := service.RecordProgress(context.Background(), "alice", progression.ActivityPlayMatch, 2); err != nil {
		t.Fatalf("RecordProgress() failed: %v", err)
	}

	if got := repo.missions[matchID].CurrentProgress; got != 2 {
		t.Errorf("Expected matching mission at progress 2, got %d", got)
	}
	if got := repo.missions[lessonID].CurrentProgress; got != 0 {
		t.Errorf("Expected unrelated mission untouched, got %d", got)
	}
}

func TestRecordProgress_ClampsAtTarget(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	id := seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 2, false)

	if err := service.RecordProgress(context.Background(), "alice", progression.ActivityPlayMatch, 10); err != nil {
		t.Fatalf("RecordProgress() failed: %v", err)
	}

	if got := repo.missions[id].CurrentProgress; got != 3 {
		t.Errorf("Expected progress clamped at 3, got %d", got)
	}
}

func TestRecordProgress_RetriesLostConditionalWrite(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	id := seedMission(repo, "alice", progression.ActivityPlayMatch, 5, 0, false)
	repo.progressFailures = 2

	if err := service.RecordProgress(context.Background(), "alice", progression.ActivityPlayMatch, 1); err != nil {
		t.Fatalf("RecordProgress() failed: %v", err)
	}

	if got := repo.missions[id].CurrentProgress; got != 1 {
		t.Errorf("Expected retry to land progress 1, got %d", got)
	}
}

func TestRecordProgress_RejectsInvalidInput(t *testing.T) {
	service, _, _, _ := setupTestService(t)

	err := service.RecordProgress(context.Background(), "alice", progression.ActivityType("fly_rocket"), 1)
	if !errors.Is(err, progression.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for unknown activity, got %v", err)
	}

	err = service.RecordProgress(context.Background(), "alice", progression.ActivityPlayMatch, 0)
	if !errors.Is(err, progression.ErrInvalidArgument) {
		t.Errorf("Expected ErrInvalidArgument for zero amount, got %v", err)
	}
}

func TestClaimMission_PaysOutOnce(t *testing.T) {
	service, repo, ledgerSvc, stats := setupTestService(t)

	id := seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 3, false)

	mission, err := service.ClaimMission(context.Background(), id, "alice")
	if err != nil {
		t.Fatalf("ClaimMission() failed: %v", err)
	}
	if !mission.IsClaimed {
		t.Error("Expected returned mission to be claimed")
	}

	if len(ledgerSvc.credits) != 1 {
		t.Fatalf("Expected 1 credit, got %d", len(ledgerSvc.credits))
	}
	credit := ledgerSvc.credits[0]
	if credit.coins != 15 || credit.xp != 25 {
		t.Errorf("Expected credit of 15 coins / 25 xp, got %d / %d", credit.coins, credit.xp)
	}
	if credit.reference != "mission:1" {
		t.Errorf("Expected reference mission:1, got %q", credit.reference)
	}
	if stats.counters["alice/missions_claimed"] != 1 {
		t.Errorf("Expected missions_claimed counter at 1, got %d", stats.counters["alice/missions_claimed"])
	}

	// Second claim must not pay again.
	if _, err := service.ClaimMission(context.Background(), id, "alice"); !errors.Is(err, progression.ErrAlreadyClaimed) {
		t.Errorf("Expected ErrAlreadyClaimed, got %v", err)
	}
	if len(ledgerSvc.credits) != 1 {
		t.Errorf("Expected still 1 credit after double claim, got %d", len(ledgerSvc.credits))
	}
}

func TestClaimMission_IncompleteMission(t *testing.T) {
	service, repo, ledgerSvc, _ := setupTestService(t)

	id := seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 2, false)

	if _, err := service.ClaimMission(context.Background(), id, "alice"); !errors.Is(err, progression.ErrIncomplete) {
		t.Errorf("Expected ErrIncomplete, got %v", err)
	}
	if len(ledgerSvc.credits) != 0 {
		t.Errorf("Expected no credit for incomplete mission, got %d", len(ledgerSvc.credits))
	}
}

func TestClaimMission_WrongUser(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	id := seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 3, false)

	if _, err := service.ClaimMission(context.Background(), id, "bob"); !errors.Is(err, progression.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for wrong user, got %v", err)
	}
}

func TestClaimMission_PropagatesEarnedCoins(t *testing.T) {
	service, repo, _, _ := setupTestService(t)

	claimID := seedMission(repo, "alice", progression.ActivityPlayMatch, 3, 3, false)
	coinsID := seedMission(repo, "alice", progression.ActivityEarnCoins, 500, 0, false)

	if _, err := service.ClaimMission(context.Background(), claimID, "alice"); err != nil {
		t.Fatalf("ClaimMission() failed: %v", err)
	}

	if got := repo.missions[coinsID].CurrentProgress; got != 15 {
		t.Errorf("Expected coin-earning mission to advance by the 15 coin reward, got %d", got)
	}
}
