package repository

import (
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/praxislms/progression-engine/internal/models"
)

// setupAchievementTestDB creates an in-memory SQLite database for testing.
func setupAchievementTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open in-memory database: %v", err)
	}

	if err := db.AutoMigrate(&models.AchievementProgress{}); err != nil {
		t.Fatalf("Failed to auto-migrate tables: %v", err)
	}

	return &DB{db}
}

func TestAchievementRepository_UpsertProgress(t *testing.T) {
	db := setupAchievementTestDB(t)
	repo := NewAchievementRepository(db)

	if err := repo.UpsertProgress("alice", "first_drill", 0); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}
	if err := repo.UpsertProgress("alice", "first_drill", 1); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}

	row, err := repo.Get("alice", "first_drill")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if row == nil {
		t.Fatal("Expected a progress row")
	}
	if row.Progress != 1 {
		t.Errorf("Expected progress 1, got %d", row.Progress)
	}
}

func TestAchievementRepository_UpsertProgress_EarnedRowIsTerminal(t *testing.T) {
	db := setupAchievementTestDB(t)
	repo := NewAchievementRepository(db)

	if err := repo.UpsertProgress("alice", "first_drill", 1); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}
	if _, err := repo.MarkEarned("alice", "first_drill", time.Now()); err != nil {
		t.Fatalf("MarkEarned() failed: %v", err)
	}

	if err := repo.UpsertProgress("alice", "first_drill", 99); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}

	row, err := repo.Get("alice", "first_drill")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if row.Progress != 1 {
		t.Errorf("Expected earned row to keep progress 1, got %d", row.Progress)
	}
}

func TestAchievementRepository_MarkEarned_ExactlyOnce(t *testing.T) {
	db := setupAchievementTestDB(t)
	repo := NewAchievementRepository(db)

	if err := repo.UpsertProgress("alice", "first_drill", 1); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}

	won, err := repo.MarkEarned("alice", "first_drill", time.Now())
	if err != nil {
		t.Fatalf("MarkEarned() failed: %v", err)
	}
	if !won {
		t.Fatal("Expected first unlock to win")
	}

	won, err = repo.MarkEarned("alice", "first_drill", time.Now())
	if err != nil {
		t.Fatalf("MarkEarned() failed: %v", err)
	}
	if won {
		t.Error("Expected second unlock to lose")
	}

	row, err := repo.Get("alice", "first_drill")
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if !row.Earned() {
		t.Error("Expected row to report earned")
	}
}

func TestAchievementRepository_GetForUser(t *testing.T) {
	db := setupAchievementTestDB(t)
	repo := NewAchievementRepository(db)

	if err := repo.UpsertProgress("alice", "first_drill", 1); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}
	if err := repo.UpsertProgress("alice", "coin_collector", 250); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}
	if err := repo.UpsertProgress("bob", "first_drill", 1); err != nil {
		t.Fatalf("UpsertProgress() failed: %v", err)
	}

	rows, err := repo.GetForUser("alice")
	if err != nil {
		t.Fatalf("GetForUser() failed: %v", err)
	}
	if len(rows) != 2 {
		t.Errorf("Expected 2 rows for alice, got %d", len(rows))
	}
}
