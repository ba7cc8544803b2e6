package database

import (
	"path/filepath"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/spotter-app/backend/internal/auth"
	"github.com/spotter-app/backend/internal/users"
	"github.com/spotter-app/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func TestApplyMigrationsBackfillsPointsTotals(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "migration.db")

	database, err := gorm.Open(sqlite.Open(databasePath), &gorm.Config{})
	if err != nil {
		testContext.Fatalf("failed to open sqlite: %v", err)
	}

	if err := database.AutoMigrate(&users.User{}, &workouts.Workout{}, &migrationRecord{}); err != nil {
		testContext.Fatalf("failed to migrate schema: %v", err)
	}

	// A total written before the ledger kept it consistent: the column says
	// 0 while the visible workouts sum to 3.
	account := users.User{Username: "marco", PasswordHash: "x", Role: auth.RoleUser}
	if err := database.Create(&account).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}
	startedAt := time.Date(2024, time.April, 1, 7, 0, 0, 0, time.UTC)
	visible := workouts.Workout{UserID: account.ID, StartedAt: startedAt, EndedAt: startedAt.Add(135 * time.Minute), Points: 3}
	if err := database.Create(&visible).Error; err != nil {
		testContext.Fatalf("failed to insert workout: %v", err)
	}
	hidden := workouts.Workout{UserID: account.ID, StartedAt: startedAt, EndedAt: startedAt.Add(90 * time.Minute), Points: 2}
	if err := database.Create(&hidden).Error; err != nil {
		testContext.Fatalf("failed to insert workout: %v", err)
	}
	if err := database.Delete(&hidden).Error; err != nil {
		testContext.Fatalf("failed to soft-delete workout: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to apply migrations: %v", err)
	}

	var stored users.User
	if err := database.Where("id = ?", account.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.PointsTotal != 3 {
		testContext.Fatalf("expected backfilled total of 3, got %d", stored.PointsTotal)
	}

	var record migrationRecord
	if err := database.Where("name = ?", migrationBackfillUserPointsTotals).Take(&record).Error; err != nil {
		testContext.Fatalf("expected migration record to be created: %v", err)
	}
	if record.AppliedAtSeconds == 0 {
		testContext.Fatalf("expected migration timestamp to be set")
	}
}

func TestApplyMigrationsRunsOnce(testContext *testing.T) {
	tempDir := testContext.TempDir()
	databasePath := filepath.Join(tempDir, "once.db")

	database, err := Open("sqlite", databasePath, zap.NewNop())
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}

	// Open ran the backfill already; a stale total must survive a second
	// pass untouched because the migration is recorded as applied.
	account := users.User{Username: "marco", PasswordHash: "x", Role: auth.RoleUser, PointsTotal: 42}
	if err := database.Create(&account).Error; err != nil {
		testContext.Fatalf("failed to insert user: %v", err)
	}

	if err := applyMigrations(database, zap.NewNop()); err != nil {
		testContext.Fatalf("failed to re-apply migrations: %v", err)
	}

	var stored users.User
	if err := database.Where("id = ?", account.ID).Take(&stored).Error; err != nil {
		testContext.Fatalf("failed to reload user: %v", err)
	}
	if stored.PointsTotal != 42 {
		testContext.Fatalf("expected total untouched on second pass, got %d", stored.PointsTotal)
	}
}
