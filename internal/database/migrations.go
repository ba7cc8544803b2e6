package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationBackfillUserPointsTotals = "2026-08-01_backfill_user_points_totals"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillUserPointsTotals, apply: backfillUserPointsTotals},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillUserPointsTotals recomputes every denormalized points total from
// the visible workout rows. Repairs totals written before the ledger kept
// them transactionally consistent.
func backfillUserPointsTotals(db *gorm.DB) error {
	return db.Exec(
		"UPDATE users SET points_total = (" +
			"SELECT COALESCE(SUM(points), 0) FROM workouts " +
			"WHERE workouts.user_id = users.id AND workouts.deleted_at IS NULL)",
	).Error
}
