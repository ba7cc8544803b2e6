package database

import (
	"fmt"

	sqlite "github.com/glebarez/sqlite"
	"github.com/spotter-app/backend/internal/comments"
	"github.com/spotter-app/backend/internal/media"
	"github.com/spotter-app/backend/internal/posts"
	"github.com/spotter-app/backend/internal/users"
	"github.com/spotter-app/backend/internal/workouts"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open establishes the database connection for the given driver and performs
// schema migrations. Supported drivers are "sqlite" and "postgres".
func Open(driver, dsn string, logger *zap.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var dialector gorm.Dialector
	switch driver {
	case "sqlite":
		dialector = sqlite.Open(dsn)
	case "postgres":
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if driver == "sqlite" {
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(
		&users.User{},
		&workouts.Workout{},
		&media.Media{},
		&comments.Comment{},
		&posts.MotivationPost{},
		&posts.PostLike{},
		&migrationRecord{},
	); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("driver", driver))
	}

	return db, nil
}
