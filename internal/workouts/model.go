package workouts

import (
	"time"

	"gorm.io/gorm"
)

// Workout is one ledger entry. Points is computed from the time span at
// write time and stays consistent with the owner's denormalized total for
// as long as the row is visible.
type Workout struct {
	ID        uint           `gorm:"column:id;primaryKey"`
	UserID    uint           `gorm:"column:user_id;not null;index"`
	StartedAt time.Time      `gorm:"column:started_at;not null"`
	EndedAt   time.Time      `gorm:"column:ended_at;not null"`
	Notes     string         `gorm:"column:notes;type:text"`
	Points    int64          `gorm:"column:points;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time      `gorm:"column:updated_at;autoUpdateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Workout) TableName() string {
	return "workouts"
}

// DurationSeconds returns the workout span in whole seconds, clamped at zero.
func (w Workout) DurationSeconds() int64 {
	seconds := int64(w.EndedAt.Sub(w.StartedAt) / time.Second)
	if seconds < 0 {
		return 0
	}
	return seconds
}
