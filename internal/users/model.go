package users

import (
	"strings"
	"time"
)

// User is the account record. PointsTotal is a denormalized cache of the
// sum of points across the user's non-deleted workouts; only the workout
// ledger service writes it.
type User struct {
	ID           uint      `gorm:"column:id;primaryKey"`
	Username     string    `gorm:"column:username;size:190;not null;uniqueIndex"`
	FiscalCode   *string   `gorm:"column:fiscal_code;size:16;uniqueIndex"`
	PasswordHash string    `gorm:"column:pw_hash;size:128;not null"`
	Role         string    `gorm:"column:role;size:16;not null;default:USER"`
	PointsTotal  int64     `gorm:"column:points_total;not null;default:0"`
	DeviceToken  string    `gorm:"column:device_token;size:512"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName provides the explicit table binding for GORM.
func (User) TableName() string {
	return "users"
}

// normalize value helper used across service implementation.
func normalize(value string) string {
	return strings.TrimSpace(value)
}
