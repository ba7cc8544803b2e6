package media

import (
	"time"

	"gorm.io/gorm"
)

// Category identifies the parent resource a media object belongs to.
type Category string

const (
	// CategoryWorkout marks media attached to a workout.
	CategoryWorkout Category = "WORKOUT"
	// CategoryPost marks media attached to a motivation post.
	CategoryPost Category = "POST"
	// CategoryProfile marks a profile picture.
	CategoryProfile Category = "PROFILE"
)

// Type is the coarse media kind derived from the MIME type.
type Type string

const (
	// TypeImage marks image payloads.
	TypeImage Type = "IMAGE"
	// TypeVideo marks video payloads.
	TypeVideo Type = "VIDEO"
)

// Media references an object stored in the S3-compatible bucket. Exactly one
// of WorkoutID, PostID or UserID is set depending on the category.
type Media struct {
	ID        uint           `gorm:"column:id;primaryKey"`
	Key       string         `gorm:"column:key;size:190;not null;uniqueIndex"`
	URL       string         `gorm:"column:url;size:512;not null"`
	Mime      string         `gorm:"column:mime;size:128;not null"`
	Type      Type           `gorm:"column:type;size:16;not null"`
	Category  Category       `gorm:"column:category;size:16;not null;index"`
	NeedsAuth bool           `gorm:"column:needs_auth;not null;default:false"`
	WorkoutID *uint          `gorm:"column:workout_id;index"`
	PostID    *uint          `gorm:"column:post_id;index"`
	UserID    *uint          `gorm:"column:user_id;index"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (Media) TableName() string {
	return "media"
}
