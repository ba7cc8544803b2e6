package posts

import (
	"time"

	"gorm.io/gorm"
)

// MotivationPost is a short motivational message with attached media.
type MotivationPost struct {
	ID        uint           `gorm:"column:id;primaryKey"`
	UserID    uint           `gorm:"column:user_id;not null;index"`
	Text      string         `gorm:"column:text;type:text;not null"`
	CreatedAt time.Time      `gorm:"column:created_at;autoCreateTime"`
	DeletedAt gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

// TableName provides the explicit table binding for GORM.
func (MotivationPost) TableName() string {
	return "motivation_posts"
}

// PostLike records that a user liked a post; one like per user and post.
type PostLike struct {
	ID        uint      `gorm:"column:id;primaryKey"`
	UserID    uint      `gorm:"column:user_id;not null;uniqueIndex:idx_post_likes_user_post,priority:1"`
	PostID    uint      `gorm:"column:post_id;not null;uniqueIndex:idx_post_likes_user_post,priority:2"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}

// TableName provides the explicit table binding for GORM.
func (PostLike) TableName() string {
	return "post_likes"
}
