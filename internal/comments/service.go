package comments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrWorkoutNotFound indicates the target workout does not exist or is deleted.
	ErrWorkoutNotFound = errors.New("comments: workout not found")
	// ErrCommentNotFound indicates no comment matches the id.
	ErrCommentNotFound = errors.New("comments: comment not found")
	// ErrNotAuthor indicates the caller did not write the comment.
	ErrNotAuthor = errors.New("comments: not the comment author")
	// ErrEmptyText indicates a blank comment body.
	ErrEmptyText = errors.New("comments: text is required")
)

// ServiceConfig describes the dependencies of the comment service.
type ServiceConfig struct {
	Database *gorm.DB
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the comment lifecycle on workouts.
type Service struct {
	db     *gorm.DB
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the comment service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("comments: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, now: clock, logger: logger}, nil
}

// Create attaches a comment to an existing, visible workout.
func (s *Service) Create(ctx context.Context, userID, workoutID uint, text string) (*Comment, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}

	// Queried by table name: the workout package depends on this one's
	// table for counts, not the reverse.
	var workoutCount int64
	if err := s.db.WithContext(ctx).
		Table("workouts").
		Where("id = ? AND deleted_at IS NULL", workoutID).
		Count(&workoutCount).Error; err != nil {
		return nil, err
	}
	if workoutCount == 0 {
		return nil, ErrWorkoutNotFound
	}

	comment := Comment{UserID: userID, WorkoutID: workoutID, Text: text}
	if err := s.db.WithContext(ctx).Create(&comment).Error; err != nil {
		return nil, err
	}

	s.logger.Debug("comment created",
		zap.Uint("comment_id", comment.ID),
		zap.Uint("workout_id", workoutID),
		zap.Uint("user_id", userID))
	return &comment, nil
}

// View is the comment read model with the author's username merged in.
type View struct {
	ID        uint      `json:"id"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
}

// ListForWorkout returns all comments on a workout, oldest first.
func (s *Service) ListForWorkout(ctx context.Context, workoutID uint) ([]View, error) {
	views := make([]View, 0)
	err := s.db.WithContext(ctx).
		Table("comments").
		Select("comments.id, comments.text, comments.created_at, comments.user_id, users.username").
		Joins("JOIN users ON users.id = comments.user_id").
		Where("comments.workout_id = ?", workoutID).
		Order("comments.created_at ASC, comments.id ASC").
		Scan(&views).Error
	if err != nil {
		return nil, err
	}
	return views, nil
}

// Remove deletes a comment written by the caller.
func (s *Service) Remove(ctx context.Context, userID, commentID uint) error {
	var comment Comment
	err := s.db.WithContext(ctx).Where("id = ?", commentID).First(&comment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrCommentNotFound
	}
	if err != nil {
		return err
	}
	if comment.UserID != userID {
		return ErrNotAuthor
	}
	return s.db.WithContext(ctx).Delete(&comment).Error
}
