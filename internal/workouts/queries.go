package workouts

import (
	"context"
	"errors"
	"time"

	"github.com/spotter-app/backend/internal/media"
	"github.com/spotter-app/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// OwnerSummary is the embedded owner projection on workout reads.
type OwnerSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	PointsTotal int64  `json:"points"`
}

// View is the workout read model exposed through the API.
type View struct {
	ID              uint         `json:"id"`
	StartedAt       time.Time    `json:"started_at"`
	EndedAt         time.Time    `json:"ended_at"`
	Notes           string       `json:"notes,omitempty"`
	Points          int64        `json:"points"`
	DurationSeconds int64        `json:"duration_seconds"`
	CreatedAt       time.Time    `json:"created_at"`
	Owner           OwnerSummary `json:"user"`
	MediaURLs       []string     `json:"media_urls"`
	CommentCount    int64        `json:"comment_count"`
}

// Get returns a single visible workout with its owner summary, media
// references and comment count.
func (s *Service) Get(ctx context.Context, workoutID uint) (View, error) {
	var workout Workout
	err := s.db.WithContext(ctx).Where("id = ?", workoutID).First(&workout).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return View{}, ErrWorkoutNotFound
	}
	if err != nil {
		s.logError(opGetWorkout, "workout_select_failed", err, zap.Uint("workout_id", workoutID))
		return View{}, newServiceError(opGetWorkout, "workout_select_failed", err)
	}

	views, err := s.assembleViews(ctx, opGetWorkout, []Workout{workout})
	if err != nil {
		return View{}, err
	}
	return views[0], nil
}

// List returns all visible workouts, newest first, with owner summaries,
// media references and comment counts.
func (s *Service) List(ctx context.Context) ([]View, error) {
	var rows []Workout
	if err := s.db.WithContext(ctx).
		Order("created_at DESC, id DESC").
		Find(&rows).Error; err != nil {
		s.logError(opListWorkouts, "query_failed", err)
		return nil, newServiceError(opListWorkouts, "query_failed", err)
	}
	return s.assembleViews(ctx, opListWorkouts, rows)
}

func (s *Service) assembleViews(ctx context.Context, operation string, rows []Workout) ([]View, error) {
	views := make([]View, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}

	workoutIDs := make([]uint, 0, len(rows))
	userIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		workoutIDs = append(workoutIDs, row.ID)
		userIDs = append(userIDs, row.UserID)
	}

	var owners []users.User
	if err := s.db.WithContext(ctx).Where("id IN ?", userIDs).Find(&owners).Error; err != nil {
		s.logError(operation, "owner_select_failed", err)
		return nil, newServiceError(operation, "owner_select_failed", err)
	}
	ownersByID := make(map[uint]users.User, len(owners))
	for _, owner := range owners {
		ownersByID[owner.ID] = owner
	}

	var mediaRows []media.Media
	if err := s.db.WithContext(ctx).Where("workout_id IN ?", workoutIDs).Find(&mediaRows).Error; err != nil {
		s.logError(operation, "media_select_failed", err)
		return nil, newServiceError(operation, "media_select_failed", err)
	}
	mediaURLsByWorkout := make(map[uint][]string)
	for _, row := range mediaRows {
		if row.WorkoutID != nil {
			mediaURLsByWorkout[*row.WorkoutID] = append(mediaURLsByWorkout[*row.WorkoutID], row.URL)
		}
	}

	type commentCountRow struct {
		WorkoutID uint
		Total     int64
	}
	var commentCounts []commentCountRow
	if err := s.db.WithContext(ctx).
		Table("comments").
		Select("workout_id, COUNT(*) AS total").
		Where("workout_id IN ?", workoutIDs).
		Group("workout_id").
		Scan(&commentCounts).Error; err != nil {
		s.logError(operation, "comment_count_failed", err)
		return nil, newServiceError(operation, "comment_count_failed", err)
	}
	commentCountByWorkout := make(map[uint]int64, len(commentCounts))
	for _, row := range commentCounts {
		commentCountByWorkout[row.WorkoutID] = row.Total
	}

	for _, row := range rows {
		owner := ownersByID[row.UserID]
		mediaURLs := mediaURLsByWorkout[row.ID]
		if mediaURLs == nil {
			mediaURLs = []string{}
		}
		views = append(views, View{
			ID:              row.ID,
			StartedAt:       row.StartedAt,
			EndedAt:         row.EndedAt,
			Notes:           row.Notes,
			Points:          row.Points,
			DurationSeconds: row.DurationSeconds(),
			CreatedAt:       row.CreatedAt,
			Owner: OwnerSummary{
				ID:          owner.ID,
				Username:    owner.Username,
				PointsTotal: owner.PointsTotal,
			},
			MediaURLs:    mediaURLs,
			CommentCount: commentCountByWorkout[row.ID],
		})
	}
	return views, nil
}
