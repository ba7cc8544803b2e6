package workouts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spotter-app/backend/internal/auth"
	"github.com/spotter-app/backend/internal/media"
	"github.com/spotter-app/backend/internal/points"
	"github.com/spotter-app/backend/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	errMissingDatabase = errors.New("database handle is required")
	noOpLogger         = zap.NewNop()

	// ErrWorkoutNotFound indicates the workout does not exist or is deleted.
	ErrWorkoutNotFound = errors.New("workouts: workout not found")
	// ErrUserNotFound indicates the owning user does not exist.
	ErrUserNotFound = errors.New("workouts: user not found")
	// ErrNotOwner indicates the caller owns neither the workout nor an elevated role.
	ErrNotOwner = errors.New("workouts: not authorized for workout")
)

// ServiceError annotates failures with a dotted operation code.
type ServiceError struct {
	code string
	err  error
}

func (e *ServiceError) Error() string {
	if e.err == nil {
		return e.code
	}
	return fmt.Sprintf("%s: %v", e.code, e.err)
}

func (e *ServiceError) Unwrap() error {
	return e.err
}

// Code returns the dotted operation code for transport-level mapping.
func (e *ServiceError) Code() string {
	return e.code
}

const (
	opServiceNew    = "workouts.service.new"
	opCreateWorkout = "workouts.create"
	opUpdateWorkout = "workouts.update"
	opDeleteWorkout = "workouts.delete"
	opGetWorkout    = "workouts.get"
	opListWorkouts  = "workouts.list"
)

func newServiceError(operation, reason string, cause error) error {
	code := fmt.Sprintf("%s.%s", operation, reason)
	return &ServiceError{code: code, err: cause}
}

// ServiceConfig describes the dependencies of the workout ledger service.
type ServiceConfig struct {
	Database *gorm.DB
	Store    media.ObjectStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service is the sole writer of Workout.Points and User.PointsTotal. Every
// mutation runs as one transaction so the denormalized total never drifts
// from the sum of the visible ledger entries.
type Service struct {
	db     *gorm.DB
	store  media.ObjectStore
	clock  func() time.Time
	logger *zap.Logger
}

// NewService constructs the workout ledger service. Store may be nil when
// object storage is not configured; media release is then skipped.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, newServiceError(opServiceNew, "missing_database", errMissingDatabase)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = noOpLogger
	}

	return &Service{
		db:     cfg.Database,
		store:  cfg.Store,
		clock:  clock,
		logger: logger,
	}, nil
}

// CreateParams carries the input of a workout creation.
type CreateParams struct {
	StartedAt time.Time
	EndedAt   time.Time
	Notes     string
}

// Create inserts a ledger entry with its computed points and increments the
// owner's total in the same transaction.
func (s *Service) Create(ctx context.Context, identity auth.Identity, params CreateParams) (*Workout, error) {
	workout := Workout{
		UserID:    identity.UserID,
		StartedAt: params.StartedAt.UTC(),
		EndedAt:   params.EndedAt.UTC(),
		Notes:     params.Notes,
		Points:    points.ForInterval(params.StartedAt, params.EndedAt),
	}

	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&workout).Error; err != nil {
			s.logError(opCreateWorkout, "workout_insert_failed", err, zap.Uint("user_id", identity.UserID))
			return newServiceError(opCreateWorkout, "workout_insert_failed", err)
		}
		if err := s.adjustUserTotal(tx, opCreateWorkout, identity.UserID, workout.Points); err != nil {
			return err
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logger.Info("workout created",
		zap.Uint("workout_id", workout.ID),
		zap.Uint("user_id", identity.UserID),
		zap.Int64("points", workout.Points))
	return &workout, nil
}

// UpdateParams carries a partial update; nil fields keep their stored value.
type UpdateParams struct {
	StartedAt *time.Time
	EndedAt   *time.Time
	Notes     *string
}

// Update merges the provided fields, recomputes the entry's points and
// applies the delta against the owner's total. The row is locked for the
// whole transaction so concurrent updates cannot compute their delta
// against a stale points value.
func (s *Service) Update(ctx context.Context, identity auth.Identity, workoutID uint, params UpdateParams) (*Workout, error) {
	var workout Workout
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", workoutID).
			First(&workout).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWorkoutNotFound
		}
		if err != nil {
			s.logError(opUpdateWorkout, "workout_select_failed", err, zap.Uint("workout_id", workoutID))
			return newServiceError(opUpdateWorkout, "workout_select_failed", err)
		}
		if workout.UserID != identity.UserID && !identity.Elevated() {
			return ErrNotOwner
		}

		if params.StartedAt != nil {
			workout.StartedAt = params.StartedAt.UTC()
		}
		if params.EndedAt != nil {
			workout.EndedAt = params.EndedAt.UTC()
		}
		if params.Notes != nil {
			workout.Notes = *params.Notes
		}

		oldPoints := workout.Points
		workout.Points = points.ForInterval(workout.StartedAt, workout.EndedAt)
		delta := workout.Points - oldPoints

		updates := map[string]interface{}{
			"started_at": workout.StartedAt,
			"ended_at":   workout.EndedAt,
			"notes":      workout.Notes,
			"points":     workout.Points,
		}
		if err := tx.Model(&Workout{}).Where("id = ?", workout.ID).Updates(updates).Error; err != nil {
			s.logError(opUpdateWorkout, "workout_update_failed", err, zap.Uint("workout_id", workoutID))
			return newServiceError(opUpdateWorkout, "workout_update_failed", err)
		}

		if delta != 0 {
			if err := s.adjustUserTotal(tx, opUpdateWorkout, workout.UserID, delta); err != nil {
				return err
			}
		}
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}

	s.logger.Info("workout updated",
		zap.Uint("workout_id", workout.ID),
		zap.Uint("user_id", workout.UserID),
		zap.Int64("points", workout.Points))
	return &workout, nil
}

// DeleteMode selects between the canonical soft delete and the
// administrative hard delete.
type DeleteMode int

const (
	// SoftDelete marks the workout and its media as deleted.
	SoftDelete DeleteMode = iota
	// HardDelete removes the rows entirely.
	HardDelete
)

// Delete removes a ledger entry, decrements the owner's total by the entry's
// points and cascades the removal to associated media. Stored objects are
// released best-effort after the transaction commits; a storage failure is
// logged but never rolls the database change back.
func (s *Service) Delete(ctx context.Context, identity auth.Identity, workoutID uint, mode DeleteMode) error {
	var mediaKeys []string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var workout Workout
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", workoutID).
			First(&workout).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrWorkoutNotFound
		}
		if err != nil {
			s.logError(opDeleteWorkout, "workout_select_failed", err, zap.Uint("workout_id", workoutID))
			return newServiceError(opDeleteWorkout, "workout_select_failed", err)
		}
		if workout.UserID != identity.UserID && !identity.Elevated() {
			return ErrNotOwner
		}

		if err := tx.Model(&media.Media{}).
			Where("workout_id = ?", workout.ID).
			Pluck("key", &mediaKeys).Error; err != nil {
			s.logError(opDeleteWorkout, "media_select_failed", err, zap.Uint("workout_id", workoutID))
			return newServiceError(opDeleteWorkout, "media_select_failed", err)
		}

		if err := s.adjustUserTotal(tx, opDeleteWorkout, workout.UserID, -workout.Points); err != nil {
			return err
		}

		mediaQuery := tx.Where("workout_id = ?", workout.ID)
		workoutQuery := tx
		if mode == HardDelete {
			mediaQuery = mediaQuery.Unscoped()
			workoutQuery = workoutQuery.Unscoped()
		}
		if err := mediaQuery.Delete(&media.Media{}).Error; err != nil {
			s.logError(opDeleteWorkout, "media_delete_failed", err, zap.Uint("workout_id", workoutID))
			return newServiceError(opDeleteWorkout, "media_delete_failed", err)
		}
		if err := workoutQuery.Delete(&workout).Error; err != nil {
			s.logError(opDeleteWorkout, "workout_delete_failed", err, zap.Uint("workout_id", workoutID))
			return newServiceError(opDeleteWorkout, "workout_delete_failed", err)
		}
		return nil
	})
	if txErr != nil {
		return txErr
	}

	s.releaseObjects(ctx, workoutID, mediaKeys)

	s.logger.Info("workout deleted",
		zap.Uint("workout_id", workoutID),
		zap.Uint("user_id", identity.UserID),
		zap.Bool("hard", mode == HardDelete))
	return nil
}

// adjustUserTotal applies a points delta with a single conditional UPDATE so
// concurrent mutations cannot lose increments to a read-modify-write race.
func (s *Service) adjustUserTotal(tx *gorm.DB, operation string, userID uint, delta int64) error {
	result := tx.Model(&users.User{}).
		Where("id = ?", userID).
		UpdateColumn("points_total", gorm.Expr("points_total + ?", delta))
	if result.Error != nil {
		s.logError(operation, "user_total_update_failed", result.Error, zap.Uint("user_id", userID))
		return newServiceError(operation, "user_total_update_failed", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// releaseObjects deletes stored media objects outside the transaction.
// Failures leak the object, which is accepted; the points invariant only
// covers database state.
func (s *Service) releaseObjects(ctx context.Context, workoutID uint, keys []string) {
	if s.store == nil || len(keys) == 0 {
		return
	}
	for _, key := range keys {
		if err := s.store.Delete(ctx, key); err != nil {
			s.logger.Warn("stored object release failed",
				zap.Error(err),
				zap.Uint("workout_id", workoutID),
				zap.String("key", key))
		}
	}
}

func (s *Service) loggerOrDefault() *zap.Logger {
	if s == nil || s.logger == nil {
		return noOpLogger
	}
	return s.logger
}

func (s *Service) logError(operation, reason string, err error, fields ...zap.Field) {
	attrs := []zap.Field{
		zap.String("operation", operation),
		zap.String("reason", reason),
	}
	if err != nil {
		attrs = append(attrs, zap.Error(err))
	}
	attrs = append(attrs, fields...)
	s.loggerOrDefault().Error("workout service error", attrs...)
}
