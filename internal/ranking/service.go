// Package ranking produces the global leaderboard from the workout ledger.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/spotter-app/backend/internal/points"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Entry is one leaderboard row.
type Entry struct {
	UserID                      uint   `json:"id"`
	Username                    string `json:"username"`
	TotalWorkoutDurationSeconds int64  `json:"total_workout_duration"`
	TotalPoints                 int64  `json:"total_points"`
}

// ServiceConfig describes the dependencies of the ranking service.
type ServiceConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Service aggregates the workout ledger into a deterministically ordered
// leaderboard.
type Service struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewService constructs the ranking service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("ranking: database connection required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, logger: logger}, nil
}

type ledgerRow struct {
	UserID    uint
	Username  string
	StartedAt time.Time
	EndedAt   time.Time
	Points    int64
}

// Leaderboard reads every visible workout joined with its owner, groups by
// user and sums stored points and duration seconds. The ledger guarantees
// stored points are current, so they are summed rather than recomputed.
// Ordering is total points descending, total duration ascending (fewer
// seconds for the same points ranks higher), then user id ascending so
// repeated calls over the same state return identical output.
func (s *Service) Leaderboard(ctx context.Context) ([]Entry, error) {
	var rows []ledgerRow
	err := s.db.WithContext(ctx).
		Table("workouts").
		Select("workouts.user_id, users.username, workouts.started_at, workouts.ended_at, workouts.points").
		Joins("JOIN users ON users.id = workouts.user_id").
		Where("workouts.deleted_at IS NULL").
		Scan(&rows).Error
	if err != nil {
		s.logger.Error("leaderboard query failed", zap.Error(err))
		return nil, err
	}

	grouped := make(map[uint]*Entry, len(rows))
	for _, row := range rows {
		entry, ok := grouped[row.UserID]
		if !ok {
			entry = &Entry{UserID: row.UserID, Username: row.Username}
			grouped[row.UserID] = entry
		}
		entry.TotalWorkoutDurationSeconds += points.IntervalSeconds(row.StartedAt, row.EndedAt)
		entry.TotalPoints += row.Points
	}

	entries := make([]Entry, 0, len(grouped))
	for _, entry := range grouped {
		entries = append(entries, *entry)
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].TotalPoints != entries[j].TotalPoints {
			return entries[i].TotalPoints > entries[j].TotalPoints
		}
		if entries[i].TotalWorkoutDurationSeconds != entries[j].TotalWorkoutDurationSeconds {
			return entries[i].TotalWorkoutDurationSeconds < entries[j].TotalWorkoutDurationSeconds
		}
		return entries[i].UserID < entries[j].UserID
	})

	s.logger.Debug("leaderboard computed", zap.Int("entries", len(entries)))
	return entries, nil
}
