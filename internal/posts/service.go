package posts

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spotter-app/backend/internal/media"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrPostNotFound indicates the post does not exist or is not owned by the caller.
	ErrPostNotFound = errors.New("posts: post not found or unauthorized")
	// ErrEmptyText indicates a blank post body.
	ErrEmptyText = errors.New("posts: text is required")
)

// ServiceConfig describes the dependencies of the post service.
type ServiceConfig struct {
	Database *gorm.DB
	Store    media.ObjectStore
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns the motivation post lifecycle and the like toggle.
type Service struct {
	db     *gorm.DB
	store  media.ObjectStore
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the post service. Store may be nil when object
// storage is not configured; media cleanup is then skipped.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("posts: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{db: cfg.Database, store: cfg.Store, now: clock, logger: logger}, nil
}

// AuthorSummary is the embedded author projection on post reads.
type AuthorSummary struct {
	ID          uint   `json:"id"`
	Username    string `json:"username"`
	PointsTotal int64  `json:"points"`
}

// LikeView is one like with the liker's username merged in.
type LikeView struct {
	UserID    uint      `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// View is the post read model exposed through the API.
type View struct {
	ID        uint          `json:"id"`
	Text      string        `json:"text"`
	CreatedAt time.Time     `json:"created_at"`
	Author    AuthorSummary `json:"user"`
	MediaURLs []string      `json:"media_urls"`
	Likes     []LikeView    `json:"likes"`
}

// Create inserts a new motivation post.
func (s *Service) Create(ctx context.Context, userID uint, text string) (*MotivationPost, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyText
	}
	post := MotivationPost{UserID: userID, Text: text}
	if err := s.db.WithContext(ctx).Create(&post).Error; err != nil {
		return nil, err
	}
	s.logger.Debug("post created", zap.Uint("post_id", post.ID), zap.Uint("user_id", userID))
	return &post, nil
}

// FindAll returns the feed, newest first, restricted to posts that carry at
// least one media item. Limit of zero means no limit.
func (s *Service) FindAll(ctx context.Context, limit, offset int) ([]View, error) {
	query := s.db.WithContext(ctx).
		Model(&MotivationPost{}).
		Where("EXISTS (SELECT 1 FROM media WHERE media.post_id = motivation_posts.id AND media.deleted_at IS NULL)").
		Order("created_at DESC, id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var rows []MotivationPost
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return s.assembleViews(ctx, rows)
}

// Remove deletes a post owned by the caller together with its media rows and
// likes; stored objects are released best-effort after the transaction.
func (s *Service) Remove(ctx context.Context, userID, postID uint) error {
	var post MotivationPost
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", postID, userID).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrPostNotFound
	}
	if err != nil {
		return err
	}

	var mediaKeys []string
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&media.Media{}).Where("post_id = ?", post.ID).Pluck("key", &mediaKeys).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&media.Media{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", post.ID).Delete(&PostLike{}).Error; err != nil {
			return err
		}
		return tx.Delete(&post).Error
	})
	if txErr != nil {
		return txErr
	}

	if s.store != nil {
		for _, key := range mediaKeys {
			if err := s.store.Delete(ctx, key); err != nil {
				s.logger.Warn("stored object release failed", zap.Error(err), zap.String("key", key))
			}
		}
	}
	return nil
}

// ToggleLike flips the caller's like on a post and reports the new state.
func (s *Service) ToggleLike(ctx context.Context, userID, postID uint) (bool, error) {
	var post MotivationPost
	err := s.db.WithContext(ctx).Where("id = ?", postID).First(&post).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, ErrPostNotFound
	}
	if err != nil {
		return false, err
	}

	var like PostLike
	err = s.db.WithContext(ctx).Where("user_id = ? AND post_id = ?", userID, postID).First(&like).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		like = PostLike{UserID: userID, PostID: postID}
		if err := s.db.WithContext(ctx).Create(&like).Error; err != nil {
			return false, err
		}
		s.logger.Debug("post liked", zap.Uint("post_id", postID), zap.Uint("user_id", userID))
		return true, nil
	}
	if err != nil {
		return false, err
	}

	if err := s.db.WithContext(ctx).Delete(&like).Error; err != nil {
		return false, err
	}
	s.logger.Debug("post unliked", zap.Uint("post_id", postID), zap.Uint("user_id", userID))
	return false, nil
}

func (s *Service) assembleViews(ctx context.Context, rows []MotivationPost) ([]View, error) {
	views := make([]View, 0, len(rows))
	if len(rows) == 0 {
		return views, nil
	}

	postIDs := make([]uint, 0, len(rows))
	authorIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		postIDs = append(postIDs, row.ID)
		authorIDs = append(authorIDs, row.UserID)
	}

	type authorRow struct {
		ID          uint
		Username    string
		PointsTotal int64
	}
	var authors []authorRow
	if err := s.db.WithContext(ctx).
		Table("users").
		Select("id, username, points_total").
		Where("id IN ?", authorIDs).
		Scan(&authors).Error; err != nil {
		return nil, err
	}
	authorsByID := make(map[uint]authorRow, len(authors))
	for _, author := range authors {
		authorsByID[author.ID] = author
	}

	var mediaRows []media.Media
	if err := s.db.WithContext(ctx).Where("post_id IN ?", postIDs).Find(&mediaRows).Error; err != nil {
		return nil, err
	}
	mediaURLsByPost := make(map[uint][]string)
	for _, row := range mediaRows {
		if row.PostID != nil {
			mediaURLsByPost[*row.PostID] = append(mediaURLsByPost[*row.PostID], row.URL)
		}
	}

	type likeRow struct {
		PostID    uint
		UserID    uint
		Username  string
		CreatedAt time.Time
	}
	var likeRows []likeRow
	if err := s.db.WithContext(ctx).
		Table("post_likes").
		Select("post_likes.post_id, post_likes.user_id, users.username, post_likes.created_at").
		Joins("JOIN users ON users.id = post_likes.user_id").
		Where("post_likes.post_id IN ?", postIDs).
		Order("post_likes.created_at ASC").
		Scan(&likeRows).Error; err != nil {
		return nil, err
	}
	likesByPost := make(map[uint][]LikeView)
	for _, row := range likeRows {
		likesByPost[row.PostID] = append(likesByPost[row.PostID], LikeView{
			UserID:    row.UserID,
			Username:  row.Username,
			CreatedAt: row.CreatedAt,
		})
	}

	for _, row := range rows {
		author := authorsByID[row.UserID]
		mediaURLs := mediaURLsByPost[row.ID]
		if mediaURLs == nil {
			mediaURLs = []string{}
		}
		likes := likesByPost[row.ID]
		if likes == nil {
			likes = []LikeView{}
		}
		views = append(views, View{
			ID:        row.ID,
			Text:      row.Text,
			CreatedAt: row.CreatedAt,
			Author: AuthorSummary{
				ID:          author.ID,
				Username:    author.Username,
				PointsTotal: author.PointsTotal,
			},
			MediaURLs: mediaURLs,
			Likes:     likes,
		})
	}
	return views, nil
}
