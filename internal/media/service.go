package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spotter-app/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrStorageDisabled indicates no object store is configured.
	ErrStorageDisabled = errors.New("media: object storage not configured")
	// ErrMediaNotFound indicates no media row matches the key.
	ErrMediaNotFound = errors.New("media: not found")
	// ErrParentNotFound indicates the parent resource is missing or not owned by the caller.
	ErrParentNotFound = errors.New("media: parent resource not found or unauthorized")
	// ErrUnauthorized indicates a protected object was requested without a valid token.
	ErrUnauthorized = errors.New("media: unauthorized")
	// ErrInvalidCategory indicates an unknown media category.
	ErrInvalidCategory = errors.New("media: invalid category")
)

// StoredObject is the object-store handle for an uploaded payload.
type StoredObject struct {
	Key string
	URL string
}

// ObjectStore is the boundary to the S3-compatible bucket.
type ObjectStore interface {
	Upload(ctx context.Context, data []byte, mimeType string) (StoredObject, error)
	Delete(ctx context.Context, key string) error
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// TokenValidator checks session tokens for protected media reads.
type TokenValidator interface {
	ValidateToken(token string) (auth.Identity, error)
}

// ServiceConfig describes the dependencies of the media service.
type ServiceConfig struct {
	Database *gorm.DB
	Store    ObjectStore
	Tokens   TokenValidator
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service uploads, serves and removes media objects and their rows.
type Service struct {
	db     *gorm.DB
	store  ObjectStore
	tokens TokenValidator
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the media service. Store may be nil when object
// storage is not configured; uploads then fail with ErrStorageDisabled.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("media: database connection required")
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		db:     cfg.Database,
		store:  cfg.Store,
		tokens: cfg.Tokens,
		now:    clock,
		logger: logger,
	}, nil
}

// View is the media read model exposed through the API.
type View struct {
	Key      string   `json:"key"`
	URL      string   `json:"url"`
	Mime     string   `json:"mime"`
	Category Category `json:"category"`
}

// Attach uploads a payload and links the resulting media row to the parent
// resource. The caller must own the parent; post media is auth-protected.
func (s *Service) Attach(ctx context.Context, userID uint, category Category, parentID uint, data []byte, mimeType string) (View, error) {
	if s.store == nil {
		return View{}, ErrStorageDisabled
	}

	row := Media{
		Category:  category,
		NeedsAuth: category == CategoryPost,
		Type:      TypeFromMime(mimeType),
		Mime:      mimeType,
	}

	switch category {
	case CategoryWorkout:
		if err := s.checkParent(ctx, "workouts", parentID, userID); err != nil {
			return View{}, err
		}
		row.WorkoutID = &parentID
	case CategoryPost:
		if err := s.checkParent(ctx, "motivation_posts", parentID, userID); err != nil {
			return View{}, err
		}
		row.PostID = &parentID
	case CategoryProfile:
		owner := userID
		row.UserID = &owner
	default:
		return View{}, ErrInvalidCategory
	}

	object, err := s.store.Upload(ctx, data, mimeType)
	if err != nil {
		s.logger.Error("media upload failed", zap.Error(err), zap.Uint("user_id", userID))
		return View{}, err
	}
	row.Key = object.Key
	row.URL = object.URL

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		// The row failed after the object landed in the bucket; reclaim it so
		// the bucket does not accumulate unreferenced objects.
		if deleteErr := s.store.Delete(ctx, object.Key); deleteErr != nil {
			s.logger.Warn("orphaned object cleanup failed", zap.Error(deleteErr), zap.String("key", object.Key))
		}
		return View{}, err
	}

	s.logger.Debug("media attached",
		zap.String("key", row.Key),
		zap.String("category", string(category)),
		zap.Uint("parent_id", parentID))
	return View{Key: row.Key, URL: row.URL, Mime: row.Mime, Category: row.Category}, nil
}

// Remove deletes a media row owned by the caller and releases the stored
// object best-effort.
func (s *Service) Remove(ctx context.Context, userID uint, key string) error {
	var row Media
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrMediaNotFound
	}
	if err != nil {
		return err
	}

	if err := s.checkOwnership(ctx, row, userID); err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(&row).Error; err != nil {
		return err
	}

	if s.store != nil {
		if err := s.store.Delete(ctx, row.Key); err != nil {
			s.logger.Warn("stored object release failed", zap.Error(err), zap.String("key", row.Key))
		}
	}
	return nil
}

// Open streams a stored object. Auth-protected objects require a valid
// session token.
func (s *Service) Open(ctx context.Context, key, token string) (io.ReadCloser, string, error) {
	if s.store == nil {
		return nil, "", ErrStorageDisabled
	}

	var row Media
	err := s.db.WithContext(ctx).Where("key = ?", key).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, "", ErrMediaNotFound
	}
	if err != nil {
		return nil, "", err
	}

	if row.NeedsAuth {
		if s.tokens == nil {
			return nil, "", ErrUnauthorized
		}
		identity, err := s.tokens.ValidateToken(token)
		if err != nil {
			return nil, "", ErrUnauthorized
		}
		s.logger.Debug("protected media access", zap.Uint("user_id", identity.UserID), zap.String("key", key))
	}

	return s.store.Open(ctx, key)
}

func (s *Service) checkParent(ctx context.Context, table string, parentID, userID uint) error {
	var count int64
	if err := s.db.WithContext(ctx).
		Table(table).
		Where("id = ? AND user_id = ? AND deleted_at IS NULL", parentID, userID).
		Count(&count).Error; err != nil {
		return err
	}
	if count == 0 {
		return ErrParentNotFound
	}
	return nil
}

func (s *Service) checkOwnership(ctx context.Context, row Media, userID uint) error {
	switch {
	case row.UserID != nil:
		if *row.UserID != userID {
			return ErrParentNotFound
		}
		return nil
	case row.WorkoutID != nil:
		return s.checkParent(ctx, "workouts", *row.WorkoutID, userID)
	case row.PostID != nil:
		return s.checkParent(ctx, "motivation_posts", *row.PostID, userID)
	default:
		return ErrParentNotFound
	}
}

// TypeFromMime maps a MIME type onto the coarse media kind.
func TypeFromMime(mimeType string) Type {
	if strings.HasPrefix(mimeType, "image") {
		return TypeImage
	}
	return TypeVideo
}
