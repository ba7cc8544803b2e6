package users

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spotter-app/backend/internal/auth"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const fiscalCodeLength = 16

var (
	// ErrUsernameTaken indicates the requested username is already registered.
	ErrUsernameTaken = errors.New("users: username already taken")
	// ErrFiscalCodeTaken indicates the fiscal code already belongs to an account.
	ErrFiscalCodeTaken = errors.New("users: fiscal code already registered")
	// ErrInvalidFiscalCode indicates the fiscal code is not a 16-character code.
	ErrInvalidFiscalCode = errors.New("users: invalid fiscal code")
	// ErrInvalidCredentials indicates an unknown username or a wrong password.
	ErrInvalidCredentials = errors.New("users: invalid username or password")
	// ErrUserNotFound indicates the user id does not resolve to an account.
	ErrUserNotFound = errors.New("users: user not found")
)

// PasswordHasher abstracts bcrypt so tests can substitute a fake.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Compare(hash, password string) error
}

// TokenIssuer mints session tokens at login.
type TokenIssuer interface {
	IssueToken(ctx context.Context, identity auth.Identity) (string, int64, error)
}

// ServiceConfig describes the dependencies required by the account service.
type ServiceConfig struct {
	Database *gorm.DB
	Hasher   PasswordHasher
	Tokens   TokenIssuer
	Clock    func() time.Time
	Logger   *zap.Logger
}

// Service owns account lifecycle and the profile read projection.
type Service struct {
	db     *gorm.DB
	hasher PasswordHasher
	tokens TokenIssuer
	now    func() time.Time
	logger *zap.Logger
}

// NewService constructs the account service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if cfg.Database == nil {
		return nil, fmt.Errorf("users: database connection required")
	}
	if cfg.Hasher == nil {
		return nil, fmt.Errorf("users: password hasher required")
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
		hasher: cfg.Hasher,
		tokens: cfg.Tokens,
		now:    clock,
		logger: logger,
	}, nil
}

// RegisterParams carries signup input.
type RegisterParams struct {
	Username   string
	Password   string
	FiscalCode string
}

// Register creates a new account with a bcrypt password hash. The fiscal
// code is optional; when present it must be the 16-character national code.
func (s *Service) Register(ctx context.Context, params RegisterParams) (*User, error) {
	username := normalize(params.Username)
	if username == "" || params.Password == "" {
		return nil, ErrInvalidCredentials
	}

	var fiscalCode *string
	if code := normalize(params.FiscalCode); code != "" {
		if len(code) != fiscalCodeLength {
			return nil, ErrInvalidFiscalCode
		}
		fiscalCode = &code
	}

	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil {
		return nil, ErrUsernameTaken
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	if fiscalCode != nil {
		err := s.db.WithContext(ctx).Where("fiscal_code = ?", *fiscalCode).First(&existing).Error
		if err == nil {
			return nil, ErrFiscalCodeTaken
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	hash, err := s.hasher.Hash(params.Password)
	if err != nil {
		return nil, err
	}

	user := User{
		Username:     username,
		FiscalCode:   fiscalCode,
		PasswordHash: hash,
		Role:         auth.RoleUser,
	}
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		return nil, err
	}

	s.logger.Info("user registered", zap.Uint("user_id", user.ID), zap.String("username", user.Username))
	return &user, nil
}

// LoginResult carries the issued session token.
type LoginResult struct {
	Token     string
	ExpiresIn int64
	UserID    uint
}

// Login verifies credentials and issues a session token.
func (s *Service) Login(ctx context.Context, username, password string) (LoginResult, error) {
	if s.tokens == nil {
		return LoginResult{}, fmt.Errorf("users: token issuer required")
	}

	var user User
	err := s.db.WithContext(ctx).Where("username = ?", normalize(username)).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if err := s.hasher.Compare(user.PasswordHash, password); err != nil {
		return LoginResult{}, ErrInvalidCredentials
	}

	token, expiresIn, err := s.tokens.IssueToken(ctx, auth.Identity{UserID: user.ID, Role: user.Role})
	if err != nil {
		return LoginResult{}, err
	}

	return LoginResult{Token: token, ExpiresIn: expiresIn, UserID: user.ID}, nil
}

// ChangePassword replaces the stored password hash.
func (s *Service) ChangePassword(ctx context.Context, userID uint, password string) error {
	if password == "" {
		return ErrInvalidCredentials
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return err
	}
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("pw_hash", hash)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// ProfileView is the aggregated profile read model. PointsTotal comes
// straight from the denormalized column; the counts are live aggregates.
type ProfileView struct {
	ID            uint      `json:"id"`
	Username      string    `json:"username"`
	PointsTotal   int64     `json:"points"`
	ProfilePicURL string    `json:"profile_pic_url,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	WorkoutCount  int64     `json:"workout_count"`
	CommentCount  int64     `json:"comment_count"`
}

// GetProfile assembles the profile projection for the given user.
func (s *Service) GetProfile(ctx context.Context, userID uint) (ProfileView, error) {
	var user User
	err := s.db.WithContext(ctx).Where("id = ?", userID).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ProfileView{}, ErrUserNotFound
	}
	if err != nil {
		return ProfileView{}, err
	}

	view := ProfileView{
		ID:          user.ID,
		Username:    user.Username,
		PointsTotal: user.PointsTotal,
		CreatedAt:   user.CreatedAt,
	}

	// The counts are intentionally queried by table name: the workout and
	// comment packages depend on this one for ownership, not the reverse.
	if err := s.db.WithContext(ctx).
		Table("workouts").
		Where("user_id = ? AND deleted_at IS NULL", userID).
		Count(&view.WorkoutCount).Error; err != nil {
		return ProfileView{}, err
	}
	if err := s.db.WithContext(ctx).
		Table("comments").
		Where("user_id = ?", userID).
		Count(&view.CommentCount).Error; err != nil {
		return ProfileView{}, err
	}

	var profilePicURL []string
	if err := s.db.WithContext(ctx).
		Table("media").
		Where("user_id = ? AND category = ? AND deleted_at IS NULL", userID, "PROFILE").
		Order("created_at DESC").
		Limit(1).
		Pluck("url", &profilePicURL).Error; err != nil {
		return ProfileView{}, err
	}
	if len(profilePicURL) > 0 {
		view.ProfilePicURL = profilePicURL[0]
	}

	return view, nil
}

// UpdateProfile renames the account. It never touches PointsTotal; that
// column belongs to the workout ledger service.
func (s *Service) UpdateProfile(ctx context.Context, userID uint, username string) error {
	username = normalize(username)
	if username == "" {
		return ErrUsernameTaken
	}

	var existing User
	err := s.db.WithContext(ctx).Where("username = ?", username).First(&existing).Error
	if err == nil && existing.ID != userID {
		return ErrUsernameTaken
	}
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("username", username)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// SetDeviceToken stores the push notification token for the account.
// Delivery is handled by an external service.
func (s *Service) SetDeviceToken(ctx context.Context, userID uint, token string) error {
	result := s.db.WithContext(ctx).Model(&User{}).Where("id = ?", userID).Update("device_token", normalize(token))
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}
