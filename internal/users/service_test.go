package users

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/spotter-app/backend/internal/auth"
	"gorm.io/gorm"
)

type fakeHasher struct{}

func (fakeHasher) Hash(password string) (string, error) {
	return "hashed:" + password, nil
}

func (fakeHasher) Compare(hash, password string) error {
	if hash != "hashed:"+password {
		return errors.New("mismatch")
	}
	return nil
}

type fakeIssuer struct {
	lastIdentity auth.Identity
}

func (f *fakeIssuer) IssueToken(ctx context.Context, identity auth.Identity) (string, int64, error) {
	f.lastIdentity = identity
	return "session-token", 3600, nil
}

func TestRegisterAndLogin(t *testing.T) {
	service, _, issuer := newTestService(t)

	user, err := service.Register(context.Background(), RegisterParams{
		Username: "marco",
		Password: "hunter2",
	})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if user.Role != auth.RoleUser {
		t.Fatalf("expected default USER role, got %q", user.Role)
	}
	if user.PointsTotal != 0 {
		t.Fatalf("expected a fresh account to start at 0 points, got %d", user.PointsTotal)
	}

	result, err := service.Login(context.Background(), "marco", "hunter2")
	if err != nil {
		t.Fatalf("unexpected login error: %v", err)
	}
	if result.Token != "session-token" || result.UserID != user.ID {
		t.Fatalf("unexpected login result: %+v", result)
	}
	if issuer.lastIdentity.UserID != user.ID || issuer.lastIdentity.Role != auth.RoleUser {
		t.Fatalf("unexpected identity passed to issuer: %+v", issuer.lastIdentity)
	}
}

func TestRegisterRejectsDuplicateUsername(t *testing.T) {
	service, _, _ := newTestService(t)

	if _, err := service.Register(context.Background(), RegisterParams{Username: "marco", Password: "a"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Register(context.Background(), RegisterParams{Username: "  marco  ", Password: "b"})
	if !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestRegisterValidatesFiscalCode(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.Register(context.Background(), RegisterParams{
		Username:   "marco",
		Password:   "a",
		FiscalCode: "TOOSHORT",
	})
	if !errors.Is(err, ErrInvalidFiscalCode) {
		t.Fatalf("expected ErrInvalidFiscalCode, got %v", err)
	}

	if _, err := service.Register(context.Background(), RegisterParams{
		Username:   "marco",
		Password:   "a",
		FiscalCode: "RSSMRA85M01H501Z",
	}); err != nil {
		t.Fatalf("unexpected register error with valid code: %v", err)
	}

	_, err = service.Register(context.Background(), RegisterParams{
		Username:   "other",
		Password:   "a",
		FiscalCode: "RSSMRA85M01H501Z",
	})
	if !errors.Is(err, ErrFiscalCodeTaken) {
		t.Fatalf("expected ErrFiscalCodeTaken, got %v", err)
	}
}

func TestLoginRejectsWrongPassword(t *testing.T) {
	service, _, _ := newTestService(t)

	if _, err := service.Register(context.Background(), RegisterParams{Username: "marco", Password: "right"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	_, err := service.Login(context.Background(), "marco", "wrong")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	_, err = service.Login(context.Background(), "nobody", "right")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	service, _, _ := newTestService(t)

	user, err := service.Register(context.Background(), RegisterParams{Username: "marco", Password: "old"})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := service.ChangePassword(context.Background(), user.ID, "new"); err != nil {
		t.Fatalf("unexpected change error: %v", err)
	}
	if _, err := service.Login(context.Background(), "marco", "old"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected old password rejected, got %v", err)
	}
	if _, err := service.Login(context.Background(), "marco", "new"); err != nil {
		t.Fatalf("expected new password accepted, got %v", err)
	}
	if err := service.ChangePassword(context.Background(), 404, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestGetProfileAggregatesCountsAndPicture(t *testing.T) {
	service, db, _ := newTestService(t)

	user, err := service.Register(context.Background(), RegisterParams{Username: "marco", Password: "a"})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	startedAt := time.Date(2024, time.April, 1, 7, 0, 0, 0, time.UTC)
	if err := db.Exec(
		"INSERT INTO workouts (user_id, started_at, ended_at, points, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)",
		user.ID, startedAt, startedAt.Add(90*time.Minute), 2, startedAt, startedAt,
	).Error; err != nil {
		t.Fatalf("failed to seed workout: %v", err)
	}
	if err := db.Exec(
		"INSERT INTO comments (user_id, workout_id, text, created_at) VALUES (?, ?, ?, ?)",
		user.ID, 1, "nice", startedAt,
	).Error; err != nil {
		t.Fatalf("failed to seed comment: %v", err)
	}
	if err := db.Exec(
		"INSERT INTO media (key, url, mime, type, category, needs_auth, user_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		"pic.jpg", "/v1/media/pic.jpg", "image/jpeg", "IMAGE", "PROFILE", false, user.ID, startedAt,
	).Error; err != nil {
		t.Fatalf("failed to seed profile picture: %v", err)
	}
	if err := db.Model(&User{}).Where("id = ?", user.ID).Update("points_total", 2).Error; err != nil {
		t.Fatalf("failed to seed points total: %v", err)
	}

	view, err := service.GetProfile(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("unexpected profile error: %v", err)
	}
	if view.WorkoutCount != 1 {
		t.Fatalf("expected 1 workout, got %d", view.WorkoutCount)
	}
	if view.CommentCount != 1 {
		t.Fatalf("expected 1 comment, got %d", view.CommentCount)
	}
	if view.PointsTotal != 2 {
		t.Fatalf("expected 2 points, got %d", view.PointsTotal)
	}
	if view.ProfilePicURL != "/v1/media/pic.jpg" {
		t.Fatalf("unexpected profile picture url: %q", view.ProfilePicURL)
	}
}

func TestGetProfileUnknownUser(t *testing.T) {
	service, _, _ := newTestService(t)
	if _, err := service.GetProfile(context.Background(), 404); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestUpdateProfileEnforcesUniqueUsername(t *testing.T) {
	service, db, _ := newTestService(t)

	first, err := service.Register(context.Background(), RegisterParams{Username: "marco", Password: "a"})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if _, err := service.Register(context.Background(), RegisterParams{Username: "paolo", Password: "a"}); err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}

	if err := service.UpdateProfile(context.Background(), first.ID, "paolo"); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
	// Renaming to your own current name is a no-op, not a conflict.
	if err := service.UpdateProfile(context.Background(), first.ID, "marco"); err != nil {
		t.Fatalf("unexpected error renaming to own name: %v", err)
	}
	if err := service.UpdateProfile(context.Background(), first.ID, "marco2"); err != nil {
		t.Fatalf("unexpected rename error: %v", err)
	}

	var reloaded User
	if err := db.First(&reloaded, first.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if reloaded.Username != "marco2" {
		t.Fatalf("expected renamed user, got %q", reloaded.Username)
	}
	if reloaded.PointsTotal != 0 {
		t.Fatalf("expected rename to leave points untouched, got %d", reloaded.PointsTotal)
	}
}

func TestSetDeviceToken(t *testing.T) {
	service, db, _ := newTestService(t)

	user, err := service.Register(context.Background(), RegisterParams{Username: "marco", Password: "a"})
	if err != nil {
		t.Fatalf("unexpected register error: %v", err)
	}
	if err := service.SetDeviceToken(context.Background(), user.ID, " fcm-token "); err != nil {
		t.Fatalf("unexpected device token error: %v", err)
	}

	var reloaded User
	if err := db.First(&reloaded, user.ID).Error; err != nil {
		t.Fatalf("failed to reload user: %v", err)
	}
	if reloaded.DeviceToken != "fcm-token" {
		t.Fatalf("expected trimmed device token, got %q", reloaded.DeviceToken)
	}
	if err := service.SetDeviceToken(context.Background(), 404, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func newTestService(t *testing.T) (*Service, *gorm.DB, *fakeIssuer) {
	t.Helper()

	dsn := fmt.Sprintf("file:users_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// The profile projection reads foreign tables by name; create bare
	// tables so the aggregate queries run without importing those packages.
	statements := []string{
		"CREATE TABLE workouts (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, started_at DATETIME, ended_at DATETIME, notes TEXT, points INTEGER, created_at DATETIME, updated_at DATETIME, deleted_at DATETIME)",
		"CREATE TABLE comments (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, workout_id INTEGER, text TEXT, created_at DATETIME)",
		"CREATE TABLE media (id INTEGER PRIMARY KEY AUTOINCREMENT, key TEXT, url TEXT, mime TEXT, type TEXT, category TEXT, needs_auth BOOLEAN, workout_id INTEGER, post_id INTEGER, user_id INTEGER, created_at DATETIME, deleted_at DATETIME)",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}

	issuer := &fakeIssuer{}
	service, err := NewService(ServiceConfig{Database: db, Hasher: fakeHasher{}, Tokens: issuer})
	if err != nil {
		t.Fatalf("failed to construct user service: %v", err)
	}
	return service, db, issuer
}
