package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/spotter-app/backend/internal/auth"
	"gorm.io/gorm"
)

type fakeObjectStore struct {
	objects     map[string][]byte
	mimes       map[string]string
	uploads     int
	failUpload  bool
	failDelete  bool
	deletedKeys []string
}

func newFakeObjectStore() *fakeObjectStore {
	return &fakeObjectStore{objects: map[string][]byte{}, mimes: map[string]string{}}
}

func (f *fakeObjectStore) Upload(ctx context.Context, data []byte, mimeType string) (StoredObject, error) {
	if f.failUpload {
		return StoredObject{}, errors.New("bucket unavailable")
	}
	f.uploads++
	key := fmt.Sprintf("object-%d", f.uploads)
	f.objects[key] = data
	f.mimes[key] = mimeType
	return StoredObject{Key: key, URL: "/v1/media/" + key}, nil
}

func (f *fakeObjectStore) Delete(ctx context.Context, key string) error {
	if f.failDelete {
		return errors.New("bucket unavailable")
	}
	f.deletedKeys = append(f.deletedKeys, key)
	delete(f.objects, key)
	return nil
}

func (f *fakeObjectStore) Open(ctx context.Context, key string) (io.ReadCloser, string, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, "", errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), f.mimes[key], nil
}

type fakeTokenValidator struct {
	identity auth.Identity
	err      error
}

func (f fakeTokenValidator) ValidateToken(token string) (auth.Identity, error) {
	if f.err != nil {
		return auth.Identity{}, f.err
	}
	return f.identity, nil
}

func TestAttachProfilePicture(t *testing.T) {
	service, db, store := newTestService(t, fakeTokenValidator{})
	userID := uint(7)

	view, err := service.Attach(context.Background(), userID, CategoryProfile, 0, []byte("jpeg-bytes"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	if view.Category != CategoryProfile {
		t.Fatalf("unexpected category: %q", view.Category)
	}
	if len(store.objects) != 1 {
		t.Fatalf("expected 1 stored object, got %d", len(store.objects))
	}

	var row Media
	if err := db.Where("key = ?", view.Key).First(&row).Error; err != nil {
		t.Fatalf("failed to load media row: %v", err)
	}
	if row.NeedsAuth {
		t.Fatal("profile media must be publicly readable")
	}
	if row.UserID == nil || *row.UserID != userID {
		t.Fatalf("expected media linked to user %d, got %v", userID, row.UserID)
	}
	if row.Type != TypeImage {
		t.Fatalf("expected image type, got %q", row.Type)
	}
}

func TestAttachToWorkoutChecksOwnership(t *testing.T) {
	service, db, _ := newTestService(t, fakeTokenValidator{})
	seedWorkoutRow(t, db, 1, 7)

	if _, err := service.Attach(context.Background(), 99, CategoryWorkout, 1, []byte("x"), "video/mp4"); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound for foreign workout, got %v", err)
	}

	view, err := service.Attach(context.Background(), 7, CategoryWorkout, 1, []byte("x"), "video/mp4")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	var row Media
	if err := db.Where("key = ?", view.Key).First(&row).Error; err != nil {
		t.Fatalf("failed to load media row: %v", err)
	}
	if row.Type != TypeVideo {
		t.Fatalf("expected video type, got %q", row.Type)
	}
	if row.WorkoutID == nil || *row.WorkoutID != 1 {
		t.Fatalf("expected media linked to workout 1, got %v", row.WorkoutID)
	}
}

func TestAttachPostMediaNeedsAuth(t *testing.T) {
	service, db, _ := newTestService(t, fakeTokenValidator{})
	seedPostRow(t, db, 1, 7)

	view, err := service.Attach(context.Background(), 7, CategoryPost, 1, []byte("x"), "image/png")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	var row Media
	if err := db.Where("key = ?", view.Key).First(&row).Error; err != nil {
		t.Fatalf("failed to load media row: %v", err)
	}
	if !row.NeedsAuth {
		t.Fatal("post media must require a session token")
	}
}

func TestAttachCleansUpOrphanOnRowFailure(t *testing.T) {
	service, db, store := newTestService(t, fakeTokenValidator{})
	userID := uint(7)

	first, err := service.Attach(context.Background(), userID, CategoryProfile, 0, []byte("x"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	// Force a key collision so the row insert fails after the upload landed.
	if err := db.Exec("UPDATE media SET key = ? WHERE key = ?", "object-2", first.Key).Error; err != nil {
		t.Fatalf("failed to rig collision: %v", err)
	}
	if _, err := service.Attach(context.Background(), userID, CategoryProfile, 0, []byte("y"), "image/jpeg"); err == nil {
		t.Fatal("expected row insert failure")
	}
	if len(store.deletedKeys) != 1 || store.deletedKeys[0] != "object-2" {
		t.Fatalf("expected orphaned object reclaimed, got %v", store.deletedKeys)
	}
}

func TestAttachWithoutStore(t *testing.T) {
	dsn := fmt.Sprintf("file:media_nostore_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Media{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	service, err := NewService(ServiceConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to construct media service: %v", err)
	}
	if _, err := service.Attach(context.Background(), 1, CategoryProfile, 0, []byte("x"), "image/jpeg"); !errors.Is(err, ErrStorageDisabled) {
		t.Fatalf("expected ErrStorageDisabled, got %v", err)
	}
}

func TestOpenGatesProtectedObjects(t *testing.T) {
	validator := fakeTokenValidator{identity: auth.Identity{UserID: 7, Role: auth.RoleUser}}
	service, db, _ := newTestService(t, validator)
	seedPostRow(t, db, 1, 7)

	view, err := service.Attach(context.Background(), 7, CategoryPost, 1, []byte("secret"), "image/png")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}

	reader, mimeType, err := service.Open(context.Background(), view.Key, "valid-token")
	if err != nil {
		t.Fatalf("unexpected open error: %v", err)
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("failed to read object: %v", err)
	}
	if string(data) != "secret" || mimeType != "image/png" {
		t.Fatalf("unexpected payload %q mime %q", data, mimeType)
	}
}

func TestOpenRejectsInvalidTokenOnProtectedObjects(t *testing.T) {
	validator := fakeTokenValidator{err: errors.New("expired")}
	service, db, _ := newTestService(t, validator)
	seedPostRow(t, db, 1, 7)

	view, err := service.Attach(context.Background(), 7, CategoryPost, 1, []byte("secret"), "image/png")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	if _, _, err := service.Open(context.Background(), view.Key, "bad-token"); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestOpenPublicObjectWithoutToken(t *testing.T) {
	validator := fakeTokenValidator{err: errors.New("expired")}
	service, _, _ := newTestService(t, validator)

	view, err := service.Attach(context.Background(), 7, CategoryProfile, 0, []byte("public"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	reader, _, err := service.Open(context.Background(), view.Key, "")
	if err != nil {
		t.Fatalf("expected public object readable without token, got %v", err)
	}
	reader.Close()
}

func TestRemoveReleasesStoredObject(t *testing.T) {
	service, db, store := newTestService(t, fakeTokenValidator{})

	view, err := service.Attach(context.Background(), 7, CategoryProfile, 0, []byte("x"), "image/jpeg")
	if err != nil {
		t.Fatalf("unexpected attach error: %v", err)
	}
	if err := service.Remove(context.Background(), 99, view.Key); !errors.Is(err, ErrParentNotFound) {
		t.Fatalf("expected ErrParentNotFound for foreign media, got %v", err)
	}
	if err := service.Remove(context.Background(), 7, view.Key); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if len(store.deletedKeys) != 1 || store.deletedKeys[0] != view.Key {
		t.Fatalf("expected stored object released, got %v", store.deletedKeys)
	}

	var count int64
	if err := db.Model(&Media{}).Where("key = ?", view.Key).Count(&count).Error; err != nil {
		t.Fatalf("failed to count media: %v", err)
	}
	if count != 0 {
		t.Fatal("expected media row gone")
	}
}

func seedWorkoutRow(t *testing.T, db *gorm.DB, id, userID uint) {
	t.Helper()
	if err := db.Exec(
		"INSERT INTO workouts (id, user_id, started_at, ended_at, points, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, userID, time.Now(), time.Now(), 0, time.Now(), time.Now(),
	).Error; err != nil {
		t.Fatalf("failed to seed workout: %v", err)
	}
}

func seedPostRow(t *testing.T, db *gorm.DB, id, userID uint) {
	t.Helper()
	if err := db.Exec(
		"INSERT INTO motivation_posts (id, user_id, text, created_at) VALUES (?, ?, ?, ?)",
		id, userID, "motivation", time.Now(),
	).Error; err != nil {
		t.Fatalf("failed to seed post: %v", err)
	}
}

func newTestService(t *testing.T, validator TokenValidator) (*Service, *gorm.DB, *fakeObjectStore) {
	t.Helper()

	dsn := fmt.Sprintf("file:media_test_%d?mode=memory&cache=shared", time.Now().UnixNano())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&Media{}); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}
	// Parent ownership checks query foreign tables by name.
	statements := []string{
		"CREATE TABLE workouts (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, started_at DATETIME, ended_at DATETIME, notes TEXT, points INTEGER, created_at DATETIME, updated_at DATETIME, deleted_at DATETIME)",
		"CREATE TABLE motivation_posts (id INTEGER PRIMARY KEY AUTOINCREMENT, user_id INTEGER, text TEXT, created_at DATETIME, deleted_at DATETIME)",
	}
	for _, statement := range statements {
		if err := db.Exec(statement).Error; err != nil {
			t.Fatalf("failed to create table: %v", err)
		}
	}

	store := newFakeObjectStore()
	service, err := NewService(ServiceConfig{Database: db, Store: store, Tokens: validator})
	if err != nil {
		t.Fatalf("failed to construct media service: %v", err)
	}
	return service, db, store
}
