package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	circleDto "github.com/circlesplus/backend/internal/modules/circle/dto"
	circleRepo "github.com/circlesplus/backend/internal/modules/circle/repository"
	circleService "github.com/circlesplus/backend/internal/modules/circle/service"
	notifRepo "github.com/circlesplus/backend/internal/modules/notification/repository"
	notifService "github.com/circlesplus/backend/internal/modules/notification/service"
	storyDto "github.com/circlesplus/backend/internal/modules/story/dto"
	storyRepo "github.com/circlesplus/backend/internal/modules/story/repository"
	userRepo "github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// fakeStorage records uploads and deletes without touching Cloudinary.
type fakeStorage struct {
	mu      sync.Mutex
	uploads int
	deleted []string
}

func (f *fakeStorage) UploadMedia(ctx context.Context, r io.Reader, folder, fileName string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	return fmt.Sprintf("https://media.test/%s/%d-%s", folder, f.uploads, fileName), nil
}

func (f *fakeStorage) DeleteMedia(ctx context.Context, fileURL string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, fileURL)
	return nil
}

type storyEnv struct {
	stories StoryService
	circles circleService.CircleService
	users   userRepo.UserRepository
	storage *fakeStorage
	clock   *fakeClock
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newStoryEnv(t *testing.T) *storyEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&entity.User{},
		&entity.Profile{},
		&entity.Circle{},
		&entity.CircleMember{},
		&entity.Notification{},
		&entity.Story{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	users := userRepo.NewUserRepository(db)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), nil)
	circles := circleService.NewCircleService(circleRepo.NewCircleRepository(db), users, notifications, nil, nil)
	notifications.BindResolver(circles)

	fs := &fakeStorage{}
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	stories := NewStoryServiceWithClock(storyRepo.NewStoryRepository(db), circles, fs, nil, clock.Now)

	return &storyEnv{
		stories: stories,
		circles: circles,
		users:   users,
		storage: fs,
		clock:   clock,
	}
}

func (e *storyEnv) createUser(t *testing.T, username string) uuid.UUID {
	t.Helper()

	user := &entity.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	if err := e.users.Create(context.Background(), user, &entity.Profile{DisplayName: username}); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user.ID
}

func (e *storyEnv) createCircle(t *testing.T, creator uuid.UUID, private bool) uuid.UUID {
	t.Helper()

	resp, err := e.circles.CreateCircle(context.Background(), creator, circleDto.CreateCircleRequest{
		Name:      "circle",
		IsPrivate: private,
	})
	if err != nil {
		t.Fatalf("failed to create circle: %v", err)
	}
	return resp.ID
}

func (e *storyEnv) postStory(t *testing.T, user, circle uuid.UUID, video bool) uuid.UUID {
	t.Helper()

	resp, err := e.stories.CreateStory(context.Background(), user, storyDto.CreateStoryInput{
		CircleID: circle,
		Media:    &storyDto.MediaFile{Reader: strings.NewReader("data"), FileName: "clip"},
		IsVideo:  video,
	})
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	return resp.ID
}

func TestCreateStoryExpiresInADay(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	circle := env.createCircle(t, owner, false)
	storyID := env.postStory(t, owner, circle, false)

	story, err := env.stories.GetStory(ctx, owner, storyID)
	if err != nil {
		t.Fatalf("GetStory: %v", err)
	}

	wantExpiry := env.clock.Now().Add(entity.StoryTTL)
	if !story.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("expires at %v, want %v", story.ExpiresAt, wantExpiry)
	}
	if story.IsVideo {
		t.Error("image story marked as video")
	}
}

func TestListStoriesHidesExpired(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	circle := env.createCircle(t, owner, false)

	old := env.postStory(t, owner, circle, false)
	env.clock.Advance(12 * time.Hour)
	fresh := env.postStory(t, owner, circle, true)

	stories, err := env.stories.ListStories(ctx, owner, circle)
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(stories) != 2 {
		t.Fatalf("got %d stories, want 2", len(stories))
	}
	// Newest first.
	if stories[0].ID != fresh || stories[1].ID != old {
		t.Error("stories should be ordered newest first")
	}

	// 13 more hours: the first story is past 24h, the second is not.
	env.clock.Advance(13 * time.Hour)

	stories, err = env.stories.ListStories(ctx, owner, circle)
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(stories) != 1 || stories[0].ID != fresh {
		t.Fatalf("expired story still listed: %v", stories)
	}

	if _, err := env.stories.GetStory(ctx, owner, old); err == nil {
		t.Error("fetching an expired story should fail")
	}
}

func TestCreateStoryRequiresMembership(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	outsider := env.createUser(t, "outsider")
	public := env.createCircle(t, owner, false)

	// Reading a public circle is open; publishing stories is not.
	_, err := env.stories.CreateStory(ctx, outsider, storyDto.CreateStoryInput{
		CircleID: public,
		Media:    &storyDto.MediaFile{Reader: strings.NewReader("data"), FileName: "clip"},
	})
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("non-member story in public circle error = %v, want forbidden", err)
	}

	if _, err := env.circles.Join(ctx, outsider, public); err != nil {
		t.Fatalf("Join: %v", err)
	}
	env.postStory(t, outsider, public, false)
}

func TestListStoriesEmptyForNonReader(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	outsider := env.createUser(t, "outsider")
	circle := env.createCircle(t, owner, true)
	env.postStory(t, owner, circle, false)

	stories, err := env.stories.ListStories(ctx, outsider, circle)
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(stories) != 0 {
		t.Errorf("outsider sees %d stories in a private circle, want 0", len(stories))
	}
}

func TestEditStoryResetsExpiry(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	circle := env.createCircle(t, owner, false)
	storyID := env.postStory(t, owner, circle, false)

	env.clock.Advance(20 * time.Hour)

	updated, err := env.stories.EditStory(ctx, owner, storyID, storyDto.EditStoryInput{
		Media:   &storyDto.MediaFile{Reader: strings.NewReader("new"), FileName: "new-clip"},
		IsVideo: true,
	})
	if err != nil {
		t.Fatalf("EditStory: %v", err)
	}

	wantExpiry := env.clock.Now().Add(entity.StoryTTL)
	if !updated.ExpiresAt.Equal(wantExpiry) {
		t.Errorf("edited expiry %v, want %v", updated.ExpiresAt, wantExpiry)
	}
	if !updated.IsVideo {
		t.Error("media swap to video not reflected")
	}

	// The replaced media is cleaned up.
	if len(env.storage.deleted) != 1 {
		t.Errorf("replaced media deletions = %d, want 1", len(env.storage.deleted))
	}

	// 20 more hours would have killed the original; the edit bought time.
	env.clock.Advance(20 * time.Hour)
	stories, err := env.stories.ListStories(ctx, owner, circle)
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(stories) != 1 {
		t.Errorf("edited story should still be live, got %d stories", len(stories))
	}
}

func TestEditStoryOwnerOnly(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	member := env.createUser(t, "member")
	circle := env.createCircle(t, owner, false)
	if _, err := env.circles.Join(ctx, member, circle); err != nil {
		t.Fatalf("Join: %v", err)
	}
	storyID := env.postStory(t, owner, circle, false)

	_, err := env.stories.EditStory(ctx, member, storyID, storyDto.EditStoryInput{})
	if err == nil {
		t.Error("non-owner edit should fail")
	}
}

func TestDeleteStoryIsIdempotent(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	circle := env.createCircle(t, owner, false)
	storyID := env.postStory(t, owner, circle, false)

	if err := env.stories.DeleteStory(ctx, owner, storyID); err != nil {
		t.Fatalf("DeleteStory: %v", err)
	}
	// Deleting the same story again succeeds quietly.
	if err := env.stories.DeleteStory(ctx, owner, storyID); err != nil {
		t.Fatalf("second DeleteStory: %v", err)
	}

	if len(env.storage.deleted) != 1 {
		t.Errorf("media deletions = %d, want 1", len(env.storage.deleted))
	}
}

func TestSweepRemovesOnlyExpired(t *testing.T) {
	env := newStoryEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	circle := env.createCircle(t, owner, false)

	env.postStory(t, owner, circle, false)
	env.clock.Advance(12 * time.Hour)
	fresh := env.postStory(t, owner, circle, false)
	env.clock.Advance(13 * time.Hour)

	n, err := env.stories.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if n != 1 {
		t.Errorf("sweep removed %d stories, want 1", n)
	}

	stories, err := env.stories.ListStories(ctx, owner, circle)
	if err != nil {
		t.Fatalf("ListStories: %v", err)
	}
	if len(stories) != 1 || stories[0].ID != fresh {
		t.Errorf("surviving stories = %v, want only the fresh one", stories)
	}

	// Nothing left to sweep.
	n, err = env.stories.SweepExpired(ctx)
	if err != nil {
		t.Fatalf("second SweepExpired: %v", err)
	}
	if n != 0 {
		t.Errorf("second sweep removed %d stories, want 0", n)
	}
}
