package service

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	circleService "github.com/circlesplus/backend/internal/modules/circle/service"
	storyDto "github.com/circlesplus/backend/internal/modules/story/dto"
	storyRepo "github.com/circlesplus/backend/internal/modules/story/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/circlesplus/backend/pkg/ratelimiter"
	"github.com/circlesplus/backend/pkg/storage"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type StoryService interface {
	CreateStory(ctx context.Context, userID uuid.UUID, input storyDto.CreateStoryInput) (*storyDto.StoryResponse, error)
	GetStory(ctx context.Context, userID, storyID uuid.UUID) (*storyDto.StoryResponse, error)
	ListStories(ctx context.Context, userID, circleID uuid.UUID) ([]storyDto.StoryResponse, error)
	EditStory(ctx context.Context, userID, storyID uuid.UUID, input storyDto.EditStoryInput) (*storyDto.StoryResponse, error)
	DeleteStory(ctx context.Context, userID, storyID uuid.UUID) error
	SweepExpired(ctx context.Context) (int64, error)
}

type storyService struct {
	repo        storyRepo.StoryRepository
	circles     circleService.CircleService
	media       storage.MediaStorage
	redisClient *redis.Client
	now         func() time.Time
}

func NewStoryService(
	repo storyRepo.StoryRepository,
	circles circleService.CircleService,
	media storage.MediaStorage,
	redisClient *redis.Client,
) StoryService {
	return &storyService{
		repo:        repo,
		circles:     circles,
		media:       media,
		redisClient: redisClient,
		now:         time.Now,
	}
}

// NewStoryServiceWithClock lets tests control the passage of time.
func NewStoryServiceWithClock(
	repo storyRepo.StoryRepository,
	circles circleService.CircleService,
	media storage.MediaStorage,
	redisClient *redis.Client,
	now func() time.Time,
) StoryService {
	return &storyService{
		repo:        repo,
		circles:     circles,
		media:       media,
		redisClient: redisClient,
		now:         now,
	}
}

func (s *storyService) CreateStory(ctx context.Context, userID uuid.UUID, input storyDto.CreateStoryInput) (*storyDto.StoryResponse, error) {
	allowed, err := s.circles.CanWrite(ctx, userID, input.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(403, "you must join this circle before posting stories", apperror.ErrForbidden)
	}

	if input.Media == nil {
		return nil, apperror.New(400, "a story requires an image or video", apperror.ErrBadRequest)
	}

	limit := ratelimiter.GetDurationFromEnv("RATE_LIMIT_STORY", 30*time.Second)
	if limit > 0 {
		ok, err := ratelimiter.CheckAndSetRateLimit(ctx, s.redisClient, userID, ratelimiter.ScopeStory, limit)
		if err != nil {
			// Redis trouble should not block the write.
			log.Printf("story rate limit check failed: %v", err)
			ok = true
		}
		if !ok {
			ttl, _ := ratelimiter.GetRateLimitTTL(ctx, s.redisClient, userID, ratelimiter.ScopeStory)
			return nil, &ratelimiter.RateLimitError{
				RetryAfter: ttl,
				Message:    "you are posting stories too quickly",
			}
		}
	}

	url, err := s.uploadMedia(ctx, input.Media)
	if err != nil {
		return nil, err
	}

	now := s.now()
	story := &entity.Story{
		CircleID:  input.CircleID,
		ProfileID: userID,
		ExpiresAt: now.Add(entity.StoryTTL),
	}
	if input.IsVideo {
		story.VideoURL = &url
	} else {
		story.ImageURL = &url
	}

	if err := s.repo.Create(ctx, story); err != nil {
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, story.ID)
	if err != nil {
		return nil, err
	}
	resp := toStoryResponse(created)
	return &resp, nil
}

func (s *storyService) GetStory(ctx context.Context, userID, storyID uuid.UUID) (*storyDto.StoryResponse, error) {
	story, err := s.findStory(ctx, storyID)
	if err != nil {
		return nil, err
	}
	if story.Expired(s.now()) {
		return nil, apperror.ErrNotFound
	}

	allowed, err := s.circles.CanRead(ctx, userID, story.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.ErrNotFound
	}

	resp := toStoryResponse(story)
	return &resp, nil
}

// ListStories returns the circle's live stories, newest first. Non-readers
// get an empty list.
func (s *storyService) ListStories(ctx context.Context, userID, circleID uuid.UUID) ([]storyDto.StoryResponse, error) {
	allowed, err := s.circles.CanRead(ctx, userID, circleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []storyDto.StoryResponse{}, nil
	}

	// Opportunistic cleanup; the listing filter hides expired rows either way.
	if _, err := s.repo.DeleteExpired(ctx, s.now()); err != nil {
		log.Printf("story sweep during listing failed: %v", err)
	}

	stories, err := s.repo.ListActiveByCircle(ctx, circleID, s.now())
	if err != nil {
		return nil, err
	}

	out := make([]storyDto.StoryResponse, 0, len(stories))
	for _, st := range stories {
		out = append(out, toStoryResponse(st))
	}
	return out, nil
}

// EditStory replaces the story's media and restarts its lifetime.
func (s *storyService) EditStory(ctx context.Context, userID, storyID uuid.UUID, input storyDto.EditStoryInput) (*storyDto.StoryResponse, error) {
	story, err := s.findStory(ctx, storyID)
	if err != nil {
		return nil, err
	}

	if story.ProfileID != userID {
		return nil, apperror.New(403, "only the story owner can edit it", apperror.ErrForbidden)
	}
	if story.Expired(s.now()) {
		return nil, apperror.ErrNotFound
	}

	if input.Media != nil {
		url, err := s.uploadMedia(ctx, input.Media)
		if err != nil {
			return nil, err
		}

		oldURL := story.ImageURL
		if story.VideoURL != nil {
			oldURL = story.VideoURL
		}

		story.ImageURL = nil
		story.VideoURL = nil
		if input.IsVideo {
			story.VideoURL = &url
		} else {
			story.ImageURL = &url
		}

		if oldURL != nil && s.media != nil {
			if err := s.media.DeleteMedia(ctx, *oldURL); err != nil {
				log.Printf("failed to delete replaced story media: %v", err)
			}
		}
	}

	story.ExpiresAt = s.now().Add(entity.StoryTTL)

	if err := s.repo.Update(ctx, story); err != nil {
		return nil, err
	}

	resp := toStoryResponse(story)
	return &resp, nil
}

// DeleteStory is idempotent: deleting a story that is already gone succeeds.
func (s *storyService) DeleteStory(ctx context.Context, userID, storyID uuid.UUID) error {
	story, err := s.repo.FindByID(ctx, storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil
		}
		return err
	}

	if story.ProfileID != userID {
		return apperror.New(403, "only the story owner can delete it", apperror.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, storyID); err != nil {
		return err
	}

	mediaURL := story.ImageURL
	if story.VideoURL != nil {
		mediaURL = story.VideoURL
	}
	if mediaURL != nil && s.media != nil {
		if err := s.media.DeleteMedia(ctx, *mediaURL); err != nil {
			log.Printf("failed to delete story media: %v", err)
		}
	}
	return nil
}

// SweepExpired removes every story past its expiry. The server runs this on
// a ticker; listing already filters expired rows, so the sweep only reclaims
// space.
func (s *storyService) SweepExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}

func (s *storyService) uploadMedia(ctx context.Context, media *storyDto.MediaFile) (string, error) {
	if s.media == nil {
		return "", apperror.New(500, "media storage is not configured", apperror.ErrInternal)
	}
	return s.media.UploadMedia(ctx, media.Reader, storage.FolderStoryMedia, media.FileName)
}

func (s *storyService) findStory(ctx context.Context, storyID uuid.UUID) (*entity.Story, error) {
	story, err := s.repo.FindByID(ctx, storyID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return story, nil
}

func toStoryResponse(st *entity.Story) storyDto.StoryResponse {
	return storyDto.StoryResponse{
		ID:        st.ID,
		CircleID:  st.CircleID,
		ProfileID: st.ProfileID,
		Username:  st.User.Username,
		AvatarURL: st.User.AvatarURL,
		ImageURL:  st.ImageURL,
		VideoURL:  st.VideoURL,
		IsVideo:   st.IsVideo(),
		CreatedAt: st.CreatedAt,
		ExpiresAt: st.ExpiresAt,
	}
}
