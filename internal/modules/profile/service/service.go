package service

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/circlesplus/backend/internal/modules/profile/dto"
	"github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/circlesplus/backend/pkg/storage"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"gorm.io/gorm"
)

type ProfileService interface {
	GetProfileByUsername(ctx context.Context, username string) (*dto.PublicProfileResponse, error)
	GetCurrentProfile(ctx context.Context, userID uuid.UUID) (*dto.ProfileResponse, error)
	UpdateProfile(ctx context.Context, userID uuid.UUID, input dto.UpdateProfileInput) (*dto.ProfileResponse, error)
	SearchUsers(ctx context.Context, query string, limit int) ([]dto.PublicProfileResponse, error)
}

type profileService struct {
	repo         repository.UserRepository
	mediaStorage storage.MediaStorage
	sanitizer    *bluemonday.Policy
}

func NewProfileService(repo repository.UserRepository, mediaStorage storage.MediaStorage) ProfileService {
	return &profileService{
		repo:         repo,
		mediaStorage: mediaStorage,
		sanitizer:    bluemonday.StrictPolicy(),
	}
}

func (s *profileService) GetProfileByUsername(ctx context.Context, username string) (*dto.PublicProfileResponse, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	resp := &dto.PublicProfileResponse{
		Username:  user.Username,
		AvatarURL: user.AvatarURL,
		CreatedAt: user.CreatedAt,
	}
	if user.Profile != nil {
		resp.DisplayName = user.Profile.DisplayName
		resp.Bio = user.Profile.Bio
	}

	return resp, nil
}

// SearchUsers finds profiles by username fragment, for inviting members and
// starting conversations.
func (s *profileService) SearchUsers(ctx context.Context, query string, limit int) ([]dto.PublicProfileResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return []dto.PublicProfileResponse{}, nil
	}
	if limit <= 0 || limit > 50 {
		limit = 10
	}

	users, err := s.repo.SearchByUsername(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	out := make([]dto.PublicProfileResponse, 0, len(users))
	for _, u := range users {
		resp := dto.PublicProfileResponse{
			Username:  u.Username,
			AvatarURL: u.AvatarURL,
			CreatedAt: u.CreatedAt,
		}
		if u.Profile != nil {
			resp.DisplayName = u.Profile.DisplayName
			resp.Bio = u.Profile.Bio
		}
		out = append(out, resp)
	}
	return out, nil
}

func (s *profileService) GetCurrentProfile(ctx context.Context, userID uuid.UUID) (*dto.ProfileResponse, error) {
	user, err := s.repo.FindByID(ctx, userID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	user.PasswordHash = ""
	return &dto.ProfileResponse{User: user, Profile: user.Profile}, nil
}

func (s *profileService) UpdateProfile(ctx context.Context, userID uuid.UUID, input dto.UpdateProfileInput) (*dto.ProfileResponse, error) {
	user, err := s.repo.FindByID(ctx, userID.String())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	if user.Profile == nil {
		return nil, apperror.ErrNotFound
	}

	if input.DisplayName != nil {
		name := strings.TrimSpace(*input.DisplayName)
		if name == "" {
			return nil, apperror.New(400, "display name cannot be empty", apperror.ErrBadRequest)
		}
		user.Profile.DisplayName = name
	}

	if input.Bio != nil {
		clean := s.sanitizer.Sanitize(*input.Bio)
		user.Profile.Bio = &clean
	}

	if input.Avatar != nil {
		if s.mediaStorage == nil {
			return nil, apperror.New(400, "media uploads are not configured", apperror.ErrBadRequest)
		}
		url, err := s.mediaStorage.UploadMedia(ctx, input.Avatar.Reader, storage.FolderAvatars, input.Avatar.FileName)
		if err != nil {
			return nil, err
		}

		if user.AvatarURL != nil {
			if err := s.mediaStorage.DeleteMedia(ctx, *user.AvatarURL); err != nil {
				log.Printf("failed to delete old avatar for %s: %v", user.Username, err)
			}
		}
		user.AvatarURL = &url
	}

	if err := s.repo.Update(ctx, user, user.Profile); err != nil {
		return nil, err
	}

	user.PasswordHash = ""
	return &dto.ProfileResponse{User: user, Profile: user.Profile}, nil
}
