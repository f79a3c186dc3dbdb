package dto

import (
	"io"
	"time"

	"github.com/circlesplus/backend/internal/entity"
)

// AvatarFile is an uploaded avatar image.
type AvatarFile struct {
	Reader   io.Reader
	FileName string
}

type UpdateProfileInput struct {
	DisplayName *string `json:"display_name" form:"display_name"`
	Bio         *string `json:"bio" form:"bio"`
	Avatar      *AvatarFile
}

type ProfileResponse struct {
	User    *entity.User    `json:"user"`
	Profile *entity.Profile `json:"profile"`
}

// PublicProfileResponse is returned when viewing another user's profile.
type PublicProfileResponse struct {
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	AvatarURL   *string   `json:"avatar_url,omitempty"`
	Bio         *string   `json:"bio,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
