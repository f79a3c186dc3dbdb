package dto

import (
	"io"
	"time"

	"github.com/google/uuid"
)

type MediaFile struct {
	Reader   io.Reader
	FileName string
}

type CreateStoryInput struct {
	CircleID uuid.UUID
	Media    *MediaFile
	IsVideo  bool
}

type EditStoryInput struct {
	Media   *MediaFile
	IsVideo bool
}

type StoryResponse struct {
	ID        uuid.UUID `json:"id"`
	CircleID  uuid.UUID `json:"circle_id"`
	ProfileID uuid.UUID `json:"profile_id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	ImageURL  *string   `json:"image_url,omitempty"`
	VideoURL  *string   `json:"video_url,omitempty"`
	IsVideo   bool      `json:"is_video"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}
