package dto

import (
	"io"
	"time"

	"github.com/google/uuid"
)

// MediaFile is an uploaded file ready for storage.
type MediaFile struct {
	Reader   io.Reader
	FileName string
}

type CreatePostInput struct {
	CircleID uuid.UUID
	Content  string
	Image    *MediaFile
}

type UpdatePostInput struct {
	Content *string `json:"content" binding:"omitempty,max=5000"`
}

type CreateCommentRequest struct {
	Content string `json:"content" binding:"required,max=2000"`
}

type AuthorResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

type CommentResponse struct {
	ID        uuid.UUID      `json:"id"`
	PostID    uuid.UUID      `json:"post_id"`
	Author    AuthorResponse `json:"author"`
	Content   string         `json:"content"`
	CreatedAt time.Time      `json:"created_at"`
}

type PostResponse struct {
	ID           uuid.UUID      `json:"id"`
	CircleID     uuid.UUID      `json:"circle_id"`
	Author       AuthorResponse `json:"author"`
	Content      string         `json:"content"`
	ImageURL     *string        `json:"image_url,omitempty"`
	LikeCount    int64          `json:"like_count"`
	CommentCount int64          `json:"comment_count"`
	LikedByMe    bool           `json:"liked_by_me"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}

type LikeResponse struct {
	PostID    uuid.UUID `json:"post_id"`
	Liked     bool      `json:"liked"`
	LikeCount int64     `json:"like_count"`
}
