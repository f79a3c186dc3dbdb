package dto

import (
	"time"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
)

type CreateCircleRequest struct {
	Name        string `json:"name" binding:"required,max=100"`
	Description string `json:"description" binding:"max=2000"`
	IsPrivate   bool   `json:"is_private"`
}

type UpdateCircleRequest struct {
	Name        *string `json:"name" binding:"omitempty,max=100"`
	Description *string `json:"description" binding:"omitempty,max=2000"`
	IsPrivate   *bool   `json:"is_private"`
}

type InviteRequest struct {
	Username string `json:"username" binding:"required"`
}

type SetAdminRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// CircleResponse is a circle annotated with the requesting user's standing.
type CircleResponse struct {
	ID          uuid.UUID              `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	IsPrivate   bool                   `json:"is_private"`
	CreatorID   uuid.UUID              `json:"creator_id"`
	Membership  entity.MembershipState `json:"membership"`
	IsAdmin     bool                   `json:"is_admin"`
	CreatedAt   time.Time              `json:"created_at"`
}

type MemberResponse struct {
	ProfileID uuid.UUID `json:"profile_id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
	Role      string    `json:"role"`
	Status    string    `json:"status"`
	IsAdmin   bool      `json:"is_admin"`
	IsOwner   bool      `json:"is_owner"`
}
