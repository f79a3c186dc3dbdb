package dto

import (
	"time"

	"github.com/google/uuid"
)

type SendMessageRequest struct {
	Content string `json:"content" binding:"required,max=5000"`
}

type StartConversationRequest struct {
	Username string `json:"username" binding:"required"`
}

type ParticipantResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	Username  string    `json:"username"`
	AvatarURL *string   `json:"avatar_url,omitempty"`
}

type MessageResponse struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Sender         ParticipantResponse `json:"sender"`
	Content        string    `json:"content"`
	CreatedAt      time.Time `json:"created_at"`
}

type CircleMessageResponse struct {
	ID        uuid.UUID           `json:"id"`
	CircleID  uuid.UUID           `json:"circle_id"`
	Sender    ParticipantResponse `json:"sender"`
	Content   string              `json:"content"`
	CreatedAt time.Time           `json:"created_at"`
}

type ConversationResponse struct {
	ID            uuid.UUID            `json:"id"`
	Other         ParticipantResponse  `json:"other"`
	LastMessage   *MessageResponse     `json:"last_message,omitempty"`
	LastMessageAt time.Time            `json:"last_message_at"`
	CreatedAt     time.Time            `json:"created_at"`
}
