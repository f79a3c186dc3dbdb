package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Conversation struct {
	ID            uuid.UUID                 `gorm:"type:uuid;primaryKey" json:"id"`
	LastMessageAt time.Time                 `gorm:"not null;index" json:"last_message_at"`
	Participants  []ConversationParticipant `gorm:"foreignKey:ConversationID" json:"participants,omitempty"`
	CreatedAt     time.Time                 `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Conversation) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	if c.LastMessageAt.IsZero() {
		c.LastMessageAt = time.Now()
	}
	return
}

type ConversationParticipant struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_conv_participants_unique,priority:1" json:"conversation_id"`
	Conversation   Conversation `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID         uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_conv_participants_unique,priority:2" json:"user_id"`
	User           User         `gorm:"constraint:OnDelete:CASCADE" json:"user,omitempty"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (p *ConversationParticipant) BeforeCreate(tx *gorm.DB) (err error) {
	if p.ID == uuid.Nil {
		p.ID, err = uuid.NewV7()
	}
	return
}

type DirectMessage struct {
	ID             uuid.UUID    `gorm:"type:uuid;primaryKey" json:"id"`
	ConversationID uuid.UUID    `gorm:"type:uuid;not null;index" json:"conversation_id"`
	Conversation   Conversation `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SenderID       uuid.UUID    `gorm:"type:uuid;not null" json:"sender_id"`
	Sender         User         `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	Content        string       `gorm:"type:text;not null" json:"content"`
	CreatedAt      time.Time    `gorm:"autoCreateTime" json:"created_at"`
}

func (m *DirectMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID, err = uuid.NewV7()
	}
	return
}

type CircleMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CircleID  uuid.UUID `gorm:"type:uuid;not null;index" json:"circle_id"`
	Circle    Circle    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	SenderID  uuid.UUID `gorm:"type:uuid;not null" json:"sender_id"`
	Sender    User      `gorm:"foreignKey:SenderID;constraint:OnDelete:CASCADE" json:"sender,omitempty"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (m *CircleMessage) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID, err = uuid.NewV7()
	}
	return
}

func (m *CircleMessage) TableName() string {
	return "messages"
}
