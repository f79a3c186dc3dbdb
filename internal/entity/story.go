package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StoryTTL is the lifetime of a story. Editing a story refreshes it.
const StoryTTL = 24 * time.Hour

type Story struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CircleID  uuid.UUID `gorm:"type:uuid;not null;index" json:"circle_id"`
	Circle    Circle    `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ProfileID uuid.UUID `gorm:"type:uuid;not null" json:"profile_id"`
	User      User      `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	ImageURL  *string   `gorm:"type:text" json:"image_url,omitempty"`
	VideoURL  *string   `gorm:"type:text" json:"video_url,omitempty"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
}

func (s *Story) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID, err = uuid.NewV7()
	}
	return
}

func (s *Story) IsVideo() bool {
	return s.VideoURL != nil
}

func (s *Story) Expired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}
