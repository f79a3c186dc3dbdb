package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Circle struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	IsPrivate   bool      `gorm:"default:false" json:"is_private"`
	CreatorID   uuid.UUID `gorm:"type:uuid;not null" json:"creator_id"`
	Creator     User      `gorm:"constraint:OnDelete:CASCADE" json:"creator,omitempty"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (c *Circle) BeforeCreate(tx *gorm.DB) (err error) {
	if c.ID == uuid.Nil {
		c.ID, err = uuid.NewV7()
	}
	return
}

// Membership status values. A pending row either disappears (reject) or
// becomes active (approve); there are no other transitions.
const (
	MemberStatusPending = "pending"
	MemberStatusActive  = "active"
)

const (
	MemberRoleOwner  = "owner"
	MemberRoleMember = "member"
)

type CircleMember struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	CircleID  uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_circle_members_unique,priority:1" json:"circle_id"`
	Circle    Circle    `gorm:"constraint:OnDelete:CASCADE" json:"circle,omitempty"`
	ProfileID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:idx_circle_members_unique,priority:2" json:"profile_id"`
	User      User      `gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE" json:"user,omitempty"`
	Role      string    `gorm:"size:20;not null;default:member" json:"role"`
	Status    string    `gorm:"size:20;not null;default:pending" json:"status"`
	IsAdmin   bool      `gorm:"default:false" json:"is_admin"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func (m *CircleMember) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID, err = uuid.NewV7()
	}
	return
}

// MembershipState is the resolved state of a (user, circle) pair.
type MembershipState string

const (
	MembershipOwner   MembershipState = "owner"
	MembershipActive  MembershipState = "active-member"
	MembershipPending MembershipState = "pending-member"
	MembershipNone    MembershipState = "none"
)
