package entity

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationType is a closed set. Adding a value means extending the
// switches in Actionable and Describe, which keeps handling exhaustive.
type NotificationType string

const (
	NotificationLike        NotificationType = "like"
	NotificationComment     NotificationType = "comment"
	NotificationInvite      NotificationType = "invite"
	NotificationJoinRequest NotificationType = "join_request"
	NotificationAccepted    NotificationType = "accepted"
	NotificationRejected    NotificationType = "rejected"
)

// Actionable reports whether the notification drives a membership
// transition and therefore carries a response status.
func (t NotificationType) Actionable() bool {
	switch t {
	case NotificationInvite, NotificationJoinRequest:
		return true
	case NotificationLike, NotificationComment, NotificationAccepted, NotificationRejected:
		return false
	}
	return false
}

// Describe renders the display line for a notification of this type.
func (t NotificationType) Describe(actor string) string {
	switch t {
	case NotificationLike:
		return fmt.Sprintf("%s liked your post", actor)
	case NotificationComment:
		return fmt.Sprintf("%s commented on your post", actor)
	case NotificationInvite:
		return fmt.Sprintf("%s invited you to a circle", actor)
	case NotificationJoinRequest:
		return fmt.Sprintf("%s requested to join your circle", actor)
	case NotificationAccepted:
		return fmt.Sprintf("%s accepted your request", actor)
	case NotificationRejected:
		return fmt.Sprintf("%s rejected your request", actor)
	}
	return string(t)
}

const (
	ResponsePending  = "pending"
	ResponseAccepted = "accepted"
	ResponseRejected = "rejected"
)

type Notification struct {
	ID             uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	RecipientID    uuid.UUID        `gorm:"type:uuid;not null;index" json:"recipient_id"`
	Recipient      *User            `gorm:"foreignKey:RecipientID;constraint:OnDelete:CASCADE" json:"-"`
	FromUserID     uuid.UUID        `gorm:"type:uuid;not null" json:"from_user_id"`
	FromUser       *User            `gorm:"foreignKey:FromUserID;constraint:OnDelete:CASCADE" json:"from_user,omitempty"`
	Type           NotificationType `gorm:"size:20;not null" json:"type"`
	CircleID       *uuid.UUID       `gorm:"type:uuid" json:"circle_id,omitempty"`
	PostID         *uuid.UUID       `gorm:"type:uuid" json:"post_id,omitempty"`
	ResponseStatus *string          `gorm:"size:20" json:"response_status,omitempty"`
	Read           bool             `gorm:"default:false" json:"read"`
	CreatedAt      time.Time        `gorm:"autoCreateTime" json:"created_at"`
}

func (n *Notification) BeforeCreate(tx *gorm.DB) (err error) {
	if n.ID == uuid.Nil {
		n.ID, err = uuid.NewV7()
	}
	return
}

// Resolved reports whether an actionable notification has been answered.
func (n *Notification) Resolved() bool {
	return n.ResponseStatus != nil && *n.ResponseStatus != ResponsePending
}
