package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/circlesplus/backend/internal/entity"
	notifRepo "github.com/circlesplus/backend/internal/modules/notification/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// MembershipResolver applies the membership transition behind an actionable
// notification. Implemented by the circle service; bound after construction
// because the circle service itself emits notifications.
type MembershipResolver interface {
	// ResolveInvite settles the invitee's own pending membership.
	ResolveInvite(ctx context.Context, circleID, inviteeID uuid.UUID, accept bool) error
	// ResolveJoinRequest settles the requester's pending membership on
	// behalf of an admin or the owner.
	ResolveJoinRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID, accept bool) error
}

type NotificationService interface {
	CreateNotification(ctx context.Context, notification *entity.Notification) error
	GetNotifications(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]entity.Notification, error)
	MarkAsRead(ctx context.Context, recipientID, id uuid.UUID) error
	MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error
	UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error)
	Resolve(ctx context.Context, recipientID, id uuid.UUID, accept bool) (*entity.Notification, error)
	BindResolver(resolver MembershipResolver)
}

type notificationService struct {
	repo        notifRepo.NotificationRepository
	redisClient *redis.Client
	resolver    MembershipResolver
}

func NewNotificationService(repo notifRepo.NotificationRepository, redisClient *redis.Client) NotificationService {
	return &notificationService{
		repo:        repo,
		redisClient: redisClient,
	}
}

func (s *notificationService) BindResolver(resolver MembershipResolver) {
	s.resolver = resolver
}

func (s *notificationService) CreateNotification(ctx context.Context, notification *entity.Notification) error {
	if notification.Type.Actionable() && notification.ResponseStatus == nil {
		pending := entity.ResponsePending
		notification.ResponseStatus = &pending
	}

	// 1. Save to DB
	if err := s.repo.Create(ctx, notification); err != nil {
		return err
	}

	// 2. Publish to Redis if Redis is available
	if s.redisClient != nil {
		channel := fmt.Sprintf("user_notifications:%s", notification.RecipientID.String())

		payload, err := json.Marshal(notification)
		if err == nil {
			s.redisClient.Publish(ctx, channel, payload)
		}
	}

	return nil
}

func (s *notificationService) GetNotifications(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]entity.Notification, error) {
	return s.repo.GetByRecipient(ctx, recipientID, limit, offset)
}

func (s *notificationService) MarkAsRead(ctx context.Context, recipientID, id uuid.UUID) error {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		return err
	}

	if notification.RecipientID != recipientID {
		return apperror.ErrForbidden
	}

	return s.repo.MarkAsRead(ctx, id)
}

func (s *notificationService) MarkAllAsRead(ctx context.Context, recipientID uuid.UUID) error {
	return s.repo.MarkAllAsRead(ctx, recipientID)
}

func (s *notificationService) UnreadCount(ctx context.Context, recipientID uuid.UUID) (int64, error) {
	return s.repo.CountUnread(ctx, recipientID)
}

// Resolve settles an actionable notification. The membership transition runs
// first; if it fails the notification stays pending so the user can retry.
// Resolving an already-settled notification changes nothing.
func (s *notificationService) Resolve(ctx context.Context, recipientID, id uuid.UUID, accept bool) (*entity.Notification, error) {
	notification, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}

	if notification.RecipientID != recipientID {
		return nil, apperror.ErrForbidden
	}

	if !notification.Type.Actionable() {
		return nil, apperror.New(400, "notification is not actionable", apperror.ErrBadRequest)
	}

	if notification.Resolved() {
		return notification, nil
	}

	if notification.CircleID == nil {
		return nil, apperror.New(400, "notification has no circle", apperror.ErrBadRequest)
	}

	if s.resolver == nil {
		return nil, apperror.ErrInternal
	}

	switch notification.Type {
	case entity.NotificationInvite:
		err = s.resolver.ResolveInvite(ctx, *notification.CircleID, notification.RecipientID, accept)
	case entity.NotificationJoinRequest:
		err = s.resolver.ResolveJoinRequest(ctx, notification.RecipientID, *notification.CircleID, notification.FromUserID, accept)
	default:
		return nil, apperror.New(400, "notification is not actionable", apperror.ErrBadRequest)
	}
	if err != nil {
		return nil, err
	}

	status := entity.ResponseAccepted
	outcome := entity.NotificationAccepted
	if !accept {
		status = entity.ResponseRejected
		outcome = entity.NotificationRejected
	}

	if err := s.repo.SetResponse(ctx, notification.ID, status); err != nil {
		return nil, err
	}
	notification.ResponseStatus = &status
	notification.Read = true

	// Tell the counterpart how it went. Best effort, the resolution itself
	// already happened.
	counterpart := &entity.Notification{
		RecipientID: notification.FromUserID,
		FromUserID:  recipientID,
		Type:        outcome,
		CircleID:    notification.CircleID,
	}
	if err := s.CreateNotification(ctx, counterpart); err != nil {
		return notification, nil
	}

	return notification, nil
}
