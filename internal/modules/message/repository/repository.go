package repository

import (
	"context"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MessageRepository interface {
	CreateConversation(ctx context.Context, conv *entity.Conversation, participants []*entity.ConversationParticipant) error
	FindConversationByID(ctx context.Context, id uuid.UUID) (*entity.Conversation, error)
	// FindConversationBetween scans userID's conversations for one whose
	// other participant is otherID.
	FindConversationBetween(ctx context.Context, userID, otherID uuid.UUID) (*entity.Conversation, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]*entity.Conversation, error)
	IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error)
	TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error

	CreateDirectMessage(ctx context.Context, msg *entity.DirectMessage) error
	ListDirectMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*entity.DirectMessage, error)
	LastDirectMessage(ctx context.Context, conversationID uuid.UUID) (*entity.DirectMessage, error)

	CreateCircleMessage(ctx context.Context, msg *entity.CircleMessage) error
	ListCircleMessages(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]*entity.CircleMessage, error)
}

type messageRepository struct {
	db *gorm.DB
}

func NewMessageRepository(db *gorm.DB) MessageRepository {
	return &messageRepository{db: db}
}

func (r *messageRepository) CreateConversation(ctx context.Context, conv *entity.Conversation, participants []*entity.ConversationParticipant) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(conv).Error; err != nil {
			return err
		}
		for _, p := range participants {
			p.ConversationID = conv.ID
			if err := tx.Create(p).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *messageRepository) FindConversationByID(ctx context.Context, id uuid.UUID) (*entity.Conversation, error) {
	var conv entity.Conversation
	err := r.db.WithContext(ctx).
		Preload("Participants.User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		First(&conv, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *messageRepository) FindConversationBetween(ctx context.Context, userID, otherID uuid.UUID) (*entity.Conversation, error) {
	var own []entity.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&own).Error
	if err != nil {
		return nil, err
	}
	if len(own) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	convIDs := make([]uuid.UUID, 0, len(own))
	for _, p := range own {
		convIDs = append(convIDs, p.ConversationID)
	}

	var match entity.ConversationParticipant
	err = r.db.WithContext(ctx).
		Where("conversation_id IN ? AND user_id = ?", convIDs, otherID).
		Order("created_at ASC").
		First(&match).Error
	if err != nil {
		return nil, err
	}

	return r.FindConversationByID(ctx, match.ConversationID)
}

func (r *messageRepository) ListConversations(ctx context.Context, userID uuid.UUID) ([]*entity.Conversation, error) {
	var own []entity.ConversationParticipant
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Find(&own).Error
	if err != nil {
		return nil, err
	}
	if len(own) == 0 {
		return nil, nil
	}

	convIDs := make([]uuid.UUID, 0, len(own))
	for _, p := range own {
		convIDs = append(convIDs, p.ConversationID)
	}

	var convs []*entity.Conversation
	err = r.db.WithContext(ctx).
		Preload("Participants.User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("id IN ?", convIDs).
		Order("last_message_at DESC").
		Find(&convs).Error
	return convs, err
}

func (r *messageRepository) IsParticipant(ctx context.Context, conversationID, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.ConversationParticipant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Count(&count).Error
	return count > 0, err
}

func (r *messageRepository) TouchConversation(ctx context.Context, conversationID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).Model(&entity.Conversation{}).
		Where("id = ?", conversationID).
		Update("last_message_at", at).Error
}

func (r *messageRepository) CreateDirectMessage(ctx context.Context, msg *entity.DirectMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) ListDirectMessages(ctx context.Context, conversationID uuid.UUID, limit, offset int) ([]*entity.DirectMessage, error) {
	var msgs []*entity.DirectMessage
	err := r.db.WithContext(ctx).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	return msgs, err
}

func (r *messageRepository) LastDirectMessage(ctx context.Context, conversationID uuid.UUID) (*entity.DirectMessage, error) {
	var msg entity.DirectMessage
	err := r.db.WithContext(ctx).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("conversation_id = ?", conversationID).
		Order("created_at DESC").
		First(&msg).Error
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *messageRepository) CreateCircleMessage(ctx context.Context, msg *entity.CircleMessage) error {
	return r.db.WithContext(ctx).Create(msg).Error
}

func (r *messageRepository) ListCircleMessages(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]*entity.CircleMessage, error) {
	var msgs []*entity.CircleMessage
	err := r.db.WithContext(ctx).
		Preload("Sender", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("circle_id = ?", circleID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&msgs).Error
	return msgs, err
}
