package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	circleService "github.com/circlesplus/backend/internal/modules/circle/service"
	messageDto "github.com/circlesplus/backend/internal/modules/message/dto"
	messageRepo "github.com/circlesplus/backend/internal/modules/message/repository"
	userRepo "github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Redis channels carrying realtime message fan-out.
func ConversationChannel(conversationID uuid.UUID) string {
	return fmt.Sprintf("conversation_messages:%s", conversationID)
}

func CircleChannel(circleID uuid.UUID) string {
	return fmt.Sprintf("circle_messages:%s", circleID)
}

type MessageService interface {
	StartConversation(ctx context.Context, userID uuid.UUID, username string) (*messageDto.ConversationResponse, error)
	ListConversations(ctx context.Context, userID uuid.UUID) ([]messageDto.ConversationResponse, error)
	SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*messageDto.MessageResponse, error)
	ListMessages(ctx context.Context, userID, conversationID uuid.UUID, limit, offset int) ([]messageDto.MessageResponse, error)
	CanAccessConversation(ctx context.Context, userID, conversationID uuid.UUID) (bool, error)

	SendCircleMessage(ctx context.Context, userID, circleID uuid.UUID, content string) (*messageDto.CircleMessageResponse, error)
	ListCircleMessages(ctx context.Context, userID, circleID uuid.UUID, limit, offset int) ([]messageDto.CircleMessageResponse, error)
	CanAccessCircleChat(ctx context.Context, userID, circleID uuid.UUID) (bool, error)
}

type messageService struct {
	repo        messageRepo.MessageRepository
	users       userRepo.UserRepository
	circles     circleService.CircleService
	redisClient *redis.Client
	sanitizer   *bluemonday.Policy
}

func NewMessageService(
	repo messageRepo.MessageRepository,
	users userRepo.UserRepository,
	circles circleService.CircleService,
	redisClient *redis.Client,
) MessageService {
	return &messageService{
		repo:        repo,
		users:       users,
		circles:     circles,
		redisClient: redisClient,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

// StartConversation finds the existing conversation with the named user or
// creates one. Concurrent starts can race into two conversations; lookups
// always pick the oldest, so the pair converges on one.
func (s *messageService) StartConversation(ctx context.Context, userID uuid.UUID, username string) (*messageDto.ConversationResponse, error) {
	other, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.New(404, "user not found", apperror.ErrNotFound)
		}
		return nil, err
	}

	if other.ID == userID {
		return nil, apperror.New(400, "you cannot message yourself", apperror.ErrBadRequest)
	}

	conv, err := s.repo.FindConversationBetween(ctx, userID, other.ID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}

		conv = &entity.Conversation{}
		participants := []*entity.ConversationParticipant{
			{UserID: userID},
			{UserID: other.ID},
		}
		if err := s.repo.CreateConversation(ctx, conv, participants); err != nil {
			return nil, err
		}
		conv, err = s.repo.FindConversationByID(ctx, conv.ID)
		if err != nil {
			return nil, err
		}
	}

	return s.toConversationResponse(ctx, userID, conv)
}

func (s *messageService) ListConversations(ctx context.Context, userID uuid.UUID) ([]messageDto.ConversationResponse, error) {
	convs, err := s.repo.ListConversations(ctx, userID)
	if err != nil {
		return nil, err
	}

	out := make([]messageDto.ConversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp, err := s.toConversationResponse(ctx, userID, conv)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

func (s *messageService) CanAccessConversation(ctx context.Context, userID, conversationID uuid.UUID) (bool, error) {
	return s.repo.IsParticipant(ctx, conversationID, userID)
}

func (s *messageService) SendMessage(ctx context.Context, userID, conversationID uuid.UUID, content string) (*messageDto.MessageResponse, error) {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(403, "you are not part of this conversation", apperror.ErrForbidden)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return nil, apperror.New(400, "message cannot be empty", apperror.ErrBadRequest)
	}

	msg := &entity.DirectMessage{
		ConversationID: conversationID,
		SenderID:       userID,
		Content:        clean,
	}
	if err := s.repo.CreateDirectMessage(ctx, msg); err != nil {
		return nil, err
	}

	if err := s.repo.TouchConversation(ctx, conversationID, time.Now()); err != nil {
		log.Printf("failed to bump conversation timestamp: %v", err)
	}

	sent, err := s.repo.LastDirectMessage(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	resp := toMessageResponse(sent)

	s.publish(ctx, ConversationChannel(conversationID), resp)

	return &resp, nil
}

// ListMessages returns the conversation's messages oldest first.
func (s *messageService) ListMessages(ctx context.Context, userID, conversationID uuid.UUID, limit, offset int) ([]messageDto.MessageResponse, error) {
	ok, err := s.repo.IsParticipant(ctx, conversationID, userID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperror.New(403, "you are not part of this conversation", apperror.ErrForbidden)
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.repo.ListDirectMessages(ctx, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]messageDto.MessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageResponse(m))
	}
	return out, nil
}

func (s *messageService) CanAccessCircleChat(ctx context.Context, userID, circleID uuid.UUID) (bool, error) {
	return s.circles.CanRead(ctx, userID, circleID)
}

func (s *messageService) SendCircleMessage(ctx context.Context, userID, circleID uuid.UUID, content string) (*messageDto.CircleMessageResponse, error) {
	allowed, err := s.circles.CanRead(ctx, userID, circleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(403, "you are not a member of this circle", apperror.ErrForbidden)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return nil, apperror.New(400, "message cannot be empty", apperror.ErrBadRequest)
	}

	msg := &entity.CircleMessage{
		CircleID: circleID,
		SenderID: userID,
		Content:  clean,
	}
	if err := s.repo.CreateCircleMessage(ctx, msg); err != nil {
		return nil, err
	}

	sender, err := s.users.FindByID(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	resp := messageDto.CircleMessageResponse{
		ID:       msg.ID,
		CircleID: circleID,
		Sender: messageDto.ParticipantResponse{
			UserID:    sender.ID,
			Username:  sender.Username,
			AvatarURL: sender.AvatarURL,
		},
		Content:   msg.Content,
		CreatedAt: msg.CreatedAt,
	}

	s.publish(ctx, CircleChannel(circleID), resp)

	return &resp, nil
}

func (s *messageService) ListCircleMessages(ctx context.Context, userID, circleID uuid.UUID, limit, offset int) ([]messageDto.CircleMessageResponse, error) {
	allowed, err := s.circles.CanRead(ctx, userID, circleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []messageDto.CircleMessageResponse{}, nil
	}

	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}

	msgs, err := s.repo.ListCircleMessages(ctx, circleID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]messageDto.CircleMessageResponse, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageDto.CircleMessageResponse{
			ID:       m.ID,
			CircleID: m.CircleID,
			Sender: messageDto.ParticipantResponse{
				UserID:    m.Sender.ID,
				Username:  m.Sender.Username,
				AvatarURL: m.Sender.AvatarURL,
			},
			Content:   m.Content,
			CreatedAt: m.CreatedAt,
		})
	}
	return out, nil
}

func (s *messageService) publish(ctx context.Context, channel string, payload any) {
	if s.redisClient == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("failed to marshal message for %s: %v", channel, err)
		return
	}
	if err := s.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		log.Printf("failed to publish message to %s: %v", channel, err)
	}
}

func (s *messageService) toConversationResponse(ctx context.Context, userID uuid.UUID, conv *entity.Conversation) (*messageDto.ConversationResponse, error) {
	resp := &messageDto.ConversationResponse{
		ID:            conv.ID,
		LastMessageAt: conv.LastMessageAt,
		CreatedAt:     conv.CreatedAt,
	}

	for _, p := range conv.Participants {
		if p.UserID != userID {
			resp.Other = messageDto.ParticipantResponse{
				UserID:    p.User.ID,
				Username:  p.User.Username,
				AvatarURL: p.User.AvatarURL,
			}
			break
		}
	}

	last, err := s.repo.LastDirectMessage(ctx, conv.ID)
	if err == nil {
		m := toMessageResponse(last)
		resp.LastMessage = &m
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	return resp, nil
}

func toMessageResponse(m *entity.DirectMessage) messageDto.MessageResponse {
	return messageDto.MessageResponse{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender: messageDto.ParticipantResponse{
			UserID:    m.Sender.ID,
			Username:  m.Sender.Username,
			AvatarURL: m.Sender.AvatarURL,
		},
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
	}
}
