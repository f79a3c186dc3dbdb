package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/circlesplus/backend/internal/entity"
	circleDto "github.com/circlesplus/backend/internal/modules/circle/dto"
	circleRepo "github.com/circlesplus/backend/internal/modules/circle/repository"
	circleService "github.com/circlesplus/backend/internal/modules/circle/service"
	messageRepo "github.com/circlesplus/backend/internal/modules/message/repository"
	notifRepo "github.com/circlesplus/backend/internal/modules/notification/repository"
	notifService "github.com/circlesplus/backend/internal/modules/notification/service"
	userRepo "github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type messageEnv struct {
	messages MessageService
	circles  circleService.CircleService
	users    userRepo.UserRepository
}

func newMessageEnv(t *testing.T) *messageEnv {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	err = db.AutoMigrate(
		&entity.User{},
		&entity.Profile{},
		&entity.Circle{},
		&entity.CircleMember{},
		&entity.Notification{},
		&entity.Conversation{},
		&entity.ConversationParticipant{},
		&entity.DirectMessage{},
		&entity.CircleMessage{},
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	users := userRepo.NewUserRepository(db)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), nil)
	circles := circleService.NewCircleService(circleRepo.NewCircleRepository(db), users, notifications, nil, nil)
	notifications.BindResolver(circles)
	messages := NewMessageService(messageRepo.NewMessageRepository(db), users, circles, nil)

	return &messageEnv{
		messages: messages,
		circles:  circles,
		users:    users,
	}
}

func (e *messageEnv) createUser(t *testing.T, username string) uuid.UUID {
	t.Helper()

	user := &entity.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	if err := e.users.Create(context.Background(), user, &entity.Profile{DisplayName: username}); err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return user.ID
}

func TestStartConversationIsStable(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")

	first, err := env.messages.StartConversation(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}
	if first.Other.Username != "bob" {
		t.Errorf("other participant = %q, want bob", first.Other.Username)
	}

	// Starting again returns the same conversation, from either side.
	second, err := env.messages.StartConversation(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("second StartConversation: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("repeat start created a new conversation: %s vs %s", second.ID, first.ID)
	}

	bob, err := env.users.FindByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}
	fromBob, err := env.messages.StartConversation(ctx, bob.ID, "alice")
	if err != nil {
		t.Fatalf("StartConversation from bob: %v", err)
	}
	if fromBob.ID != first.ID {
		t.Errorf("bob's start created a new conversation: %s vs %s", fromBob.ID, first.ID)
	}
	if fromBob.Other.Username != "alice" {
		t.Errorf("bob's other participant = %q, want alice", fromBob.Other.Username)
	}
}

func TestStartConversationRejectsSelfAndUnknown(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "alice")

	if _, err := env.messages.StartConversation(ctx, alice, "alice"); !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("self conversation error = %v, want bad request", err)
	}
	if _, err := env.messages.StartConversation(ctx, alice, "nobody"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("unknown user error = %v, want not found", err)
	}
}

func TestSendMessageOrderingAndBump(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")

	conv, err := env.messages.StartConversation(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	bob, err := env.users.FindByUsername(ctx, "bob")
	if err != nil {
		t.Fatalf("FindByUsername: %v", err)
	}

	for i, tc := range []struct {
		sender  uuid.UUID
		content string
	}{
		{alice, "hey"},
		{bob.ID, "hi there"},
		{alice, "how are you"},
	} {
		if _, err := env.messages.SendMessage(ctx, tc.sender, conv.ID, tc.content); err != nil {
			t.Fatalf("SendMessage %d: %v", i, err)
		}
	}

	msgs, err := env.messages.ListMessages(ctx, alice, conv.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 3 {
		t.Fatalf("got %d messages, want 3", len(msgs))
	}
	want := []string{"hey", "hi there", "how are you"}
	for i, m := range msgs {
		if m.Content != want[i] {
			t.Errorf("message %d = %q, want %q (oldest first)", i, m.Content, want[i])
		}
	}

	// The conversation list surfaces the latest message.
	convs, err := env.messages.ListConversations(ctx, alice)
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("got %d conversations, want 1", len(convs))
	}
	if convs[0].LastMessage == nil || convs[0].LastMessage.Content != "how are you" {
		t.Errorf("last message = %v, want the newest", convs[0].LastMessage)
	}
	if convs[0].LastMessageAt.Before(convs[0].CreatedAt) {
		t.Error("last_message_at should be bumped past creation time")
	}
}

func TestSendMessageRejectsEmptyAndOutsiders(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")
	eve := env.createUser(t, "eve")

	conv, err := env.messages.StartConversation(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	if _, err := env.messages.SendMessage(ctx, alice, conv.ID, "   "); !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("blank message error = %v, want bad request", err)
	}
	if _, err := env.messages.SendMessage(ctx, eve, conv.ID, "hi"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("outsider message error = %v, want forbidden", err)
	}
	if _, err := env.messages.ListMessages(ctx, eve, conv.ID, 50, 0); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("outsider list error = %v, want forbidden", err)
	}
}

func TestSendMessageStripsMarkup(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	alice := env.createUser(t, "alice")
	env.createUser(t, "bob")

	conv, err := env.messages.StartConversation(ctx, alice, "bob")
	if err != nil {
		t.Fatalf("StartConversation: %v", err)
	}

	msg, err := env.messages.SendMessage(ctx, alice, conv.ID, `hello <script>alert("x")</script>world`)
	if err != nil {
		t.Fatalf("SendMessage: %v", err)
	}
	if strings.Contains(msg.Content, "<script>") {
		t.Errorf("markup survived sanitization: %q", msg.Content)
	}
}

func TestCircleChatRequiresMembership(t *testing.T) {
	env := newMessageEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	member := env.createUser(t, "member")
	outsider := env.createUser(t, "outsider")

	circle, err := env.circles.CreateCircle(ctx, owner, circleDto.CreateCircleRequest{
		Name:      "private circle",
		IsPrivate: true,
	})
	if err != nil {
		t.Fatalf("CreateCircle: %v", err)
	}
	if _, err := env.circles.Join(ctx, member, circle.ID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := env.circles.ApproveRequest(ctx, owner, circle.ID, member); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}

	if _, err := env.messages.SendCircleMessage(ctx, member, circle.ID, "hello circle"); err != nil {
		t.Fatalf("member SendCircleMessage: %v", err)
	}
	if _, err := env.messages.SendCircleMessage(ctx, outsider, circle.ID, "let me in"); !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("outsider circle message error = %v, want forbidden", err)
	}

	msgs, err := env.messages.ListCircleMessages(ctx, owner, circle.ID, 50, 0)
	if err != nil {
		t.Fatalf("ListCircleMessages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].Content != "hello circle" {
		t.Errorf("circle messages = %v, want the member's message", msgs)
	}
	if msgs[0].Sender.Username != "member" {
		t.Errorf("sender = %q, want member", msgs[0].Sender.Username)
	}

	// Outsiders listing circle chat get nothing.
	outsiderView, err := env.messages.ListCircleMessages(ctx, outsider, circle.ID, 50, 0)
	if err != nil {
		t.Fatalf("outsider ListCircleMessages: %v", err)
	}
	if len(outsiderView) != 0 {
		t.Errorf("outsider sees %d circle messages, want 0", len(outsiderView))
	}
}
