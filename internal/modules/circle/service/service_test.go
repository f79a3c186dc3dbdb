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
	notifRepo "github.com/circlesplus/backend/internal/modules/notification/repository"
	notifService "github.com/circlesplus/backend/internal/modules/notification/service"
	userRepo "github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type testEnv struct {
	db            *gorm.DB
	circles       CircleService
	notifications notifService.NotificationService
	users         userRepo.UserRepository
}

func newTestEnv(t *testing.T) *testEnv {
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
	)
	if err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	users := userRepo.NewUserRepository(db)
	notifications := notifService.NewNotificationService(notifRepo.NewNotificationRepository(db), nil)
	circles := NewCircleService(circleRepo.NewCircleRepository(db), users, notifications, nil, nil)
	notifications.BindResolver(circles)

	return &testEnv{
		db:            db,
		circles:       circles,
		notifications: notifications,
		users:         users,
	}
}

func (e *testEnv) createUser(t *testing.T, username string) uuid.UUID {
	t.Helper()

	user := &entity.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
	}
	profile := &entity.Profile{DisplayName: username}
	if err := e.users.Create(context.Background(), user, profile); err != nil {
		t.Fatalf("failed to create user %s: %v", username, err)
	}
	return user.ID
}

func (e *testEnv) createCircle(t *testing.T, creator uuid.UUID, name string, private bool) uuid.UUID {
	t.Helper()

	resp, err := e.circles.CreateCircle(context.Background(), creator, circleDto.CreateCircleRequest{
		Name:      name,
		IsPrivate: private,
	})
	if err != nil {
		t.Fatalf("failed to create circle %s: %v", name, err)
	}
	return resp.ID
}

func TestCreateCircleMakesCreatorOwner(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	creator := env.createUser(t, "alice")
	circleID := env.createCircle(t, creator, "book club", false)

	resp, err := env.circles.GetCircle(ctx, creator, circleID)
	if err != nil {
		t.Fatalf("GetCircle: %v", err)
	}
	if resp.Membership != entity.MembershipOwner {
		t.Errorf("creator membership = %q, want owner", resp.Membership)
	}
	if !resp.IsAdmin {
		t.Error("creator should be an admin")
	}

	members, err := env.circles.ListMembers(ctx, creator, circleID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 {
		t.Fatalf("got %d members, want 1", len(members))
	}
	if !members[0].IsOwner {
		t.Error("sole member should be the owner")
	}
}

func TestCanReadVisibility(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	member := env.createUser(t, "member")
	pending := env.createUser(t, "pending")
	outsider := env.createUser(t, "outsider")

	public := env.createCircle(t, owner, "public circle", false)
	private := env.createCircle(t, owner, "private circle", true)

	if _, err := env.circles.Join(ctx, member, private); err != nil {
		t.Fatalf("join private: %v", err)
	}
	if err := env.circles.ApproveRequest(ctx, owner, private, member); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, err := env.circles.Join(ctx, pending, private); err != nil {
		t.Fatalf("join private: %v", err)
	}

	cases := []struct {
		name   string
		user   uuid.UUID
		circle uuid.UUID
		want   bool
	}{
		{"outsider reads public", outsider, public, true},
		{"owner reads private", owner, private, true},
		{"active member reads private", member, private, true},
		{"pending member cannot read private", pending, private, false},
		{"outsider cannot read private", outsider, private, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := env.circles.CanRead(ctx, tc.user, tc.circle)
			if err != nil {
				t.Fatalf("CanRead: %v", err)
			}
			if got != tc.want {
				t.Errorf("CanRead = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestJoinPublicCircleIsImmediate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	joiner := env.createUser(t, "joiner")
	circleID := env.createCircle(t, owner, "open circle", false)

	state, err := env.circles.Join(ctx, joiner, circleID)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if state != entity.MembershipActive {
		t.Errorf("state = %q, want active", state)
	}

	// Joining again changes nothing.
	state, err = env.circles.Join(ctx, joiner, circleID)
	if err != nil {
		t.Fatalf("second Join: %v", err)
	}
	if state != entity.MembershipActive {
		t.Errorf("repeat join state = %q, want active", state)
	}

	members, err := env.circles.ListMembers(ctx, owner, circleID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("got %d members, want 2", len(members))
	}

	// No join_request notification for a public circle.
	notifications, err := env.notifications.GetNotifications(ctx, owner, 10, 0)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(notifications) != 0 {
		t.Errorf("owner has %d notifications, want 0", len(notifications))
	}
}

func TestJoinPrivateCircleRequiresApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	joiner := env.createUser(t, "joiner")
	circleID := env.createCircle(t, owner, "secret circle", true)

	state, err := env.circles.Join(ctx, joiner, circleID)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if state != entity.MembershipPending {
		t.Errorf("state = %q, want pending", state)
	}

	notifications, err := env.notifications.GetNotifications(ctx, owner, 10, 0)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("owner has %d notifications, want 1", len(notifications))
	}
	n := notifications[0]
	if n.Type != entity.NotificationJoinRequest {
		t.Errorf("notification type = %q, want join_request", n.Type)
	}
	if n.ResponseStatus == nil || *n.ResponseStatus != entity.ResponsePending {
		t.Error("join_request notification should start pending")
	}

	if err := env.circles.ApproveRequest(ctx, owner, circleID, joiner); err != nil {
		t.Fatalf("ApproveRequest: %v", err)
	}

	canRead, err := env.circles.CanRead(ctx, joiner, circleID)
	if err != nil {
		t.Fatalf("CanRead: %v", err)
	}
	if !canRead {
		t.Error("approved member should read the circle")
	}

	// The joiner hears about the acceptance.
	joinerNotifs, err := env.notifications.GetNotifications(ctx, joiner, 10, 0)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(joinerNotifs) != 1 || joinerNotifs[0].Type != entity.NotificationAccepted {
		t.Errorf("joiner should have one accepted notification, got %v", joinerNotifs)
	}
}

func TestRejectRequestDeletesPendingMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	joiner := env.createUser(t, "joiner")
	circleID := env.createCircle(t, owner, "secret circle", true)

	if _, err := env.circles.Join(ctx, joiner, circleID); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if err := env.circles.RejectRequest(ctx, owner, circleID, joiner); err != nil {
		t.Fatalf("RejectRequest: %v", err)
	}

	circle, err := env.circles.GetCircle(ctx, joiner, circleID)
	if err != nil {
		t.Fatalf("GetCircle: %v", err)
	}
	if circle.Membership != entity.MembershipNone {
		t.Errorf("membership after reject = %q, want none", circle.Membership)
	}

	// The rejected user may ask again.
	state, err := env.circles.Join(ctx, joiner, circleID)
	if err != nil {
		t.Fatalf("re-Join: %v", err)
	}
	if state != entity.MembershipPending {
		t.Errorf("re-join state = %q, want pending", state)
	}
}

func TestInviteCreatesPendingMembershipAndNotification(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	invitee := env.createUser(t, "invitee")
	circleID := env.createCircle(t, owner, "private circle", true)

	if err := env.circles.Invite(ctx, owner, circleID, "invitee"); err != nil {
		t.Fatalf("Invite: %v", err)
	}

	circle, err := env.circles.GetCircle(ctx, invitee, circleID)
	if err != nil {
		t.Fatalf("GetCircle: %v", err)
	}
	if circle.Membership != entity.MembershipPending {
		t.Errorf("invitee membership = %q, want pending", circle.Membership)
	}

	notifications, err := env.notifications.GetNotifications(ctx, invitee, 10, 0)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Type != entity.NotificationInvite {
		t.Fatalf("invitee should have one invite notification, got %v", notifications)
	}

	// Inviting again is a no-op, no duplicate notification.
	if err := env.circles.Invite(ctx, owner, circleID, "invitee"); err != nil {
		t.Fatalf("repeat Invite: %v", err)
	}
	notifications, err = env.notifications.GetNotifications(ctx, invitee, 10, 0)
	if err != nil {
		t.Fatalf("GetNotifications: %v", err)
	}
	if len(notifications) != 1 {
		t.Errorf("invitee has %d notifications after repeat invite, want 1", len(notifications))
	}
}

func TestInviteRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	member := env.createUser(t, "member")
	env.createUser(t, "target")
	circleID := env.createCircle(t, owner, "circle", false)

	if _, err := env.circles.Join(ctx, member, circleID); err != nil {
		t.Fatalf("Join: %v", err)
	}

	err := env.circles.Invite(ctx, member, circleID, "target")
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("plain member invite error = %v, want forbidden", err)
	}

	// Promoted to admin, the member can invite.
	if err := env.circles.SetAdmin(ctx, owner, circleID, member, true); err != nil {
		t.Fatalf("SetAdmin: %v", err)
	}
	if err := env.circles.Invite(ctx, member, circleID, "target"); err != nil {
		t.Errorf("admin invite failed: %v", err)
	}
}

func TestOwnerCannotLeaveOwnCircle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	circleID := env.createCircle(t, owner, "circle", false)

	err := env.circles.RemoveMember(ctx, owner, circleID, owner)
	if !errors.Is(err, apperror.ErrBadRequest) {
		t.Errorf("owner self-removal error = %v, want bad request", err)
	}
}

func TestMemberCanLeaveOthersNeedAdmin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	member := env.createUser(t, "member")
	other := env.createUser(t, "other")
	circleID := env.createCircle(t, owner, "circle", false)

	for _, u := range []uuid.UUID{member, other} {
		if _, err := env.circles.Join(ctx, u, circleID); err != nil {
			t.Fatalf("Join: %v", err)
		}
	}

	// A plain member cannot remove someone else.
	err := env.circles.RemoveMember(ctx, member, circleID, other)
	if !errors.Is(err, apperror.ErrForbidden) {
		t.Errorf("member removing other = %v, want forbidden", err)
	}

	// Leaving on your own is fine.
	if err := env.circles.RemoveMember(ctx, member, circleID, member); err != nil {
		t.Fatalf("self leave: %v", err)
	}

	// The owner can remove anyone but themselves.
	if err := env.circles.RemoveMember(ctx, owner, circleID, other); err != nil {
		t.Fatalf("owner removes member: %v", err)
	}

	members, err := env.circles.ListMembers(ctx, owner, circleID)
	if err != nil {
		t.Fatalf("ListMembers: %v", err)
	}
	if len(members) != 1 {
		t.Errorf("got %d members, want only the owner", len(members))
	}
}

func TestSuggestedExcludesAnyMembership(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	viewer := env.createUser(t, "viewer")

	joined := env.createCircle(t, owner, "joined", false)
	requested := env.createCircle(t, owner, "requested", true)
	fresh := env.createCircle(t, owner, "fresh", false)
	selected := env.createCircle(t, owner, "selected", false)
	mine := env.createCircle(t, viewer, "mine", false)

	if _, err := env.circles.Join(ctx, viewer, joined); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := env.circles.Join(ctx, viewer, requested); err != nil {
		t.Fatalf("Join: %v", err)
	}

	suggestions, err := env.circles.Suggested(ctx, viewer, &selected)
	if err != nil {
		t.Fatalf("Suggested: %v", err)
	}

	got := make(map[uuid.UUID]bool)
	for _, s := range suggestions {
		got[s.ID] = true
	}
	if !got[fresh] {
		t.Error("fresh circle should be suggested")
	}
	for name, id := range map[string]uuid.UUID{
		"joined": joined, "requested": requested, "selected": selected, "own": mine,
	} {
		if got[id] {
			t.Errorf("%s circle should not be suggested", name)
		}
	}
}

func TestListMineIncludesOwnedAndPending(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	user := env.createUser(t, "user")

	owned := env.createCircle(t, user, "owned", false)
	joined := env.createCircle(t, owner, "joined", false)
	requested := env.createCircle(t, owner, "requested", true)

	if _, err := env.circles.Join(ctx, user, joined); err != nil {
		t.Fatalf("Join: %v", err)
	}
	if _, err := env.circles.Join(ctx, user, requested); err != nil {
		t.Fatalf("Join: %v", err)
	}

	mine, err := env.circles.ListMine(ctx, user)
	if err != nil {
		t.Fatalf("ListMine: %v", err)
	}

	states := make(map[uuid.UUID]entity.MembershipState)
	for _, c := range mine {
		states[c.ID] = c.Membership
	}
	if states[owned] != entity.MembershipOwner {
		t.Errorf("owned circle state = %q, want owner", states[owned])
	}
	if states[joined] != entity.MembershipActive {
		t.Errorf("joined circle state = %q, want active", states[joined])
	}
	if states[requested] != entity.MembershipPending {
		t.Errorf("requested circle state = %q, want pending", states[requested])
	}
}

func TestSearchPublicFallsBackToDatabase(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	owner := env.createUser(t, "owner")
	searcher := env.createUser(t, "searcher")

	env.createCircle(t, owner, "go enthusiasts", false)
	env.createCircle(t, owner, "go hikers", true)
	env.createCircle(t, searcher, "go owners anonymous", false)

	results, err := env.circles.SearchPublic(ctx, searcher, "go", 10)
	if err != nil {
		t.Fatalf("SearchPublic: %v", err)
	}

	if len(results) != 1 {
		t.Fatalf("got %d results, want 1 (private and own circles excluded)", len(results))
	}
	if results[0].Name != "go enthusiasts" {
		t.Errorf("result = %q, want go enthusiasts", results[0].Name)
	}
}
