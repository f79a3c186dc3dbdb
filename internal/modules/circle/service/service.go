package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	circleDto "github.com/circlesplus/backend/internal/modules/circle/dto"
	circleRepo "github.com/circlesplus/backend/internal/modules/circle/repository"
	notifService "github.com/circlesplus/backend/internal/modules/notification/service"
	searchService "github.com/circlesplus/backend/internal/modules/search/service"
	userRepo "github.com/circlesplus/backend/internal/modules/user/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/circlesplus/backend/pkg/ratelimiter"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const suggestedLimit = 5

var ErrOwnerSelfRemoval = errors.New("owners cannot remove themselves; transfer ownership first")

type CircleService interface {
	CreateCircle(ctx context.Context, userID uuid.UUID, req circleDto.CreateCircleRequest) (*circleDto.CircleResponse, error)
	UpdateCircle(ctx context.Context, userID, circleID uuid.UUID, req circleDto.UpdateCircleRequest) (*circleDto.CircleResponse, error)
	DeleteCircle(ctx context.Context, userID, circleID uuid.UUID) error
	GetCircle(ctx context.Context, userID, circleID uuid.UUID) (*circleDto.CircleResponse, error)

	MembershipState(ctx context.Context, userID uuid.UUID, circle *entity.Circle) (entity.MembershipState, error)
	CanRead(ctx context.Context, userID, circleID uuid.UUID) (bool, error)
	CanWrite(ctx context.Context, userID, circleID uuid.UUID) (bool, error)

	Join(ctx context.Context, userID, circleID uuid.UUID) (entity.MembershipState, error)
	Invite(ctx context.Context, actorID, circleID uuid.UUID, username string) error
	ApproveRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID) error
	RejectRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID) error
	RemoveMember(ctx context.Context, actorID, circleID, profileID uuid.UUID) error
	SetAdmin(ctx context.Context, actorID, circleID, profileID uuid.UUID, isAdmin bool) error

	ListMine(ctx context.Context, userID uuid.UUID) ([]circleDto.CircleResponse, error)
	ListMembers(ctx context.Context, userID, circleID uuid.UUID) ([]circleDto.MemberResponse, error)
	PendingRequests(ctx context.Context, userID, circleID uuid.UUID) ([]circleDto.MemberResponse, error)
	Suggested(ctx context.Context, userID uuid.UUID, selected *uuid.UUID) ([]circleDto.CircleResponse, error)
	SearchPublic(ctx context.Context, userID uuid.UUID, query string, limit int) ([]circleDto.CircleResponse, error)

	// notifService.MembershipResolver
	ResolveInvite(ctx context.Context, circleID, inviteeID uuid.UUID, accept bool) error
	ResolveJoinRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID, accept bool) error
}

type circleService struct {
	repo        circleRepo.CircleRepository
	users       userRepo.UserRepository
	notifier    notifService.NotificationService
	search      searchService.CircleSearchService
	redisClient *redis.Client
	sanitizer   *bluemonday.Policy
}

func NewCircleService(
	repo circleRepo.CircleRepository,
	users userRepo.UserRepository,
	notifier notifService.NotificationService,
	search searchService.CircleSearchService,
	redisClient *redis.Client,
) CircleService {
	return &circleService{
		repo:        repo,
		users:       users,
		notifier:    notifier,
		search:      search,
		redisClient: redisClient,
		sanitizer:   bluemonday.StrictPolicy(),
	}
}

func (s *circleService) CreateCircle(ctx context.Context, userID uuid.UUID, req circleDto.CreateCircleRequest) (*circleDto.CircleResponse, error) {
	limit := ratelimiter.GetDurationFromEnv("RATE_LIMIT_CIRCLE", time.Minute)
	if limit > 0 {
		allowed, err := ratelimiter.CheckAndSetRateLimit(ctx, s.redisClient, userID, ratelimiter.ScopeCircle, limit)
		if err != nil {
			// Redis trouble should not block the write.
			log.Printf("circle rate limit check failed: %v", err)
			allowed = true
		}
		if !allowed {
			ttl, _ := ratelimiter.GetRateLimitTTL(ctx, s.redisClient, userID, ratelimiter.ScopeCircle)
			return nil, &ratelimiter.RateLimitError{
				RetryAfter: ttl,
				Message:    "you are creating circles too quickly",
			}
		}
	}

	name := strings.TrimSpace(s.sanitizer.Sanitize(req.Name))
	if name == "" {
		return nil, apperror.New(400, "circle name cannot be empty", apperror.ErrBadRequest)
	}

	circle := &entity.Circle{
		Name:        name,
		Description: s.sanitizer.Sanitize(req.Description),
		IsPrivate:   req.IsPrivate,
		CreatorID:   userID,
	}

	// The creator is an active admin member from the first moment.
	owner := &entity.CircleMember{
		ProfileID: userID,
		Role:      entity.MemberRoleOwner,
		Status:    entity.MemberStatusActive,
		IsAdmin:   true,
	}

	if err := s.repo.Create(ctx, circle, owner); err != nil {
		return nil, err
	}

	s.indexCircle(circle)

	return &circleDto.CircleResponse{
		ID:          circle.ID,
		Name:        circle.Name,
		Description: circle.Description,
		IsPrivate:   circle.IsPrivate,
		CreatorID:   circle.CreatorID,
		Membership:  entity.MembershipOwner,
		IsAdmin:     true,
		CreatedAt:   circle.CreatedAt,
	}, nil
}

func (s *circleService) UpdateCircle(ctx context.Context, userID, circleID uuid.UUID, req circleDto.UpdateCircleRequest) (*circleDto.CircleResponse, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}

	if circle.CreatorID != userID {
		return nil, apperror.New(403, "only the circle owner can update circle information", apperror.ErrForbidden)
	}

	if req.Name != nil {
		name := strings.TrimSpace(s.sanitizer.Sanitize(*req.Name))
		if name == "" {
			return nil, apperror.New(400, "circle name cannot be empty", apperror.ErrBadRequest)
		}
		circle.Name = name
	}
	if req.Description != nil {
		circle.Description = s.sanitizer.Sanitize(*req.Description)
	}
	if req.IsPrivate != nil {
		circle.IsPrivate = *req.IsPrivate
	}

	if err := s.repo.Update(ctx, circle); err != nil {
		return nil, err
	}

	s.indexCircle(circle)

	return s.toResponse(ctx, userID, circle)
}

func (s *circleService) DeleteCircle(ctx context.Context, userID, circleID uuid.UUID) error {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return err
	}

	if circle.CreatorID != userID {
		return apperror.New(403, "only the circle owner can delete the circle", apperror.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, circleID); err != nil {
		return err
	}

	if s.search != nil {
		if err := s.search.DeleteCircle(circleID.String()); err != nil {
			log.Printf("failed to remove circle %s from search index: %v", circleID, err)
		}
	}

	return nil
}

func (s *circleService) GetCircle(ctx context.Context, userID, circleID uuid.UUID) (*circleDto.CircleResponse, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, userID, circle)
}

// MembershipState resolves the (user, circle) pair. The creator always
// resolves to owner, even when no membership row exists.
func (s *circleService) MembershipState(ctx context.Context, userID uuid.UUID, circle *entity.Circle) (entity.MembershipState, error) {
	if circle.CreatorID == userID {
		return entity.MembershipOwner, nil
	}

	member, err := s.repo.FindMembership(ctx, circle.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return entity.MembershipNone, nil
		}
		return entity.MembershipNone, err
	}

	switch member.Status {
	case entity.MemberStatusActive:
		return entity.MembershipActive, nil
	case entity.MemberStatusPending:
		return entity.MembershipPending, nil
	}
	return entity.MembershipNone, nil
}

func (s *circleService) CanRead(ctx context.Context, userID, circleID uuid.UUID) (bool, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return false, err
	}
	return s.canRead(ctx, userID, circle)
}

func (s *circleService) canRead(ctx context.Context, userID uuid.UUID, circle *entity.Circle) (bool, error) {
	if circle.CreatorID == userID || !circle.IsPrivate {
		return true, nil
	}

	state, err := s.MembershipState(ctx, userID, circle)
	if err != nil {
		return false, err
	}
	return state == entity.MembershipOwner || state == entity.MembershipActive, nil
}

// CanWrite reports whether the user may publish posts or stories in the
// circle. Public circles are readable by anyone, but writing still requires
// joining first.
func (s *circleService) CanWrite(ctx context.Context, userID, circleID uuid.UUID) (bool, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return false, err
	}

	state, err := s.MembershipState(ctx, userID, circle)
	if err != nil {
		return false, err
	}
	return state == entity.MembershipOwner || state == entity.MembershipActive, nil
}

func (s *circleService) canManage(ctx context.Context, userID uuid.UUID, circle *entity.Circle) (bool, error) {
	if circle.CreatorID == userID {
		return true, nil
	}

	member, err := s.repo.FindMembership(ctx, circle.ID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}
	return member.IsAdmin && member.Status == entity.MemberStatusActive, nil
}

// Join adds the user to a public circle immediately, or files a join request
// for a private circle. Joining a circle the user is already in changes
// nothing.
func (s *circleService) Join(ctx context.Context, userID, circleID uuid.UUID) (entity.MembershipState, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return entity.MembershipNone, err
	}

	state, err := s.MembershipState(ctx, userID, circle)
	if err != nil {
		return entity.MembershipNone, err
	}
	if state != entity.MembershipNone {
		return state, nil
	}

	if !circle.IsPrivate {
		member := &entity.CircleMember{
			CircleID:  circleID,
			ProfileID: userID,
			Role:      entity.MemberRoleMember,
			Status:    entity.MemberStatusActive,
		}
		if err := s.repo.CreateMember(ctx, member); err != nil {
			if isDuplicate(err) {
				return entity.MembershipActive, nil
			}
			return entity.MembershipNone, err
		}
		return entity.MembershipActive, nil
	}

	member := &entity.CircleMember{
		CircleID:  circleID,
		ProfileID: userID,
		Role:      entity.MemberRoleMember,
		Status:    entity.MemberStatusPending,
	}
	if err := s.repo.CreateMember(ctx, member); err != nil {
		if isDuplicate(err) {
			return entity.MembershipPending, nil
		}
		return entity.MembershipNone, err
	}

	notification := &entity.Notification{
		RecipientID: circle.CreatorID,
		FromUserID:  userID,
		Type:        entity.NotificationJoinRequest,
		CircleID:    &circle.ID,
	}
	if err := s.notifier.CreateNotification(ctx, notification); err != nil {
		log.Printf("failed to notify circle owner of join request: %v", err)
	}

	return entity.MembershipPending, nil
}

// Invite files a pending membership for the invitee and notifies them.
// Inviting someone already in the circle (any status) changes nothing.
func (s *circleService) Invite(ctx context.Context, actorID, circleID uuid.UUID, username string) error {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return err
	}

	allowed, err := s.canManage(ctx, actorID, circle)
	if err != nil {
		return err
	}
	if !allowed {
		return apperror.New(403, "only admins can invite members", apperror.ErrForbidden)
	}

	invitee, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.New(404, "user not found", apperror.ErrNotFound)
		}
		return err
	}

	state, err := s.MembershipState(ctx, invitee.ID, circle)
	if err != nil {
		return err
	}
	if state != entity.MembershipNone {
		return nil
	}

	member := &entity.CircleMember{
		CircleID:  circleID,
		ProfileID: invitee.ID,
		Role:      entity.MemberRoleMember,
		Status:    entity.MemberStatusPending,
	}
	if err := s.repo.CreateMember(ctx, member); err != nil {
		if isDuplicate(err) {
			return nil
		}
		return err
	}

	notification := &entity.Notification{
		RecipientID: invitee.ID,
		FromUserID:  actorID,
		Type:        entity.NotificationInvite,
		CircleID:    &circle.ID,
	}
	return s.notifier.CreateNotification(ctx, notification)
}

// ResolveInvite settles the invitee's own pending membership.
func (s *circleService) ResolveInvite(ctx context.Context, circleID, inviteeID uuid.UUID, accept bool) error {
	return s.settlePending(ctx, circleID, inviteeID, accept)
}

// ResolveJoinRequest settles the requester's pending membership on behalf of
// an admin or the owner.
func (s *circleService) ResolveJoinRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID, accept bool) error {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return err
	}

	allowed, err := s.canManage(ctx, actorID, circle)
	if err != nil {
		return err
	}
	if !allowed {
		return apperror.New(403, "only admins can settle join requests", apperror.ErrForbidden)
	}

	return s.settlePending(ctx, circleID, requesterID, accept)
}

// settlePending moves pending to active, or deletes the pending row. An
// already-active membership is left alone; accepting a missing one is an
// error, rejecting a missing one is a no-op.
func (s *circleService) settlePending(ctx context.Context, circleID, profileID uuid.UUID, accept bool) error {
	member, err := s.repo.FindMembership(ctx, circleID, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			if accept {
				return apperror.New(404, "no membership to approve", apperror.ErrNotFound)
			}
			return nil
		}
		return err
	}

	if !accept {
		if member.Status == entity.MemberStatusActive {
			return nil
		}
		return s.repo.DeleteMember(ctx, circleID, profileID)
	}

	if member.Status == entity.MemberStatusActive {
		return nil
	}

	member.Status = entity.MemberStatusActive
	return s.repo.UpdateMember(ctx, member)
}

func (s *circleService) ApproveRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID) error {
	if err := s.ResolveJoinRequest(ctx, actorID, circleID, requesterID, true); err != nil {
		return err
	}
	s.notifyOutcome(ctx, actorID, requesterID, circleID, entity.NotificationAccepted)
	return nil
}

func (s *circleService) RejectRequest(ctx context.Context, actorID, circleID, requesterID uuid.UUID) error {
	if err := s.ResolveJoinRequest(ctx, actorID, circleID, requesterID, false); err != nil {
		return err
	}
	s.notifyOutcome(ctx, actorID, requesterID, circleID, entity.NotificationRejected)
	return nil
}

func (s *circleService) notifyOutcome(ctx context.Context, actorID, recipientID, circleID uuid.UUID, outcome entity.NotificationType) {
	notification := &entity.Notification{
		RecipientID: recipientID,
		FromUserID:  actorID,
		Type:        outcome,
		CircleID:    &circleID,
	}
	if err := s.notifier.CreateNotification(ctx, notification); err != nil {
		log.Printf("failed to notify %s of membership outcome: %v", recipientID, err)
	}
}

// RemoveMember drops a membership. Members may leave on their own; removing
// anyone else needs admin rights. The owner can never be removed.
func (s *circleService) RemoveMember(ctx context.Context, actorID, circleID, profileID uuid.UUID) error {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return err
	}

	if profileID == circle.CreatorID {
		if actorID == profileID {
			return apperror.New(400, ErrOwnerSelfRemoval.Error(), apperror.ErrBadRequest)
		}
		return apperror.New(403, "the circle owner cannot be removed", apperror.ErrForbidden)
	}

	if actorID != profileID {
		allowed, err := s.canManage(ctx, actorID, circle)
		if err != nil {
			return err
		}
		if !allowed {
			return apperror.New(403, "only admins can remove members", apperror.ErrForbidden)
		}
	}

	return s.repo.DeleteMember(ctx, circleID, profileID)
}

func (s *circleService) SetAdmin(ctx context.Context, actorID, circleID, profileID uuid.UUID, isAdmin bool) error {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return err
	}

	if circle.CreatorID != actorID {
		return apperror.New(403, "only the circle owner can change admin status", apperror.ErrForbidden)
	}
	if profileID == circle.CreatorID {
		return apperror.New(400, "the owner is always an admin", apperror.ErrBadRequest)
	}

	member, err := s.repo.FindMembership(ctx, circleID, profileID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		return err
	}

	member.IsAdmin = isAdmin
	return s.repo.UpdateMember(ctx, member)
}

// ListMine returns the user's circles, owned and pending included.
func (s *circleService) ListMine(ctx context.Context, userID uuid.UUID) ([]circleDto.CircleResponse, error) {
	members, err := s.repo.ListByProfile(ctx, userID, []string{entity.MemberStatusActive, entity.MemberStatusPending})
	if err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(members))
	out := make([]circleDto.CircleResponse, 0, len(members))
	for _, m := range members {
		seen[m.CircleID] = true

		state := entity.MembershipActive
		if m.Circle.CreatorID == userID {
			state = entity.MembershipOwner
		} else if m.Status == entity.MemberStatusPending {
			state = entity.MembershipPending
		}

		out = append(out, circleDto.CircleResponse{
			ID:          m.Circle.ID,
			Name:        m.Circle.Name,
			Description: m.Circle.Description,
			IsPrivate:   m.Circle.IsPrivate,
			CreatorID:   m.Circle.CreatorID,
			Membership:  state,
			IsAdmin:     m.IsAdmin || m.Circle.CreatorID == userID,
			CreatedAt:   m.Circle.CreatedAt,
		})
	}

	// Circles the user created before the owner-row invariant was enforced
	// may lack a membership row; they still belong here.
	created, err := s.repo.ListByCreator(ctx, userID)
	if err != nil {
		return nil, err
	}
	for _, c := range created {
		if seen[c.ID] {
			continue
		}
		out = append(out, circleDto.CircleResponse{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			IsPrivate:   c.IsPrivate,
			CreatorID:   c.CreatorID,
			Membership:  entity.MembershipOwner,
			IsAdmin:     true,
			CreatedAt:   c.CreatedAt,
		})
	}

	return out, nil
}

func (s *circleService) ListMembers(ctx context.Context, userID, circleID uuid.UUID) ([]circleDto.MemberResponse, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canRead(ctx, userID, circle)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []circleDto.MemberResponse{}, nil
	}

	members, err := s.repo.ListMembers(ctx, circleID, []string{entity.MemberStatusActive})
	if err != nil {
		return nil, err
	}
	return s.toMemberResponses(circle, members), nil
}

func (s *circleService) PendingRequests(ctx context.Context, userID, circleID uuid.UUID) ([]circleDto.MemberResponse, error) {
	circle, err := s.findCircle(ctx, circleID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canManage(ctx, userID, circle)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(403, "only admins can view pending requests", apperror.ErrForbidden)
	}

	members, err := s.repo.ListMembers(ctx, circleID, []string{entity.MemberStatusPending})
	if err != nil {
		return nil, err
	}
	return s.toMemberResponses(circle, members), nil
}

// Suggested lists public circles the user does not belong to in any status,
// excluding the currently selected circle.
func (s *circleService) Suggested(ctx context.Context, userID uuid.UUID, selected *uuid.UUID) ([]circleDto.CircleResponse, error) {
	memberIDs, err := s.repo.MemberCircleIDs(ctx, userID)
	if err != nil {
		return nil, err
	}
	memberOf := make(map[uuid.UUID]bool, len(memberIDs))
	for _, id := range memberIDs {
		memberOf[id] = true
	}

	publics, err := s.repo.ListPublic(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]circleDto.CircleResponse, 0, suggestedLimit)
	for _, c := range publics {
		if memberOf[c.ID] || c.CreatorID == userID {
			continue
		}
		if selected != nil && c.ID == *selected {
			continue
		}
		out = append(out, circleDto.CircleResponse{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			IsPrivate:   c.IsPrivate,
			CreatorID:   c.CreatorID,
			Membership:  entity.MembershipNone,
			CreatedAt:   c.CreatedAt,
		})
		if len(out) == suggestedLimit {
			break
		}
	}

	return out, nil
}

// SearchPublic looks up public circles by name, never returning circles the
// searching user created. Meilisearch serves the query when configured, with
// a database fallback.
func (s *circleService) SearchPublic(ctx context.Context, userID uuid.UUID, query string, limit int) ([]circleDto.CircleResponse, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	var circles []*entity.Circle
	if s.search != nil {
		ids, err := s.search.Search(query, userID.String(), limit)
		if err == nil {
			uuids := make([]uuid.UUID, 0, len(ids))
			for _, id := range ids {
				parsed, err := uuid.Parse(id)
				if err == nil {
					uuids = append(uuids, parsed)
				}
			}
			circles, err = s.repo.FindByIDs(ctx, uuids)
			if err != nil {
				return nil, err
			}
		} else {
			log.Printf("circle search fell back to database: %v", err)
		}
	}

	if circles == nil {
		var err error
		circles, err = s.repo.SearchPublic(ctx, query, userID, limit)
		if err != nil {
			return nil, err
		}
	}

	out := make([]circleDto.CircleResponse, 0, len(circles))
	for _, c := range circles {
		// The index can lag behind privacy or ownership changes.
		if c.IsPrivate || c.CreatorID == userID {
			continue
		}
		state, err := s.MembershipState(ctx, userID, c)
		if err != nil {
			return nil, err
		}
		out = append(out, circleDto.CircleResponse{
			ID:          c.ID,
			Name:        c.Name,
			Description: c.Description,
			IsPrivate:   c.IsPrivate,
			CreatorID:   c.CreatorID,
			Membership:  state,
			CreatedAt:   c.CreatedAt,
		})
	}

	return out, nil
}

func (s *circleService) findCircle(ctx context.Context, circleID uuid.UUID) (*entity.Circle, error) {
	circle, err := s.repo.FindByID(ctx, circleID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return circle, nil
}

func (s *circleService) toResponse(ctx context.Context, userID uuid.UUID, circle *entity.Circle) (*circleDto.CircleResponse, error) {
	state, err := s.MembershipState(ctx, userID, circle)
	if err != nil {
		return nil, err
	}

	isAdmin := circle.CreatorID == userID
	if !isAdmin {
		if member, err := s.repo.FindMembership(ctx, circle.ID, userID); err == nil {
			isAdmin = member.IsAdmin
		}
	}

	return &circleDto.CircleResponse{
		ID:          circle.ID,
		Name:        circle.Name,
		Description: circle.Description,
		IsPrivate:   circle.IsPrivate,
		CreatorID:   circle.CreatorID,
		Membership:  state,
		IsAdmin:     isAdmin,
		CreatedAt:   circle.CreatedAt,
	}, nil
}

func (s *circleService) toMemberResponses(circle *entity.Circle, members []*entity.CircleMember) []circleDto.MemberResponse {
	out := make([]circleDto.MemberResponse, 0, len(members))
	for _, m := range members {
		out = append(out, circleDto.MemberResponse{
			ProfileID: m.ProfileID,
			Username:  m.User.Username,
			AvatarURL: m.User.AvatarURL,
			Role:      m.Role,
			Status:    m.Status,
			IsAdmin:   m.IsAdmin,
			IsOwner:   m.ProfileID == circle.CreatorID,
		})
	}
	return out
}

func (s *circleService) indexCircle(circle *entity.Circle) {
	if s.search == nil {
		return
	}
	if err := s.search.IndexCircle(circle); err != nil {
		log.Printf("failed to index circle %s: %v", circle.ID, err)
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
