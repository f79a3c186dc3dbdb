package service

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	circleService "github.com/circlesplus/backend/internal/modules/circle/service"
	notifService "github.com/circlesplus/backend/internal/modules/notification/service"
	postDto "github.com/circlesplus/backend/internal/modules/post/dto"
	postRepo "github.com/circlesplus/backend/internal/modules/post/repository"
	"github.com/circlesplus/backend/pkg/apperror"
	"github.com/circlesplus/backend/pkg/ratelimiter"
	"github.com/circlesplus/backend/pkg/storage"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

type PostService interface {
	CreatePost(ctx context.Context, userID uuid.UUID, input postDto.CreatePostInput) (*postDto.PostResponse, error)
	GetPost(ctx context.Context, userID, postID uuid.UUID) (*postDto.PostResponse, error)
	ListPosts(ctx context.Context, userID, circleID uuid.UUID, limit, offset int) ([]postDto.PostResponse, error)
	UpdatePost(ctx context.Context, userID, postID uuid.UUID, input postDto.UpdatePostInput) (*postDto.PostResponse, error)
	DeletePost(ctx context.Context, userID, postID uuid.UUID) error

	AddComment(ctx context.Context, userID, postID uuid.UUID, content string) (*postDto.CommentResponse, error)
	ListComments(ctx context.Context, userID, postID uuid.UUID) ([]postDto.CommentResponse, error)
	DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error

	ToggleLike(ctx context.Context, userID, postID uuid.UUID) (*postDto.LikeResponse, error)
}

type postService struct {
	repo        postRepo.PostRepository
	circles     circleService.CircleService
	notifier    notifService.NotificationService
	media       storage.MediaStorage
	redisClient *redis.Client
	sanitizer   *bluemonday.Policy
}

func NewPostService(
	repo postRepo.PostRepository,
	circles circleService.CircleService,
	notifier notifService.NotificationService,
	media storage.MediaStorage,
	redisClient *redis.Client,
) PostService {
	return &postService{
		repo:        repo,
		circles:     circles,
		notifier:    notifier,
		media:       media,
		redisClient: redisClient,
		sanitizer:   bluemonday.UGCPolicy(),
	}
}

func (s *postService) CreatePost(ctx context.Context, userID uuid.UUID, input postDto.CreatePostInput) (*postDto.PostResponse, error) {
	allowed, err := s.circles.CanWrite(ctx, userID, input.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(403, "you must join this circle before posting", apperror.ErrForbidden)
	}

	limit := ratelimiter.GetDurationFromEnv("RATE_LIMIT_POST", 30*time.Second)
	if limit > 0 {
		ok, err := ratelimiter.CheckAndSetRateLimit(ctx, s.redisClient, userID, ratelimiter.ScopePost, limit)
		if err != nil {
			// Redis trouble should not block the write.
			log.Printf("post rate limit check failed: %v", err)
			ok = true
		}
		if !ok {
			ttl, _ := ratelimiter.GetRateLimitTTL(ctx, s.redisClient, userID, ratelimiter.ScopePost)
			return nil, &ratelimiter.RateLimitError{
				RetryAfter: ttl,
				Message:    "you are posting too quickly",
			}
		}
	}

	content := strings.TrimSpace(s.sanitizer.Sanitize(input.Content))
	if content == "" && input.Image == nil {
		return nil, apperror.New(400, "post cannot be empty", apperror.ErrBadRequest)
	}

	post := &entity.Post{
		CircleID: input.CircleID,
		AuthorID: userID,
		Content:  content,
	}

	if input.Image != nil && s.media != nil {
		url, err := s.media.UploadMedia(ctx, input.Image.Reader, storage.FolderPostImages, input.Image.FileName)
		if err != nil {
			return nil, err
		}
		post.ImageURL = &url
	}

	if err := s.repo.Create(ctx, post); err != nil {
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	return s.toResponse(ctx, userID, created)
}

func (s *postService) GetPost(ctx context.Context, userID, postID uuid.UUID) (*postDto.PostResponse, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.circles.CanRead(ctx, userID, post.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.ErrNotFound
	}

	return s.toResponse(ctx, userID, post)
}

// ListPosts returns the circle's feed. A user who cannot read the circle gets
// an empty list rather than an error.
func (s *postService) ListPosts(ctx context.Context, userID, circleID uuid.UUID, limit, offset int) ([]postDto.PostResponse, error) {
	allowed, err := s.circles.CanRead(ctx, userID, circleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []postDto.PostResponse{}, nil
	}

	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	posts, err := s.repo.ListByCircle(ctx, circleID, limit, offset)
	if err != nil {
		return nil, err
	}

	out := make([]postDto.PostResponse, 0, len(posts))
	for _, p := range posts {
		resp, err := s.toResponse(ctx, userID, p)
		if err != nil {
			return nil, err
		}
		out = append(out, *resp)
	}
	return out, nil
}

func (s *postService) UpdatePost(ctx context.Context, userID, postID uuid.UUID, input postDto.UpdatePostInput) (*postDto.PostResponse, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	if post.AuthorID != userID {
		return nil, apperror.New(403, "only the author can edit a post", apperror.ErrForbidden)
	}

	if input.Content != nil {
		content := strings.TrimSpace(s.sanitizer.Sanitize(*input.Content))
		if content == "" && post.ImageURL == nil {
			return nil, apperror.New(400, "post cannot be empty", apperror.ErrBadRequest)
		}
		post.Content = content
	}

	if err := s.repo.Update(ctx, post); err != nil {
		return nil, err
	}
	return s.toResponse(ctx, userID, post)
}

func (s *postService) DeletePost(ctx context.Context, userID, postID uuid.UUID) error {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return err
	}

	if post.AuthorID != userID {
		return apperror.New(403, "only the author can delete a post", apperror.ErrForbidden)
	}

	if err := s.repo.Delete(ctx, postID); err != nil {
		return err
	}

	if post.ImageURL != nil && s.media != nil {
		if err := s.media.DeleteMedia(ctx, *post.ImageURL); err != nil {
			log.Printf("failed to delete post image: %v", err)
		}
	}
	return nil
}

func (s *postService) AddComment(ctx context.Context, userID, postID uuid.UUID, content string) (*postDto.CommentResponse, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.circles.CanRead(ctx, userID, post.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(403, "you cannot comment in this circle", apperror.ErrForbidden)
	}

	clean := strings.TrimSpace(s.sanitizer.Sanitize(content))
	if clean == "" {
		return nil, apperror.New(400, "comment cannot be empty", apperror.ErrBadRequest)
	}

	comment := &entity.Comment{
		PostID:    postID,
		ProfileID: userID,
		Content:   clean,
	}
	if err := s.repo.CreateComment(ctx, comment); err != nil {
		return nil, err
	}

	// Commenting on your own post should not notify you.
	if post.AuthorID != userID {
		notification := &entity.Notification{
			RecipientID: post.AuthorID,
			FromUserID:  userID,
			Type:        entity.NotificationComment,
			CircleID:    &post.CircleID,
			PostID:      &post.ID,
		}
		if err := s.notifier.CreateNotification(ctx, notification); err != nil {
			log.Printf("failed to notify post author of comment: %v", err)
		}
	}

	comments, err := s.repo.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}
	for _, c := range comments {
		if c.ID == comment.ID {
			resp := toCommentResponse(c)
			return &resp, nil
		}
	}

	resp := toCommentResponse(comment)
	return &resp, nil
}

func (s *postService) ListComments(ctx context.Context, userID, postID uuid.UUID) ([]postDto.CommentResponse, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.circles.CanRead(ctx, userID, post.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return []postDto.CommentResponse{}, nil
	}

	comments, err := s.repo.ListComments(ctx, postID)
	if err != nil {
		return nil, err
	}

	out := make([]postDto.CommentResponse, 0, len(comments))
	for _, c := range comments {
		out = append(out, toCommentResponse(c))
	}
	return out, nil
}

func (s *postService) DeleteComment(ctx context.Context, userID, commentID uuid.UUID) error {
	comment, err := s.repo.FindCommentByID(ctx, commentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		return err
	}

	if comment.ProfileID != userID {
		post, err := s.findPost(ctx, comment.PostID)
		if err != nil {
			return err
		}
		if post.AuthorID != userID {
			return apperror.New(403, "only the comment author or post author can delete a comment", apperror.ErrForbidden)
		}
	}

	return s.repo.DeleteComment(ctx, commentID)
}

// ToggleLike likes the post if the user has not liked it, otherwise removes
// the like. The unique (post, user) constraint absorbs concurrent doubles.
func (s *postService) ToggleLike(ctx context.Context, userID, postID uuid.UUID) (*postDto.LikeResponse, error) {
	post, err := s.findPost(ctx, postID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.circles.CanRead(ctx, userID, post.CircleID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, apperror.New(403, "you cannot like posts in this circle", apperror.ErrForbidden)
	}

	liked := false
	_, err = s.repo.FindLike(ctx, postID, userID)
	switch {
	case err == nil:
		if err := s.repo.DeleteLike(ctx, postID, userID); err != nil {
			return nil, err
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		like := &entity.Like{PostID: postID, UserID: userID}
		if err := s.repo.CreateLike(ctx, like); err != nil && !isDuplicate(err) {
			return nil, err
		}
		liked = true

		if post.AuthorID != userID {
			notification := &entity.Notification{
				RecipientID: post.AuthorID,
				FromUserID:  userID,
				Type:        entity.NotificationLike,
				CircleID:    &post.CircleID,
				PostID:      &post.ID,
			}
			if err := s.notifier.CreateNotification(ctx, notification); err != nil {
				log.Printf("failed to notify post author of like: %v", err)
			}
		}
	default:
		return nil, err
	}

	count, err := s.repo.CountLikes(ctx, postID)
	if err != nil {
		return nil, err
	}

	return &postDto.LikeResponse{
		PostID:    postID,
		Liked:     liked,
		LikeCount: count,
	}, nil
}

func (s *postService) findPost(ctx context.Context, postID uuid.UUID) (*entity.Post, error) {
	post, err := s.repo.FindByID(ctx, postID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperror.ErrNotFound
		}
		return nil, err
	}
	return post, nil
}

func (s *postService) toResponse(ctx context.Context, userID uuid.UUID, post *entity.Post) (*postDto.PostResponse, error) {
	likeCount, err := s.repo.CountLikes(ctx, post.ID)
	if err != nil {
		return nil, err
	}
	commentCount, err := s.repo.CountComments(ctx, post.ID)
	if err != nil {
		return nil, err
	}

	likedByMe := false
	if _, err := s.repo.FindLike(ctx, post.ID, userID); err == nil {
		likedByMe = true
	}

	return &postDto.PostResponse{
		ID:       post.ID,
		CircleID: post.CircleID,
		Author: postDto.AuthorResponse{
			ID:        post.Author.ID,
			Username:  post.Author.Username,
			AvatarURL: post.Author.AvatarURL,
		},
		Content:      post.Content,
		ImageURL:     post.ImageURL,
		LikeCount:    likeCount,
		CommentCount: commentCount,
		LikedByMe:    likedByMe,
		CreatedAt:    post.CreatedAt,
		UpdatedAt:    post.UpdatedAt,
	}, nil
}

func toCommentResponse(c *entity.Comment) postDto.CommentResponse {
	return postDto.CommentResponse{
		ID:     c.ID,
		PostID: c.PostID,
		Author: postDto.AuthorResponse{
			ID:        c.User.ID,
			Username:  c.User.Username,
			AvatarURL: c.User.AvatarURL,
		},
		Content:   c.Content,
		CreatedAt: c.CreatedAt,
	}
}

func isDuplicate(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "duplicate key") || strings.Contains(msg, "UNIQUE constraint failed")
}
