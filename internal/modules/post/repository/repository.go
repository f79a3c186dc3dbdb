package repository

import (
	"context"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PostRepository interface {
	Create(ctx context.Context, post *entity.Post) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Post, error)
	ListByCircle(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]*entity.Post, error)
	Update(ctx context.Context, post *entity.Post) error
	Delete(ctx context.Context, id uuid.UUID) error

	CreateComment(ctx context.Context, comment *entity.Comment) error
	FindCommentByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error)
	ListComments(ctx context.Context, postID uuid.UUID) ([]*entity.Comment, error)
	DeleteComment(ctx context.Context, id uuid.UUID) error
	CountComments(ctx context.Context, postID uuid.UUID) (int64, error)

	CreateLike(ctx context.Context, like *entity.Like) error
	FindLike(ctx context.Context, postID, userID uuid.UUID) (*entity.Like, error)
	DeleteLike(ctx context.Context, postID, userID uuid.UUID) error
	CountLikes(ctx context.Context, postID uuid.UUID) (int64, error)
}

type postRepository struct {
	db *gorm.DB
}

func NewPostRepository(db *gorm.DB) PostRepository {
	return &postRepository{db: db}
}

func (r *postRepository) Create(ctx context.Context, post *entity.Post) error {
	return r.db.WithContext(ctx).Create(post).Error
}

func (r *postRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Post, error) {
	var post entity.Post
	err := r.db.WithContext(ctx).
		Preload("Author", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		First(&post, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &post, nil
}

func (r *postRepository) ListByCircle(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]*entity.Post, error) {
	var posts []*entity.Post
	err := r.db.WithContext(ctx).
		Preload("Author", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("circle_id = ?", circleID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&posts).Error
	return posts, err
}

func (r *postRepository) Update(ctx context.Context, post *entity.Post) error {
	return r.db.WithContext(ctx).Save(post).Error
}

func (r *postRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", id).Delete(&entity.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Where("post_id = ?", id).Delete(&entity.Like{}).Error; err != nil {
			return err
		}
		return tx.Delete(&entity.Post{}, "id = ?", id).Error
	})
}

func (r *postRepository) CreateComment(ctx context.Context, comment *entity.Comment) error {
	return r.db.WithContext(ctx).Create(comment).Error
}

func (r *postRepository) FindCommentByID(ctx context.Context, id uuid.UUID) (*entity.Comment, error) {
	var comment entity.Comment
	err := r.db.WithContext(ctx).First(&comment, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &comment, nil
}

func (r *postRepository) ListComments(ctx context.Context, postID uuid.UUID) ([]*entity.Comment, error) {
	var comments []*entity.Comment
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("post_id = ?", postID).
		Order("created_at ASC").
		Find(&comments).Error
	return comments, err
}

func (r *postRepository) DeleteComment(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entity.Comment{}, "id = ?", id).Error
}

func (r *postRepository) CountComments(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Comment{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	return count, err
}

func (r *postRepository) CreateLike(ctx context.Context, like *entity.Like) error {
	return r.db.WithContext(ctx).Create(like).Error
}

func (r *postRepository) FindLike(ctx context.Context, postID, userID uuid.UUID) (*entity.Like, error) {
	var like entity.Like
	err := r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		First(&like).Error
	if err != nil {
		return nil, err
	}
	return &like, nil
}

func (r *postRepository) DeleteLike(ctx context.Context, postID, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("post_id = ? AND user_id = ?", postID, userID).
		Delete(&entity.Like{}).Error
}

func (r *postRepository) CountLikes(ctx context.Context, postID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Like{}).
		Where("post_id = ?", postID).
		Count(&count).Error
	return count, err
}
