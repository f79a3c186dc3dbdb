package repository

import (
	"context"
	"time"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type StoryRepository interface {
	Create(ctx context.Context, story *entity.Story) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Story, error)
	// ListActiveByCircle returns unexpired stories, newest first.
	ListActiveByCircle(ctx context.Context, circleID uuid.UUID, now time.Time) ([]*entity.Story, error)
	Update(ctx context.Context, story *entity.Story) error
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteExpired removes every story past its expiry and returns how many
	// rows went away.
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

type storyRepository struct {
	db *gorm.DB
}

func NewStoryRepository(db *gorm.DB) StoryRepository {
	return &storyRepository{db: db}
}

func (r *storyRepository) Create(ctx context.Context, story *entity.Story) error {
	return r.db.WithContext(ctx).Create(story).Error
}

func (r *storyRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Story, error) {
	var story entity.Story
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		First(&story, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &story, nil
}

func (r *storyRepository) ListActiveByCircle(ctx context.Context, circleID uuid.UUID, now time.Time) ([]*entity.Story, error) {
	var stories []*entity.Story
	err := r.db.WithContext(ctx).
		Preload("User", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "avatar_url")
		}).
		Where("circle_id = ? AND expires_at > ?", circleID, now).
		Order("created_at DESC").
		Find(&stories).Error
	return stories, err
}

func (r *storyRepository) Update(ctx context.Context, story *entity.Story) error {
	return r.db.WithContext(ctx).Save(story).Error
}

func (r *storyRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entity.Story{}, "id = ?", id).Error
}

func (r *storyRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&entity.Story{})
	return result.RowsAffected, result.Error
}
