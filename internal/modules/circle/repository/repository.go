package repository

import (
	"context"

	"github.com/circlesplus/backend/internal/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CircleRepository interface {
	Create(ctx context.Context, circle *entity.Circle, owner *entity.CircleMember) error
	FindByID(ctx context.Context, id uuid.UUID) (*entity.Circle, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Circle, error)
	Update(ctx context.Context, circle *entity.Circle) error
	Delete(ctx context.Context, id uuid.UUID) error

	FindMembership(ctx context.Context, circleID, profileID uuid.UUID) (*entity.CircleMember, error)
	CreateMember(ctx context.Context, member *entity.CircleMember) error
	UpdateMember(ctx context.Context, member *entity.CircleMember) error
	DeleteMember(ctx context.Context, circleID, profileID uuid.UUID) error
	ListMembers(ctx context.Context, circleID uuid.UUID, statuses []string) ([]*entity.CircleMember, error)
	ListByProfile(ctx context.Context, profileID uuid.UUID, statuses []string) ([]*entity.CircleMember, error)
	MemberCircleIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error)

	ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*entity.Circle, error)
	SearchPublic(ctx context.Context, query string, excludeCreator uuid.UUID, limit int) ([]*entity.Circle, error)
	ListPublic(ctx context.Context) ([]*entity.Circle, error)
}

type circleRepository struct {
	db *gorm.DB
}

func NewCircleRepository(db *gorm.DB) CircleRepository {
	return &circleRepository{db: db}
}

func (r *circleRepository) Create(ctx context.Context, circle *entity.Circle, owner *entity.CircleMember) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(circle).Error; err != nil {
			return err
		}

		if owner != nil {
			owner.CircleID = circle.ID
			if err := tx.Create(owner).Error; err != nil {
				return err
			}
		}

		return nil
	})
}

func (r *circleRepository) FindByID(ctx context.Context, id uuid.UUID) (*entity.Circle, error) {
	var circle entity.Circle
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&circle).Error; err != nil {
		return nil, err
	}
	return &circle, nil
}

func (r *circleRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]*entity.Circle, error) {
	if len(ids) == 0 {
		return []*entity.Circle{}, nil
	}

	var circles []*entity.Circle
	if err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Find(&circles).Error; err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *circleRepository) Update(ctx context.Context, circle *entity.Circle) error {
	return r.db.WithContext(ctx).Save(circle).Error
}

func (r *circleRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&entity.Circle{}, "id = ?", id).Error
}

func (r *circleRepository) FindMembership(ctx context.Context, circleID, profileID uuid.UUID) (*entity.CircleMember, error) {
	var member entity.CircleMember
	if err := r.db.WithContext(ctx).
		Where("circle_id = ? AND profile_id = ?", circleID, profileID).
		First(&member).Error; err != nil {
		return nil, err
	}
	return &member, nil
}

func (r *circleRepository) CreateMember(ctx context.Context, member *entity.CircleMember) error {
	return r.db.WithContext(ctx).Create(member).Error
}

func (r *circleRepository) UpdateMember(ctx context.Context, member *entity.CircleMember) error {
	return r.db.WithContext(ctx).Save(member).Error
}

// DeleteMember removes a membership row; deleting an absent row is a no-op.
func (r *circleRepository) DeleteMember(ctx context.Context, circleID, profileID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("circle_id = ? AND profile_id = ?", circleID, profileID).
		Delete(&entity.CircleMember{}).Error
}

func (r *circleRepository) ListMembers(ctx context.Context, circleID uuid.UUID, statuses []string) ([]*entity.CircleMember, error) {
	var members []*entity.CircleMember
	query := r.db.WithContext(ctx).
		Preload("User").
		Where("circle_id = ?", circleID)

	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	if err := query.Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

func (r *circleRepository) ListByProfile(ctx context.Context, profileID uuid.UUID, statuses []string) ([]*entity.CircleMember, error) {
	var members []*entity.CircleMember
	query := r.db.WithContext(ctx).
		Preload("Circle").
		Where("profile_id = ?", profileID)

	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}

	if err := query.Order("created_at DESC").Find(&members).Error; err != nil {
		return nil, err
	}
	return members, nil
}

// MemberCircleIDs returns ids of circles the user has any membership in,
// regardless of status.
func (r *circleRepository) MemberCircleIDs(ctx context.Context, profileID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&entity.CircleMember{}).
		Where("profile_id = ?", profileID).
		Pluck("circle_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *circleRepository) ListByCreator(ctx context.Context, creatorID uuid.UUID) ([]*entity.Circle, error) {
	var circles []*entity.Circle
	if err := r.db.WithContext(ctx).
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Find(&circles).Error; err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *circleRepository) SearchPublic(ctx context.Context, query string, excludeCreator uuid.UUID, limit int) ([]*entity.Circle, error) {
	var circles []*entity.Circle
	q := r.db.WithContext(ctx).
		Where("is_private = ?", false).
		Where("creator_id <> ?", excludeCreator)

	if query != "" {
		pattern := "%" + query + "%"
		q = q.Where("name LIKE ? OR description LIKE ?", pattern, pattern)
	}

	if err := q.Order("created_at DESC").Limit(limit).Find(&circles).Error; err != nil {
		return nil, err
	}
	return circles, nil
}

func (r *circleRepository) ListPublic(ctx context.Context) ([]*entity.Circle, error) {
	var circles []*entity.Circle
	if err := r.db.WithContext(ctx).
		Where("is_private = ?", false).
		Order("created_at DESC").
		Find(&circles).Error; err != nil {
		return nil, err
	}
	return circles, nil
}
