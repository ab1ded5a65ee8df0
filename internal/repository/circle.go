package repository

import (
	"context"

	"loop/internal/cache"
	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CircleRepository defines persistence operations for circles and membership.
type CircleRepository interface {
	Create(ctx context.Context, circle *models.Circle) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Circle, error)
	GetBySlug(ctx context.Context, slug string) (*models.Circle, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	List(ctx context.Context, limit, offset int) ([]models.Circle, error)
	AddMember(ctx context.Context, circleID, userID uuid.UUID, role string) (bool, error)
	RemoveMember(ctx context.Context, circleID, userID uuid.UUID) (bool, error)
	MemberRole(ctx context.Context, circleID, userID uuid.UUID) (string, error)
	ListMembers(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]models.CircleMember, error)
}

type circleRepository struct {
	db *gorm.DB
}

// NewCircleRepository returns a new CircleRepository implementation.
func NewCircleRepository(db *gorm.DB) CircleRepository {
	return &circleRepository{db: db}
}

// Create inserts the circle and its owner membership together.
func (r *circleRepository) Create(ctx context.Context, circle *models.Circle) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(circle).Error; err != nil {
			return err
		}
		return tx.Create(&models.CircleMember{
			CircleID: circle.ID,
			UserID:   circle.OwnerID,
			Role:     models.CircleRoleOwner,
		}).Error
	})
}

func (r *circleRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Circle, error) {
	var circle models.Circle
	if err := r.db.WithContext(ctx).First(&circle, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &circle, nil
}

func (r *circleRepository) GetBySlug(ctx context.Context, slug string) (*models.Circle, error) {
	var circle models.Circle
	err := cache.Aside(ctx, cache.CircleKey(slug), &circle, cache.CircleTTL, func() error {
		return r.db.WithContext(ctx).First(&circle, "slug = ?", slug).Error
	})
	if err != nil {
		return nil, err
	}
	return &circle, nil
}

func (r *circleRepository) SlugExists(ctx context.Context, slug string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Circle{}).Where("slug = ?", slug).Count(&count).Error
	return count > 0, err
}

func (r *circleRepository) List(ctx context.Context, limit, offset int) ([]models.Circle, error) {
	var circles []models.Circle
	err := r.db.WithContext(ctx).
		Where("is_private = ?", false).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&circles).Error
	return circles, err
}

// AddMember reports whether a membership was created.
func (r *circleRepository) AddMember(ctx context.Context, circleID, userID uuid.UUID, role string) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.CircleMember{CircleID: circleID, UserID: userID, Role: role})
	return res.RowsAffected > 0, res.Error
}

func (r *circleRepository) RemoveMember(ctx context.Context, circleID, userID uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		Delete(&models.CircleMember{})
	return res.RowsAffected > 0, res.Error
}

// MemberRole returns the user's role in the circle, or "" when not a member.
func (r *circleRepository) MemberRole(ctx context.Context, circleID, userID uuid.UUID) (string, error) {
	var member models.CircleMember
	err := r.db.WithContext(ctx).
		Select("role").
		Where("circle_id = ? AND user_id = ?", circleID, userID).
		Take(&member).Error
	if IsNotFound(err) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return member.Role, nil
}

func (r *circleRepository) ListMembers(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]models.CircleMember, error) {
	var members []models.CircleMember
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("circle_id = ?", circleID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&members).Error
	return members, err
}
