package repository

import (
	"context"
	"time"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StreamRepository defines the interface for stream data operations
type StreamRepository interface {
	Create(ctx context.Context, stream *models.Stream) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error)
	SetLive(ctx context.Context, id uuid.UUID, live bool, at time.Time) error
	ListLive(ctx context.Context, category string, limit, offset int) ([]*models.Stream, int64, error)
	ListByHost(ctx context.Context, hostID uuid.UUID) ([]*models.Stream, error)
}

// streamRepository implements StreamRepository
type streamRepository struct {
	db *gorm.DB
}

// NewStreamRepository creates a new stream repository
func NewStreamRepository(db *gorm.DB) StreamRepository {
	return &streamRepository{db: db}
}

func (r *streamRepository) Create(ctx context.Context, stream *models.Stream) error {
	return r.db.WithContext(ctx).Omit("Host").Create(stream).Error
}

func (r *streamRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Stream, error) {
	var stream models.Stream
	err := r.db.WithContext(ctx).
		Preload("Host").
		First(&stream, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &stream, nil
}

// SetLive flips is_live and stamps started_at or ended_at with at.
func (r *streamRepository) SetLive(ctx context.Context, id uuid.UUID, live bool, at time.Time) error {
	updates := map[string]interface{}{"is_live": live}
	if live {
		updates["started_at"] = at
		updates["ended_at"] = nil
	} else {
		updates["ended_at"] = at
	}

	res := r.db.WithContext(ctx).Model(&models.Stream{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *streamRepository) ListLive(ctx context.Context, category string, limit, offset int) ([]*models.Stream, int64, error) {
	var streams []*models.Stream
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Stream{}).Where("is_live = ?", true)

	if category != "" {
		query = query.Where("category = ?", category)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.
		Preload("Host").
		Order("started_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&streams).Error
	return streams, total, err
}

func (r *streamRepository) ListByHost(ctx context.Context, hostID uuid.UUID) ([]*models.Stream, error) {
	var streams []*models.Stream
	err := r.db.WithContext(ctx).
		Where("host_id = ?", hostID).
		Order("created_at DESC").
		Find(&streams).Error
	return streams, err
}
