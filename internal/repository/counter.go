package repository

import (
	"context"
	"fmt"
	"time"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CounterRepository is the only writer of loop_stats counter columns.
type CounterRepository interface {
	Adjust(ctx context.Context, loopID uuid.UUID, kind models.CounterKind, delta int64) (int64, error)
	Get(ctx context.Context, loopID uuid.UUID) (*models.LoopStats, error)
	GetMany(ctx context.Context, loopIDs []uuid.UUID) (map[uuid.UUID]models.LoopStats, error)
}

type counterRepository struct {
	db *gorm.DB
}

// NewCounterRepository returns a new CounterRepository implementation.
func NewCounterRepository(db *gorm.DB) CounterRepository {
	return &counterRepository{db: db}
}

func (r *counterRepository) Adjust(ctx context.Context, loopID uuid.UUID, kind models.CounterKind, delta int64) (int64, error) {
	return adjustCounter(r.db.WithContext(ctx), loopID, kind, delta)
}

// adjustCounter applies delta to one counter with a single statement, clamping
// at zero, and returns the new value. It runs on whatever handle it is given so
// toggles can share their transaction.
func adjustCounter(db *gorm.DB, loopID uuid.UUID, kind models.CounterKind, delta int64) (int64, error) {
	if !kind.Valid() {
		return 0, fmt.Errorf("unknown counter %q", kind)
	}

	col := string(kind)
	query := fmt.Sprintf(
		`UPDATE loop_stats SET %[1]s = CASE WHEN %[1]s + ? < 0 THEN 0 ELSE %[1]s + ? END, updated_at = ? WHERE loop_id = ? RETURNING %[1]s`,
		col,
	)

	var count int64
	res := db.Raw(query, delta, delta, time.Now().UTC(), loopID).Scan(&count)
	if res.Error != nil {
		return 0, res.Error
	}
	if res.RowsAffected == 0 {
		return 0, gorm.ErrRecordNotFound
	}
	return count, nil
}

func (r *counterRepository) Get(ctx context.Context, loopID uuid.UUID) (*models.LoopStats, error) {
	var stats models.LoopStats
	if err := r.db.WithContext(ctx).First(&stats, "loop_id = ?", loopID).Error; err != nil {
		return nil, err
	}
	return &stats, nil
}

// GetMany loads the stats of every id with one query. Missing rows are absent
// from the map.
func (r *counterRepository) GetMany(ctx context.Context, loopIDs []uuid.UUID) (map[uuid.UUID]models.LoopStats, error) {
	out := make(map[uuid.UUID]models.LoopStats, len(loopIDs))
	if len(loopIDs) == 0 {
		return out, nil
	}

	var rows []models.LoopStats
	if err := r.db.WithContext(ctx).Where("loop_id IN ?", loopIDs).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, s := range rows {
		out[s.LoopID] = s
	}
	return out, nil
}
