package repository

import (
	"context"
	"time"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// OutboxRepository stores side effects awaiting redelivery.
type OutboxRepository interface {
	Enqueue(ctx context.Context, event *models.OutboxEvent) error
	Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEvent, error)
	MarkDelivered(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, next time.Time, dead bool) error
	ReplayDead(ctx context.Context) (int64, error)
	List(ctx context.Context, status string, limit, offset int) ([]models.OutboxEvent, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

type outboxRepository struct {
	db *gorm.DB
}

// NewOutboxRepository returns a new OutboxRepository implementation.
func NewOutboxRepository(db *gorm.DB) OutboxRepository {
	return &outboxRepository{db: db}
}

func (r *outboxRepository) Enqueue(ctx context.Context, event *models.OutboxEvent) error {
	return r.db.WithContext(ctx).Create(event).Error
}

// Claim returns due pending events and pushes their next_attempt_at out by
// lease, so concurrent processors skip them while they are being worked.
func (r *outboxRepository) Claim(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]models.OutboxEvent, error) {
	var events []models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ? AND next_attempt_at <= ?", models.OutboxPending, now).
			Order("next_attempt_at ASC").
			Limit(limit).
			Find(&events).Error
		if err != nil || len(events) == 0 {
			return err
		}

		ids := make([]uuid.UUID, len(events))
		for i, e := range events {
			ids[i] = e.ID
		}
		return tx.Model(&models.OutboxEvent{}).
			Where("id IN ?", ids).
			Update("next_attempt_at", now.Add(lease)).Error
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

func (r *outboxRepository) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{"status": models.OutboxDelivered, "last_error": ""}).Error
}

func (r *outboxRepository) MarkFailed(ctx context.Context, id uuid.UUID, attempts int, lastErr string, next time.Time, dead bool) error {
	status := models.OutboxPending
	if dead {
		status = models.OutboxDead
	}
	return r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":          status,
			"attempts":        attempts,
			"last_error":      lastErr,
			"next_attempt_at": next,
		}).Error
}

// ReplayDead resets every dead event to pending with a fresh attempt budget.
func (r *outboxRepository) ReplayDead(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Where("status = ?", models.OutboxDead).
		Updates(map[string]interface{}{
			"status":          models.OutboxPending,
			"attempts":        0,
			"next_attempt_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}

func (r *outboxRepository) List(ctx context.Context, status string, limit, offset int) ([]models.OutboxEvent, error) {
	q := r.db.WithContext(ctx)
	if status != "" {
		q = q.Where("status = ?", status)
	}

	var events []models.OutboxEvent
	err := q.Order("created_at DESC").Limit(limit).Offset(offset).Find(&events).Error
	return events, err
}

func (r *outboxRepository) CountByStatus(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status string
		Count  int64
	}
	err := r.db.WithContext(ctx).Model(&models.OutboxEvent{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Status] = row.Count
	}
	return out, nil
}
