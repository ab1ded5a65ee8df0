// Package repository provides data access layer implementations for the application.
package repository

import (
	"context"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LoopRepository persists loop nodes and their tree structure.
type LoopRepository interface {
	Create(ctx context.Context, loop *models.Loop) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Loop, error)
	ListChildren(ctx context.Context, parentID uuid.UUID, limit, offset int) ([]*models.Loop, error)
	Ancestors(ctx context.Context, id uuid.UUID) ([]*models.Loop, error)
	DeleteSubtree(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error)
}

type loopRepository struct {
	db *gorm.DB
}

// NewLoopRepository returns a new LoopRepository implementation.
func NewLoopRepository(db *gorm.DB) LoopRepository {
	return &loopRepository{db: db}
}

// Create inserts the loop and its zeroed stats row in one transaction.
func (r *loopRepository) Create(ctx context.Context, loop *models.Loop) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Author").Create(loop).Error; err != nil {
			return err
		}
		return tx.Create(&models.LoopStats{LoopID: loop.ID}).Error
	})
}

func (r *loopRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Loop, error) {
	var loop models.Loop
	if err := r.db.WithContext(ctx).Preload("Author").First(&loop, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &loop, nil
}

func (r *loopRepository) ListChildren(ctx context.Context, parentID uuid.UUID, limit, offset int) ([]*models.Loop, error) {
	var loops []*models.Loop
	err := r.db.WithContext(ctx).
		Preload("Author").
		Where("parent_id = ?", parentID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&loops).Error
	return loops, err
}

const ancestorsSQL = `
WITH RECURSIVE chain (id, parent_id) AS (
	SELECT id, parent_id FROM loops WHERE id = ?
	UNION ALL
	SELECT l.id, l.parent_id FROM loops l JOIN chain c ON l.id = c.parent_id
)
SELECT id FROM chain`

// Ancestors returns the path from the root down to and including id, ordered
// by depth. An unknown id yields gorm.ErrRecordNotFound.
func (r *loopRepository) Ancestors(ctx context.Context, id uuid.UUID) ([]*models.Loop, error) {
	db := r.db.WithContext(ctx)
	ids, err := scanIDs(db.Raw(ancestorsSQL, id))
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, gorm.ErrRecordNotFound
	}

	var loops []*models.Loop
	err = db.Preload("Author").Where("id IN ?", ids).Order("depth ASC").Find(&loops).Error
	return loops, err
}

const subtreeSQL = `
WITH RECURSIVE subtree (id) AS (
	SELECT id FROM loops WHERE id = ?
	UNION ALL
	SELECT l.id FROM loops l JOIN subtree s ON l.parent_id = s.id
)
SELECT id FROM subtree`

// DeleteSubtree removes the loop, every descendant and all rows hanging off
// them in one transaction. It returns the removed ids, root first.
func (r *loopRepository) DeleteSubtree(ctx context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		ids, err = scanIDs(tx.Raw(subtreeSQL, id))
		if err != nil {
			return err
		}
		if len(ids) == 0 {
			return gorm.ErrRecordNotFound
		}

		if err := tx.Where("loop_id IN ?", ids).Delete(&models.Interaction{}).Error; err != nil {
			return err
		}
		if err := tx.Where("loop_id IN ?", ids).Delete(&models.Comment{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Gift{}).Where("loop_id IN ?", ids).Update("loop_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Where("loop_id IN ?", ids).Delete(&models.LoopStats{}).Error; err != nil {
			return err
		}
		return tx.Where("id IN ?", ids).Delete(&models.Loop{}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func scanIDs(q *gorm.DB) ([]uuid.UUID, error) {
	rows, err := q.Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
