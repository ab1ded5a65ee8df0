package repository

import (
	"context"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// InteractionRepository maintains interaction rows together with the counter
// each one drives. Every method runs the row change and the counter change in
// one transaction.
type InteractionRepository interface {
	Toggle(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (*models.InteractionResult, error)
	Set(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType, present bool) (*models.InteractionResult, error)
	Has(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (bool, error)
	ViewerStates(ctx context.Context, userID uuid.UUID, loopIDs []uuid.UUID) (map[uuid.UUID]models.ViewerState, error)
}

type interactionRepository struct {
	db *gorm.DB
}

// NewInteractionRepository returns a new InteractionRepository implementation.
func NewInteractionRepository(db *gorm.DB) InteractionRepository {
	return &interactionRepository{db: db}
}

func interactionKey(tx *gorm.DB, userID, loopID uuid.UUID, typ models.InteractionType) *gorm.DB {
	return tx.Where("user_id = ? AND loop_id = ? AND type = ?", userID, loopID, typ)
}

// Toggle removes the row if present and inserts it otherwise. The delete and
// the conflict-ignoring insert decide the outcome, so no existence check is
// read ahead of the write.
func (r *interactionRepository) Toggle(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (*models.InteractionResult, error) {
	var result *models.InteractionResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		removed, count, err := removeInteraction(tx, userID, loopID, typ)
		if err != nil {
			return err
		}
		if removed {
			result = &models.InteractionResult{Action: models.ActionRemoved, Type: typ, Count: count}
			return nil
		}

		_, count, err = insertInteraction(tx, userID, loopID, typ)
		if err != nil {
			return err
		}
		// A concurrent insert by the same user won; the row exists either way.
		result = &models.InteractionResult{Action: models.ActionAdded, Type: typ, Count: count}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Set makes the row present or absent. Action is unchanged when the row was
// already in the requested state.
func (r *interactionRepository) Set(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType, present bool) (*models.InteractionResult, error) {
	var result *models.InteractionResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var (
			changed bool
			count   int64
			err     error
		)
		action := models.ActionRemoved
		if present {
			action = models.ActionAdded
			changed, count, err = insertInteraction(tx, userID, loopID, typ)
		} else {
			changed, count, err = removeInteraction(tx, userID, loopID, typ)
		}
		if err != nil {
			return err
		}
		if !changed {
			action = models.ActionUnchanged
		}
		result = &models.InteractionResult{Action: action, Type: typ, Count: count}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func removeInteraction(tx *gorm.DB, userID, loopID uuid.UUID, typ models.InteractionType) (bool, int64, error) {
	res := interactionKey(tx, userID, loopID, typ).Delete(&models.Interaction{})
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		count, err := currentCount(tx, loopID, typ.Counter())
		return false, count, err
	}
	count, err := adjustCounter(tx, loopID, typ.Counter(), -1)
	return true, count, err
}

func insertInteraction(tx *gorm.DB, userID, loopID uuid.UUID, typ models.InteractionType) (bool, int64, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&models.Interaction{UserID: userID, LoopID: loopID, Type: typ})
	if res.Error != nil {
		return false, 0, res.Error
	}
	if res.RowsAffected == 0 {
		count, err := currentCount(tx, loopID, typ.Counter())
		return false, count, err
	}
	count, err := adjustCounter(tx, loopID, typ.Counter(), 1)
	return true, count, err
}

func currentCount(tx *gorm.DB, loopID uuid.UUID, kind models.CounterKind) (int64, error) {
	var stats models.LoopStats
	if err := tx.Select(string(kind)).First(&stats, "loop_id = ?", loopID).Error; err != nil {
		return 0, err
	}
	return stats.Get(kind), nil
}

func (r *interactionRepository) Has(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (bool, error) {
	var count int64
	err := interactionKey(r.db.WithContext(ctx).Model(&models.Interaction{}), userID, loopID, typ).
		Count(&count).Error
	return count > 0, err
}

// ViewerStates resolves the viewer's interactions with every id in one query.
func (r *interactionRepository) ViewerStates(ctx context.Context, userID uuid.UUID, loopIDs []uuid.UUID) (map[uuid.UUID]models.ViewerState, error) {
	out := make(map[uuid.UUID]models.ViewerState, len(loopIDs))
	if len(loopIDs) == 0 || userID == uuid.Nil {
		return out, nil
	}

	var rows []models.Interaction
	err := r.db.WithContext(ctx).
		Select("loop_id", "type").
		Where("user_id = ? AND loop_id IN ?", userID, loopIDs).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		state := out[row.LoopID]
		switch row.Type {
		case models.InteractionLike:
			state.IsLiked = true
		case models.InteractionSave:
			state.IsSaved = true
		case models.InteractionView:
			state.HasViewed = true
		case models.InteractionShare:
			state.HasShared = true
		}
		out[row.LoopID] = state
	}
	return out, nil
}
