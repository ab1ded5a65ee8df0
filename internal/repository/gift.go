package repository

import (
	"context"
	"errors"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrInsufficientCoins is returned by Send when the sender cannot cover the gift.
var ErrInsufficientCoins = errors.New("insufficient coins")

// GiftRepository moves coins between profiles and records gifts.
type GiftRepository interface {
	Send(ctx context.Context, gift *models.Gift) error
	ListReceived(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]models.Gift, error)
	TotalForLoop(ctx context.Context, loopID uuid.UUID) (int64, error)
}

type giftRepository struct {
	db *gorm.DB
}

// NewGiftRepository returns a new GiftRepository implementation.
func NewGiftRepository(db *gorm.DB) GiftRepository {
	return &giftRepository{db: db}
}

// Send debits the sender, credits the recipient and records the gift in one
// transaction. The debit is guarded in SQL so the balance never goes negative.
func (r *giftRepository) Send(ctx context.Context, gift *models.Gift) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		debit := tx.Model(&models.Profile{}).
			Where("id = ? AND coins >= ?", gift.SenderID, gift.Coins).
			Update("coins", gorm.Expr("coins - ?", gift.Coins))
		if debit.Error != nil {
			return debit.Error
		}
		if debit.RowsAffected == 0 {
			return ErrInsufficientCoins
		}

		credit := tx.Model(&models.Profile{}).
			Where("id = ?", gift.RecipientID).
			Update("coins", gorm.Expr("coins + ?", gift.Coins))
		if credit.Error != nil {
			return credit.Error
		}
		if credit.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		return tx.Create(gift).Error
	})
}

func (r *giftRepository) ListReceived(ctx context.Context, recipientID uuid.UUID, limit, offset int) ([]models.Gift, error) {
	var gifts []models.Gift
	err := r.db.WithContext(ctx).
		Where("recipient_id = ?", recipientID).
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		Find(&gifts).Error
	return gifts, err
}

func (r *giftRepository) TotalForLoop(ctx context.Context, loopID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.Gift{}).
		Select("COALESCE(SUM(coins), 0)").
		Where("loop_id = ?", loopID).
		Scan(&total).Error
	return total, err
}
