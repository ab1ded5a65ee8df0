package service

import (
	"context"
	"errors"
	"fmt"

	"loop/internal/authz"
	"loop/internal/cache"
	"loop/internal/models"
	"loop/internal/repository"

	"github.com/google/uuid"
)

type SendGiftInput struct {
	SenderID uuid.UUID
	LoopID   uuid.UUID
	GiftType string
}

type GiftService struct {
	gifts   repository.GiftRepository
	checker authz.Checker
	access  loopAccess
	fx      sideEffects
}

func NewGiftService(
	gifts repository.GiftRepository,
	loops repository.LoopRepository,
	circles repository.CircleRepository,
	follows repository.FollowRepository,
	checker authz.Checker,
	pub Publisher,
) *GiftService {
	return &GiftService{
		gifts:   gifts,
		checker: checker,
		access:  loopAccess{loops: loops, circles: circles, follows: follows},
		fx:      sideEffects{pub: pub},
	}
}

// Catalog lists the gift types by price.
func (s *GiftService) Catalog() []models.GiftOption {
	return models.GiftOptions()
}

// Send moves the gift price from the sender to the loop author. The debit,
// credit and gift row commit together.
func (s *GiftService) Send(ctx context.Context, in SendGiftInput) (*models.Gift, error) {
	price, ok := models.GiftCatalog[in.GiftType]
	if !ok {
		return nil, models.NewValidationError("Unknown gift type")
	}
	if err := s.checker.EnsureActive(ctx, in.SenderID); err != nil {
		return nil, err
	}
	loop, err := s.access.load(ctx, in.SenderID, in.LoopID)
	if err != nil {
		return nil, err
	}
	if loop.AuthorID == in.SenderID {
		return nil, models.NewValidationError("You cannot send a gift to yourself")
	}

	loopID := loop.ID
	gift := &models.Gift{
		SenderID:    in.SenderID,
		RecipientID: loop.AuthorID,
		LoopID:      &loopID,
		GiftType:    in.GiftType,
		Coins:       price,
	}
	if err := s.gifts.Send(ctx, gift); err != nil {
		if errors.Is(err, repository.ErrInsufficientCoins) {
			return nil, models.NewConflictError("Insufficient coins")
		}
		return nil, translateError(err, "User", loop.AuthorID)
	}
	cache.InvalidateProfile(ctx, gift.SenderID)
	cache.InvalidateProfile(ctx, gift.RecipientID)

	actor := in.SenderID
	s.fx.notify(ctx, gift.RecipientID, &actor, models.NotificationGift,
		"You received a gift", fmt.Sprintf("Someone sent you a %s (%d coins)", gift.GiftType, gift.Coins),
		models.JSONMap{"gift_id": gift.ID.String(), "loop_id": loopID.String(), "gift_type": gift.GiftType, "coins": gift.Coins})
	return gift, nil
}

func (s *GiftService) Received(ctx context.Context, recipient uuid.UUID, limit, offset int) ([]models.Gift, error) {
	out, err := s.gifts.ListReceived(ctx, recipient, limit, offset)
	if err != nil {
		return nil, translateError(err, "User", recipient)
	}
	return out, nil
}
