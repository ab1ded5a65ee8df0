package server

import (
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
)

type sendGiftRequest struct {
	GiftType string `json:"gift_type" validate:"required"`
}

// GetGiftCatalog handles GET /api/gifts/catalog
func (s *Server) GetGiftCatalog(c *fiber.Ctx) error {
	return c.JSON(s.gifts.Catalog())
}

// SendGift handles POST /api/loops/:id/gifts
// @Summary Send a gift to a loop's author
// @Tags gifts
// @Accept json
// @Produce json
// @Param id path string true "Loop ID"
// @Param request body sendGiftRequest true "Gift"
// @Success 201 {object} models.Gift
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "Insufficient coins"
// @Router /loops/{id}/gifts [post]
// @Security BearerAuth
func (s *Server) SendGift(c *fiber.Ctx) error {
	loopID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req sendGiftRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	gift, err := s.gifts.Send(c.UserContext(), service.SendGiftInput{
		SenderID: currentUserID(c),
		LoopID:   loopID,
		GiftType: req.GiftType,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(gift)
}

// GetMyGifts handles GET /api/users/me/gifts
func (s *Server) GetMyGifts(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	gifts, err := s.gifts.Received(c.UserContext(), currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(gifts)
}
