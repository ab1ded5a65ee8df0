package server

import (
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createCircleRequest struct {
	Name        string `json:"name" validate:"required,min=3,max=100"`
	Description string `json:"description" validate:"max=2000"`
	IsPrivate   bool   `json:"is_private"`
}

// GetCircles handles GET /api/circles
func (s *Server) GetCircles(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	circles, err := s.circles.List(c.UserContext(), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(circles)
}

// CreateCircle handles POST /api/circles
// @Summary Create a circle
// @Tags circles
// @Accept json
// @Produce json
// @Param request body createCircleRequest true "Circle"
// @Success 201 {object} models.Circle
// @Failure 400 {object} models.ErrorResponse
// @Failure 409 {object} models.ErrorResponse "Slug taken"
// @Router /circles [post]
// @Security BearerAuth
func (s *Server) CreateCircle(c *fiber.Ctx) error {
	var req createCircleRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	circle, err := s.circles.Create(c.UserContext(), service.CreateCircleInput{
		OwnerID:     currentUserID(c),
		Name:        req.Name,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(circle)
}

// GetCircleBySlug handles GET /api/circles/:slug
func (s *Server) GetCircleBySlug(c *fiber.Ctx) error {
	circle, err := s.circles.GetBySlug(c.UserContext(), c.Params("slug"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(circle)
}

// JoinCircle handles POST /api/circles/:id/join
func (s *Server) JoinCircle(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.circles.Join(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"joined": true})
}

// LeaveCircle handles DELETE /api/circles/:id/members/me
func (s *Server) LeaveCircle(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.circles.Leave(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// GetCircleMembers handles GET /api/circles/:id/members
func (s *Server) GetCircleMembers(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)
	members, err := s.circles.Members(c.UserContext(), id, currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(members)
}

// GetCircleLoops handles GET /api/circles/:id/loops
func (s *Server) GetCircleLoops(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, service.DefaultFeedLimit)
	feed, err := s.feed.Assemble(c.UserContext(), service.FeedQuery{
		ViewerID: currentUserID(c),
		Mode:     service.FeedCircle,
		CircleID: id,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(feed)
}
