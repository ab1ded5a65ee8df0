package server

import (
	"loop/internal/featureflags"
	"loop/internal/models"
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type createLoopRequest struct {
	Content    models.Content `json:"content"`
	CircleID   *uuid.UUID     `json:"circle_id"`
	Visibility string         `json:"visibility" validate:"omitempty,oneof=public followers"`
}

type createBranchRequest struct {
	ParentID   uuid.UUID      `json:"parent_id"`
	Content    models.Content `json:"content"`
	Visibility string         `json:"visibility" validate:"omitempty,oneof=public followers"`
}

type interactionRequest struct {
	Type   models.InteractionType   `json:"type" validate:"required,oneof=like save share view"`
	Action models.InteractionAction `json:"action" validate:"omitempty,oneof=add remove toggle"`
}

// interactionResponse echoes the change plus every counter of the loop.
type interactionResponse struct {
	Action models.InteractionAction `json:"action"`
	Type   models.InteractionType   `json:"type"`
	Count  int64                    `json:"count"`
	Counts *models.LoopStats        `json:"counts"`
}

// CreateLoop handles POST /api/loops
// @Summary Create a root loop
// @Tags loops
// @Accept json
// @Produce json
// @Param request body createLoopRequest true "Loop content"
// @Success 201 {object} models.Loop
// @Failure 400 {object} models.ErrorResponse
// @Router /loops [post]
// @Security BearerAuth
func (s *Server) CreateLoop(c *fiber.Ctx) error {
	var req createLoopRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	loop, err := s.loops.CreateRoot(c.UserContext(), service.CreateLoopInput{
		AuthorID:   currentUserID(c),
		Content:    req.Content,
		CircleID:   req.CircleID,
		Visibility: req.Visibility,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(loop)
}

// CreateBranch handles POST /api/loops/branch
// @Summary Branch from an existing loop
// @Tags loops
// @Accept json
// @Produce json
// @Param request body createBranchRequest true "Parent and content"
// @Success 201 {object} models.Loop
// @Failure 400 {object} models.ErrorResponse "Validation or DEPTH_LIMIT_EXCEEDED"
// @Failure 404 {object} models.ErrorResponse
// @Router /loops/branch [post]
// @Security BearerAuth
func (s *Server) CreateBranch(c *fiber.Ctx) error {
	var req createBranchRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	if req.ParentID == uuid.Nil {
		return respondError(c, models.NewValidationError("parent_id is required"))
	}

	loop, err := s.loops.CreateBranch(c.UserContext(), service.CreateBranchInput{
		AuthorID:   currentUserID(c),
		ParentID:   req.ParentID,
		Content:    req.Content,
		Visibility: req.Visibility,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(loop)
}

// GetFeed handles GET /api/loops/feed?type=following|personalized|trending|recent
// @Summary Assemble a feed page
// @Tags loops
// @Produce json
// @Param type query string false "following, personalized, trending or recent"
// @Param limit query int false "Page size" default(20)
// @Param offset query int false "Offset"
// @Success 200 {object} service.FeedPage
// @Router /loops/feed [get]
func (s *Server) GetFeed(c *fiber.Ctx) error {
	viewer := currentUserID(c)

	mode := service.FeedMode(c.Query("type"))
	if mode == "" {
		mode = service.FeedRecent
		if viewer != uuid.Nil {
			mode = service.FeedPersonalized
		}
	}
	switch mode {
	case service.FeedFollowing, service.FeedPersonalized, service.FeedRecent:
	case service.FeedTrending:
		if !s.featureFlags.EnabledOr(featureflags.TrendingFeed, viewer, true) {
			return respondError(c, models.NewNotFoundError("Feed", string(mode)))
		}
	default:
		return respondError(c, models.NewValidationError("type must be one of: following personalized trending recent"))
	}

	page := parsePagination(c, service.DefaultFeedLimit)
	feed, err := s.feed.Assemble(c.UserContext(), service.FeedQuery{
		ViewerID: viewer,
		Mode:     mode,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(feed)
}

// Interact handles POST /api/loops/:id/interactions
// @Summary Like, save, share or view a loop
// @Tags loops
// @Accept json
// @Produce json
// @Param id path string true "Loop ID"
// @Param request body interactionRequest true "Interaction"
// @Success 200 {object} interactionResponse
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /loops/{id}/interactions [post]
// @Security BearerAuth
func (s *Server) Interact(c *fiber.Ctx) error {
	loopID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req interactionRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	ctx := c.UserContext()
	res, err := s.counters.Interact(ctx, service.InteractInput{
		UserID: currentUserID(c),
		LoopID: loopID,
		Type:   req.Type,
		Action: req.Action,
	})
	if err != nil {
		return respondError(c, err)
	}
	stats, err := s.counters.Stats(ctx, loopID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(interactionResponse{
		Action: res.Action,
		Type:   res.Type,
		Count:  res.Count,
		Counts: stats,
	})
}

// GetLoop handles GET /api/loops/:id
func (s *Server) GetLoop(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	view, err := s.loops.Get(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(view)
}

// GetBranches handles GET /api/loops/:id/branches
func (s *Server) GetBranches(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, service.DefaultFeedLimit)
	views, err := s.loops.Children(c.UserContext(), id, currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(views)
}

// GetAncestors handles GET /api/loops/:id/ancestors. The path runs from the
// root down to :id itself, inclusive.
func (s *Server) GetAncestors(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	views, err := s.loops.Ancestors(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(views)
}

// DeleteLoop handles DELETE /api/loops/:id
// @Summary Delete a loop and its branches
// @Tags loops
// @Param id path string true "Loop ID"
// @Success 204
// @Failure 403 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /loops/{id} [delete]
// @Security BearerAuth
func (s *Server) DeleteLoop(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	if err := s.loops.Delete(c.UserContext(), id, currentUserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
