package server

import (
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createCommentRequest struct {
	Body string `json:"body" validate:"required,max=2000"`
}

// GetComments handles GET /api/loops/:id/comments
func (s *Server) GetComments(c *fiber.Ctx) error {
	loopID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)
	comments, err := s.comments.ListComments(c.UserContext(), loopID, currentUserID(c), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(comments)
}

// CreateComment handles POST /api/loops/:id/comments
// @Summary Comment on a loop
// @Tags comments
// @Accept json
// @Produce json
// @Param id path string true "Loop ID"
// @Param request body createCommentRequest true "Comment"
// @Success 201 {object} models.Comment
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /loops/{id}/comments [post]
// @Security BearerAuth
func (s *Server) CreateComment(c *fiber.Ctx) error {
	loopID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req createCommentRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	comment, err := s.comments.CreateComment(c.UserContext(), service.CreateCommentInput{
		UserID: currentUserID(c),
		LoopID: loopID,
		Body:   req.Body,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(comment)
}

// DeleteComment handles DELETE /api/loops/:id/comments/:commentId
func (s *Server) DeleteComment(c *fiber.Ctx) error {
	loopID, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	commentID, err := parseUUID(c, "commentId")
	if err != nil {
		return nil
	}

	if err := s.comments.DeleteComment(c.UserContext(), service.DeleteCommentInput{
		UserID:    currentUserID(c),
		LoopID:    loopID,
		CommentID: commentID,
	}); err != nil {
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
