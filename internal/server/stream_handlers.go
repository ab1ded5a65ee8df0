package server

import (
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
)

type createStreamRequest struct {
	Title       string `json:"title" validate:"required,max=255"`
	Category    string `json:"category" validate:"max=100"`
	PlaybackURL string `json:"playback_url" validate:"omitempty,url,max=500"`
}

// GetLiveStreams handles GET /api/streams/live?category=...
func (s *Server) GetLiveStreams(c *fiber.Ctx) error {
	page := parsePagination(c, 20)
	live, err := s.streams.ListLive(c.UserContext(), c.Query("category"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(live)
}

// CreateStream handles POST /api/streams
// @Summary Create a stream
// @Tags streams
// @Accept json
// @Produce json
// @Param request body createStreamRequest true "Stream"
// @Success 201 {object} models.Stream
// @Failure 400 {object} models.ErrorResponse
// @Router /streams [post]
// @Security BearerAuth
func (s *Server) CreateStream(c *fiber.Ctx) error {
	var req createStreamRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	stream, err := s.streams.Create(c.UserContext(), service.CreateStreamInput{
		HostID:      currentUserID(c),
		Title:       req.Title,
		Category:    req.Category,
		PlaybackURL: req.PlaybackURL,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(stream)
}

// GoLive handles POST /api/streams/:id/go-live. Followers of the host are
// notified.
func (s *Server) GoLive(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	stream, err := s.streams.GoLive(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stream)
}

// EndStream handles POST /api/streams/:id/end
func (s *Server) EndStream(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	stream, err := s.streams.End(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(stream)
}
