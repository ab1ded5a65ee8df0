package server

import (
	"context"
	"strings"

	"loop/internal/models"
	"loop/internal/service"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type updateProfileRequest struct {
	DisplayName *string `json:"display_name" validate:"omitempty,max=100"`
	AvatarURL   *string `json:"avatar_url" validate:"omitempty,max=500"`
	Bio         *string `json:"bio" validate:"omitempty,max=1000"`
}

// GetMyProfile handles GET /api/users/me
// @Summary Get the current user's profile
// @Tags users
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 401 {object} models.ErrorResponse
// @Router /users/me [get]
// @Security BearerAuth
func (s *Server) GetMyProfile(c *fiber.Ctx) error {
	userID := currentUserID(c)
	profile, err := s.users.GetProfile(c.UserContext(), userID, userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{
		"profile":  profile,
		"features": s.featureFlags.Snapshot(userID),
	})
}

// UpdateMyProfile handles PUT /api/users/me
func (s *Server) UpdateMyProfile(c *fiber.Ctx) error {
	var req updateProfileRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}

	profile, err := s.users.UpdateProfile(c.UserContext(), service.UpdateProfileInput{
		UserID:      currentUserID(c),
		DisplayName: req.DisplayName,
		AvatarURL:   req.AvatarURL,
		Bio:         req.Bio,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// SearchUsers handles GET /api/users/search?q=...
func (s *Server) SearchUsers(c *fiber.Ctx) error {
	q := strings.TrimSpace(c.Query("q"))
	if q == "" {
		return respondError(c, models.NewValidationError("Search query is required"))
	}
	page := parsePagination(c, 20)
	users, err := s.users.Search(c.UserContext(), q, page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(users)
}

// GetUserProfile handles GET /api/users/:id
func (s *Server) GetUserProfile(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	profile, err := s.users.GetProfile(c.UserContext(), id, currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// GetUserLoops handles GET /api/users/:id/loops
func (s *Server) GetUserLoops(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, service.DefaultFeedLimit)
	feed, err := s.feed.Assemble(c.UserContext(), service.FeedQuery{
		ViewerID: currentUserID(c),
		Mode:     service.FeedAuthor,
		AuthorID: id,
		Limit:    page.Limit,
		Offset:   page.Offset,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(feed)
}

// Follow handles POST /api/users/:id/follow
// @Summary Follow a user
// @Tags users
// @Produce json
// @Param id path string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} models.ErrorResponse
// @Failure 404 {object} models.ErrorResponse
// @Router /users/{id}/follow [post]
// @Security BearerAuth
func (s *Server) Follow(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	created, err := s.users.Follow(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"following": true, "created": created})
}

// Unfollow handles DELETE /api/users/:id/follow
func (s *Server) Unfollow(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	removed, err := s.users.Unfollow(c.UserContext(), currentUserID(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"following": false, "removed": removed})
}

// GetFollowers handles GET /api/users/:id/followers
func (s *Server) GetFollowers(c *fiber.Ctx) error {
	return s.listGraph(c, s.users.Followers)
}

// GetFollowing handles GET /api/users/:id/following
func (s *Server) GetFollowing(c *fiber.Ctx) error {
	return s.listGraph(c, s.users.Following)
}

func (s *Server) listGraph(c *fiber.Ctx, list func(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Profile, error)) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	page := parsePagination(c, 50)
	out, err := list(c.UserContext(), id, page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(out)
}
