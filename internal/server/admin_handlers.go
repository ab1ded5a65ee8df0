package server

import (
	"github.com/gofiber/fiber/v2"
)

type setRoleRequest struct {
	Role string `json:"role" validate:"required,oneof=user moderator admin"`
}

// SetUserRole handles PUT /api/admin/users/:id/role
// @Summary Change a user's role
// @Tags admin
// @Accept json
// @Produce json
// @Param id path string true "User ID"
// @Param request body setRoleRequest true "Role"
// @Success 200 {object} models.Profile
// @Failure 403 {object} models.ErrorResponse
// @Router /admin/users/{id}/role [put]
// @Security BearerAuth
func (s *Server) SetUserRole(c *fiber.Ctx) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	var req setRoleRequest
	if err := bind(c, &req); err != nil {
		return respondError(c, err)
	}
	profile, err := s.admin.SetRole(c.UserContext(), currentUserID(c), id, req.Role)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// BanUser handles POST /api/admin/users/:id/ban
func (s *Server) BanUser(c *fiber.Ctx) error {
	return s.setBanned(c, true)
}

// UnbanUser handles DELETE /api/admin/users/:id/ban
func (s *Server) UnbanUser(c *fiber.Ctx) error {
	return s.setBanned(c, false)
}

func (s *Server) setBanned(c *fiber.Ctx, banned bool) error {
	id, err := parseUUID(c, "id")
	if err != nil {
		return nil
	}
	profile, err := s.admin.SetBanned(c.UserContext(), currentUserID(c), id, banned)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(profile)
}

// GetOutbox handles GET /api/admin/outbox?status=pending|delivered|dead
func (s *Server) GetOutbox(c *fiber.Ctx) error {
	page := parsePagination(c, 50)
	report, err := s.admin.Outbox(c.UserContext(), currentUserID(c), c.Query("status"), page.Limit, page.Offset)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(report)
}

// ReplayOutbox handles POST /api/admin/outbox/replay
func (s *Server) ReplayOutbox(c *fiber.Ctx) error {
	n, err := s.admin.ReplayDead(c.UserContext(), currentUserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"replayed": n})
}

// GetFeatureFlags handles GET /api/admin/feature-flags
func (s *Server) GetFeatureFlags(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"flags": s.featureFlags.Raw(),
	})
}
