package server

import (
	"errors"
	"log/slog"

	"loop/internal/auth"
	"loop/internal/authz"
	"loop/internal/middleware"
	"loop/internal/models"

	"github.com/gofiber/fiber/v2"
)

// AuthRequired returns the authentication middleware. The verified user is
// stored in locals and the request context, and a profile row is created on
// first sight.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Authorization required"))
		}

		identity, err := s.verifier.Verify(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, auth.ErrProviderUnavailable) {
				return respondError(c, models.NewUnavailableError(err))
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		if err := s.authenticate(c, identity); err != nil {
			return respondError(c, err)
		}
		return c.Next()
	}
}

// OptionalAuth resolves the caller when a token is present. Missing or invalid
// tokens leave the request anonymous.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		token, err := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
		if err != nil {
			return c.Next()
		}
		identity, err := s.verifier.Verify(c.UserContext(), token)
		if err != nil {
			if errors.Is(err, auth.ErrProviderUnavailable) {
				middleware.Logger.WarnContext(c.UserContext(), "optional auth skipped",
					slog.String("error", err.Error()))
			}
			return c.Next()
		}
		if err := s.authenticate(c, identity); err != nil {
			return respondError(c, err)
		}
		return c.Next()
	}
}

func (s *Server) authenticate(c *fiber.Ctx, identity *auth.Identity) error {
	if _, err := s.users.EnsureProfile(c.UserContext(), identity.UserID, identity.Email); err != nil {
		return err
	}
	c.Locals(middleware.LocalUserID, identity.UserID)
	// Sync to UserContext for logging and downstream services
	c.SetUserContext(middleware.WithUserID(c.UserContext(), identity.UserID))
	return nil
}

// CapabilityRequired rejects callers lacking capability with 403.
// Must be placed after AuthRequired so that userID is available in locals.
func (s *Server) CapabilityRequired(capability authz.Capability) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ok, err := s.checker.HasCapability(c.UserContext(), currentUserID(c), capability)
		if err != nil {
			return respondError(c, err)
		}
		if !ok {
			return models.RespondWithError(c, fiber.StatusForbidden,
				models.NewForbiddenError("Insufficient permissions"))
		}
		return c.Next()
	}
}
