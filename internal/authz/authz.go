// Package authz decides what an authenticated profile may do.
package authz

import (
	"context"

	"loop/internal/models"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// Capability is a platform-wide permission derived from a profile's role.
type Capability string

const (
	ModerateContent Capability = "moderate_content"
	ManageUsers     Capability = "manage_users"
	BanUsers        Capability = "ban_users"
)

var roleCapabilities = map[string][]Capability{
	models.RoleModerator: {ModerateContent},
	models.RoleAdmin:     {ModerateContent, ManageUsers, BanUsers},
}

// Checker is the single permission interface used by every mutating service.
type Checker interface {
	HasCapability(ctx context.Context, userID uuid.UUID, capability Capability) (bool, error)
	// CircleRole returns the member's role in a circle, found is false for
	// non-members.
	CircleRole(ctx context.Context, userID, circleID uuid.UUID) (role string, found bool, err error)
	// EnsureActive fails with a Forbidden error for banned profiles.
	EnsureActive(ctx context.Context, userID uuid.UUID) error
}

type roleChecker struct {
	profiles repository.ProfileRepository
	circles  repository.CircleRepository
}

// NewChecker returns a Checker backed by profile roles and circle membership.
func NewChecker(profiles repository.ProfileRepository, circles repository.CircleRepository) Checker {
	return &roleChecker{profiles: profiles, circles: circles}
}

// RoleHas reports whether role grants capability.
func RoleHas(role string, capability Capability) bool {
	for _, c := range roleCapabilities[role] {
		if c == capability {
			return true
		}
	}
	return false
}

func (c *roleChecker) HasCapability(ctx context.Context, userID uuid.UUID, capability Capability) (bool, error) {
	profile, err := c.profiles.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}
	if profile.IsBanned {
		return false, nil
	}
	return RoleHas(profile.Role, capability), nil
}

func (c *roleChecker) CircleRole(ctx context.Context, userID, circleID uuid.UUID) (string, bool, error) {
	role, err := c.circles.MemberRole(ctx, circleID, userID)
	if err != nil {
		return "", false, err
	}
	return role, role != "", nil
}

func (c *roleChecker) EnsureActive(ctx context.Context, userID uuid.UUID) error {
	profile, err := c.profiles.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return models.NewUnauthorizedError("Profile not found")
		}
		return err
	}
	if profile.IsBanned {
		return models.NewForbiddenError("Account is suspended")
	}
	return nil
}
