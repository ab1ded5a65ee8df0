package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/validation"

	"github.com/google/uuid"
)

type CreateCircleInput struct {
	OwnerID     uuid.UUID
	Name        string
	Description string
	IsPrivate   bool
}

type CircleService struct {
	circles repository.CircleRepository
	checker authz.Checker
}

func NewCircleService(circles repository.CircleRepository, checker authz.Checker) *CircleService {
	return &CircleService{circles: circles, checker: checker}
}

// Create stores a circle with its creator as owner. The slug is derived from
// the name.
func (s *CircleService) Create(ctx context.Context, in CreateCircleInput) (*models.Circle, error) {
	if err := s.checker.EnsureActive(ctx, in.OwnerID); err != nil {
		return nil, err
	}

	name := validation.SanitizeText(in.Name)
	if name == "" {
		return nil, models.NewValidationError("Name is required")
	}
	if utf8.RuneCountInString(name) > 100 {
		return nil, models.NewValidationError("Name too long (max 100 characters)")
	}
	slug, err := validation.CircleSlug(name)
	if err != nil {
		return nil, models.NewValidationError(err.Error())
	}
	exists, err := s.circles.SlugExists(ctx, slug)
	if err != nil {
		return nil, translateError(err, "Circle", slug)
	}
	if exists {
		return nil, models.NewConflictError("A circle with this name already exists")
	}

	circle := &models.Circle{
		Name:        name,
		Slug:        slug,
		Description: validation.SanitizeText(in.Description),
		OwnerID:     in.OwnerID,
		IsPrivate:   in.IsPrivate,
	}
	if err := s.circles.Create(ctx, circle); err != nil {
		return nil, translateError(err, "Circle", slug)
	}
	return circle, nil
}

func (s *CircleService) GetBySlug(ctx context.Context, slug string) (*models.Circle, error) {
	circle, err := s.circles.GetBySlug(ctx, strings.ToLower(strings.TrimSpace(slug)))
	if err != nil {
		return nil, translateError(err, "Circle", slug)
	}
	return circle, nil
}

func (s *CircleService) List(ctx context.Context, limit, offset int) ([]models.Circle, error) {
	out, err := s.circles.List(ctx, limit, offset)
	if err != nil {
		return nil, translateError(err, "Circle", nil)
	}
	return out, nil
}

// Join adds the user as a member of a public circle. Joining twice is a no-op.
func (s *CircleService) Join(ctx context.Context, circleID, userID uuid.UUID) error {
	if err := s.checker.EnsureActive(ctx, userID); err != nil {
		return err
	}
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return translateError(err, "Circle", circleID)
	}
	if circle.IsPrivate {
		return models.NewForbiddenError("This circle is private")
	}
	if _, err := s.circles.AddMember(ctx, circleID, userID, models.CircleRoleMember); err != nil {
		return translateError(err, "Circle", circleID)
	}
	return nil
}

// Leave removes the membership. Owners cannot leave their own circle.
func (s *CircleService) Leave(ctx context.Context, circleID, userID uuid.UUID) error {
	role, member, err := s.checker.CircleRole(ctx, userID, circleID)
	if err != nil {
		return translateError(err, "Circle", circleID)
	}
	if !member {
		return models.NewNotFoundError("Membership", circleID)
	}
	if role == models.CircleRoleOwner {
		return models.NewValidationError("Owners cannot leave their circle")
	}
	if _, err := s.circles.RemoveMember(ctx, circleID, userID); err != nil {
		return translateError(err, "Circle", circleID)
	}
	return nil
}

// Members lists memberships. Private circles only show them to members.
func (s *CircleService) Members(ctx context.Context, circleID, viewer uuid.UUID, limit, offset int) ([]models.CircleMember, error) {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return nil, translateError(err, "Circle", circleID)
	}
	if circle.IsPrivate {
		_, member, err := s.checker.CircleRole(ctx, viewer, circleID)
		if err != nil {
			return nil, translateError(err, "Circle", circleID)
		}
		if !member {
			return nil, models.NewForbiddenError("This circle is private")
		}
	}
	out, err := s.circles.ListMembers(ctx, circleID, limit, offset)
	if err != nil {
		return nil, translateError(err, "Circle", circleID)
	}
	return out, nil
}
