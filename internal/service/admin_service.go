package service

import (
	"context"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// OutboxReport is a page of outbox events with per-status totals.
type OutboxReport struct {
	Events []models.OutboxEvent `json:"events"`
	Counts map[string]int64     `json:"counts"`
}

type AdminService struct {
	profiles repository.ProfileRepository
	outbox   repository.OutboxRepository
	checker  authz.Checker
}

func NewAdminService(profiles repository.ProfileRepository, outbox repository.OutboxRepository, checker authz.Checker) *AdminService {
	return &AdminService{profiles: profiles, outbox: outbox, checker: checker}
}

func (s *AdminService) require(ctx context.Context, actor uuid.UUID, capability authz.Capability) error {
	ok, err := s.checker.HasCapability(ctx, actor, capability)
	if err != nil {
		return translateError(err, "User", actor)
	}
	if !ok {
		return models.NewForbiddenError("Missing capability " + string(capability))
	}
	return nil
}

func (s *AdminService) SetRole(ctx context.Context, actor, target uuid.UUID, role string) (*models.Profile, error) {
	if err := s.require(ctx, actor, authz.ManageUsers); err != nil {
		return nil, err
	}
	if !models.ValidRole(role) {
		return nil, models.NewValidationError("Invalid role")
	}
	if actor == target && role != models.RoleAdmin {
		return nil, models.NewValidationError("You cannot demote yourself")
	}
	if err := s.profiles.SetRole(ctx, target, role); err != nil {
		return nil, translateError(err, "User", target)
	}
	return s.reload(ctx, target)
}

func (s *AdminService) SetBanned(ctx context.Context, actor, target uuid.UUID, banned bool) (*models.Profile, error) {
	if err := s.require(ctx, actor, authz.BanUsers); err != nil {
		return nil, err
	}
	if actor == target {
		return nil, models.NewValidationError("You cannot ban yourself")
	}
	if err := s.profiles.SetBanned(ctx, target, banned); err != nil {
		return nil, translateError(err, "User", target)
	}
	return s.reload(ctx, target)
}

func (s *AdminService) reload(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	p, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "User", id)
	}
	return p, nil
}

// Outbox lists parked side effects for operators.
func (s *AdminService) Outbox(ctx context.Context, actor uuid.UUID, status string, limit, offset int) (*OutboxReport, error) {
	if err := s.require(ctx, actor, authz.ManageUsers); err != nil {
		return nil, err
	}
	switch status {
	case "", models.OutboxPending, models.OutboxDelivered, models.OutboxDead:
	default:
		return nil, models.NewValidationError("Invalid outbox status")
	}
	events, err := s.outbox.List(ctx, status, limit, offset)
	if err != nil {
		return nil, translateError(err, "Outbox event", nil)
	}
	counts, err := s.outbox.CountByStatus(ctx)
	if err != nil {
		return nil, translateError(err, "Outbox event", nil)
	}
	return &OutboxReport{Events: events, Counts: counts}, nil
}

// ReplayDead moves dead events back to pending.
func (s *AdminService) ReplayDead(ctx context.Context, actor uuid.UUID) (int64, error) {
	if err := s.require(ctx, actor, authz.ManageUsers); err != nil {
		return 0, err
	}
	n, err := s.outbox.ReplayDead(ctx)
	if err != nil {
		return 0, translateError(err, "Outbox event", nil)
	}
	return n, nil
}
