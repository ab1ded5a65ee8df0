package service

import (
	"context"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/observability"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// CounterService maintains interaction rows and the loop_stats counters they
// drive. Every counter change is a single atomic statement in the store.
type CounterService struct {
	counters     repository.CounterRepository
	interactions repository.InteractionRepository
	checker      authz.Checker
	access       loopAccess
	fx           sideEffects
}

type InteractInput struct {
	UserID uuid.UUID
	LoopID uuid.UUID
	Type   models.InteractionType
	Action models.InteractionAction
}

func NewCounterService(
	counters repository.CounterRepository,
	interactions repository.InteractionRepository,
	loops repository.LoopRepository,
	circles repository.CircleRepository,
	follows repository.FollowRepository,
	checker authz.Checker,
	pub Publisher,
) *CounterService {
	return &CounterService{
		counters:     counters,
		interactions: interactions,
		checker:      checker,
		access:       loopAccess{loops: loops, circles: circles, follows: follows},
		fx:           sideEffects{pub: pub},
	}
}

// Adjust moves one counter by ±1 and returns its new value. Counters never go
// below zero.
func (s *CounterService) Adjust(ctx context.Context, loopID uuid.UUID, counter models.CounterKind, delta int64) (int64, error) {
	if !counter.Valid() {
		return 0, models.NewValidationError("Unknown counter")
	}
	if delta != 1 && delta != -1 {
		return 0, models.NewValidationError("Counter delta must be +1 or -1")
	}
	count, err := s.counters.Adjust(ctx, loopID, counter, delta)
	if err != nil {
		observability.CounterAdjustments.WithLabelValues(string(counter), "error").Inc()
		return 0, translateError(err, "Loop", loopID)
	}
	observability.CounterAdjustments.WithLabelValues(string(counter), "ok").Inc()
	return count, nil
}

// Toggle flips a like or save. A concurrent duplicate by the same user is
// reported as added without a second row or a second increment.
func (s *CounterService) Toggle(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (*models.InteractionResult, error) {
	if !typ.Toggleable() {
		return nil, models.NewValidationError("Only like and save can be toggled")
	}
	res, err := s.interactions.Toggle(ctx, userID, loopID, typ)
	if err != nil {
		return nil, translateError(err, "Loop", loopID)
	}
	return res, nil
}

// Set makes a toggleable interaction present or absent idempotently.
func (s *CounterService) Set(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType, present bool) (*models.InteractionResult, error) {
	if !typ.Toggleable() {
		return nil, models.NewValidationError("Only like and save can be added or removed")
	}
	res, err := s.interactions.Set(ctx, userID, loopID, typ, present)
	if err != nil {
		return nil, translateError(err, "Loop", loopID)
	}
	return res, nil
}

// Record stores a view or share once per user. Repeats are unchanged.
func (s *CounterService) Record(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (*models.InteractionResult, error) {
	if typ != models.InteractionView && typ != models.InteractionShare {
		return nil, models.NewValidationError("Only view and share are recorded")
	}
	res, err := s.interactions.Set(ctx, userID, loopID, typ, true)
	if err != nil {
		return nil, translateError(err, "Loop", loopID)
	}
	return res, nil
}

// Interact applies an interaction request from a client.
func (s *CounterService) Interact(ctx context.Context, in InteractInput) (*models.InteractionResult, error) {
	if !in.Type.Valid() {
		return nil, models.NewValidationError("Invalid interaction type")
	}
	action := in.Action
	if action == "" {
		action = models.ActionToggle
	}
	switch action {
	case models.ActionAdd, models.ActionRemove, models.ActionToggle:
	default:
		return nil, models.NewValidationError("Invalid interaction action")
	}
	if !in.Type.Toggleable() && action == models.ActionRemove {
		return nil, models.NewValidationError("Views and shares cannot be removed")
	}

	if err := s.checker.EnsureActive(ctx, in.UserID); err != nil {
		return nil, err
	}
	loop, err := s.access.load(ctx, in.UserID, in.LoopID)
	if err != nil {
		return nil, err
	}

	var res *models.InteractionResult
	switch {
	case !in.Type.Toggleable():
		res, err = s.Record(ctx, in.UserID, loop.ID, in.Type)
	case action == models.ActionToggle:
		res, err = s.Toggle(ctx, in.UserID, loop.ID, in.Type)
	default:
		res, err = s.Set(ctx, in.UserID, loop.ID, in.Type, action == models.ActionAdd)
	}
	if err != nil {
		return nil, err
	}
	observability.InteractionToggles.WithLabelValues(string(in.Type), string(res.Action)).Inc()

	if res.Action == models.ActionAdded && in.Type == models.InteractionLike {
		actor := in.UserID
		s.fx.notify(ctx, loop.AuthorID, &actor, models.NotificationLike,
			"New like", "Someone liked your loop",
			models.JSONMap{"loop_id": loop.ID.String()})
	}
	return res, nil
}

// Stats returns the current counters of a loop.
func (s *CounterService) Stats(ctx context.Context, loopID uuid.UUID) (*models.LoopStats, error) {
	stats, err := s.counters.Get(ctx, loopID)
	if err != nil {
		return nil, translateError(err, "Loop", loopID)
	}
	return stats, nil
}
