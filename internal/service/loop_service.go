package service

import (
	"context"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/observability"
	"loop/internal/repository"
	"loop/internal/validation"

	"github.com/google/uuid"
)

// DefaultMaxBranchDepth is the depth ceiling used when none is configured.
const DefaultMaxBranchDepth = 10

type LoopService struct {
	loops    repository.LoopRepository
	counters repository.CounterRepository
	circles  repository.CircleRepository
	checker  authz.Checker
	access   loopAccess
	views    viewBuilder
	fx       sideEffects
	maxDepth int
}

type CreateLoopInput struct {
	AuthorID   uuid.UUID
	Content    models.Content
	CircleID   *uuid.UUID
	Visibility string
}

type CreateBranchInput struct {
	AuthorID   uuid.UUID
	ParentID   uuid.UUID
	Content    models.Content
	Visibility string
}

func NewLoopService(
	loops repository.LoopRepository,
	counters repository.CounterRepository,
	interactions repository.InteractionRepository,
	circles repository.CircleRepository,
	follows repository.FollowRepository,
	checker authz.Checker,
	pub Publisher,
	maxDepth int,
) *LoopService {
	if maxDepth <= 0 {
		maxDepth = DefaultMaxBranchDepth
	}
	return &LoopService{
		loops:    loops,
		counters: counters,
		circles:  circles,
		checker:  checker,
		access:   loopAccess{loops: loops, circles: circles, follows: follows},
		views:    viewBuilder{counters: counters, interactions: interactions},
		fx:       sideEffects{pub: pub},
		maxDepth: maxDepth,
	}
}

// MaxDepth returns the configured branch depth ceiling.
func (s *LoopService) MaxDepth() int {
	return s.maxDepth
}

func prepareContent(c models.Content) (models.Content, error) {
	c.Text = validation.SanitizeText(c.Text)
	c.FileName = validation.SanitizeText(c.FileName)
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func checkVisibility(v string) (string, error) {
	switch v {
	case "":
		return models.VisibilityPublic, nil
	case models.VisibilityPublic, models.VisibilityFollowers:
		return v, nil
	}
	return "", models.NewValidationError("Invalid visibility")
}

// CreateRoot stores a new tree root. Posting into a circle requires
// membership.
func (s *LoopService) CreateRoot(ctx context.Context, in CreateLoopInput) (*models.Loop, error) {
	if err := s.checker.EnsureActive(ctx, in.AuthorID); err != nil {
		return nil, err
	}
	content, err := prepareContent(in.Content)
	if err != nil {
		return nil, err
	}
	visibility, err := checkVisibility(in.Visibility)
	if err != nil {
		return nil, err
	}

	if in.CircleID != nil {
		if _, err := s.circles.GetByID(ctx, *in.CircleID); err != nil {
			return nil, translateError(err, "Circle", *in.CircleID)
		}
		_, member, err := s.checker.CircleRole(ctx, in.AuthorID, *in.CircleID)
		if err != nil {
			return nil, translateError(err, "Circle", *in.CircleID)
		}
		if !member {
			return nil, models.NewForbiddenError("Join the circle to post in it")
		}
	}

	loop := &models.Loop{
		AuthorID:   in.AuthorID,
		Depth:      0,
		CircleID:   in.CircleID,
		Visibility: visibility,
		Content:    content,
	}
	if err := s.loops.Create(ctx, loop); err != nil {
		return nil, translateError(err, "Loop", nil)
	}
	observability.LoopsCreated.WithLabelValues("root").Inc()
	return loop, nil
}

// CreateBranch stores a child of ParentID one level deeper. Branching beneath
// a loop already at the ceiling fails without writing anything.
func (s *LoopService) CreateBranch(ctx context.Context, in CreateBranchInput) (*models.Loop, error) {
	if err := s.checker.EnsureActive(ctx, in.AuthorID); err != nil {
		return nil, err
	}
	content, err := prepareContent(in.Content)
	if err != nil {
		return nil, err
	}

	parent, err := s.access.load(ctx, in.AuthorID, in.ParentID)
	if err != nil {
		return nil, err
	}
	if parent.Depth >= s.maxDepth {
		return nil, models.NewDepthLimitError(s.maxDepth)
	}

	visibility := parent.Visibility
	if in.Visibility != "" {
		if visibility, err = checkVisibility(in.Visibility); err != nil {
			return nil, err
		}
	}

	parentID := parent.ID
	loop := &models.Loop{
		AuthorID:   in.AuthorID,
		ParentID:   &parentID,
		Depth:      parent.Depth + 1,
		CircleID:   parent.CircleID,
		Visibility: visibility,
		Content:    content,
	}
	if err := s.loops.Create(ctx, loop); err != nil {
		return nil, translateError(err, "Loop", nil)
	}
	observability.LoopsCreated.WithLabelValues("branch").Inc()

	adjustAfterCommit(ctx, s.counters, s.fx, parent.ID, models.CounterBranches, 1)

	actor := in.AuthorID
	s.fx.notify(ctx, parent.AuthorID, &actor, models.NotificationBranch,
		"New branch", "Someone branched your loop",
		models.JSONMap{"loop_id": loop.ID.String(), "parent_id": parent.ID.String()})
	s.fx.broadcast(ctx, LoopRoom(parent.ID), "loop.branched", map[string]any{
		"loop_id":   loop.ID.String(),
		"parent_id": parent.ID.String(),
		"depth":     loop.Depth,
	})
	return loop, nil
}

// Get returns one loop with its counters and the viewer's state.
func (s *LoopService) Get(ctx context.Context, id, viewer uuid.UUID) (*models.LoopView, error) {
	loop, err := s.access.load(ctx, viewer, id)
	if err != nil {
		return nil, err
	}
	return s.views.one(ctx, viewer, loop)
}

// Children lists direct branches, oldest first.
func (s *LoopService) Children(ctx context.Context, id, viewer uuid.UUID, limit, offset int) ([]models.LoopView, error) {
	if _, err := s.access.load(ctx, viewer, id); err != nil {
		return nil, err
	}
	children, err := s.loops.ListChildren(ctx, id, limit, offset)
	if err != nil {
		return nil, translateError(err, "Loop", id)
	}
	children, err = s.access.filter(ctx, viewer, children)
	if err != nil {
		return nil, err
	}
	return s.views.build(ctx, viewer, children)
}

// Ancestors returns the path from the root down to id.
func (s *LoopService) Ancestors(ctx context.Context, id, viewer uuid.UUID) ([]models.LoopView, error) {
	if _, err := s.access.load(ctx, viewer, id); err != nil {
		return nil, err
	}
	chain, err := s.loops.Ancestors(ctx, id)
	if err != nil {
		return nil, translateError(err, "Loop", id)
	}
	return s.views.build(ctx, viewer, chain)
}

// Delete removes the loop and its whole subtree. Authors, content moderators
// and moderators of the loop's circle may delete. Anyone else who cannot see
// the loop gets NotFound.
func (s *LoopService) Delete(ctx context.Context, id, requester uuid.UUID) error {
	if err := s.checker.EnsureActive(ctx, requester); err != nil {
		return err
	}
	loop, err := s.loops.GetByID(ctx, id)
	if err != nil {
		return translateError(err, "Loop", id)
	}

	allowed, err := s.canDelete(ctx, requester, loop)
	if err != nil {
		return translateError(err, "Loop", id)
	}
	if !allowed {
		visible, err := s.access.canView(ctx, requester, loop)
		if err != nil {
			return translateError(err, "Loop", id)
		}
		if !visible {
			return models.NewNotFoundError("Loop", id)
		}
		return models.NewForbiddenError("Not allowed to delete this loop")
	}

	if _, err := s.loops.DeleteSubtree(ctx, id); err != nil {
		return translateError(err, "Loop", id)
	}

	if loop.ParentID != nil {
		adjustAfterCommit(ctx, s.counters, s.fx, *loop.ParentID, models.CounterBranches, -1)
	}
	s.fx.broadcast(ctx, LoopRoom(id), "loop.deleted", map[string]any{"loop_id": id.String()})
	return nil
}

func (s *LoopService) canDelete(ctx context.Context, requester uuid.UUID, loop *models.Loop) (bool, error) {
	if loop.AuthorID == requester {
		return true, nil
	}
	ok, err := s.checker.HasCapability(ctx, requester, authz.ModerateContent)
	if err != nil || ok {
		return ok, err
	}
	if loop.CircleID == nil {
		return false, nil
	}
	role, _, err := s.checker.CircleRole(ctx, requester, *loop.CircleID)
	if err != nil {
		return false, err
	}
	return models.CanModerate(role), nil
}
