package service

import (
	"context"

	"loop/internal/models"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// loopAccess decides whether a viewer may see a loop. Invisible loops are
// reported as not found so their existence does not leak.
type loopAccess struct {
	loops   repository.LoopRepository
	circles repository.CircleRepository
	follows repository.FollowRepository
}

func (a loopAccess) canView(ctx context.Context, viewer uuid.UUID, loop *models.Loop) (bool, error) {
	if viewer != uuid.Nil && viewer == loop.AuthorID {
		return true, nil
	}

	if loop.CircleID != nil && a.circles != nil {
		circle, err := a.circles.GetByID(ctx, *loop.CircleID)
		if err != nil && !repository.IsNotFound(err) {
			return false, err
		}
		if circle != nil && circle.IsPrivate {
			if viewer == uuid.Nil {
				return false, nil
			}
			role, err := a.circles.MemberRole(ctx, circle.ID, viewer)
			if err != nil {
				return false, err
			}
			if role == "" {
				return false, nil
			}
		}
	}

	if loop.Visibility == models.VisibilityFollowers {
		if viewer == uuid.Nil || a.follows == nil {
			return false, nil
		}
		return a.follows.IsFollowing(ctx, viewer, loop.AuthorID)
	}
	return true, nil
}

// load fetches a loop the viewer is allowed to see.
func (a loopAccess) load(ctx context.Context, viewer, id uuid.UUID) (*models.Loop, error) {
	loop, err := a.loops.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "Loop", id)
	}
	ok, err := a.canView(ctx, viewer, loop)
	if err != nil {
		return nil, translateError(err, "Loop", id)
	}
	if !ok {
		return nil, models.NewNotFoundError("Loop", id)
	}
	return loop, nil
}

// filter drops loops the viewer may not see, keeping order.
func (a loopAccess) filter(ctx context.Context, viewer uuid.UUID, loops []*models.Loop) ([]*models.Loop, error) {
	out := loops[:0]
	for _, l := range loops {
		ok, err := a.canView(ctx, viewer, l)
		if err != nil {
			return nil, translateError(err, "Loop", l.ID)
		}
		if ok {
			out = append(out, l)
		}
	}
	return out, nil
}
