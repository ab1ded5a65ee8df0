package service

import (
	"context"

	"loop/internal/models"
	"loop/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// viewBuilder decorates loops with counters and viewer state using one
// batched query for each, run concurrently.
type viewBuilder struct {
	counters     repository.CounterRepository
	interactions repository.InteractionRepository
}

func (b viewBuilder) build(ctx context.Context, viewerID uuid.UUID, loops []*models.Loop) ([]models.LoopView, error) {
	views := make([]models.LoopView, 0, len(loops))
	if len(loops) == 0 {
		return views, nil
	}

	ids := make([]uuid.UUID, len(loops))
	for i, l := range loops {
		ids[i] = l.ID
	}

	var (
		stats  map[uuid.UUID]models.LoopStats
		states map[uuid.UUID]models.ViewerState
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = b.counters.GetMany(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		states, err = b.interactions.ViewerStates(gctx, viewerID, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, translateError(err, "Loop", nil)
	}

	for _, l := range loops {
		s := stats[l.ID]
		s.LoopID = l.ID
		views = append(views, models.LoopView{Loop: l, Stats: s, Viewer: states[l.ID]})
	}
	return views, nil
}

func (b viewBuilder) one(ctx context.Context, viewerID uuid.UUID, loop *models.Loop) (*models.LoopView, error) {
	views, err := b.build(ctx, viewerID, []*models.Loop{loop})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}
