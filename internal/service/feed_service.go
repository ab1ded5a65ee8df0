package service

import (
	"context"
	"time"

	"loop/internal/cache"
	"loop/internal/models"
	"loop/internal/observability"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// FeedMode selects how a feed page is assembled.
type FeedMode string

const (
	FeedFollowing    FeedMode = "following"
	FeedPersonalized FeedMode = "personalized"
	FeedTrending     FeedMode = "trending"
	FeedRecent       FeedMode = "recent"
	FeedCircle       FeedMode = "circle"
	FeedAuthor       FeedMode = "author"
)

const (
	DefaultFeedLimit = 20
	MaxFeedLimit     = 100
)

// ClampLimit bounds a page size to [1, MaxFeedLimit], defaulting when unset.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultFeedLimit
	case limit > MaxFeedLimit:
		return MaxFeedLimit
	}
	return limit
}

type FeedQuery struct {
	ViewerID uuid.UUID
	Mode     FeedMode
	CircleID uuid.UUID
	AuthorID uuid.UUID
	Limit    int
	Offset   int
}

type FeedPage struct {
	Loops   []models.LoopView `json:"loops"`
	HasMore bool              `json:"hasMore"`
}

type FeedService struct {
	feed           repository.FeedRepository
	circles        repository.CircleRepository
	views          viewBuilder
	trendingWindow time.Duration
	trendingTTL    time.Duration
	now            func() time.Time
}

func NewFeedService(
	feed repository.FeedRepository,
	counters repository.CounterRepository,
	interactions repository.InteractionRepository,
	circles repository.CircleRepository,
	trendingWindow, trendingTTL time.Duration,
) *FeedService {
	if trendingWindow <= 0 {
		trendingWindow = 24 * time.Hour
	}
	if trendingTTL <= 0 {
		trendingTTL = 60 * time.Second
	}
	return &FeedService{
		feed:           feed,
		circles:        circles,
		views:          viewBuilder{counters: counters, interactions: interactions},
		trendingWindow: trendingWindow,
		trendingTTL:    trendingTTL,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Assemble builds one page of root loops for the requested mode, decorated
// with counters and the viewer's interaction state.
func (s *FeedService) Assemble(ctx context.Context, q FeedQuery) (*FeedPage, error) {
	if q.Mode == "" {
		q.Mode = FeedPersonalized
	}
	q.Limit = ClampLimit(q.Limit)
	if q.Offset < 0 {
		q.Offset = 0
	}
	defer observability.TrackFeed(string(q.Mode))()

	loops, err := s.list(ctx, q)
	if err != nil {
		return nil, err
	}

	views, err := s.views.build(ctx, q.ViewerID, loops)
	if err != nil {
		return nil, err
	}
	return &FeedPage{Loops: views, HasMore: len(loops) == q.Limit}, nil
}

func (s *FeedService) list(ctx context.Context, q FeedQuery) ([]*models.Loop, error) {
	var (
		loops []*models.Loop
		err   error
	)
	switch q.Mode {
	case FeedFollowing, FeedPersonalized:
		if q.ViewerID == uuid.Nil {
			return nil, models.NewUnauthorizedError("Sign in to see this feed")
		}
		loops, err = s.feed.Following(ctx, q.ViewerID, q.Mode == FeedPersonalized, q.Limit, q.Offset)
	case FeedTrending:
		loops, err = s.trending(ctx, q.Limit, q.Offset)
	case FeedRecent:
		loops, err = s.feed.Recent(ctx, q.Limit, q.Offset)
	case FeedCircle:
		if err := s.checkCircle(ctx, q.ViewerID, q.CircleID); err != nil {
			return nil, err
		}
		loops, err = s.feed.ByCircle(ctx, q.CircleID, q.Limit, q.Offset)
	case FeedAuthor:
		publicOnly := q.ViewerID == uuid.Nil || q.ViewerID != q.AuthorID
		loops, err = s.feed.ByAuthor(ctx, q.AuthorID, publicOnly, q.Limit, q.Offset)
	default:
		return nil, models.NewValidationError("Invalid feed type")
	}
	if err != nil {
		return nil, translateError(err, "Feed", q.Mode)
	}
	return loops, nil
}

// trending is viewer independent, so whole pages are cached.
func (s *FeedService) trending(ctx context.Context, limit, offset int) ([]*models.Loop, error) {
	hours := int(s.trendingWindow / time.Hour)
	var loops []*models.Loop
	err := cache.Aside(ctx, cache.TrendingKey(hours, limit, offset), &loops, s.trendingTTL, func() error {
		var err error
		loops, err = s.feed.Trending(ctx, s.now().Add(-s.trendingWindow), limit, offset)
		return err
	})
	return loops, err
}

func (s *FeedService) checkCircle(ctx context.Context, viewer, circleID uuid.UUID) error {
	circle, err := s.circles.GetByID(ctx, circleID)
	if err != nil {
		return translateError(err, "Circle", circleID)
	}
	if !circle.IsPrivate {
		return nil
	}
	if viewer == uuid.Nil {
		return models.NewForbiddenError("This circle is private")
	}
	role, err := s.circles.MemberRole(ctx, circleID, viewer)
	if err != nil {
		return translateError(err, "Circle", circleID)
	}
	if role == "" {
		return models.NewForbiddenError("This circle is private")
	}
	return nil
}
