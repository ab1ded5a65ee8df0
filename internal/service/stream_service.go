package service

import (
	"context"
	"strings"
	"time"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/validation"

	"github.com/google/uuid"
)

type CreateStreamInput struct {
	HostID      uuid.UUID
	Title       string
	Category    string
	PlaybackURL string
}

type LiveStreams struct {
	Streams []*models.Stream `json:"streams"`
	Total   int64            `json:"total"`
}

type StreamService struct {
	streams repository.StreamRepository
	follows repository.FollowRepository
	checker authz.Checker
	fx      sideEffects
	now     func() time.Time
}

func NewStreamService(streams repository.StreamRepository, follows repository.FollowRepository, checker authz.Checker, pub Publisher) *StreamService {
	return &StreamService{
		streams: streams,
		follows: follows,
		checker: checker,
		fx:      sideEffects{pub: pub},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *StreamService) Create(ctx context.Context, in CreateStreamInput) (*models.Stream, error) {
	if err := s.checker.EnsureActive(ctx, in.HostID); err != nil {
		return nil, err
	}
	title := validation.SanitizeText(in.Title)
	if title == "" {
		return nil, models.NewValidationError("Title is required")
	}
	if len(title) > 255 {
		return nil, models.NewValidationError("Title too long (max 255 characters)")
	}
	if !models.ValidStreamCategory(in.Category) {
		return nil, models.NewValidationError("Invalid stream category")
	}

	stream := &models.Stream{
		HostID:      in.HostID,
		Title:       title,
		Category:    in.Category,
		PlaybackURL: strings.TrimSpace(in.PlaybackURL),
	}
	if err := s.streams.Create(ctx, stream); err != nil {
		return nil, translateError(err, "Stream", nil)
	}
	return stream, nil
}

func (s *StreamService) hosted(ctx context.Context, id, host uuid.UUID) (*models.Stream, error) {
	stream, err := s.streams.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "Stream", id)
	}
	if stream.HostID != host {
		return nil, models.NewForbiddenError("Only the host can control this stream")
	}
	return stream, nil
}

// GoLive marks the stream live and notifies every follower of the host with
// one batched insert.
func (s *StreamService) GoLive(ctx context.Context, id, host uuid.UUID) (*models.Stream, error) {
	if err := s.checker.EnsureActive(ctx, host); err != nil {
		return nil, err
	}
	stream, err := s.hosted(ctx, id, host)
	if err != nil {
		return nil, err
	}
	if stream.IsLive {
		return stream, nil
	}

	at := s.now()
	if err := s.streams.SetLive(ctx, id, true, at); err != nil {
		return nil, translateError(err, "Stream", id)
	}
	stream.IsLive = true
	stream.StartedAt = &at
	stream.EndedAt = nil

	followers, err := s.follows.FollowerIDs(ctx, host)
	if err != nil {
		// The stream is live either way; followers just miss this alert.
		logSideEffectError(ctx, "load followers for stream alert", err)
	} else {
		actor := host
		s.fx.notifyMany(ctx, followers, &actor, models.NotificationStreamLive,
			"Live now", stream.Title,
			models.JSONMap{"stream_id": stream.ID.String()})
	}
	s.fx.broadcast(ctx, UserRoom(host), "stream.live", map[string]any{
		"stream_id": stream.ID.String(),
		"title":     stream.Title,
	})
	return stream, nil
}

func (s *StreamService) End(ctx context.Context, id, host uuid.UUID) (*models.Stream, error) {
	stream, err := s.hosted(ctx, id, host)
	if err != nil {
		return nil, err
	}
	if !stream.IsLive {
		return stream, nil
	}
	at := s.now()
	if err := s.streams.SetLive(ctx, id, false, at); err != nil {
		return nil, translateError(err, "Stream", id)
	}
	stream.IsLive = false
	stream.EndedAt = &at
	return stream, nil
}

func (s *StreamService) ListLive(ctx context.Context, category string, limit, offset int) (*LiveStreams, error) {
	if !models.ValidStreamCategory(category) {
		return nil, models.NewValidationError("Invalid stream category")
	}
	streams, total, err := s.streams.ListLive(ctx, category, limit, offset)
	if err != nil {
		return nil, translateError(err, "Stream", nil)
	}
	return &LiveStreams{Streams: streams, Total: total}, nil
}
