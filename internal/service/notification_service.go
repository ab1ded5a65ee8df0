package service

import (
	"context"
	"strings"

	"loop/internal/models"
	"loop/internal/observability"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// NotificationInput is the content shared by every recipient of a fan-out.
type NotificationInput struct {
	ActorID *uuid.UUID
	Type    models.NotificationType
	Title   string
	Message string
	Data    models.JSONMap
}

func (in NotificationInput) validate() error {
	switch in.Type {
	case models.NotificationFollow, models.NotificationLike, models.NotificationBranch,
		models.NotificationComment, models.NotificationGift, models.NotificationStreamLive:
	default:
		return models.NewValidationError("Invalid notification type")
	}
	if strings.TrimSpace(in.Title) == "" {
		return models.NewValidationError("Notification title is required")
	}
	return nil
}

func (in NotificationInput) row(recipient uuid.UUID) *models.Notification {
	data := in.Data
	if data == nil {
		data = models.JSONMap{}
	}
	return &models.Notification{
		RecipientID: recipient,
		ActorID:     in.ActorID,
		Type:        in.Type,
		Title:       in.Title,
		Message:     in.Message,
		Data:        data,
	}
}

type NotificationService struct {
	repo repository.NotificationRepository
	fx   sideEffects
}

// NewNotificationService creates the notification store. pub carries the
// realtime copy of each inserted row and may be nil.
func NewNotificationService(repo repository.NotificationRepository, pub Publisher) *NotificationService {
	return &NotificationService{repo: repo, fx: sideEffects{pub: pub}}
}

// Notify inserts a single notification.
func (s *NotificationService) Notify(ctx context.Context, recipient uuid.UUID, in NotificationInput) (*models.Notification, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}
	n := in.row(recipient)
	if err := s.repo.Create(ctx, n); err != nil {
		return nil, translateError(err, "Recipient", recipient)
	}
	observability.NotificationsInserted.WithLabelValues(string(in.Type)).Inc()
	s.publish(ctx, n)
	return n, nil
}

// NotifyMany inserts one notification per distinct recipient with batched
// statements. The actor is never among the recipients.
func (s *NotificationService) NotifyMany(ctx context.Context, recipients []uuid.UUID, in NotificationInput) ([]*models.Notification, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]struct{}, len(recipients))
	rows := make([]*models.Notification, 0, len(recipients))
	for _, r := range recipients {
		if r == uuid.Nil {
			continue
		}
		if in.ActorID != nil && *in.ActorID == r {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		rows = append(rows, in.row(r))
	}
	if len(rows) == 0 {
		return rows, nil
	}

	if err := s.repo.CreateBatch(ctx, rows); err != nil {
		return nil, translateError(err, "Recipient", nil)
	}
	observability.NotificationsInserted.WithLabelValues(string(in.Type)).Add(float64(len(rows)))
	for _, n := range rows {
		s.publish(ctx, n)
	}
	return rows, nil
}

func (s *NotificationService) publish(ctx context.Context, n *models.Notification) {
	s.fx.broadcast(ctx, UserRoom(n.RecipientID), "notification.created", map[string]any{
		"id":       n.ID.String(),
		"type":     string(n.Type),
		"title":    n.Title,
		"message":  n.Message,
		"data":     map[string]any(n.Data),
		"actor_id": n.ActorID,
	})
}

func (s *NotificationService) List(ctx context.Context, recipient uuid.UUID, unreadOnly bool, limit, offset int) ([]models.Notification, error) {
	out, err := s.repo.List(ctx, recipient, unreadOnly, limit, offset)
	if err != nil {
		return nil, translateError(err, "Notification", nil)
	}
	return out, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, recipient uuid.UUID) (int64, error) {
	n, err := s.repo.UnreadCount(ctx, recipient)
	if err != nil {
		return 0, translateError(err, "Notification", nil)
	}
	return n, nil
}

// MarkRead flags one notification as read. Notifications owned by someone
// else are reported as not found.
func (s *NotificationService) MarkRead(ctx context.Context, id, requester uuid.UUID) error {
	ok, err := s.repo.MarkRead(ctx, id, requester)
	if err != nil {
		return translateError(err, "Notification", id)
	}
	if !ok {
		return models.NewNotFoundError("Notification", id)
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, recipient uuid.UUID) (int64, error) {
	n, err := s.repo.MarkAllRead(ctx, recipient)
	if err != nil {
		return 0, translateError(err, "Notification", nil)
	}
	return n, nil
}
