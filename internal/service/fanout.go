package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"loop/internal/events"
	"loop/internal/middleware"
	"loop/internal/models"
	"loop/internal/repository"

	"github.com/google/uuid"
)

// Publisher queues side effects. *events.Dispatcher satisfies it.
type Publisher interface {
	Publish(ctx context.Context, kind events.Kind, payload any)
}

// Broadcaster delivers best-effort realtime messages to a room.
type Broadcaster interface {
	Broadcast(ctx context.Context, room, event string, data map[string]any) error
}

// Room names used for realtime broadcasts.
func UserRoom(id uuid.UUID) string { return "user:" + id.String() }
func LoopRoom(id uuid.UUID) string { return "loop:" + id.String() }

// sideEffects wraps a Publisher with the notification and broadcast shapes
// services emit. A nil publisher turns every call into a no-op.
type sideEffects struct {
	pub Publisher
}

// notify queues one notification. Actors never notify themselves.
func (s sideEffects) notify(ctx context.Context, recipient uuid.UUID, actor *uuid.UUID, typ models.NotificationType, title, message string, data models.JSONMap) {
	if s.pub == nil {
		return
	}
	if actor != nil && *actor == recipient {
		return
	}
	s.pub.Publish(ctx, events.KindNotifyOne, events.NotificationPayload{
		RecipientIDs: []uuid.UUID{recipient},
		ActorID:      actor,
		Type:         typ,
		Title:        title,
		Message:      message,
		Data:         data,
	})
}

// notifyMany queues one batched notification insert for every recipient.
func (s sideEffects) notifyMany(ctx context.Context, recipients []uuid.UUID, actor *uuid.UUID, typ models.NotificationType, title, message string, data models.JSONMap) {
	if s.pub == nil || len(recipients) == 0 {
		return
	}
	s.pub.Publish(ctx, events.KindNotifyMany, events.NotificationPayload{
		RecipientIDs: recipients,
		ActorID:      actor,
		Type:         typ,
		Title:        title,
		Message:      message,
		Data:         data,
	})
}

func (s sideEffects) broadcast(ctx context.Context, room, event string, data map[string]any) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ctx, events.KindBroadcast, events.BroadcastPayload{Room: room, Event: event, Data: data})
}

// adjustLater queues a counter adjustment that failed inline.
func (s sideEffects) adjustLater(ctx context.Context, loopID uuid.UUID, counter models.CounterKind, delta int64) {
	if s.pub == nil {
		return
	}
	s.pub.Publish(ctx, events.KindCounterAdjust, events.CounterPayload{LoopID: loopID, Counter: counter, Delta: delta})
}

// adjustAfterCommit applies a counter change that follows a committed write.
// Failures are logged and handed to the dispatcher for retry; they never fail
// the caller.
func adjustAfterCommit(ctx context.Context, counters repository.CounterRepository, fx sideEffects, loopID uuid.UUID, counter models.CounterKind, delta int64) {
	if _, err := counters.Adjust(ctx, loopID, counter, delta); err != nil {
		if repository.IsNotFound(err) {
			return
		}
		middleware.Logger.WarnContext(ctx, "counter adjustment failed, queueing retry",
			slog.String("loop_id", loopID.String()),
			slog.String("counter", string(counter)),
			slog.Int64("delta", delta),
			slog.String("error", err.Error()),
		)
		fx.adjustLater(context.WithoutCancel(ctx), loopID, counter, delta)
	}
}

// RegisterHandlers installs the side-effect handlers on d. broadcaster may be
// nil when no realtime transport is configured.
func RegisterHandlers(d *events.Dispatcher, notifications *NotificationService, counters repository.CounterRepository, broadcaster Broadcaster) {
	notifyHandler := func(ctx context.Context, raw json.RawMessage) error {
		var p events.NotificationPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return events.Permanent(fmt.Errorf("decode notification payload: %w", err))
		}
		_, err := notifications.NotifyMany(ctx, p.RecipientIDs, NotificationInput{
			ActorID: p.ActorID,
			Type:    p.Type,
			Title:   p.Title,
			Message: p.Message,
			Data:    p.Data,
		})
		if errors.Is(err, models.ErrValidation) {
			return events.Permanent(err)
		}
		return err
	}
	d.Register(events.KindNotifyOne, notifyHandler)
	d.Register(events.KindNotifyMany, notifyHandler)

	d.Register(events.KindCounterAdjust, func(ctx context.Context, raw json.RawMessage) error {
		var p events.CounterPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return events.Permanent(fmt.Errorf("decode counter payload: %w", err))
		}
		if !p.Counter.Valid() {
			return events.Permanent(fmt.Errorf("unknown counter %q", p.Counter))
		}
		_, err := counters.Adjust(ctx, p.LoopID, p.Counter, p.Delta)
		if repository.IsNotFound(err) {
			// The loop was deleted before the retry ran.
			return nil
		}
		return err
	})

	d.Register(events.KindBroadcast, func(ctx context.Context, raw json.RawMessage) error {
		if broadcaster == nil {
			return nil
		}
		var p events.BroadcastPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			return events.Permanent(fmt.Errorf("decode broadcast payload: %w", err))
		}
		return broadcaster.Broadcast(ctx, p.Room, p.Event, p.Data)
	})
}

// logSideEffectError records a failure that only affects a side effect.
func logSideEffectError(ctx context.Context, what string, err error) {
	middleware.Logger.WarnContext(ctx, "side effect skipped",
		slog.String("step", what),
		slog.String("error", err.Error()),
	)
}
