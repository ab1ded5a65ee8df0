// Package events runs side effects of committed writes off the request path.
// Events are handled by in-process workers with retry; anything that still
// fails is parked in the outbox table for the OutboxProcessor.
package events

import (
	"encoding/json"

	"loop/internal/models"

	"github.com/google/uuid"
)

// Kind selects the handler for an event.
type Kind string

const (
	KindNotifyOne     Kind = "notification.one"
	KindNotifyMany    Kind = "notification.many"
	KindBroadcast     Kind = "realtime.broadcast"
	KindCounterAdjust Kind = "counter.adjust"
)

// Event is one unit of side-effect work.
type Event struct {
	Kind    Kind
	Payload json.RawMessage
}

// NotificationPayload describes notification rows to insert, one per recipient.
type NotificationPayload struct {
	RecipientIDs []uuid.UUID             `json:"recipient_ids"`
	ActorID      *uuid.UUID              `json:"actor_id,omitempty"`
	Type         models.NotificationType `json:"type"`
	Title        string                  `json:"title"`
	Message      string                  `json:"message"`
	Data         models.JSONMap          `json:"data,omitempty"`
}

// BroadcastPayload is a best-effort realtime message for one room.
type BroadcastPayload struct {
	Room  string         `json:"room"`
	Event string         `json:"event"`
	Data  map[string]any `json:"data"`
}

// CounterPayload is a deferred counter adjustment.
type CounterPayload struct {
	LoopID  uuid.UUID          `json:"loop_id"`
	Counter models.CounterKind `json:"counter"`
	Delta   int64              `json:"delta"`
}
