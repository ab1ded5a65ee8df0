package models

import (
	"time"

	"github.com/google/uuid"
)

// InteractionType is the kind of user-to-loop interaction.
type InteractionType string

const (
	InteractionLike  InteractionType = "like"
	InteractionSave  InteractionType = "save"
	InteractionView  InteractionType = "view"
	InteractionShare InteractionType = "share"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionLike, InteractionSave, InteractionView, InteractionShare:
		return true
	}
	return false
}

// Toggleable types can be added and removed. View and share are recorded once.
func (t InteractionType) Toggleable() bool {
	return t == InteractionLike || t == InteractionSave
}

// Counter returns the LoopStats column driven by this interaction type.
func (t InteractionType) Counter() CounterKind {
	switch t {
	case InteractionLike:
		return CounterLikes
	case InteractionSave:
		return CounterSaves
	case InteractionView:
		return CounterViews
	case InteractionShare:
		return CounterShares
	}
	return ""
}

// InteractionAction is the requested or resulting change.
type InteractionAction string

const (
	ActionAdd       InteractionAction = "add"
	ActionRemove    InteractionAction = "remove"
	ActionToggle    InteractionAction = "toggle"
	ActionAdded     InteractionAction = "added"
	ActionRemoved   InteractionAction = "removed"
	ActionUnchanged InteractionAction = "unchanged"
)

// Interaction is unique per (user, loop, type).
type Interaction struct {
	UserID    uuid.UUID       `gorm:"type:uuid;primaryKey" json:"user_id"`
	LoopID    uuid.UUID       `gorm:"type:uuid;primaryKey;index" json:"loop_id"`
	Type      InteractionType `gorm:"size:10;primaryKey" json:"type"`
	CreatedAt time.Time       `json:"created_at"`
}

// InteractionResult is returned by counter-maintaining interaction calls.
type InteractionResult struct {
	Action InteractionAction `json:"action"`
	Type   InteractionType   `json:"type"`
	Count  int64             `json:"count"`
}
