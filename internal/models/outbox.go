package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Outbox event states.
const (
	OutboxPending   = "pending"
	OutboxDelivered = "delivered"
	OutboxDead      = "dead"
)

// OutboxEvent is a side effect that could not be delivered in-process and is
// waiting for the outbox processor.
type OutboxEvent struct {
	ID            uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Kind          string    `gorm:"size:50;not null" json:"kind"`
	Payload       string    `gorm:"type:text;not null" json:"payload"`
	Status        string    `gorm:"size:20;not null;default:pending;index:idx_outbox_status_next,priority:1" json:"status"`
	Attempts      int       `gorm:"not null;default:0" json:"attempts"`
	LastError     string    `gorm:"type:text" json:"last_error,omitempty"`
	NextAttemptAt time.Time `gorm:"index:idx_outbox_status_next,priority:2" json:"next_attempt_at"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName returns the database table name for OutboxEvent.
func (OutboxEvent) TableName() string {
	return "outbox_events"
}

func (e *OutboxEvent) BeforeCreate(_ *gorm.DB) error {
	ensureID(&e.ID)
	if e.Status == "" {
		e.Status = OutboxPending
	}
	if e.NextAttemptAt.IsZero() {
		e.NextAttemptAt = time.Now().UTC()
	}
	return nil
}
