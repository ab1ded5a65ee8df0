package models

import (
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GiftCatalog maps a gift type to its price in coins.
var GiftCatalog = map[string]int64{
	"rose":  10,
	"star":  50,
	"crown": 200,
}

// GiftOption is one catalog entry for responses.
type GiftOption struct {
	Type  string `json:"type"`
	Coins int64  `json:"coins"`
}

// GiftOptions returns the catalog ordered by price.
func GiftOptions() []GiftOption {
	out := make([]GiftOption, 0, len(GiftCatalog))
	for t, c := range GiftCatalog {
		out = append(out, GiftOption{Type: t, Coins: c})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Coins < out[j].Coins })
	return out
}

// Gift is a coin transfer from one profile to another, optionally tied to a loop.
type Gift struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	SenderID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"sender_id"`
	RecipientID uuid.UUID  `gorm:"type:uuid;not null;index" json:"recipient_id"`
	LoopID      *uuid.UUID `gorm:"type:uuid;index" json:"loop_id,omitempty"`
	GiftType    string     `gorm:"size:30;not null" json:"gift_type"`
	Coins       int64      `gorm:"not null" json:"coins"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (g *Gift) BeforeCreate(_ *gorm.DB) error {
	ensureID(&g.ID)
	return nil
}
