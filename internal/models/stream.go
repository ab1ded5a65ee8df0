package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Stream is a live stream hosted by a profile. Playback is served by an
// external provider; only metadata lives here.
type Stream struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	HostID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"host_id"`
	Host        *Profile   `gorm:"foreignKey:HostID" json:"host,omitempty"`
	Title       string     `gorm:"size:255;not null" json:"title"`
	Category    string     `gorm:"size:100;index" json:"category"`
	PlaybackURL string     `gorm:"size:500" json:"playback_url"`
	IsLive      bool       `gorm:"not null;default:false;index" json:"is_live"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *Stream) BeforeCreate(_ *gorm.DB) error {
	ensureID(&s.ID)
	return nil
}

// StreamCategories represents predefined stream categories.
var StreamCategories = []string{
	"Music",
	"Just Chatting",
	"Creative",
	"IRL",
	"Gaming",
	"Education",
}

// ValidStreamCategory reports whether c is empty or a predefined category.
func ValidStreamCategory(c string) bool {
	if c == "" {
		return true
	}
	for _, known := range StreamCategories {
		if known == c {
			return true
		}
	}
	return false
}
