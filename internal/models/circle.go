package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Circle membership roles.
const (
	CircleRoleOwner     = "owner"
	CircleRoleModerator = "moderator"
	CircleRoleMember    = "member"
)

// Circle is a community that loops can be posted into.
type Circle struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	Name        string    `gorm:"size:100;not null" json:"name"`
	Slug        string    `gorm:"size:120;uniqueIndex;not null" json:"slug"`
	Description string    `gorm:"type:text" json:"description"`
	OwnerID     uuid.UUID `gorm:"type:uuid;not null;index" json:"owner_id"`
	IsPrivate   bool      `gorm:"not null;default:false" json:"is_private"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func (c *Circle) BeforeCreate(_ *gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CircleMember links a profile to a circle with a role.
type CircleMember struct {
	CircleID  uuid.UUID `gorm:"type:uuid;primaryKey" json:"circle_id"`
	UserID    uuid.UUID `gorm:"type:uuid;primaryKey;index" json:"user_id"`
	User      *Profile  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Role      string    `gorm:"size:20;not null;default:member" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// CanModerate reports whether a circle role grants moderation inside the circle.
func CanModerate(role string) bool {
	return role == CircleRoleOwner || role == CircleRoleModerator
}
