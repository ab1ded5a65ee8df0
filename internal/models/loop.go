package models

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContentType tags the variant held by Content.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
	ContentVideo ContentType = "video"
	ContentAudio ContentType = "audio"
	ContentFile  ContentType = "file"
)

// Visibility values for a loop.
const (
	VisibilityPublic    = "public"
	VisibilityFollowers = "followers"
)

// MaxTextLength bounds text bodies and captions, in runes.
const MaxTextLength = 5000

// Content is the tagged union carried by a loop. Only the fields relevant to
// Type are meaningful.
type Content struct {
	Type            ContentType `gorm:"size:10;not null" json:"type"`
	Text            string      `gorm:"type:text" json:"text,omitempty"`
	MediaURL        string      `gorm:"size:1000" json:"media_url,omitempty"`
	ThumbnailURL    string      `gorm:"size:1000" json:"thumbnail_url,omitempty"`
	Width           int         `json:"width,omitempty"`
	Height          int         `json:"height,omitempty"`
	DurationSeconds float64     `json:"duration_seconds,omitempty"`
	FileName        string      `gorm:"size:255" json:"file_name,omitempty"`
	MimeType        string      `gorm:"size:100" json:"mime_type,omitempty"`
	SizeBytes       int64       `json:"size_bytes,omitempty"`
}

// Validate checks that the variant's required fields are present.
func (c Content) Validate() error {
	if utf8.RuneCountInString(c.Text) > MaxTextLength {
		return NewValidationError("Text too long (max 5000 characters)")
	}

	switch c.Type {
	case ContentText:
		if strings.TrimSpace(c.Text) == "" {
			return NewValidationError("Content is required")
		}
	case ContentImage, ContentVideo, ContentAudio:
		if strings.TrimSpace(c.MediaURL) == "" {
			return NewValidationError("media_url is required for " + string(c.Type) + " content")
		}
		if c.Width < 0 || c.Height < 0 || c.DurationSeconds < 0 {
			return NewValidationError("Media dimensions must not be negative")
		}
	case ContentFile:
		if strings.TrimSpace(c.MediaURL) == "" || strings.TrimSpace(c.FileName) == "" {
			return NewValidationError("media_url and file_name are required for file content")
		}
		if c.SizeBytes < 0 {
			return NewValidationError("size_bytes must not be negative")
		}
	case "":
		return NewValidationError("Content is required")
	default:
		return NewValidationError("Invalid content type")
	}
	return nil
}

// Loop is a node in the branching content tree.
type Loop struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	AuthorID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"author_id"`
	Author     *Profile   `gorm:"foreignKey:AuthorID" json:"author,omitempty"`
	ParentID   *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"`
	Depth      int        `gorm:"not null;default:0" json:"depth"`
	CircleID   *uuid.UUID `gorm:"type:uuid;index" json:"circle_id,omitempty"`
	Visibility string     `gorm:"size:20;not null;default:public" json:"visibility"`
	Content    Content    `gorm:"embedded;embeddedPrefix:content_" json:"content"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}

// IsRoot reports whether the loop has no parent.
func (l *Loop) IsRoot() bool {
	return l.ParentID == nil
}

func (l *Loop) BeforeCreate(_ *gorm.DB) error {
	ensureID(&l.ID)
	if l.Visibility == "" {
		l.Visibility = VisibilityPublic
	}
	return nil
}

// CounterKind names one column of LoopStats.
type CounterKind string

const (
	CounterLikes    CounterKind = "likes"
	CounterBranches CounterKind = "branches"
	CounterComments CounterKind = "comments"
	CounterSaves    CounterKind = "saves"
	CounterViews    CounterKind = "views"
	CounterShares   CounterKind = "shares"
)

// Valid reports whether k names a real counter column.
func (k CounterKind) Valid() bool {
	switch k {
	case CounterLikes, CounterBranches, CounterComments, CounterSaves, CounterViews, CounterShares:
		return true
	}
	return false
}

// LoopStats holds the denormalized interaction counters of one loop.
type LoopStats struct {
	LoopID    uuid.UUID `gorm:"type:uuid;primaryKey" json:"-"`
	Likes     int64     `gorm:"not null;default:0" json:"likes"`
	Branches  int64     `gorm:"not null;default:0" json:"branches"`
	Comments  int64     `gorm:"not null;default:0" json:"comments"`
	Saves     int64     `gorm:"not null;default:0" json:"saves"`
	Views     int64     `gorm:"not null;default:0" json:"views"`
	Shares    int64     `gorm:"not null;default:0" json:"shares"`
	UpdatedAt time.Time `json:"-"`
}

// TableName returns the database table name for LoopStats.
func (LoopStats) TableName() string {
	return "loop_stats"
}

// Get returns the value of one counter.
func (s LoopStats) Get(k CounterKind) int64 {
	switch k {
	case CounterLikes:
		return s.Likes
	case CounterBranches:
		return s.Branches
	case CounterComments:
		return s.Comments
	case CounterSaves:
		return s.Saves
	case CounterViews:
		return s.Views
	case CounterShares:
		return s.Shares
	}
	return 0
}

// ViewerState is the requesting user's relationship to a loop.
type ViewerState struct {
	IsLiked   bool `json:"is_liked"`
	IsSaved   bool `json:"is_saved"`
	HasViewed bool `json:"has_viewed"`
	HasShared bool `json:"has_shared"`
}

// LoopView is a loop decorated with counters and viewer state for responses.
type LoopView struct {
	*Loop
	Stats  LoopStats   `json:"stats"`
	Viewer ViewerState `json:"viewer"`
}
