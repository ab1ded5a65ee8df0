// Package media validates uploads and hands them to the asset store.
package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // Register GIF decoder
	_ "image/jpeg" // Register JPEG decoder
	_ "image/png"  // Register PNG decoder
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"loop/internal/middleware"
	"loop/internal/models"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	_ "golang.org/x/image/webp" // Register WebP decoder
)

const DefaultMaxUploadBytes = 25 * 1024 * 1024

// Kind is the broad class of an upload. It picks the storage resource type.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
	KindFile  Kind = "file"
)

// fileTypes are the non-media MIME types accepted as plain attachments.
var fileTypes = map[string]bool{
	"application/pdf": true,
	"application/zip": true,
	"text/plain":      true,
}

// Asset describes a stored upload.
type Asset struct {
	URL      string  `json:"url"`
	Kind     Kind    `json:"kind"`
	MimeType string  `json:"mime_type"`
	Bytes    int64   `json:"bytes"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// StoreInput is one validated object ready for storage.
type StoreInput struct {
	Name    string
	Folder  string
	Kind    Kind
	Content io.Reader
}

// Store persists validated uploads.
type Store interface {
	Put(ctx context.Context, in StoreInput) (*Asset, error)
}

// UploadInput is a raw upload from a user.
type UploadInput struct {
	UserID      uuid.UUID
	Filename    string
	ContentType string
	Content     []byte
}

// Service enforces size and type limits before storage.
type Service struct {
	store    Store
	maxBytes int64
	breaker  *gobreaker.CircuitBreaker
}

// NewService builds an upload service. store may be nil when no storage is
// configured; uploads then fail with ServiceUnavailable.
func NewService(store Store, maxBytes int64) *Service {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxUploadBytes
	}
	return &Service{
		store:    store,
		maxBytes: maxBytes,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "media-store",
			MaxRequests: 3,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.Requests >= 5 && float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				middleware.Logger.Warn("circuit breaker state changed",
					slog.String("breaker", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()),
				)
			},
		}),
	}
}

// MaxBytes is the upload size limit.
func (s *Service) MaxBytes() int64 {
	return s.maxBytes
}

// Classify maps a MIME type to an upload kind. ok is false for disallowed types.
func Classify(mimeType string) (Kind, bool) {
	mt := normalizeContentType(mimeType)
	switch {
	case strings.HasPrefix(mt, "image/"):
		return KindImage, true
	case strings.HasPrefix(mt, "video/"):
		return KindVideo, true
	case strings.HasPrefix(mt, "audio/"):
		return KindAudio, true
	case fileTypes[mt]:
		return KindFile, true
	}
	return "", false
}

func normalizeContentType(v string) string {
	mt, _, err := mime.ParseMediaType(strings.TrimSpace(v))
	if err != nil {
		return strings.ToLower(strings.TrimSpace(v))
	}
	return mt
}

// detectType prefers the sniffed type; it falls back to the declared type
// when sniffing only finds a generic octet stream (most audio and video).
func detectType(content []byte, declared string) string {
	sniffed := normalizeContentType(http.DetectContentType(content))
	if sniffed != "application/octet-stream" {
		return sniffed
	}
	return normalizeContentType(declared)
}

// Upload validates in and stores it under the user's folder.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*Asset, error) {
	if in.UserID == uuid.Nil {
		return nil, models.NewUnauthorizedError("Authentication required")
	}
	if len(in.Content) == 0 {
		return nil, models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > s.maxBytes {
		return nil, models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", s.maxBytes/(1024*1024)))
	}

	mimeType := detectType(in.Content, in.ContentType)
	kind, ok := Classify(mimeType)
	if !ok {
		return nil, models.NewValidationError("Unsupported file type")
	}
	if declared := normalizeContentType(in.ContentType); declared != "" && declared != "application/octet-stream" {
		if dk, ok := Classify(declared); !ok || dk != kind {
			return nil, models.NewValidationError("File content type mismatch")
		}
	}

	var width, height int
	if kind == KindImage {
		cfg, _, err := image.DecodeConfig(bytes.NewReader(in.Content))
		if err != nil {
			return nil, models.NewValidationError("Invalid image file")
		}
		width, height = cfg.Width, cfg.Height
	}

	if s.store == nil {
		return nil, models.NewUnavailableError(errors.New("media storage is not configured"))
	}

	res, err := s.breaker.Execute(func() (any, error) {
		return s.store.Put(ctx, StoreInput{
			Name:    storageName(in.Filename),
			Folder:  in.UserID.String(),
			Kind:    kind,
			Content: bytes.NewReader(in.Content),
		})
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) || errors.Is(err, context.DeadlineExceeded) {
			return nil, models.NewUnavailableError(err)
		}
		return nil, models.NewInternalError(err)
	}

	asset := res.(*Asset)
	asset.Kind = kind
	asset.MimeType = mimeType
	asset.Bytes = int64(len(in.Content))
	if asset.Width == 0 && asset.Height == 0 {
		asset.Width, asset.Height = width, height
	}
	return asset, nil
}

// storageName strips directories and the extension from a client filename
// and makes it unique.
func storageName(filename string) string {
	base := strings.TrimSuffix(filepath.Base(filename), filepath.Ext(filename))
	var b strings.Builder
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ' || r == '.':
			b.WriteRune('-')
		}
	}
	name := strings.Trim(b.String(), "-")
	if len(name) > 48 {
		name = name[:48]
	}
	if name == "" || name == "." {
		return uuid.NewString()
	}
	return name + "-" + uuid.NewString()[:8]
}
