// Package seed provides helpers to create demo data for the application
// database. These helpers are intended for development and testing only.
package seed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"loop/internal/models"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Factory builds domain entities and persists them to the database.
// It is a thin helper used by Seed and by tests.
type Factory struct {
	db    *gorm.DB
	opts  Options
	faker *gofakeit.Faker
}

// NewFactory creates a new Factory bound to the provided Gorm DB. A zero
// Options.RandomSeed picks a random seed.
func NewFactory(db *gorm.DB, opts Options) *Factory {
	return &Factory{db: db, opts: opts, faker: gofakeit.New(opts.RandomSeed)}
}

var youtubeIDs = []string{"dQw4w9WgXcQ", "9bZkp7q19f0", "3JZ_D3ELwOQ", "L_jWHffIx5E", "kXYiU_JCYtU"}

// BuildProfile constructs a sample profile without persisting it.
func (f *Factory) BuildProfile(overrides ...func(*models.Profile)) *models.Profile {
	username := fmt.Sprintf("%s%d", f.faker.Username(), f.faker.Number(100, 999))
	if len(username) > 50 {
		username = username[:50]
	}
	p := &models.Profile{
		ID:          uuid.New(),
		Username:    username,
		DisplayName: f.faker.Name(),
		AvatarURL:   fmt.Sprintf("https://i.pravatar.cc/150?u=%s", username),
		Bio:         f.faker.Sentence(10),
		Role:        models.RoleUser,
		Coins:       f.opts.StartingCoins,
	}
	for _, override := range overrides {
		override(p)
	}
	return p
}

// CreateProfile builds and persists a sample profile.
func (f *Factory) CreateProfile(ctx context.Context, overrides ...func(*models.Profile)) (*models.Profile, error) {
	p := f.BuildProfile(overrides...)
	if f.opts.DryRun {
		slog.Debug("dry-run: create profile", "username", p.Username)
		return p, nil
	}
	if err := f.db.WithContext(ctx).Create(p).Error; err != nil {
		return nil, err
	}
	return p, nil
}

// BuildContent returns sample content of the given type. Media variants point
// at public placeholder hosts.
func (f *Factory) BuildContent(kind models.ContentType) models.Content {
	switch kind {
	case models.ContentImage:
		return models.Content{
			Type:     models.ContentImage,
			Text:     f.faker.Sentence(6),
			MediaURL: fmt.Sprintf("https://picsum.photos/seed/%s/800/800", f.faker.UUID()),
			Width:    800,
			Height:   800,
			MimeType: "image/jpeg",
		}
	case models.ContentVideo:
		id := youtubeIDs[f.faker.Number(0, len(youtubeIDs)-1)]
		return models.Content{
			Type:            models.ContentVideo,
			Text:            f.faker.Sentence(6),
			MediaURL:        fmt.Sprintf("https://www.youtube.com/watch?v=%s", id),
			ThumbnailURL:    fmt.Sprintf("https://img.youtube.com/vi/%s/hqdefault.jpg", id),
			DurationSeconds: float64(f.faker.Number(15, 600)),
		}
	case models.ContentAudio:
		return models.Content{
			Type:            models.ContentAudio,
			Text:            f.faker.HipsterSentence(5),
			MediaURL:        fmt.Sprintf("https://cdn.example.com/audio/%s.mp3", f.faker.UUID()),
			DurationSeconds: float64(f.faker.Number(30, 300)),
			MimeType:        "audio/mpeg",
		}
	case models.ContentFile:
		name := f.faker.Word() + ".pdf"
		return models.Content{
			Type:      models.ContentFile,
			MediaURL:  fmt.Sprintf("https://cdn.example.com/files/%s/%s", f.faker.UUID(), name),
			FileName:  name,
			MimeType:  "application/pdf",
			SizeBytes: int64(f.faker.Number(10_000, 2_000_000)),
		}
	default:
		return models.Content{
			Type: models.ContentText,
			Text: f.faker.Paragraph(1, 3, 8, "\n"),
		}
	}
}

// contentKinds is weighted towards text the way real traffic is.
var contentKinds = []models.ContentType{
	models.ContentText, models.ContentText, models.ContentText, models.ContentText,
	models.ContentImage, models.ContentImage, models.ContentVideo,
	models.ContentAudio, models.ContentFile,
}

// RandomContent returns content of a weighted random type.
func (f *Factory) RandomContent() models.Content {
	return f.BuildContent(contentKinds[f.faker.Number(0, len(contentKinds)-1)])
}

// Backdate moves a loop's creation time to a random point within
// Options.MaxDays so feeds have a realistic spread.
func (f *Factory) Backdate(ctx context.Context, loop *models.Loop) error {
	maxDays := f.opts.MaxDays
	if maxDays <= 0 {
		maxDays = 30
	}
	at := time.Now().UTC().
		Add(-time.Duration(f.faker.Number(0, maxDays-1)) * 24 * time.Hour).
		Add(-time.Duration(f.faker.Number(0, 23)) * time.Hour).
		Add(-time.Duration(f.faker.Number(0, 59)) * time.Minute)
	if f.opts.DryRun {
		loop.CreatedAt = at
		return nil
	}
	if err := f.db.WithContext(ctx).Model(&models.Loop{}).Where("id = ?", loop.ID).Update("created_at", at).Error; err != nil {
		return err
	}
	loop.CreatedAt = at
	return nil
}

// CreateFollow persists a follow edge. Existing edges are left alone.
func (f *Factory) CreateFollow(ctx context.Context, follower, followee *models.Profile) error {
	if f.opts.DryRun {
		return nil
	}
	edge := &models.Follow{FollowerID: follower.ID, FolloweeID: followee.ID}
	return f.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(edge).Error
}

// Pick returns n distinct indexes in [0, size).
func (f *Factory) Pick(size, n int) []int {
	if n > size {
		n = size
	}
	perm := make([]int, size)
	for i := range perm {
		perm[i] = i
	}
	f.faker.ShuffleAnySlice(perm)
	return perm[:n]
}

// Chance reports true with probability p.
func (f *Factory) Chance(p float64) bool {
	return f.faker.Float64Range(0, 1) < p
}

// Intn returns a number in [0, n).
func (f *Factory) Intn(n int) int {
	if n <= 1 {
		return 0
	}
	return f.faker.Number(0, n-1)
}
