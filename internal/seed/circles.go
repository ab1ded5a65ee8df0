package seed

import (
	"context"
	"fmt"

	"loop/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BuiltInCircle is a permanent community created for every environment.
type BuiltInCircle struct {
	Name        string
	Slug        string
	Description string
}

// BuiltInCircles defines the permanent circles.
var BuiltInCircles = []BuiltInCircle{
	{Name: "Announcements", Slug: "announcements", Description: "Platform updates from the Loop team."},
	{Name: "Help Desk", Slug: "help", Description: "Questions and troubleshooting."},
	{Name: "Music", Slug: "music", Description: "Tracks, remixes and the branches they grow."},
	{Name: "Film", Slug: "film", Description: "Clips, trailers and reviews."},
	{Name: "Art", Slug: "art", Description: "Drawings, photos and works in progress."},
	{Name: "Games", Slug: "games", Description: "Gaming across all platforms."},
	{Name: "Code", Slug: "code", Description: "Software development threads."},
	{Name: "Food", Slug: "food", Description: "Recipes, cooking and nutrition."},
}

// Circles upserts the built-in circles owned by owner and makes owner their
// owner member. Running it twice leaves one row per slug.
func Circles(ctx context.Context, db *gorm.DB, owner *models.Profile) ([]models.Circle, error) {
	out := make([]models.Circle, 0, len(BuiltInCircles))
	for _, item := range BuiltInCircles {
		var circle models.Circle
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			circle = models.Circle{
				Name:        item.Name,
				Slug:        item.Slug,
				Description: item.Description,
				OwnerID:     owner.ID,
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "slug"}},
				DoUpdates: clause.AssignmentColumns([]string{"name", "description", "updated_at"}),
			}).Create(&circle).Error; err != nil {
				return err
			}

			// On conflict the generated id is not the stored one.
			if err := tx.Where("slug = ?", item.Slug).First(&circle).Error; err != nil {
				return err
			}

			member := models.CircleMember{CircleID: circle.ID, UserID: circle.OwnerID, Role: models.CircleRoleOwner}
			return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&member).Error
		})
		if err != nil {
			return nil, fmt.Errorf("seed built-in circle %s: %w", item.Slug, err)
		}
		out = append(out, circle)
	}
	return out, nil
}
