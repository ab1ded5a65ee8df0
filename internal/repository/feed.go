package repository

import (
	"context"
	"time"

	"loop/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TrendingScoreSQL ranks loops by weighted interaction counts.
const TrendingScoreSQL = "(loop_stats.likes + 2 * loop_stats.comments + 3 * loop_stats.branches + loop_stats.saves + loop_stats.shares)"

// FeedRepository lists root loops for the feed modes. Results carry the
// author but neither counters nor viewer state.
type FeedRepository interface {
	Following(ctx context.Context, viewerID uuid.UUID, includeOwn bool, limit, offset int) ([]*models.Loop, error)
	Recent(ctx context.Context, limit, offset int) ([]*models.Loop, error)
	Trending(ctx context.Context, since time.Time, limit, offset int) ([]*models.Loop, error)
	ByCircle(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]*models.Loop, error)
	ByAuthor(ctx context.Context, authorID uuid.UUID, publicOnly bool, limit, offset int) ([]*models.Loop, error)
}

type feedRepository struct {
	db *gorm.DB
}

// NewFeedRepository returns a new FeedRepository implementation.
func NewFeedRepository(db *gorm.DB) FeedRepository {
	return &feedRepository{db: db}
}

func (r *feedRepository) roots(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).
		Model(&models.Loop{}).
		Preload("Author").
		Where("loops.parent_id IS NULL")
}

// outsidePrivateCircles hides loops posted into private circles from the
// global feeds.
func (r *feedRepository) outsidePrivateCircles(db *gorm.DB) *gorm.DB {
	private := r.db.Model(&models.Circle{}).Select("id").Where("is_private = ?", true)
	return db.Where("(loops.circle_id IS NULL OR loops.circle_id NOT IN (?))", private)
}

// visibleInCircles keeps private-circle loops the viewer wrote or whose
// circle the viewer belongs to.
func (r *feedRepository) visibleInCircles(db *gorm.DB, viewerID uuid.UUID) *gorm.DB {
	private := r.db.Model(&models.Circle{}).Select("id").Where("is_private = ?", true)
	memberOf := r.db.Model(&models.CircleMember{}).Select("circle_id").Where("user_id = ?", viewerID)
	return db.Where(
		"(loops.circle_id IS NULL OR loops.author_id = ? OR loops.circle_id NOT IN (?) OR loops.circle_id IN (?))",
		viewerID, private, memberOf,
	)
}

func page(db *gorm.DB, limit, offset int, dest *[]*models.Loop) error {
	return db.Limit(limit).Offset(offset).Find(dest).Error
}

func (r *feedRepository) Following(ctx context.Context, viewerID uuid.UUID, includeOwn bool, limit, offset int) ([]*models.Loop, error) {
	followees := r.db.Model(&models.Follow{}).Select("followee_id").Where("follower_id = ?", viewerID)

	q := r.roots(ctx)
	if includeOwn {
		q = q.Where("(loops.author_id IN (?) OR loops.author_id = ?)", followees, viewerID)
	} else {
		q = q.Where("loops.author_id IN (?)", followees)
	}
	q = r.visibleInCircles(q, viewerID).Order("loops.created_at DESC")

	var loops []*models.Loop
	err := page(q, limit, offset, &loops)
	return loops, err
}

func (r *feedRepository) Recent(ctx context.Context, limit, offset int) ([]*models.Loop, error) {
	q := r.roots(ctx).Where("loops.visibility = ?", models.VisibilityPublic)
	q = r.outsidePrivateCircles(q).Order("loops.created_at DESC")

	var loops []*models.Loop
	err := page(q, limit, offset, &loops)
	return loops, err
}

// Trending ranks public roots created at or after since by TrendingScoreSQL,
// newest first on ties.
func (r *feedRepository) Trending(ctx context.Context, since time.Time, limit, offset int) ([]*models.Loop, error) {
	q := r.roots(ctx).
		Select("loops.*").
		Joins("JOIN loop_stats ON loop_stats.loop_id = loops.id").
		Where("loops.visibility = ? AND loops.created_at >= ?", models.VisibilityPublic, since)
	q = r.outsidePrivateCircles(q).
		Order(TrendingScoreSQL + " DESC").
		Order("loops.created_at DESC")

	var loops []*models.Loop
	err := page(q, limit, offset, &loops)
	return loops, err
}

func (r *feedRepository) ByCircle(ctx context.Context, circleID uuid.UUID, limit, offset int) ([]*models.Loop, error) {
	q := r.roots(ctx).Where("loops.circle_id = ?", circleID).Order("loops.created_at DESC")

	var loops []*models.Loop
	err := page(q, limit, offset, &loops)
	return loops, err
}

func (r *feedRepository) ByAuthor(ctx context.Context, authorID uuid.UUID, publicOnly bool, limit, offset int) ([]*models.Loop, error) {
	q := r.roots(ctx).Where("loops.author_id = ?", authorID)
	if publicOnly {
		q = r.outsidePrivateCircles(q.Where("loops.visibility = ?", models.VisibilityPublic))
	}
	q = q.Order("loops.created_at DESC")

	var loops []*models.Loop
	err := page(q, limit, offset, &loops)
	return loops, err
}
