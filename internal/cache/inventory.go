package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	ProfileKeyPrefix  = "profile:%s"
	CircleKeyPrefix   = "circle:%s"
	TrendingKeyPrefix = "feed:trending:%d:%d:%d"
	TokenKeyPrefix    = "auth:token:%s"
)

const (
	ProfileTTL = 5 * time.Minute
	CircleTTL  = 10 * time.Minute
)

func ProfileKey(id uuid.UUID) string {
	return fmt.Sprintf(ProfileKeyPrefix, id)
}

func CircleKey(slug string) string {
	return fmt.Sprintf(CircleKeyPrefix, slug)
}

// TrendingKey identifies one cached trending page for a window in hours.
func TrendingKey(windowHours, limit, offset int) string {
	return fmt.Sprintf(TrendingKeyPrefix, windowHours, limit, offset)
}

// TokenKey identifies a validated bearer token by its digest.
func TokenKey(digest string) string {
	return fmt.Sprintf(TokenKeyPrefix, digest)
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateProfile(ctx context.Context, id uuid.UUID) {
	Invalidate(ctx, ProfileKey(id))
}

func InvalidateCircle(ctx context.Context, slug string) {
	Invalidate(ctx, CircleKey(slug))
}
