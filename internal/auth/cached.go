package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"loop/internal/cache"
	"loop/internal/middleware"
)

// CachingVerifier remembers successful verifications in Redis, keyed by the
// token digest. Rejections are never cached. Without Redis every call goes
// to the wrapped verifier.
type CachingVerifier struct {
	next Verifier
	ttl  time.Duration
	now  func() time.Time
}

func NewCachingVerifier(next Verifier, ttl time.Duration) *CachingVerifier {
	return &CachingVerifier{next: next, ttl: ttl, now: time.Now}
}

func tokenDigest(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func (v *CachingVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if v.ttl <= 0 {
		return v.next.Verify(ctx, token)
	}
	key := cache.TokenKey(tokenDigest(token))

	var cached Identity
	if found, err := cache.GetJSON(ctx, key, &cached); err == nil && found {
		return &cached, nil
	}

	id, err := v.next.Verify(ctx, token)
	if err != nil {
		return nil, err
	}

	ttl := v.ttl
	if exp, ok := tokenExpiry(token); ok {
		if left := exp.Sub(v.now()); left < ttl {
			ttl = left
		}
	}
	if ttl > 0 {
		if err := cache.SetJSON(ctx, key, id, ttl); err != nil {
			middleware.Logger.WarnContext(ctx, "token cache write failed", slog.String("error", err.Error()))
		}
	}
	return id, nil
}
