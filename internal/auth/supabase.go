package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"loop/internal/middleware"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"github.com/supabase-community/supabase-go"
)

// userLookup resolves a token against the identity provider.
type userLookup func(token string) (*Identity, error)

// SupabaseVerifier asks Supabase Auth who owns a token. Calls go through a
// circuit breaker so an outage fails fast with ErrProviderUnavailable.
type SupabaseVerifier struct {
	lookup  userLookup
	breaker *gobreaker.CircuitBreaker
}

// NewSupabaseVerifier builds a verifier against the project at url using the
// service role key.
func NewSupabaseVerifier(url, serviceRoleKey string) (*SupabaseVerifier, error) {
	client, err := supabase.NewClient(url, serviceRoleKey, nil)
	if err != nil {
		return nil, fmt.Errorf("create supabase client: %w", err)
	}
	return newSupabaseVerifier(func(token string) (*Identity, error) {
		user, err := client.Auth.WithToken(token).GetUser()
		if err != nil {
			return nil, err
		}
		return &Identity{UserID: user.ID, Email: user.Email}, nil
	}), nil
}

func newSupabaseVerifier(lookup userLookup) *SupabaseVerifier {
	return &SupabaseVerifier{
		lookup: lookup,
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "supabase-auth",
			MaxRequests: 5,
			Interval:    30 * time.Second,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// A rejected token is a healthy answer from the provider.
			IsSuccessful: func(err error) bool {
				return err == nil || errors.Is(err, ErrInvalidToken)
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

func (v *SupabaseVerifier) Verify(ctx context.Context, token string) (*Identity, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	res, err := v.breaker.Execute(func() (any, error) {
		id, err := v.lookup(token)
		if err != nil {
			if isRejection(err) {
				return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
			}
			return nil, err
		}
		if id == nil || id.UserID == uuid.Nil {
			return nil, ErrInvalidToken
		}
		return id, nil
	})
	switch {
	case err == nil:
		return res.(*Identity), nil
	case errors.Is(err, ErrInvalidToken):
		return nil, err
	default:
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}

// isRejection reports whether the provider answered with an auth failure
// rather than failing to answer.
func isRejection(err error) bool {
	msg := err.Error()
	for _, code := range []string{"401", "403", "invalid JWT", "bad_jwt", "user_not_found"} {
		if strings.Contains(msg, code) {
			return true
		}
	}
	return false
}
