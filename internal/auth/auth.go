// Package auth resolves bearer tokens into user identities.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
)

var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("auth: missing bearer token")
	// ErrInvalidToken means the token was rejected by the verifier.
	ErrInvalidToken = errors.New("auth: invalid or expired token")
	// ErrProviderUnavailable means the identity provider could not be reached.
	ErrProviderUnavailable = errors.New("auth: identity provider unavailable")
)

// Identity is the caller behind a verified token.
type Identity struct {
	UserID uuid.UUID `json:"user_id"`
	Email  string    `json:"email"`
}

// Verifier validates a raw bearer token.
type Verifier interface {
	Verify(ctx context.Context, token string) (*Identity, error)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, error) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", ErrMissingToken
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return "", ErrMissingToken
	}
	return token, nil
}
