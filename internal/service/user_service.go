package service

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/validation"

	"github.com/google/uuid"
)

var usernameCleaner = regexp.MustCompile(`[^a-z0-9_]+`)

// ProfileSummary is a profile with its social graph counts.
type ProfileSummary struct {
	*models.Profile
	Followers   int64 `json:"followers"`
	Following   int64 `json:"following"`
	IsFollowing bool  `json:"is_following"`
}

type UpdateProfileInput struct {
	UserID      uuid.UUID
	DisplayName *string
	AvatarURL   *string
	Bio         *string
}

type UserService struct {
	profiles repository.ProfileRepository
	follows  repository.FollowRepository
	checker  authz.Checker
	fx       sideEffects
}

func NewUserService(profiles repository.ProfileRepository, follows repository.FollowRepository, checker authz.Checker, pub Publisher) *UserService {
	return &UserService{profiles: profiles, follows: follows, checker: checker, fx: sideEffects{pub: pub}}
}

// deriveUsername builds a username candidate from the email local part,
// falling back to the id.
func deriveUsername(email string, id uuid.UUID) string {
	local, _, _ := strings.Cut(strings.ToLower(email), "@")
	name := strings.Trim(usernameCleaner.ReplaceAllString(local, "_"), "_")
	if len(name) > 24 {
		name = name[:24]
	}
	if len(name) < 3 {
		name = "user_" + strings.ReplaceAll(id.String(), "-", "")[:8]
	}
	return name
}

// EnsureProfile returns the profile for an authenticated user, creating it on
// first sight. Profile ids equal auth provider user ids.
func (s *UserService) EnsureProfile(ctx context.Context, id uuid.UUID, email string) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err == nil {
		return profile, nil
	}
	if !repository.IsNotFound(err) {
		return nil, translateError(err, "Profile", id)
	}

	base := deriveUsername(email, id)
	candidates := []string{base, base + "_" + strings.ReplaceAll(id.String(), "-", "")[:6]}
	for _, username := range candidates {
		profile = &models.Profile{ID: id, Username: username, DisplayName: username, Role: models.RoleUser}
		err = s.profiles.Create(ctx, profile)
		if err == nil {
			return profile, nil
		}
		if !errors.Is(translateError(err, "Profile", id), models.ErrConflict) {
			return nil, translateError(err, "Profile", id)
		}
		// A concurrent request may have created this very profile.
		if existing, getErr := s.profiles.GetByID(ctx, id); getErr == nil {
			return existing, nil
		}
	}
	return nil, translateError(err, "Profile", id)
}

func (s *UserService) GetProfile(ctx context.Context, id, viewer uuid.UUID) (*ProfileSummary, error) {
	profile, err := s.profiles.GetByID(ctx, id)
	if err != nil {
		return nil, translateError(err, "User", id)
	}
	followers, following, err := s.follows.Counts(ctx, id)
	if err != nil {
		return nil, translateError(err, "User", id)
	}
	summary := &ProfileSummary{Profile: profile, Followers: followers, Following: following}
	if viewer != uuid.Nil && viewer != id {
		if summary.IsFollowing, err = s.follows.IsFollowing(ctx, viewer, id); err != nil {
			return nil, translateError(err, "User", id)
		}
	}
	return summary, nil
}

func (s *UserService) UpdateProfile(ctx context.Context, in UpdateProfileInput) (*models.Profile, error) {
	profile, err := s.profiles.GetByID(ctx, in.UserID)
	if err != nil {
		return nil, translateError(err, "User", in.UserID)
	}

	const maxBioLen = 500
	const maxDisplayNameLen = 100

	if in.DisplayName != nil {
		name := validation.SanitizeText(*in.DisplayName)
		if utf8.RuneCountInString(name) > maxDisplayNameLen {
			return nil, models.NewValidationError("Display name too long (max 100 characters)")
		}
		profile.DisplayName = name
	}
	if in.Bio != nil {
		bio := validation.SanitizeText(*in.Bio)
		if utf8.RuneCountInString(bio) > maxBioLen {
			return nil, models.NewValidationError("Bio too long (max 500 characters)")
		}
		profile.Bio = bio
	}
	if in.AvatarURL != nil {
		profile.AvatarURL = strings.TrimSpace(*in.AvatarURL)
	}

	if err := s.profiles.Update(ctx, profile); err != nil {
		return nil, translateError(err, "User", in.UserID)
	}
	return profile, nil
}

// Follow creates the edge follower -> followee. Repeating it is a no-op.
func (s *UserService) Follow(ctx context.Context, follower, followee uuid.UUID) (bool, error) {
	if follower == followee {
		return false, models.NewValidationError("You cannot follow yourself")
	}
	if err := s.checker.EnsureActive(ctx, follower); err != nil {
		return false, err
	}
	if _, err := s.profiles.GetByID(ctx, followee); err != nil {
		return false, translateError(err, "User", followee)
	}

	created, err := s.follows.Follow(ctx, follower, followee)
	if err != nil {
		return false, translateError(err, "User", followee)
	}
	if created {
		actor := follower
		s.fx.notify(ctx, followee, &actor, models.NotificationFollow,
			"New follower", "Someone started following you",
			models.JSONMap{"follower_id": follower.String()})
	}
	return created, nil
}

func (s *UserService) Unfollow(ctx context.Context, follower, followee uuid.UUID) (bool, error) {
	removed, err := s.follows.Unfollow(ctx, follower, followee)
	if err != nil {
		return false, translateError(err, "User", followee)
	}
	return removed, nil
}

func (s *UserService) Followers(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Profile, error) {
	out, err := s.follows.ListFollowers(ctx, id, limit, offset)
	if err != nil {
		return nil, translateError(err, "User", id)
	}
	return out, nil
}

func (s *UserService) Following(ctx context.Context, id uuid.UUID, limit, offset int) ([]models.Profile, error) {
	out, err := s.follows.ListFollowing(ctx, id, limit, offset)
	if err != nil {
		return nil, translateError(err, "User", id)
	}
	return out, nil
}

func (s *UserService) Search(ctx context.Context, query string, limit, offset int) ([]models.Profile, error) {
	if strings.TrimSpace(query) == "" {
		return nil, models.NewValidationError("Search query is required")
	}
	out, err := s.profiles.Search(ctx, query, limit, offset)
	if err != nil {
		return nil, translateError(err, "User", nil)
	}
	return out, nil
}
