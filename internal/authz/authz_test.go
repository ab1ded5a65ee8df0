package authz

import (
	"context"
	"errors"
	"testing"

	"loop/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type profileRepoStub struct {
	profiles map[uuid.UUID]*models.Profile
	err      error
}

func (s *profileRepoStub) GetByID(_ context.Context, id uuid.UUID) (*models.Profile, error) {
	if s.err != nil {
		return nil, s.err
	}
	p, ok := s.profiles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}
func (s *profileRepoStub) GetByUsername(context.Context, string) (*models.Profile, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *profileRepoStub) Create(context.Context, *models.Profile) error { return nil }
func (s *profileRepoStub) Update(context.Context, *models.Profile) error { return nil }
func (s *profileRepoStub) SetRole(context.Context, uuid.UUID, string) error { return nil }
func (s *profileRepoStub) SetBanned(context.Context, uuid.UUID, bool) error { return nil }
func (s *profileRepoStub) Search(context.Context, string, int, int) ([]models.Profile, error) {
	return nil, nil
}

type circleRepoStub struct {
	memberRoleFn func(circleID, userID uuid.UUID) (string, error)
}

func (s *circleRepoStub) Create(context.Context, *models.Circle) error { return nil }
func (s *circleRepoStub) GetByID(context.Context, uuid.UUID) (*models.Circle, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *circleRepoStub) GetBySlug(context.Context, string) (*models.Circle, error) {
	return nil, gorm.ErrRecordNotFound
}
func (s *circleRepoStub) SlugExists(context.Context, string) (bool, error) { return false, nil }
func (s *circleRepoStub) List(context.Context, int, int) ([]models.Circle, error) {
	return nil, nil
}
func (s *circleRepoStub) AddMember(context.Context, uuid.UUID, uuid.UUID, string) (bool, error) {
	return true, nil
}
func (s *circleRepoStub) RemoveMember(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	return true, nil
}
func (s *circleRepoStub) MemberRole(_ context.Context, circleID, userID uuid.UUID) (string, error) {
	return s.memberRoleFn(circleID, userID)
}
func (s *circleRepoStub) ListMembers(context.Context, uuid.UUID, int, int) ([]models.CircleMember, error) {
	return nil, nil
}

func TestRoleHas(t *testing.T) {
	assert.False(t, RoleHas(models.RoleUser, ModerateContent))
	assert.True(t, RoleHas(models.RoleModerator, ModerateContent))
	assert.False(t, RoleHas(models.RoleModerator, BanUsers))
	assert.True(t, RoleHas(models.RoleAdmin, ManageUsers))
	assert.True(t, RoleHas(models.RoleAdmin, BanUsers))
}

func TestHasCapability(t *testing.T) {
	mod := uuid.New()
	bannedAdmin := uuid.New()
	profiles := &profileRepoStub{profiles: map[uuid.UUID]*models.Profile{
		mod:         {ID: mod, Role: models.RoleModerator},
		bannedAdmin: {ID: bannedAdmin, Role: models.RoleAdmin, IsBanned: true},
	}}
	c := NewChecker(profiles, &circleRepoStub{})

	ok, err := c.HasCapability(context.Background(), mod, ModerateContent)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.HasCapability(context.Background(), bannedAdmin, ManageUsers)
	require.NoError(t, err)
	assert.False(t, ok, "banned profiles hold no capabilities")

	ok, err = c.HasCapability(context.Background(), uuid.New(), ModerateContent)
	require.NoError(t, err)
	assert.False(t, ok)

	profiles.err = errors.New("db down")
	_, err = c.HasCapability(context.Background(), mod, ModerateContent)
	assert.Error(t, err)
}

func TestCircleRole(t *testing.T) {
	member := uuid.New()
	circle := uuid.New()
	c := NewChecker(&profileRepoStub{}, &circleRepoStub{memberRoleFn: func(cid, uid uuid.UUID) (string, error) {
		if cid == circle && uid == member {
			return models.CircleRoleModerator, nil
		}
		return "", nil
	}})

	role, found, err := c.CircleRole(context.Background(), member, circle)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.CircleRoleModerator, role)

	_, found, err = c.CircleRole(context.Background(), uuid.New(), circle)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestEnsureActive(t *testing.T) {
	active := uuid.New()
	banned := uuid.New()
	c := NewChecker(&profileRepoStub{profiles: map[uuid.UUID]*models.Profile{
		active: {ID: active, Role: models.RoleUser},
		banned: {ID: banned, Role: models.RoleUser, IsBanned: true},
	}}, &circleRepoStub{})

	assert.NoError(t, c.EnsureActive(context.Background(), active))
	assert.ErrorIs(t, c.EnsureActive(context.Background(), banned), models.ErrForbidden)
	assert.ErrorIs(t, c.EnsureActive(context.Background(), uuid.New()), models.ErrUnauthorized)
}
