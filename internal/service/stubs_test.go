package service

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"loop/internal/authz"
	"loop/internal/events"
	"loop/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// memLoopStore is an in-memory LoopRepository and CounterRepository.
type memLoopStore struct {
	mu        sync.Mutex
	loops     map[uuid.UUID]*models.Loop
	stats     map[uuid.UUID]*models.LoopStats
	adjustErr error
}

func newMemLoopStore() *memLoopStore {
	return &memLoopStore{
		loops: make(map[uuid.UUID]*models.Loop),
		stats: make(map[uuid.UUID]*models.LoopStats),
	}
}

func (m *memLoopStore) Create(_ context.Context, loop *models.Loop) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if loop.ParentID != nil {
		if _, ok := m.loops[*loop.ParentID]; !ok {
			return gorm.ErrForeignKeyViolated
		}
	}
	if loop.ID == uuid.Nil {
		loop.ID = uuid.New()
	}
	cp := *loop
	m.loops[loop.ID] = &cp
	m.stats[loop.ID] = &models.LoopStats{LoopID: loop.ID}
	return nil
}

func (m *memLoopStore) GetByID(_ context.Context, id uuid.UUID) (*models.Loop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.loops[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLoopStore) ListChildren(_ context.Context, parentID uuid.UUID, limit, offset int) ([]*models.Loop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Loop
	for _, l := range m.loops {
		if l.ParentID != nil && *l.ParentID == parentID {
			cp := *l
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memLoopStore) Ancestors(_ context.Context, id uuid.UUID) ([]*models.Loop, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var chain []*models.Loop
	for cur, ok := m.loops[id]; ok; {
		cp := *cur
		chain = append([]*models.Loop{&cp}, chain...)
		if cur.ParentID == nil {
			break
		}
		cur, ok = m.loops[*cur.ParentID]
	}
	if len(chain) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return chain, nil
}

func (m *memLoopStore) DeleteSubtree(_ context.Context, id uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loops[id]; !ok {
		return nil, gorm.ErrRecordNotFound
	}
	ids := []uuid.UUID{id}
	for i := 0; i < len(ids); i++ {
		for _, l := range m.loops {
			if l.ParentID != nil && *l.ParentID == ids[i] {
				ids = append(ids, l.ID)
			}
		}
	}
	for _, d := range ids {
		delete(m.loops, d)
		delete(m.stats, d)
	}
	return ids, nil
}

func (m *memLoopStore) Adjust(_ context.Context, loopID uuid.UUID, kind models.CounterKind, delta int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.adjustErr != nil {
		return 0, m.adjustErr
	}
	s, ok := m.stats[loopID]
	if !ok {
		return 0, gorm.ErrRecordNotFound
	}
	var field *int64
	switch kind {
	case models.CounterLikes:
		field = &s.Likes
	case models.CounterBranches:
		field = &s.Branches
	case models.CounterComments:
		field = &s.Comments
	case models.CounterSaves:
		field = &s.Saves
	case models.CounterViews:
		field = &s.Views
	case models.CounterShares:
		field = &s.Shares
	default:
		return 0, errors.New("unknown counter")
	}
	*field += delta
	if *field < 0 {
		*field = 0
	}
	return *field, nil
}

func (m *memLoopStore) Get(_ context.Context, loopID uuid.UUID) (*models.LoopStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.stats[loopID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memLoopStore) GetMany(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.LoopStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[uuid.UUID]models.LoopStats, len(ids))
	for _, id := range ids {
		if s, ok := m.stats[id]; ok {
			out[id] = *s
		}
	}
	return out, nil
}

func (m *memLoopStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loops)
}

// interactionRepoStub is a stub for repository.InteractionRepository.
type interactionRepoStub struct {
	toggleFn       func(context.Context, uuid.UUID, uuid.UUID, models.InteractionType) (*models.InteractionResult, error)
	setFn          func(context.Context, uuid.UUID, uuid.UUID, models.InteractionType, bool) (*models.InteractionResult, error)
	hasFn          func(context.Context, uuid.UUID, uuid.UUID, models.InteractionType) (bool, error)
	viewerStatesFn func(context.Context, uuid.UUID, []uuid.UUID) (map[uuid.UUID]models.ViewerState, error)
}

func (s *interactionRepoStub) Toggle(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (*models.InteractionResult, error) {
	return s.toggleFn(ctx, userID, loopID, typ)
}
func (s *interactionRepoStub) Set(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType, present bool) (*models.InteractionResult, error) {
	return s.setFn(ctx, userID, loopID, typ, present)
}
func (s *interactionRepoStub) Has(ctx context.Context, userID, loopID uuid.UUID, typ models.InteractionType) (bool, error) {
	return s.hasFn(ctx, userID, loopID, typ)
}
func (s *interactionRepoStub) ViewerStates(ctx context.Context, userID uuid.UUID, ids []uuid.UUID) (map[uuid.UUID]models.ViewerState, error) {
	return s.viewerStatesFn(ctx, userID, ids)
}

func noopInteractionRepo() *interactionRepoStub {
	return &interactionRepoStub{
		toggleFn: func(_ context.Context, _, _ uuid.UUID, typ models.InteractionType) (*models.InteractionResult, error) {
			return &models.InteractionResult{Action: models.ActionAdded, Type: typ, Count: 1}, nil
		},
		setFn: func(_ context.Context, _, _ uuid.UUID, typ models.InteractionType, present bool) (*models.InteractionResult, error) {
			action := models.ActionAdded
			if !present {
				action = models.ActionRemoved
			}
			return &models.InteractionResult{Action: action, Type: typ, Count: 1}, nil
		},
		hasFn: func(_ context.Context, _, _ uuid.UUID, _ models.InteractionType) (bool, error) { return false, nil },
		viewerStatesFn: func(_ context.Context, _ uuid.UUID, _ []uuid.UUID) (map[uuid.UUID]models.ViewerState, error) {
			return map[uuid.UUID]models.ViewerState{}, nil
		},
	}
}

// checkerStub is a stub for authz.Checker.
type checkerStub struct {
	hasCapabilityFn func(context.Context, uuid.UUID, authz.Capability) (bool, error)
	circleRoleFn    func(context.Context, uuid.UUID, uuid.UUID) (string, bool, error)
	ensureActiveFn  func(context.Context, uuid.UUID) error
}

func (s *checkerStub) HasCapability(ctx context.Context, userID uuid.UUID, c authz.Capability) (bool, error) {
	return s.hasCapabilityFn(ctx, userID, c)
}
func (s *checkerStub) CircleRole(ctx context.Context, userID, circleID uuid.UUID) (string, bool, error) {
	return s.circleRoleFn(ctx, userID, circleID)
}
func (s *checkerStub) EnsureActive(ctx context.Context, userID uuid.UUID) error {
	return s.ensureActiveFn(ctx, userID)
}

func allowAllChecker() *checkerStub {
	return &checkerStub{
		hasCapabilityFn: func(context.Context, uuid.UUID, authz.Capability) (bool, error) { return false, nil },
		circleRoleFn:    func(context.Context, uuid.UUID, uuid.UUID) (string, bool, error) { return "", false, nil },
		ensureActiveFn:  func(context.Context, uuid.UUID) error { return nil },
	}
}

// circleRepoStub is a stub for repository.CircleRepository.
type circleRepoStub struct {
	circles map[uuid.UUID]*models.Circle
	roles   map[[2]uuid.UUID]string
}

func newCircleRepoStub() *circleRepoStub {
	return &circleRepoStub{circles: map[uuid.UUID]*models.Circle{}, roles: map[[2]uuid.UUID]string{}}
}

func (s *circleRepoStub) Create(_ context.Context, c *models.Circle) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	s.circles[c.ID] = c
	s.roles[[2]uuid.UUID{c.ID, c.OwnerID}] = models.CircleRoleOwner
	return nil
}
func (s *circleRepoStub) GetByID(_ context.Context, id uuid.UUID) (*models.Circle, error) {
	c, ok := s.circles[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return c, nil
}
func (s *circleRepoStub) GetBySlug(_ context.Context, slug string) (*models.Circle, error) {
	for _, c := range s.circles {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}
func (s *circleRepoStub) SlugExists(ctx context.Context, slug string) (bool, error) {
	_, err := s.GetBySlug(ctx, slug)
	return err == nil, nil
}
func (s *circleRepoStub) List(context.Context, int, int) ([]models.Circle, error) { return nil, nil }
func (s *circleRepoStub) AddMember(_ context.Context, circleID, userID uuid.UUID, role string) (bool, error) {
	key := [2]uuid.UUID{circleID, userID}
	if _, ok := s.roles[key]; ok {
		return false, nil
	}
	s.roles[key] = role
	return true, nil
}
func (s *circleRepoStub) RemoveMember(_ context.Context, circleID, userID uuid.UUID) (bool, error) {
	key := [2]uuid.UUID{circleID, userID}
	_, ok := s.roles[key]
	delete(s.roles, key)
	return ok, nil
}
func (s *circleRepoStub) MemberRole(_ context.Context, circleID, userID uuid.UUID) (string, error) {
	return s.roles[[2]uuid.UUID{circleID, userID}], nil
}
func (s *circleRepoStub) ListMembers(context.Context, uuid.UUID, int, int) ([]models.CircleMember, error) {
	return nil, nil
}

// checkerFor resolves circle roles from the stub's membership table.
func checkerFor(circles *circleRepoStub) *checkerStub {
	c := allowAllChecker()
	c.circleRoleFn = func(_ context.Context, userID, circleID uuid.UUID) (string, bool, error) {
		role := circles.roles[[2]uuid.UUID{circleID, userID}]
		return role, role != "", nil
	}
	return c
}

// followRepoStub is a stub for repository.FollowRepository.
type followRepoStub struct {
	edges map[[2]uuid.UUID]bool
}

func newFollowRepoStub() *followRepoStub {
	return &followRepoStub{edges: map[[2]uuid.UUID]bool{}}
}

func (s *followRepoStub) Follow(_ context.Context, a, b uuid.UUID) (bool, error) {
	key := [2]uuid.UUID{a, b}
	if s.edges[key] {
		return false, nil
	}
	s.edges[key] = true
	return true, nil
}
func (s *followRepoStub) Unfollow(_ context.Context, a, b uuid.UUID) (bool, error) {
	key := [2]uuid.UUID{a, b}
	ok := s.edges[key]
	delete(s.edges, key)
	return ok, nil
}
func (s *followRepoStub) IsFollowing(_ context.Context, a, b uuid.UUID) (bool, error) {
	return s.edges[[2]uuid.UUID{a, b}], nil
}
func (s *followRepoStub) FollowerIDs(_ context.Context, b uuid.UUID) ([]uuid.UUID, error) {
	var out []uuid.UUID
	for k := range s.edges {
		if k[1] == b {
			out = append(out, k[0])
		}
	}
	return out, nil
}
func (s *followRepoStub) ListFollowers(context.Context, uuid.UUID, int, int) ([]models.Profile, error) {
	return nil, nil
}
func (s *followRepoStub) ListFollowing(context.Context, uuid.UUID, int, int) ([]models.Profile, error) {
	return nil, nil
}
func (s *followRepoStub) Counts(context.Context, uuid.UUID) (int64, int64, error) { return 0, 0, nil }

// published is one captured Publish call.
type published struct {
	Kind    events.Kind
	Payload any
}

// recordingPublisher captures side effects instead of running them.
type recordingPublisher struct {
	mu     sync.Mutex
	events []published
}

func (p *recordingPublisher) Publish(_ context.Context, kind events.Kind, payload any) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, published{Kind: kind, Payload: payload})
}

func (p *recordingPublisher) notifications() []events.NotificationPayload {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []events.NotificationPayload
	for _, e := range p.events {
		if n, ok := e.Payload.(events.NotificationPayload); ok {
			out = append(out, n)
		}
	}
	return out
}

func (p *recordingPublisher) kinds() []events.Kind {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Kind, len(p.events))
	for i, e := range p.events {
		out[i] = e.Kind
	}
	return out
}

func assertCode(t *testing.T, err error, code string) {
	t.Helper()
	require.Error(t, err)
	var appErr *models.AppError
	require.True(t, errors.As(err, &appErr), "expected AppError, got %T: %v", err, err)
	assert.Equal(t, code, appErr.Code)
}

func assertValidationError(t *testing.T, err error) {
	t.Helper()
	assertCode(t, err, models.CodeValidation)
}

func text(s string) models.Content {
	return models.Content{Type: models.ContentText, Text: s}
}
