package service

import (
	"context"
	"errors"
	"testing"

	"loop/internal/authz"
	"loop/internal/events"
	"loop/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loopFixture struct {
	store   *memLoopStore
	circles *circleRepoStub
	follows *followRepoStub
	checker *checkerStub
	pub     *recordingPublisher
	svc     *LoopService
}

func newLoopFixture(maxDepth int) *loopFixture {
	f := &loopFixture{
		store:   newMemLoopStore(),
		circles: newCircleRepoStub(),
		follows: newFollowRepoStub(),
		pub:     &recordingPublisher{},
	}
	f.checker = checkerFor(f.circles)
	f.svc = NewLoopService(f.store, f.store, noopInteractionRepo(), f.circles, f.follows, f.checker, f.pub, maxDepth)
	return f
}

func TestLoopService_CreateRoot(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	author := uuid.New()

	loop, err := f.svc.CreateRoot(context.Background(), CreateLoopInput{AuthorID: author, Content: text("  <b>first</b> loop ")})
	require.NoError(t, err)
	assert.Nil(t, loop.ParentID)
	assert.Equal(t, 0, loop.Depth)
	assert.Equal(t, "first loop", loop.Content.Text)
	assert.Equal(t, models.VisibilityPublic, loop.Visibility)

	stats, err := f.store.Get(context.Background(), loop.ID)
	require.NoError(t, err)
	assert.Zero(t, stats.Likes)
	assert.Zero(t, stats.Branches)
	assert.Equal(t, DefaultMaxBranchDepth, f.svc.MaxDepth())
}

func TestLoopService_CreateRoot_Validation(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)

	tests := []struct {
		name  string
		input CreateLoopInput
	}{
		{name: "empty text", input: CreateLoopInput{AuthorID: uuid.New(), Content: text("   ")}},
		{name: "markup only", input: CreateLoopInput{AuthorID: uuid.New(), Content: text("<script>x</script>")}},
		{name: "no content type", input: CreateLoopInput{AuthorID: uuid.New()}},
		{name: "image without url", input: CreateLoopInput{AuthorID: uuid.New(), Content: models.Content{Type: models.ContentImage}}},
		{name: "bad visibility", input: CreateLoopInput{AuthorID: uuid.New(), Content: text("hi"), Visibility: "secret"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.svc.CreateRoot(context.Background(), tc.input)
			assertValidationError(t, err)
		})
	}
	assert.Zero(t, f.store.count())
}

func TestLoopService_CreateRoot_BannedAuthor(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	f.checker.ensureActiveFn = func(context.Context, uuid.UUID) error {
		return models.NewForbiddenError("Account is suspended")
	}

	_, err := f.svc.CreateRoot(context.Background(), CreateLoopInput{AuthorID: uuid.New(), Content: text("hi")})
	assertCode(t, err, models.CodeForbidden)
	assert.Zero(t, f.store.count())
}

func TestLoopService_CreateRoot_Circle(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	owner, outsider := uuid.New(), uuid.New()
	circle := &models.Circle{Name: "Jazz", Slug: "jazz", OwnerID: owner}
	require.NoError(t, f.circles.Create(context.Background(), circle))

	_, err := f.svc.CreateRoot(context.Background(), CreateLoopInput{AuthorID: outsider, Content: text("hi"), CircleID: &circle.ID})
	assertCode(t, err, models.CodeForbidden)

	missing := uuid.New()
	_, err = f.svc.CreateRoot(context.Background(), CreateLoopInput{AuthorID: owner, Content: text("hi"), CircleID: &missing})
	assertCode(t, err, models.CodeNotFound)

	loop, err := f.svc.CreateRoot(context.Background(), CreateLoopInput{AuthorID: owner, Content: text("hi"), CircleID: &circle.ID})
	require.NoError(t, err)
	assert.Equal(t, circle.ID, *loop.CircleID)
}

func TestLoopService_DepthChain(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(10)
	ctx := context.Background()
	author := uuid.New()

	root, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: author, Content: text("root")})
	require.NoError(t, err)

	parent := root
	for depth := 1; depth <= 10; depth++ {
		child, err := f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: author, ParentID: parent.ID, Content: text("branch")})
		require.NoError(t, err, "depth %d", depth)
		assert.Equal(t, depth, child.Depth)
		assert.Equal(t, parent.ID, *child.ParentID)
		parent = child
	}

	before := f.store.count()
	_, err = f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: author, ParentID: parent.ID, Content: text("too deep")})
	assertCode(t, err, models.CodeDepthLimitExceeded)
	assert.True(t, errors.Is(err, models.ErrDepthLimitExceeded))
	assert.Equal(t, before, f.store.count(), "nothing is inserted past the ceiling")

	chain, err := f.svc.Ancestors(ctx, parent.ID, author)
	require.NoError(t, err)
	require.Len(t, chain, 11)
	for i, v := range chain {
		assert.Equal(t, i, v.Depth)
	}
	assert.Equal(t, root.ID, chain[0].ID)
}

func TestLoopService_CreateBranch_CountsAndNotifies(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	ctx := context.Background()
	alice, bob := uuid.New(), uuid.New()

	root, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: alice, Content: text("original")})
	require.NoError(t, err)

	branch, err := f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: bob, ParentID: root.ID, Content: text("remix")})
	require.NoError(t, err)
	assert.Equal(t, 1, branch.Depth)

	view, err := f.svc.Get(ctx, root.ID, alice)
	require.NoError(t, err)
	assert.Equal(t, int64(1), view.Stats.Branches)

	notes := f.pub.notifications()
	require.Len(t, notes, 1)
	assert.Equal(t, []uuid.UUID{alice}, notes[0].RecipientIDs)
	assert.Equal(t, models.NotificationBranch, notes[0].Type)
	assert.Equal(t, bob, *notes[0].ActorID)
	assert.Contains(t, f.pub.kinds(), events.KindBroadcast)

	// Branching your own loop does not notify.
	_, err = f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: alice, ParentID: root.ID, Content: text("self")})
	require.NoError(t, err)
	assert.Len(t, f.pub.notifications(), 1)
}

func TestLoopService_CreateBranch_MissingParent(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)

	_, err := f.svc.CreateBranch(context.Background(), CreateBranchInput{AuthorID: uuid.New(), ParentID: uuid.New(), Content: text("orphan")})
	assertCode(t, err, models.CodeNotFound)
	assert.Zero(t, f.store.count())
}

func TestLoopService_CreateBranch_CounterFailureIsQueued(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	ctx := context.Background()
	author := uuid.New()

	root, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: author, Content: text("root")})
	require.NoError(t, err)

	f.store.adjustErr = errors.New("connection reset")
	branch, err := f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: uuid.New(), ParentID: root.ID, Content: text("still works")})
	require.NoError(t, err)
	require.NotNil(t, branch)

	assert.Contains(t, f.pub.kinds(), events.KindCounterAdjust)
	for _, e := range f.pub.events {
		if e.Kind == events.KindCounterAdjust {
			p := e.Payload.(events.CounterPayload)
			assert.Equal(t, root.ID, p.LoopID)
			assert.Equal(t, models.CounterBranches, p.Counter)
			assert.Equal(t, int64(1), p.Delta)
		}
	}
}

func TestLoopService_FollowersOnlyVisibility(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	ctx := context.Background()
	author, fan, stranger := uuid.New(), uuid.New(), uuid.New()
	_, _ = f.follows.Follow(ctx, fan, author)

	loop, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: author, Content: text("close friends"), Visibility: models.VisibilityFollowers})
	require.NoError(t, err)

	_, err = f.svc.Get(ctx, loop.ID, fan)
	assert.NoError(t, err)
	_, err = f.svc.Get(ctx, loop.ID, stranger)
	assertCode(t, err, models.CodeNotFound)
	_, err = f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: stranger, ParentID: loop.ID, Content: text("hi")})
	assertCode(t, err, models.CodeNotFound)
}

func TestLoopService_Children(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	ctx := context.Background()
	author := uuid.New()

	root, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: author, Content: text("root")})
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: author, ParentID: root.ID, Content: text("child")})
		require.NoError(t, err)
	}

	children, err := f.svc.Children(ctx, root.ID, author, 10, 0)
	require.NoError(t, err)
	assert.Len(t, children, 3)
	for _, c := range children {
		assert.Equal(t, 1, c.Depth)
	}
}

func TestLoopService_Delete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	setup := func(t *testing.T) (*loopFixture, uuid.UUID, *models.Loop, *models.Loop) {
		f := newLoopFixture(0)
		author := uuid.New()
		root, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: author, Content: text("root")})
		require.NoError(t, err)
		branch, err := f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: author, ParentID: root.ID, Content: text("b")})
		require.NoError(t, err)
		_, err = f.svc.CreateBranch(ctx, CreateBranchInput{AuthorID: author, ParentID: branch.ID, Content: text("c")})
		require.NoError(t, err)
		return f, author, root, branch
	}

	t.Run("author deletes subtree and parent count drops", func(t *testing.T) {
		f, author, root, branch := setup(t)
		require.NoError(t, f.svc.Delete(ctx, branch.ID, author))
		assert.Equal(t, 1, f.store.count())

		stats, err := f.store.Get(ctx, root.ID)
		require.NoError(t, err)
		assert.Zero(t, stats.Branches)
	})

	t.Run("stranger is forbidden", func(t *testing.T) {
		f, _, _, branch := setup(t)
		err := f.svc.Delete(ctx, branch.ID, uuid.New())
		assertCode(t, err, models.CodeForbidden)
		assert.Equal(t, 3, f.store.count())
	})

	t.Run("content moderator may delete", func(t *testing.T) {
		f, _, root, _ := setup(t)
		mod := uuid.New()
		f.checker.hasCapabilityFn = func(_ context.Context, id uuid.UUID, c authz.Capability) (bool, error) {
			return id == mod && c == authz.ModerateContent, nil
		}
		require.NoError(t, f.svc.Delete(ctx, root.ID, mod))
		assert.Zero(t, f.store.count())
	})

	t.Run("missing loop", func(t *testing.T) {
		f, author, _, _ := setup(t)
		assertCode(t, f.svc.Delete(ctx, uuid.New(), author), models.CodeNotFound)
	})
}

func TestLoopService_Delete_CircleModerator(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	ctx := context.Background()
	owner, member, mod := uuid.New(), uuid.New(), uuid.New()

	circle := &models.Circle{Name: "Jazz", Slug: "jazz", OwnerID: owner}
	require.NoError(t, f.circles.Create(ctx, circle))
	_, _ = f.circles.AddMember(ctx, circle.ID, member, models.CircleRoleMember)
	_, _ = f.circles.AddMember(ctx, circle.ID, mod, models.CircleRoleModerator)

	loop, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: member, Content: text("hi"), CircleID: &circle.ID})
	require.NoError(t, err)

	assertCode(t, f.svc.Delete(ctx, loop.ID, uuid.New()), models.CodeForbidden)
	require.NoError(t, f.svc.Delete(ctx, loop.ID, mod))
}

func TestLoopService_Delete_PrivateCircleHidesLoop(t *testing.T) {
	t.Parallel()
	f := newLoopFixture(0)
	ctx := context.Background()
	owner, stranger, mod := uuid.New(), uuid.New(), uuid.New()

	circle := &models.Circle{Name: "Vault", Slug: "vault", OwnerID: owner, IsPrivate: true}
	require.NoError(t, f.circles.Create(ctx, circle))
	loop, err := f.svc.CreateRoot(ctx, CreateLoopInput{AuthorID: owner, Content: text("secret"), CircleID: &circle.ID})
	require.NoError(t, err)

	assertCode(t, f.svc.Delete(ctx, loop.ID, stranger), models.CodeNotFound)
	assert.Equal(t, 1, f.store.count())

	f.checker.hasCapabilityFn = func(_ context.Context, id uuid.UUID, c authz.Capability) (bool, error) {
		return id == mod && c == authz.ModerateContent, nil
	}
	require.NoError(t, f.svc.Delete(ctx, loop.ID, mod))
	assert.Zero(t, f.store.count())
}
