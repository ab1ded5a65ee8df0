package service

import (
	"context"
	"testing"
	"time"

	"loop/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultFeedLimit, ClampLimit(0))
	assert.Equal(t, DefaultFeedLimit, ClampLimit(-4))
	assert.Equal(t, 7, ClampLimit(7))
	assert.Equal(t, MaxFeedLimit, ClampLimit(5000))
}

func feedIDs(page *FeedPage) []uuid.UUID {
	out := make([]uuid.UUID, len(page.Loops))
	for i, v := range page.Loops {
		out[i] = v.ID
	}
	return out
}

func TestFeedService_FollowingAndPersonalized(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	viewer, followed, stranger := e.user(t, models.RoleUser), e.user(t, models.RoleUser), e.user(t, models.RoleUser)
	_, err := e.userSvc.Follow(ctx, viewer.ID, followed.ID)
	require.NoError(t, err)

	own := e.root(t, viewer.ID, "mine")
	theirs := e.root(t, followed.ID, "theirs")
	e.root(t, stranger.ID, "noise")
	_, err = e.loopSvc.CreateBranch(ctx, CreateBranchInput{AuthorID: followed.ID, ParentID: theirs.ID, Content: text("reply")})
	require.NoError(t, err)

	following, err := e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: viewer.ID, Mode: FeedFollowing})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{theirs.ID}, feedIDs(following), "roots only, no own loops")

	personalized, err := e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: viewer.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{theirs.ID, own.ID}, feedIDs(personalized), "newest first")
	assert.False(t, personalized.HasMore)
	assert.Equal(t, int64(1), personalized.Loops[0].Stats.Branches)

	_, err = e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedPersonalized})
	assertCode(t, err, models.CodeUnauthorized)
	_, err = e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: viewer.ID, Mode: "chronological"})
	assertValidationError(t, err)
}

func TestFeedService_Pagination(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	author := e.user(t, models.RoleUser)
	for i := 0; i < 5; i++ {
		e.root(t, author.ID, "post")
	}

	first, err := e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedRecent, Limit: 3})
	require.NoError(t, err)
	assert.Len(t, first.Loops, 3)
	assert.True(t, first.HasMore)

	second, err := e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedRecent, Limit: 3, Offset: 3})
	require.NoError(t, err)
	assert.Len(t, second.Loops, 2)
	assert.False(t, second.HasMore)
	assert.NotContains(t, feedIDs(first), second.Loops[0].ID)
}

func TestFeedService_ViewerState(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	author, fan := e.user(t, models.RoleUser), e.user(t, models.RoleUser)
	loop := e.root(t, author.ID, "like me")

	_, err := e.counterSvc.Interact(ctx, InteractInput{UserID: fan.ID, LoopID: loop.ID, Type: models.InteractionLike})
	require.NoError(t, err)

	page, err := e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: fan.ID, Mode: FeedRecent})
	require.NoError(t, err)
	require.Len(t, page.Loops, 1)
	assert.Equal(t, int64(1), page.Loops[0].Stats.Likes)
	assert.True(t, page.Loops[0].Viewer.IsLiked)

	anon, err := e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedRecent})
	require.NoError(t, err)
	assert.False(t, anon.Loops[0].Viewer.IsLiked)
}

func TestFeedService_Trending(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	author := e.user(t, models.RoleUser)
	e.root(t, author.ID, "quiet")
	popular := e.root(t, author.ID, "popular")

	for i := 0; i < 3; i++ {
		fan := e.user(t, models.RoleUser)
		_, err := e.counterSvc.Interact(ctx, InteractInput{UserID: fan.ID, LoopID: popular.ID, Type: models.InteractionLike})
		require.NoError(t, err)
	}

	page, err := e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedTrending})
	require.NoError(t, err)
	require.Len(t, page.Loops, 2)
	assert.Equal(t, popular.ID, page.Loops[0].ID)
	assert.Equal(t, int64(3), page.Loops[0].Stats.Likes)

	// Loops older than the window drop out.
	e.feedSvc.now = func() time.Time { return time.Now().UTC().Add(48 * time.Hour) }
	page, err = e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedTrending, Limit: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Loops)
}

func TestFeedService_CircleAndAuthor(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	owner, outsider := e.user(t, models.RoleUser), e.user(t, models.RoleUser)

	circle, err := e.circleSvc.Create(ctx, CreateCircleInput{OwnerID: owner.ID, Name: "Back Room", IsPrivate: true})
	require.NoError(t, err)
	inCircle, err := e.loopSvc.CreateRoot(ctx, CreateLoopInput{AuthorID: owner.ID, Content: text("members"), CircleID: &circle.ID})
	require.NoError(t, err)
	followersOnly, err := e.loopSvc.CreateRoot(ctx, CreateLoopInput{AuthorID: owner.ID, Content: text("fans"), Visibility: models.VisibilityFollowers})
	require.NoError(t, err)
	public := e.root(t, owner.ID, "everyone")

	page, err := e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: owner.ID, Mode: FeedCircle, CircleID: circle.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{inCircle.ID}, feedIDs(page))

	_, err = e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: outsider.ID, Mode: FeedCircle, CircleID: circle.ID})
	assertCode(t, err, models.CodeForbidden)
	_, err = e.feedSvc.Assemble(ctx, FeedQuery{Mode: FeedCircle, CircleID: uuid.New()})
	assertCode(t, err, models.CodeNotFound)

	mine, err := e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: owner.ID, Mode: FeedAuthor, AuthorID: owner.ID})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{inCircle.ID, followersOnly.ID, public.ID}, feedIDs(mine))

	theirs, err := e.feedSvc.Assemble(ctx, FeedQuery{ViewerID: outsider.ID, Mode: FeedAuthor, AuthorID: owner.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{public.ID}, feedIDs(theirs))
}
