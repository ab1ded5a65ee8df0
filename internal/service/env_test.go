package service

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"loop/internal/authz"
	"loop/internal/models"
	"loop/internal/repository"
	"loop/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// testEnv wires every service over a private in-memory SQLite database.
type testEnv struct {
	db      *gorm.DB
	pub     *recordingPublisher
	checker authz.Checker

	profiles      repository.ProfileRepository
	follows       repository.FollowRepository
	circles       repository.CircleRepository
	loops         repository.LoopRepository
	counters      repository.CounterRepository
	interactions  repository.InteractionRepository
	notifications repository.NotificationRepository
	outbox        repository.OutboxRepository

	loopSvc         *LoopService
	counterSvc      *CounterService
	feedSvc         *FeedService
	userSvc         *UserService
	circleSvc       *CircleService
	commentSvc      *CommentService
	giftSvc         *GiftService
	streamSvc       *StreamService
	adminSvc        *AdminService
	notificationSvc *NotificationService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := testutil.SQLiteDB(t)

	e := &testEnv{
		db:            db,
		pub:           &recordingPublisher{},
		profiles:      repository.NewProfileRepository(db),
		follows:       repository.NewFollowRepository(db),
		circles:       repository.NewCircleRepository(db),
		loops:         repository.NewLoopRepository(db),
		counters:      repository.NewCounterRepository(db),
		interactions:  repository.NewInteractionRepository(db),
		notifications: repository.NewNotificationRepository(db),
		outbox:        repository.NewOutboxRepository(db),
	}
	e.checker = authz.NewChecker(e.profiles, e.circles)
	checker := e.checker

	e.loopSvc = NewLoopService(e.loops, e.counters, e.interactions, e.circles, e.follows, checker, e.pub, 0)
	e.counterSvc = NewCounterService(e.counters, e.interactions, e.loops, e.circles, e.follows, checker, e.pub)
	e.feedSvc = NewFeedService(repository.NewFeedRepository(db), e.counters, e.interactions, e.circles, 24*time.Hour, time.Minute)
	e.userSvc = NewUserService(e.profiles, e.follows, checker, e.pub)
	e.circleSvc = NewCircleService(e.circles, checker)
	e.commentSvc = NewCommentService(repository.NewCommentRepository(db), e.counters, e.loops, e.circles, e.follows, checker, e.pub)
	e.giftSvc = NewGiftService(repository.NewGiftRepository(db), e.loops, e.circles, e.follows, checker, e.pub)
	e.streamSvc = NewStreamService(repository.NewStreamRepository(db), e.follows, checker, e.pub)
	e.adminSvc = NewAdminService(e.profiles, e.outbox, checker)
	e.notificationSvc = NewNotificationService(e.notifications, e.pub)
	return e
}

var userSeq atomic.Int64

func (e *testEnv) user(t *testing.T, role string) *models.Profile {
	t.Helper()
	n := userSeq.Add(1)
	p := &models.Profile{ID: uuid.New(), Username: fmt.Sprintf("member%d", n), Role: role, Coins: 100}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) root(t *testing.T, author uuid.UUID, body string) *models.Loop {
	t.Helper()
	loop, err := e.loopSvc.CreateRoot(context.Background(), CreateLoopInput{AuthorID: author, Content: text(body)})
	require.NoError(t, err)
	return loop
}
