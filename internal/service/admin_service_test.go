package service

import (
	"context"
	"testing"

	"loop/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAdminService_SetRole(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	admin, mod, target := e.user(t, models.RoleAdmin), e.user(t, models.RoleModerator), e.user(t, models.RoleUser)

	p, err := e.adminSvc.SetRole(ctx, admin.ID, target.ID, models.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, models.RoleModerator, p.Role)

	_, err = e.adminSvc.SetRole(ctx, mod.ID, target.ID, models.RoleAdmin)
	assertCode(t, err, models.CodeForbidden)

	_, err = e.adminSvc.SetRole(ctx, admin.ID, target.ID, "root")
	assertValidationError(t, err)

	_, err = e.adminSvc.SetRole(ctx, admin.ID, admin.ID, models.RoleUser)
	assertValidationError(t, err)
}

func TestAdminService_SetBanned(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	admin, target := e.user(t, models.RoleAdmin), e.user(t, models.RoleUser)

	p, err := e.adminSvc.SetBanned(ctx, admin.ID, target.ID, true)
	require.NoError(t, err)
	assert.True(t, p.IsBanned)

	// Banned users can no longer write.
	_, err = e.loopSvc.CreateRoot(ctx, CreateLoopInput{AuthorID: target.ID, Content: text("hi")})
	assertCode(t, err, models.CodeForbidden)

	_, err = e.adminSvc.SetBanned(ctx, admin.ID, admin.ID, true)
	assertValidationError(t, err)
	_, err = e.adminSvc.SetBanned(ctx, target.ID, admin.ID, true)
	assertCode(t, err, models.CodeForbidden)

	p, err = e.adminSvc.SetBanned(ctx, admin.ID, target.ID, false)
	require.NoError(t, err)
	assert.False(t, p.IsBanned)
}

func TestAdminService_Outbox(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ctx := context.Background()
	admin, user := e.user(t, models.RoleAdmin), e.user(t, models.RoleUser)

	require.NoError(t, e.outbox.Enqueue(ctx, &models.OutboxEvent{Kind: "notification.one", Payload: "{}", Status: models.OutboxDead}))
	require.NoError(t, e.outbox.Enqueue(ctx, &models.OutboxEvent{Kind: "notification.one", Payload: "{}"}))

	report, err := e.adminSvc.Outbox(ctx, admin.ID, models.OutboxDead, 10, 0)
	require.NoError(t, err)
	assert.Len(t, report.Events, 1)
	assert.Equal(t, int64(1), report.Counts[models.OutboxDead])
	assert.Equal(t, int64(1), report.Counts[models.OutboxPending])

	_, err = e.adminSvc.Outbox(ctx, admin.ID, "lost", 10, 0)
	assertValidationError(t, err)
	_, err = e.adminSvc.Outbox(ctx, user.ID, "", 10, 0)
	assertCode(t, err, models.CodeForbidden)

	n, err := e.adminSvc.ReplayDead(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	report, err = e.adminSvc.Outbox(ctx, admin.ID, "", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), report.Counts[models.OutboxPending])
}
