package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestNotifier_NilClientIsNoop(t *testing.T) {
	t.Parallel()
	n := NewNotifier(nil)
	assert.NoError(t, n.Broadcast(context.Background(), "user:1", "notification.created", nil))
	assert.NoError(t, n.Subscribe(context.Background(), "user:*", func(Message) {}))

	var nilNotifier *Notifier
	assert.NoError(t, nilNotifier.Broadcast(context.Background(), "user:1", "x", nil))
}

func TestRoomChannel(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "realtime:loop:abc", RoomChannel("loop:abc"))
}

func TestNotifier_RejectsEmptyRoom(t *testing.T) {
	t.Parallel()
	n := NewNotifier(newTestRedis(t))
	assert.Error(t, n.Broadcast(context.Background(), "  ", "x", nil))
}

func TestNotifier_BroadcastReachesSubscriber(t *testing.T) {
	n := NewNotifier(newTestRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan Message, 4)
	require.NoError(t, n.Subscribe(ctx, "loop:*", func(m Message) { got <- m }))

	require.NoError(t, n.Broadcast(ctx, "user:42", "notification.created", nil))
	require.NoError(t, n.Broadcast(ctx, "loop:7", "loop.branched", map[string]any{"branch_id": "b1"}))

	select {
	case m := <-got:
		assert.Equal(t, "loop:7", m.Room)
		assert.Equal(t, "loop.branched", m.Event)
		assert.Equal(t, "b1", m.Data["branch_id"])
		assert.False(t, m.SentAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	select {
	case m := <-got:
		t.Fatalf("unexpected message for room %s", m.Room)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestNotifier_SubscriberSurvivesPanics(t *testing.T) {
	n := NewNotifier(newTestRedis(t))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 2)
	require.NoError(t, n.Subscribe(ctx, "user:*", func(m Message) {
		if m.Event == "boom" {
			panic("handler failure")
		}
		got <- m.Event
	}))

	require.NoError(t, n.Broadcast(ctx, "user:1", "boom", nil))
	require.NoError(t, n.Broadcast(ctx, "user:1", "ok", nil))

	select {
	case evt := <-got:
		assert.Equal(t, "ok", evt)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber stopped after panic")
	}
}
