package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	prev := client
	SetClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { SetClient(prev) })
	return mr
}

func TestAside_FetchesOnceThenServesFromCache(t *testing.T) {
	withMiniredis(t)
	ctx := context.Background()

	calls := 0
	fetch := func(dest *[]string) func() error {
		return func() error {
			calls++
			*dest = []string{"a", "b"}
			return nil
		}
	}

	var first []string
	require.NoError(t, Aside(ctx, "k", &first, time.Minute, fetch(&first)))
	var second []string
	require.NoError(t, Aside(ctx, "k", &second, time.Minute, fetch(&second)))

	assert.Equal(t, 1, calls)
	assert.Equal(t, []string{"a", "b"}, second)
}

func TestAside_ExpiresWithTTL(t *testing.T) {
	mr := withMiniredis(t)
	ctx := context.Background()

	calls := 0
	var out int
	fetch := func() error { calls++; out = calls; return nil }

	require.NoError(t, Aside(ctx, "ttl", &out, time.Second, fetch))
	mr.FastForward(2 * time.Second)
	require.NoError(t, Aside(ctx, "ttl", &out, time.Second, fetch))
	assert.Equal(t, 2, calls)
}

func TestAside_PropagatesFetchError(t *testing.T) {
	withMiniredis(t)
	var out int
	err := Aside(context.Background(), "err", &out, time.Minute, func() error { return errors.New("db down") })
	assert.EqualError(t, err, "db down")
}

func TestAside_NoClientCallsFetch(t *testing.T) {
	prev := client
	SetClient(nil)
	t.Cleanup(func() { SetClient(prev) })

	var out string
	err := Aside(context.Background(), "nil", &out, time.Minute, func() error { out = "db"; return nil })
	require.NoError(t, err)
	assert.Equal(t, "db", out)
}

func TestInvalidateProfile(t *testing.T) {
	mr := withMiniredis(t)
	id := uuid.New()
	require.NoError(t, SetJSON(context.Background(), ProfileKey(id), map[string]string{"u": "x"}, time.Minute))
	assert.True(t, mr.Exists(ProfileKey(id)))

	InvalidateProfile(context.Background(), id)
	assert.False(t, mr.Exists(ProfileKey(id)))
}
