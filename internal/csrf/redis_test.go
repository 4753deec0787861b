package csrf

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedisStore(t *testing.T) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	return NewRedisStore(client, time.Hour), mr
}

func TestRedisStoreIssueAndValidate(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, "acct-1")
	require.NoError(t, err)

	assert.NoError(t, store.Validate(ctx, "acct-1", token))
	assert.ErrorIs(t, store.Validate(ctx, "acct-1", "forged"), ErrTokenInvalid)
	assert.ErrorIs(t, store.Validate(ctx, "acct-2", token), ErrTokenInvalid)
	assert.Equal(t, time.Hour, mr.TTL("csrf:acct-1"))
}

func TestRedisStoreReissueInvalidatesPrevious(t *testing.T) {
	store, _ := newRedisStore(t)
	ctx := context.Background()

	first, _, err := store.Issue(ctx, "acct-1")
	require.NoError(t, err)
	second, _, err := store.Issue(ctx, "acct-1")
	require.NoError(t, err)

	assert.ErrorIs(t, store.Validate(ctx, "acct-1", first), ErrTokenInvalid)
	assert.NoError(t, store.Validate(ctx, "acct-1", second))
}

func TestRedisStoreExpiry(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, "acct-1")
	require.NoError(t, err)

	mr.FastForward(time.Hour)
	assert.ErrorIs(t, store.Validate(ctx, "acct-1", token), ErrTokenInvalid)

	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestRedisStoreRevoke(t *testing.T) {
	store, mr := newRedisStore(t)
	ctx := context.Background()

	token, _, err := store.Issue(ctx, "acct-1")
	require.NoError(t, err)
	require.NoError(t, store.Revoke(ctx, "acct-1"))

	assert.False(t, mr.Exists("csrf:acct-1"))
	assert.ErrorIs(t, store.Validate(ctx, "acct-1", token), ErrTokenInvalid)
}

func TestRedisStoreUnavailable(t *testing.T) {
	store, mr := newRedisStore(t)
	mr.Close()

	err := store.Validate(context.Background(), "acct-1", "token")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrTokenInvalid)
}
