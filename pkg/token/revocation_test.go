package token

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRevocationsLifecycle(t *testing.T) {
	store := NewMemoryRevocations()
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "live", time.Now().Add(time.Hour)))
	require.NoError(t, store.Revoke(ctx, "stale", time.Now().Add(-time.Minute)))

	revoked, err := store.IsRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)

	// An entry past its token's expiry reads as not revoked.
	revoked, err = store.IsRevoked(ctx, "stale")
	require.NoError(t, err)
	assert.False(t, revoked)

	revoked, err = store.IsRevoked(ctx, "never-seen")
	require.NoError(t, err)
	assert.False(t, revoked)

	require.NoError(t, store.Revoke(ctx, "stale2", time.Now().Add(-time.Minute)))
	removed, err := store.Sweep(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, removed, "stale was already dropped lazily, stale2 by the sweep")

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func newRedisRevocations(t *testing.T) (*RedisRevocations, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisRevocations(client), mr
}

func TestRedisRevocationsLifecycle(t *testing.T) {
	store, mr := newRedisRevocations(t)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "abc", time.Now().Add(time.Hour)))

	revoked, err := store.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.True(t, revoked)

	revoked, err = store.IsRevoked(ctx, "other")
	require.NoError(t, err)
	assert.False(t, revoked)

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Key TTL drives expiry.
	mr.FastForward(2 * time.Hour)

	revoked, err = store.IsRevoked(ctx, "abc")
	require.NoError(t, err)
	assert.False(t, revoked)
}

func TestRedisRevocationsExpiredIsNoop(t *testing.T) {
	store, _ := newRedisRevocations(t)
	ctx := context.Background()

	require.NoError(t, store.Revoke(ctx, "past", time.Now().Add(-time.Minute)))

	count, err := store.ActiveCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestIssuerWithRedisBackend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	issuer := NewIssuer(testSecret, time.Hour, NewRedisRevocations(client))
	ctx := context.Background()

	raw, _, err := issuer.Issue(testIdentity())
	require.NoError(t, err)

	_, err = issuer.Verify(ctx, raw)
	require.NoError(t, err)

	require.NoError(t, issuer.Revoke(ctx, raw))
	_, err = issuer.Verify(ctx, raw)
	assert.ErrorIs(t, err, ErrTokenRevoked)
}
