package repository

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/hemidirasim/sahibparfum-sub001/internal/models"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestMemoryTokenStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	tok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	in := &models.AuthToken{Value: "abc", RefreshToken: "r1", ExpiresAt: time.Now().Add(time.Hour)}
	require.NoError(t, store.Set(ctx, in))

	in.Value = "mutated"
	tok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "abc", tok.Value)

	require.NoError(t, store.Delete(ctx))
	tok, _ = store.Get(ctx)
	assert.Nil(t, tok)
}

func TestRedisTokenStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisTokenStore(client)

	tok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)

	expires := time.Now().Add(10 * time.Minute).Truncate(time.Second)
	require.NoError(t, store.Set(ctx, &models.AuthToken{Value: "abc", RefreshToken: "r1", ExpiresAt: expires}))

	tok, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.Equal(t, "abc", tok.Value)
	assert.Equal(t, "r1", tok.RefreshToken)
	assert.True(t, expires.Equal(tok.ExpiresAt))

	// Expired tokens stay readable for their refresh token.
	mr.FastForward(11 * time.Minute)
	tok, err = store.Get(ctx)
	require.NoError(t, err)
	require.NotNil(t, tok)
	assert.False(t, tok.ValidAt(time.Now().Add(11*time.Minute)))

	mr.FastForward(refreshGrace)
	tok, err = store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestRedisTokenStore_StaleTokenNotStored(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	store := NewRedisTokenStore(client)

	require.NoError(t, store.Set(ctx, &models.AuthToken{Value: "old", ExpiresAt: time.Now().Add(-2 * refreshGrace)}))
	tok, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, tok)
}

func TestMemoryBucketStore_WindowAndSweep(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryBucketStore()
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	window := 15 * time.Minute

	for i := 1; i <= 3; i++ {
		b, err := store.Hit(ctx, "1.2.3.4", start.Add(time.Duration(i)*time.Second), window)
		require.NoError(t, err)
		assert.Equal(t, i, b.Count)
		assert.Equal(t, start.Add(time.Second).Add(window), b.ResetAt)
	}

	b, err := store.Hit(ctx, "1.2.3.4", start.Add(window+2*time.Second), window)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count)

	_, _ = store.Hit(ctx, "5.6.7.8", start, window)
	assert.Equal(t, 2, store.Len())

	removed := store.Sweep(start.Add(window + time.Second))
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, store.Len())
}

func TestRedisBucketStore(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := NewRedisBucketStore(client)
	now := time.Now()
	window := 15 * time.Minute

	for i := 1; i <= 3; i++ {
		b, err := store.Hit(ctx, "1.2.3.4", now, window)
		require.NoError(t, err)
		assert.Equal(t, i, b.Count)
		assert.WithinDuration(t, now.Add(window), b.ResetAt, time.Second)
	}

	assert.True(t, mr.Exists(rateLimitKeyPrefix+"1.2.3.4"))

	mr.FastForward(window + time.Second)
	b, err := store.Hit(ctx, "1.2.3.4", now, window)
	require.NoError(t, err)
	assert.Equal(t, 1, b.Count)
}

func TestRedisOrderCache(t *testing.T) {
	mr, client := newTestRedis(t)
	cache := NewRedisOrderCache(client, time.Minute)
	ctx := context.Background()

	got, err := cache.Get(ctx, "o1")
	require.NoError(t, err)
	assert.Nil(t, got)

	order := &models.Order{
		ID:            "o1",
		OrderNumber:   "ORD-20260101-ABCDEF",
		Status:        models.OrderStatusPending,
		PaymentStatus: models.PaymentStatusPending,
		TotalAmount:   decimal.RequireFromString("42.50"),
	}
	require.NoError(t, cache.Set(ctx, order))
	assert.Equal(t, time.Minute, mr.TTL("order:o1"))

	got, err = cache.Get(ctx, "o1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "ORD-20260101-ABCDEF", got.OrderNumber)
	assert.True(t, got.TotalAmount.Equal(order.TotalAmount))

	require.NoError(t, cache.Delete(ctx, "o1"))
	assert.False(t, mr.Exists("order:o1"))
}
