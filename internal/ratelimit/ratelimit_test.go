package ratelimit

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/dojo/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTokenBucketDeniesAfterBurst(t *testing.T) {
	ctx := context.Background()
	bucket := NewTokenBucket(newTestClient(t))

	for i := 0; i < 3; i++ {
		res, err := bucket.Allow(ctx, "bucket:user_1", 0.001, 3)
		require.NoError(t, err)
		assert.True(t, res.Allowed, "request %d should pass", i)
	}

	res, err := bucket.Allow(ctx, "bucket:user_1", 0.001, 3)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 3, res.Limit)
	assert.Positive(t, res.RetryAfter)
	assert.Zero(t, res.Remaining)

	other, err := bucket.Allow(ctx, "bucket:user_2", 0.001, 3)
	require.NoError(t, err)
	assert.True(t, other.Allowed)
}

func TestTokenBucketRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	bucket := NewTokenBucket(newTestClient(t))

	_, err := bucket.Allow(ctx, "", 1, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
	_, err = bucket.Allow(ctx, "k", 0, 1)
	assert.ErrorIs(t, err, ErrInvalidBucket)
	_, err = bucket.Allow(ctx, "k", 1, 0)
	assert.ErrorIs(t, err, ErrInvalidBucket)

	var nilBucket *TokenBucket
	_, err = nilBucket.Allow(ctx, "k", 1, 1)
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestLockerIsExclusiveUntilReleased(t *testing.T) {
	ctx := context.Background()
	limiter := NewCheckoutLimiter(config.Config{}, newTestClient(t))
	require.True(t, limiter.Enabled())

	token, ok, err := limiter.TryLockCustomer(ctx, "user_1")
	require.NoError(t, err)
	require.True(t, ok)
	require.NotEmpty(t, token)

	_, ok, err = limiter.TryLockCustomer(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, limiter.ReleaseCustomer(ctx, "user_1", "someone-else"))
	_, ok, err = limiter.TryLockCustomer(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, limiter.ReleaseCustomer(ctx, "user_1", token))
	_, ok, err = limiter.TryLockCustomer(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNilLimiterAllowsEverything(t *testing.T) {
	ctx := context.Background()
	limiter := NewCheckoutLimiter(config.Config{}, nil)
	assert.Nil(t, limiter)
	assert.False(t, limiter.Enabled())

	res, err := limiter.AllowUser(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	_, ok, err := limiter.TryLockCustomer(ctx, "user_1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, limiter.ReleaseCustomer(ctx, "user_1", ""))
}

func TestCheckoutLimiterUsesConfiguredBurst(t *testing.T) {
	ctx := context.Background()
	cfg := config.Config{Billing: config.BillingConfig{CheckoutRate: 0.001, CheckoutBurst: 2}}
	limiter := NewCheckoutLimiter(cfg, newTestClient(t))

	for i := 0; i < 2; i++ {
		res, err := limiter.AllowUser(ctx, "user_1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
	}
	res, err := limiter.AllowUser(ctx, "user_1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)
}
