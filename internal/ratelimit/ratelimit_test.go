package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)
	return mr
}

func TestNoOpRateLimiter(t *testing.T) {
	limiter := &NoOpRateLimiter{}
	for i := 0; i < 10; i++ {
		allowed, err := limiter.Allow(context.Background(), "any")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiter_Disabled(t *testing.T) {
	limiter, err := NewRedisRateLimiter("", 100, time.Minute, true)
	require.NoError(t, err)

	allowed, err := limiter.Allow(context.Background(), "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, allowed)
	assert.NoError(t, limiter.Close())
}

func TestNewRedisRateLimiter_InvalidURL(t *testing.T) {
	_, err := NewRedisRateLimiter("not-a-valid-url", 100, time.Minute, false)
	assert.Error(t, err)
}

func TestNewRedisRateLimiter_InvalidLimit(t *testing.T) {
	_, err := NewRedisRateLimiter("redis://localhost:6379", 0, time.Minute, false)
	assert.Error(t, err)
}

func TestNewRedisRateLimiter_Unreachable(t *testing.T) {
	mr := setupTestRedis(t)
	addr := mr.Addr()
	mr.Close()

	_, err := NewRedisRateLimiter("redis://"+addr, 10, time.Minute, false)
	assert.Error(t, err)
}

func TestRedisRateLimiter_EnforcesLimitPerKey(t *testing.T) {
	mr := setupTestRedis(t)

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 3, time.Minute, false)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		allowed, err := limiter.Allow(ctx, "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d should be allowed", i+1)
	}

	allowed, err := limiter.Allow(ctx, "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	allowed, err = limiter.Allow(ctx, "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)

	assert.True(t, mr.Exists("faultline:ratelimit:10.0.0.1"))
}

func TestRedisRateLimiter_WindowSlides(t *testing.T) {
	mr := setupTestRedis(t)

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 1, 100*time.Millisecond, false)
	require.NoError(t, err)
	defer limiter.Close()

	ctx := context.Background()
	allowed, err := limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)

	allowed, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.False(t, allowed)

	time.Sleep(250 * time.Millisecond)

	allowed, err = limiter.Allow(ctx, "k")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisRateLimiter_RedisFailure(t *testing.T) {
	mr := setupTestRedis(t)

	limiter, err := NewRedisRateLimiter("redis://"+mr.Addr(), 5, time.Minute, false)
	require.NoError(t, err)
	defer limiter.Close()

	mr.SetError("server unavailable")
	_, err = limiter.Allow(context.Background(), "k")
	assert.Error(t, err)
}
