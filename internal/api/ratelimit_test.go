package api

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisRateLimiter_DisabledInputs(t *testing.T) {
	var nilLimiter *RedisRateLimiter
	count, retry, err := nilLimiter.ConsumeRateLimit(context.Background(), "s", "x", 5, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Zero(t, retry)

	l := NewRedisRateLimiter(nil, "")
	assert.Equal(t, "helios:rate_limit", l.prefix)
	count, _, err = l.ConsumeRateLimit(context.Background(), "s", "x", 5, time.Minute)
	require.NoError(t, err)
	assert.Zero(t, count)
}

// Runs against a real Redis when TEST_REDIS_URL is set.
func TestRedisRateLimiter_Integration(t *testing.T) {
	url := os.Getenv("TEST_REDIS_URL")
	if url == "" {
		t.Skip("TEST_REDIS_URL not set")
	}
	opts, err := redis.ParseURL(url)
	require.NoError(t, err)
	client := redis.NewClient(opts)
	t.Cleanup(func() { _ = client.Close() })

	l := NewRedisRateLimiter(client, "helios:test:")
	subject := uuid.NewString()
	for i := 1; i <= 3; i++ {
		count, retry, err := l.ConsumeRateLimit(context.Background(), "minerate", subject, 2, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, i, count)
		assert.GreaterOrEqual(t, retry, 1)
	}
}
