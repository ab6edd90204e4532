package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemory_FixedWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	m := NewMemory()
	m.now = func() time.Time { return now }
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res, err := m.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 2-i, res.Remaining)
	}

	now = now.Add(20 * time.Second)
	res, err := m.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Equal(t, 40*time.Second, res.RetryAfter)

	other, _ := m.Allow(ctx, "login:5.6.7.8", 3, time.Minute)
	assert.True(t, other.Allowed, "keys are independent")

	now = now.Add(41 * time.Second)
	res, _ = m.Allow(ctx, "login:1.2.3.4", 3, time.Minute)
	assert.True(t, res.Allowed, "window reset")
}

func TestRedis_SharedWindow(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	a, b := NewRedis(client), NewRedis(client)
	ctx := context.Background()

	res, err := a.Allow(ctx, "shifts:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = b.Allow(ctx, "shifts:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)

	res, err = a.Allow(ctx, "shifts:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.Greater(t, res.RetryAfter, time.Duration(0))

	mr.FastForward(time.Minute + time.Second)
	res, err = b.Allow(ctx, "shifts:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedis_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	_, err := NewRedis(client).Allow(context.Background(), "k", 1, time.Minute)
	assert.Error(t, err)
}
