// Package ratelimit provides fixed-window request counters. A caller over its
// budget is refused immediately; nothing is queued.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Result of one Allow call.
type Result struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Memory is a single-process limiter.
type Memory struct {
	mu      sync.Mutex
	now     func() time.Time
	windows map[string]*bucket
}

type bucket struct {
	count int
	reset time.Time
}

func NewMemory() *Memory {
	return &Memory{now: time.Now, windows: make(map[string]*bucket)}
}

func (m *Memory) Allow(_ context.Context, key string, limit int, window time.Duration) (Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	b, ok := m.windows[key]
	if !ok || !now.Before(b.reset) {
		b = &bucket{reset: now.Add(window)}
		m.windows[key] = b
		m.sweep(now)
	}
	b.count++
	if b.count > limit {
		return Result{Allowed: false, RetryAfter: b.reset.Sub(now)}, nil
	}
	return Result{Allowed: true, Remaining: limit - b.count}, nil
}

// sweep drops expired windows so idle keys do not accumulate.
func (m *Memory) sweep(now time.Time) {
	if len(m.windows) < 1024 {
		return
	}
	for k, b := range m.windows {
		if !now.Before(b.reset) {
			delete(m.windows, k)
		}
	}
}

// Redis shares counters between instances with INCR and PEXPIRE.
type Redis struct {
	client redis.UniversalClient
	prefix string
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client, prefix: "ratelimit:"}
}

func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error) {
	k := r.prefix + key

	pipe := r.client.TxPipeline()
	incr := pipe.Incr(ctx, k)
	ttl := pipe.PTTL(ctx, k)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
	}

	// A fresh key, or one that lost its expiry, starts a new window.
	if ttl.Val() < 0 {
		if err := r.client.PExpire(ctx, k, window).Err(); err != nil {
			return Result{}, fmt.Errorf("rate limit %s: %w", key, err)
		}
	}

	count := int(incr.Val())
	if count > limit {
		retry := ttl.Val()
		if retry <= 0 {
			retry = window
		}
		return Result{Allowed: false, RetryAfter: retry}, nil
	}
	return Result{Allowed: true, Remaining: limit - count}, nil
}
