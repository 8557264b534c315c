// Package ratelimit limits how often one sender may create broadcasts.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more event for key fits the budget.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Memory is a per-key token bucket held in process.
type Memory struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	r        rate.Limit
	burst    int
}

// NewMemory allows perMinute events per key per minute, all of which may
// be spent at once.
func NewMemory(perMinute int) *Memory {
	if perMinute < 1 {
		perMinute = 1
	}
	return &Memory{
		limiters: make(map[string]*rate.Limiter),
		r:        rate.Every(time.Minute / time.Duration(perMinute)),
		burst:    perMinute,
	}
}

func (m *Memory) limiter(key string) *rate.Limiter {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, ok := m.limiters[key]
	if !ok {
		l = rate.NewLimiter(m.r, m.burst)
		m.limiters[key] = l
	}
	return l
}

func (m *Memory) Allow(_ context.Context, key string) (bool, error) {
	return m.limiter(key).Allow(), nil
}

// Redis is a fixed one-minute window shared by every server instance.
type Redis struct {
	client    *redis.Client
	perMinute int
	prefix    string
	now       func() time.Time
}

func NewRedis(client *redis.Client, perMinute int) *Redis {
	return &Redis{
		client:    client,
		perMinute: perMinute,
		prefix:    "orgcast:ratelimit:broadcast",
		now:       time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	window := r.now().Unix() / 60
	k := fmt.Sprintf("%s:%s:%d", r.prefix, key, window)

	var incr *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, 2*time.Minute)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("redis rate limit: %w", err)
	}
	return incr.Val() <= int64(r.perMinute), nil
}

// Fallback asks primary and switches to secondary for any call where
// primary fails, so a Redis outage never blocks sending.
type Fallback struct {
	primary   Limiter
	secondary Limiter
	logger    *zap.Logger
}

func NewFallback(primary, secondary Limiter, logger *zap.Logger) *Fallback {
	return &Fallback{primary: primary, secondary: secondary, logger: logger}
}

func (f *Fallback) Allow(ctx context.Context, key string) (bool, error) {
	ok, err := f.primary.Allow(ctx, key)
	if err == nil {
		return ok, nil
	}
	f.logger.Warn("rate limiter unavailable, using in-process fallback", zap.Error(err))
	return f.secondary.Allow(ctx, key)
}
