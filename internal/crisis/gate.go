package crisis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Gate decides whether a signal may raise an alert, suppressing repeats of
// the same kind inside a cooldown window.
type Gate interface {
	Allow(ctx context.Context, kind Kind) bool
}

// MemoryGate is a per-session cooldown. A zero window allows everything.
type MemoryGate struct {
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[Kind]time.Time
}

// NewMemoryGate creates an in-process gate.
func NewMemoryGate(window time.Duration) *MemoryGate {
	return &MemoryGate{window: window, now: time.Now, last: make(map[Kind]time.Time)}
}

func (g *MemoryGate) Allow(_ context.Context, kind Kind) bool {
	if g.window <= 0 {
		return true
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if at, ok := g.last[kind]; ok && now.Sub(at) < g.window {
		return false
	}
	g.last[kind] = now
	return true
}

// RedisGate shares the cooldown across gateway instances using SET NX with
// an expiry. The key is scoped by subject (user or session id). Redis
// failures let the alert through.
type RedisGate struct {
	client  *redis.Client
	subject string
	window  time.Duration
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err = client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

// NewRedisGate creates a gate for one subject.
func NewRedisGate(client *redis.Client, subject string, window time.Duration) *RedisGate {
	return &RedisGate{client: client, subject: subject, window: window}
}

func (g *RedisGate) key(kind Kind) string {
	return "crisis:cooldown:" + g.subject + ":" + kind.String()
}

func (g *RedisGate) Allow(ctx context.Context, kind Kind) bool {
	if g.window <= 0 {
		return true
	}
	ok, err := g.client.SetNX(ctx, g.key(kind), time.Now().Unix(), g.window).Result()
	if err != nil {
		slog.Warn("crisis cooldown check failed", "error", err, "kind", kind.String())
		return true
	}
	return ok
}
