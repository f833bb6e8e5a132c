package ratelimit

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	redisCooldown    = 30 * time.Second
	redisPingTimeout = 2 * time.Second
)

var errRedisAddrMissing = errors.New("rate limit redis: missing address")

// RedisLimiter counts fixed windows in Redis. Each window is its own key and
// expires one second after the window closes.
type RedisLimiter struct {
	client *redis.Client
	prefix string
}

// NewRedisLimiter constructs a RedisLimiter.
func NewRedisLimiter(client *redis.Client, prefix string) *RedisLimiter {
	return &RedisLimiter{client: client, prefix: strings.TrimSpace(prefix)}
}

// Allow checks whether the request should be allowed in the current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration, now time.Time) (Result, error) {
	if l == nil || l.client == nil || limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	index, reset := windowBounds(window, now)
	windowKey := l.windowKey(key, index)

	var hits *redis.IntCmd
	if _, errPipe := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hits = pipe.Incr(ctx, windowKey)
		pipe.ExpireAt(ctx, windowKey, reset.Add(time.Second))
		return nil
	}); errPipe != nil {
		return Result{}, errPipe
	}
	used := int(hits.Val())
	if used > limit {
		return Result{Allowed: false, Reset: reset}, nil
	}
	return Result{Allowed: true, Remaining: limit - used, Reset: reset}, nil
}

// windowKey renders "<prefix>:<policy>:<subject>@<window>".
func (l *RedisLimiter) windowKey(key string, index int64) string {
	var b strings.Builder
	if l.prefix != "" {
		b.WriteString(l.prefix)
		b.WriteByte(':')
	}
	b.WriteString(key)
	b.WriteByte('@')
	b.WriteString(strconv.FormatInt(index, 10))
	return b.String()
}

// redisTarget identifies one Redis deployment and key namespace.
type redisTarget struct {
	addr     string
	password string
	db       int
	prefix   string
}

func targetFromSettings(cfg SettingsConfig) redisTarget {
	target := redisTarget{
		addr:     strings.TrimSpace(cfg.RedisAddr),
		password: strings.TrimSpace(cfg.RedisPassword),
		db:       cfg.RedisDB,
		prefix:   strings.TrimSpace(cfg.RedisPrefix),
	}
	if target.db < 0 {
		target.db = 0
	}
	return target
}

// redisBackend owns the Redis client and stops using it for redisCooldown
// after any failure.
type redisBackend struct {
	factory RedisClientFactory

	mu        sync.Mutex
	target    redisTarget
	client    *redis.Client
	limiter   *RedisLimiter
	openUntil time.Time
}

func newRedisBackend(factory RedisClientFactory) *redisBackend {
	if factory == nil {
		factory = redis.NewClient
	}
	return &redisBackend{factory: factory}
}

// acquire returns a limiter for target, connecting or reconnecting as needed.
// It returns nil without error while the backend is cooling down.
func (b *redisBackend) acquire(ctx context.Context, target redisTarget, now time.Time) (*RedisLimiter, error) {
	if target.addr == "" {
		return nil, errRedisAddrMissing
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.openUntil) {
		return nil, nil
	}
	if b.limiter != nil && b.target == target {
		return b.limiter, nil
	}
	b.releaseLocked()

	client := b.factory(&redis.Options{Addr: target.addr, Password: target.password, DB: target.db})
	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if errPing := client.Ping(pingCtx).Err(); errPing != nil {
		_ = client.Close()
		return nil, errPing
	}
	b.client = client
	b.target = target
	b.limiter = NewRedisLimiter(client, target.prefix)
	log.WithField("addr", target.addr).Info("rate limit: using redis")
	return b.limiter, nil
}

// trip starts a cooldown unless one is already running.
func (b *redisBackend) trip(now time.Time, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if now.Before(b.openUntil) {
		return
	}
	b.openUntil = now.Add(redisCooldown)
	b.releaseLocked()
	log.WithError(err).WithField("retry_at", b.openUntil.Format(time.RFC3339)).Warn("rate limit: redis unavailable, counting in memory")
}

func (b *redisBackend) release() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.releaseLocked()
}

func (b *redisBackend) releaseLocked() {
	if b.client != nil {
		_ = b.client.Close()
	}
	b.client = nil
	b.limiter = nil
	b.target = redisTarget{}
}
