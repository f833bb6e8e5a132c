package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// SettingsProvider supplies the latest settings snapshot.
type SettingsProvider func() SettingsConfig

// RedisClientFactory constructs a Redis client for the given options.
type RedisClientFactory func(options *redis.Options) *redis.Client

// Manager applies policies against Redis when it is configured and reachable,
// and against process memory otherwise. Counters do not migrate between the
// two, so a Redis outage starts every subject with a fresh memory window.
type Manager struct {
	provider SettingsProvider
	nowFn    func() time.Time
	memory   *MemoryLimiter
	shared   *redisBackend
}

// NewManager constructs a Manager with default dependencies when nil.
func NewManager(provider SettingsProvider, nowFn func() time.Time, newRedisClient RedisClientFactory) *Manager {
	if provider == nil {
		provider = LoadSettingsConfig
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Manager{
		provider: provider,
		nowFn:    nowFn,
		memory:   NewMemoryLimiter(),
		shared:   newRedisBackend(newRedisClient),
	}
}

// Settings returns the current settings snapshot.
func (m *Manager) Settings() SettingsConfig {
	if m == nil {
		return LoadSettingsConfig()
	}
	return m.provider()
}

// Allow counts one hit for subject under policy. A non-positive limit or an
// empty subject always passes.
func (m *Manager) Allow(ctx context.Context, policy Policy, subject string) (Result, error) {
	key := policy.Key(subject)
	if m == nil || policy.Limit <= 0 || key == "" {
		return Result{Allowed: true}, nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	now := m.nowFn()
	if limiter := m.sharedLimiter(ctx, m.provider(), now); limiter != nil {
		result, errAllow := limiter.Allow(ctx, key, policy.Limit, policy.Window, now)
		if errAllow == nil {
			return result, nil
		}
		m.shared.trip(now, errAllow)
	}
	return m.memory.Allow(ctx, key, policy.Limit, policy.Window, now)
}

// sharedLimiter returns the Redis limiter, or nil when the memory limiter applies.
func (m *Manager) sharedLimiter(ctx context.Context, cfg SettingsConfig, now time.Time) Limiter {
	if !cfg.RedisEnabled {
		return nil
	}
	limiter, errAcquire := m.shared.acquire(ctx, targetFromSettings(cfg), now)
	if errAcquire != nil {
		m.shared.trip(now, errAcquire)
		return nil
	}
	if limiter == nil {
		return nil
	}
	return limiter
}

// Close releases the Redis connection, if any.
func (m *Manager) Close() {
	if m == nil {
		return
	}
	m.shared.release()
	log.Debug("rate limit: manager closed")
}
