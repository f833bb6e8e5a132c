package ratelimit

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
)

func TestMemoryLimiterFixedWindow(t *testing.T) {
	limiter := NewMemoryLimiter()
	now := time.Unix(1_700_000_040, 0)
	window := time.Minute

	for i := 0; i < 3; i++ {
		result, err := limiter.Allow(context.Background(), "login:10.0.0.1", 3, window, now)
		if err != nil {
			t.Fatalf("Allow: %v", err)
		}
		if !result.Allowed || result.Remaining != 2-i {
			t.Fatalf("attempt %d: unexpected result %+v", i+1, result)
		}
	}
	blocked, _ := limiter.Allow(context.Background(), "login:10.0.0.1", 3, window, now.Add(10*time.Second))
	if blocked.Allowed {
		t.Fatalf("expected fourth attempt to be blocked")
	}
	if !blocked.Reset.Equal(time.Unix(1_700_000_100, 0).UTC()) {
		t.Fatalf("unexpected reset %s", blocked.Reset)
	}

	other, _ := limiter.Allow(context.Background(), "login:10.0.0.2", 3, window, now)
	if !other.Allowed {
		t.Fatalf("limits must be per key")
	}
	next, _ := limiter.Allow(context.Background(), "login:10.0.0.1", 3, window, now.Add(time.Minute))
	if !next.Allowed {
		t.Fatalf("expected a new window to reset the counter")
	}
}

func TestMemoryLimiterUnlimited(t *testing.T) {
	limiter := NewMemoryLimiter()
	for i := 0; i < 100; i++ {
		result, _ := limiter.Allow(context.Background(), "k", 0, time.Minute, time.Now())
		if !result.Allowed {
			t.Fatalf("limit 0 must not block")
		}
	}
}

func TestManagerFallsBackToMemoryWhenRedisDown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	provider := func() SettingsConfig {
		return SettingsConfig{LoginLimit: 2, LoginWindow: time.Minute, RedisEnabled: true, RedisAddr: "127.0.0.1:1"}
	}
	dialed := 0
	factory := func(options *redis.Options) *redis.Client {
		dialed++
		options.DialTimeout = 100 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	}
	manager := NewManager(provider, func() time.Time { return now }, factory)
	policy := manager.Settings().LoginPolicy()

	for i := 0; i < 2; i++ {
		result, err := manager.Allow(context.Background(), policy, "10.0.0.9")
		if err != nil || !result.Allowed {
			t.Fatalf("attempt %d: expected allowed, got %+v err=%v", i+1, result, err)
		}
	}
	result, err := manager.Allow(context.Background(), policy, "10.0.0.9")
	if err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if result.Allowed {
		t.Fatalf("expected memory fallback to enforce the limit")
	}
	if dialed != 1 {
		t.Fatalf("breaker should stop redis retries, dialed %d times", dialed)
	}
}

func TestLoadSettingsConfigReadsSnapshot(t *testing.T) {
	internalsettings.StoreDBConfig(time.Now(), map[string]json.RawMessage{
		internalsettings.LoginRateLimitKey:         json.RawMessage(`5`),
		internalsettings.LoginRateWindowSecondsKey: json.RawMessage(`"30"`),
		internalsettings.OTPResendLimitKey:         json.RawMessage(`1`),
	})
	t.Cleanup(func() { internalsettings.StoreDBConfig(time.Time{}, nil) })

	cfg := LoadSettingsConfig()
	if cfg.LoginLimit != 5 || cfg.LoginWindow != 30*time.Second || cfg.ResendLimit != 1 {
		t.Fatalf("unexpected settings %+v", cfg)
	}
	if cfg.RedisEnabled || cfg.RedisPrefix != internalsettings.DefaultRateLimitRedisPrefix {
		t.Fatalf("unexpected redis defaults %+v", cfg)
	}
	resend := cfg.ResendPolicy()
	if resend.Name != PolicyOTPResend || resend.Limit != 1 || resend.Window != 30*time.Second {
		t.Fatalf("unexpected resend policy %+v", resend)
	}
}

func TestSettingsWithRedisFallback(t *testing.T) {
	internalsettings.StoreDBConfig(time.Now(), map[string]json.RawMessage{})
	t.Cleanup(func() { internalsettings.StoreDBConfig(time.Time{}, nil) })

	provider := SettingsWithRedisFallback(config.RedisConfig{Addr: "redis:6379", DB: 2})
	cfg := provider()
	if !cfg.RedisEnabled || cfg.RedisAddr != "redis:6379" || cfg.RedisDB != 2 {
		t.Fatalf("expected server redis config to apply, got %+v", cfg)
	}

	internalsettings.StoreDBConfigValue(internalsettings.RateLimitRedisEnabledKey, json.RawMessage(`false`), time.Now())
	if provider().RedisEnabled {
		t.Fatalf("explicit setting must win over the fallback")
	}
}

func TestManagerRetriesRedisAfterCooldown(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	provider := func() SettingsConfig {
		return SettingsConfig{LoginLimit: 10, LoginWindow: time.Minute, RedisEnabled: true, RedisAddr: "127.0.0.1:1"}
	}
	dialed := 0
	factory := func(options *redis.Options) *redis.Client {
		dialed++
		options.DialTimeout = 100 * time.Millisecond
		options.MaxRetries = -1
		return redis.NewClient(options)
	}
	manager := NewManager(provider, func() time.Time { return now }, factory)
	defer manager.Close()
	policy := manager.Settings().LoginPolicy()

	if _, err := manager.Allow(context.Background(), policy, "10.0.0.9"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	now = now.Add(redisCooldown - time.Second)
	if _, err := manager.Allow(context.Background(), policy, "10.0.0.9"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if dialed != 1 {
		t.Fatalf("expected no redis retry during cooldown, dialed %d times", dialed)
	}
	now = now.Add(2 * time.Second)
	if _, err := manager.Allow(context.Background(), policy, "10.0.0.9"); err != nil {
		t.Fatalf("Allow: %v", err)
	}
	if dialed != 2 {
		t.Fatalf("expected a redis retry after cooldown, dialed %d times", dialed)
	}
}

func TestManagerSkipsRedisWithoutAddress(t *testing.T) {
	provider := func() SettingsConfig {
		return SettingsConfig{LoginLimit: 1, LoginWindow: time.Minute, RedisEnabled: true}
	}
	factory := func(*redis.Options) *redis.Client {
		t.Fatalf("redis must not be dialed without an address")
		return nil
	}
	manager := NewManager(provider, nil, factory)
	policy := manager.Settings().LoginPolicy()
	first, _ := manager.Allow(context.Background(), policy, "10.0.0.1")
	second, _ := manager.Allow(context.Background(), policy, "10.0.0.1")
	if !first.Allowed || second.Allowed {
		t.Fatalf("expected memory limiter to apply, got %+v then %+v", first, second)
	}
}

func TestRedisWindowKey(t *testing.T) {
	prefixed := NewRedisLimiter(nil, " monitor:rl ")
	if got := prefixed.windowKey("login:10.0.0.1", 28333333); got != "monitor:rl:login:10.0.0.1@28333333" {
		t.Fatalf("unexpected key %q", got)
	}
	bare := NewRedisLimiter(nil, "")
	if got := bare.windowKey("otp-resend:10.0.0.1", 7); got != "otp-resend:10.0.0.1@7" {
		t.Fatalf("unexpected key %q", got)
	}
	if result, err := bare.Allow(context.Background(), "k", 1, time.Minute, time.Now()); err != nil || !result.Allowed {
		t.Fatalf("limiter without a client must pass, got %+v err=%v", result, err)
	}
}

func TestTargetFromSettings(t *testing.T) {
	target := targetFromSettings(SettingsConfig{RedisAddr: " redis:6379 ", RedisPassword: " pw ", RedisDB: -3, RedisPrefix: " p "})
	if target != (redisTarget{addr: "redis:6379", password: "pw", db: 0, prefix: "p"}) {
		t.Fatalf("unexpected target %+v", target)
	}
}
