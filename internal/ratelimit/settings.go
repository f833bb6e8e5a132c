package ratelimit

import (
	"strings"
	"time"

	"github.com/router-for-me/ErrorMonitorBusiness/internal/config"
	internalsettings "github.com/router-for-me/ErrorMonitorBusiness/internal/settings"
)

// Policy names.
const (
	PolicyLogin     = "login"
	PolicyOTPResend = "otp-resend"
)

// SettingsConfig captures rate limit settings stored in DB config.
type SettingsConfig struct {
	LoginLimit    int
	LoginWindow   time.Duration
	ResendLimit   int
	RedisEnabled  bool
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPrefix   string
}

// LoginPolicy limits password attempts per client.
func (c SettingsConfig) LoginPolicy() Policy {
	return Policy{Name: PolicyLogin, Limit: c.LoginLimit, Window: c.LoginWindow}
}

// ResendPolicy limits one-time code resends per client over the login window.
func (c SettingsConfig) ResendPolicy() Policy {
	return Policy{Name: PolicyOTPResend, Limit: c.ResendLimit, Window: c.LoginWindow}
}

// LoadSettingsConfig loads the current rate limit settings snapshot.
func LoadSettingsConfig() SettingsConfig {
	cfg := SettingsConfig{
		LoginLimit:    internalsettings.IntValue(internalsettings.LoginRateLimitKey, internalsettings.DefaultLoginRateLimit),
		ResendLimit:   internalsettings.IntValue(internalsettings.OTPResendLimitKey, internalsettings.DefaultOTPResendLimit),
		RedisEnabled:  internalsettings.BoolValue(internalsettings.RateLimitRedisEnabledKey, false),
		RedisAddr:     internalsettings.StringValue(internalsettings.RateLimitRedisAddrKey, ""),
		RedisPassword: internalsettings.StringValue(internalsettings.RateLimitRedisPasswordKey, ""),
		RedisDB:       internalsettings.IntValue(internalsettings.RateLimitRedisDBKey, 0),
		RedisPrefix:   internalsettings.StringValue(internalsettings.RateLimitRedisPrefixKey, internalsettings.DefaultRateLimitRedisPrefix),
	}
	windowSeconds := internalsettings.IntValue(internalsettings.LoginRateWindowSecondsKey, internalsettings.DefaultLoginRateWindowSeconds)
	if windowSeconds <= 0 {
		windowSeconds = internalsettings.DefaultLoginRateWindowSeconds
	}
	cfg.LoginWindow = time.Duration(windowSeconds) * time.Second

	cfg.RedisAddr = strings.TrimSpace(cfg.RedisAddr)
	cfg.RedisPassword = strings.TrimSpace(cfg.RedisPassword)
	cfg.RedisPrefix = strings.TrimSpace(cfg.RedisPrefix)
	if cfg.RedisPrefix == "" {
		cfg.RedisPrefix = internalsettings.DefaultRateLimitRedisPrefix
	}
	return cfg
}

// SettingsWithRedisFallback returns a provider that fills an unset Redis address from the server config.
// A configured address enables Redis unless the settings table disables it explicitly.
func SettingsWithRedisFallback(fallback config.RedisConfig) SettingsProvider {
	addr := strings.TrimSpace(fallback.Addr)
	return func() SettingsConfig {
		cfg := LoadSettingsConfig()
		if addr == "" || cfg.RedisAddr != "" {
			return cfg
		}
		if _, explicit := internalsettings.DBConfigValue(internalsettings.RateLimitRedisEnabledKey); !explicit {
			cfg.RedisEnabled = true
		}
		cfg.RedisAddr = addr
		cfg.RedisPassword = strings.TrimSpace(fallback.Password)
		if fallback.DB > 0 {
			cfg.RedisDB = fallback.DB
		}
		return cfg
	}
}
