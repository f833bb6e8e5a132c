package settings

// DB config keys and defaults for settings.
const (
	// SiteNameKey is the DB config key for the dashboard site name.
	SiteNameKey = "SITE_NAME"
	// DefaultSiteName is the fallback dashboard site name.
	DefaultSiteName = "Error Monitor"
	// TwoFactorRequiredKey forces the email one-time code for every login.
	TwoFactorRequiredKey = "TWO_FACTOR_REQUIRED"
	// LoginRateLimitKey caps login attempts per client IP per window.
	LoginRateLimitKey = "LOGIN_RATE_LIMIT"
	// LoginRateWindowSecondsKey sets the login rate limit window.
	LoginRateWindowSecondsKey = "LOGIN_RATE_WINDOW_SECONDS"
	// OTPResendLimitKey caps one-time code resends per client IP per window.
	OTPResendLimitKey = "OTP_RESEND_LIMIT"
	// AlertRecipientsKey holds the default alert email recipients (comma separated).
	AlertRecipientsKey = "ALERT_RECIPIENTS"
	// ErrorRetentionPerAppKey caps stored error logs per application (0 keeps all).
	ErrorRetentionPerAppKey = "ERROR_RETENTION_PER_APP"
	// RateLimitRedisEnabledKey toggles Redis-backed rate limiting.
	RateLimitRedisEnabledKey = "RATE_LIMIT_REDIS_ENABLED"
	// RateLimitRedisAddrKey defines the Redis address for rate limiting.
	RateLimitRedisAddrKey = "RATE_LIMIT_REDIS_ADDR"
	// RateLimitRedisPasswordKey defines the Redis password for rate limiting.
	RateLimitRedisPasswordKey = "RATE_LIMIT_REDIS_PASSWORD"
	// RateLimitRedisDBKey defines the Redis DB index for rate limiting.
	RateLimitRedisDBKey = "RATE_LIMIT_REDIS_DB"
	// RateLimitRedisPrefixKey defines the Redis key prefix for rate limiting.
	RateLimitRedisPrefixKey = "RATE_LIMIT_REDIS_PREFIX"
	// DefaultTwoFactorRequired leaves 2FA to the per-user flag.
	DefaultTwoFactorRequired = false
	// DefaultLoginRateLimit is the fallback login attempts per window (0 means unlimited).
	DefaultLoginRateLimit = 10
	// DefaultLoginRateWindowSeconds is the fallback login window length.
	DefaultLoginRateWindowSeconds = 60
	// DefaultOTPResendLimit is the fallback resend attempts per window.
	DefaultOTPResendLimit = 3
	// DefaultErrorRetentionPerApp is the fallback error log cap per application.
	DefaultErrorRetentionPerApp = 1000
	// DefaultRateLimitRedisPrefix is the fallback Redis key prefix.
	DefaultRateLimitRedisPrefix = "emb:rl"
)
