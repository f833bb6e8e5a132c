package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvJWTSecret     = "JWT_SECRET"
	EnvJWTExpiry     = "JWT_EXPIRY"
	EnvSMTPHost      = "SMTP_HOST"
	EnvSMTPPort      = "SMTP_PORT"
	EnvSMTPUsername  = "SMTP_USERNAME"
	EnvSMTPPassword  = "SMTP_PASSWORD"
	EnvSMTPFrom      = "SMTP_FROM"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvSentryDSN     = "SENTRY_DSN"
	EnvLogLevel      = "LOG_LEVEL"
	EnvAdminUsername = "ADMIN_USERNAME"
	EnvAdminPassword = "ADMIN_PASSWORD"
	EnvAdminEmail    = "ADMIN_EMAIL"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN is present in the config file.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// JWTConfig holds JWT secret and expiry settings.
type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Expiry time.Duration `yaml:"expiry"`
}

// SMTPConfig holds outbound mail settings. An empty Host disables SMTP delivery.
type SMTPConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
	FromName string `yaml:"from-name"`
}

// RealtimeConfig tunes the live notification channel.
type RealtimeConfig struct {
	SendBuffer       int           `yaml:"send-buffer"`
	PingInterval     time.Duration `yaml:"ping-interval"`
	PongWait         time.Duration `yaml:"pong-wait"`
	WriteWait        time.Duration `yaml:"write-wait"`
	ActionsPerSecond float64       `yaml:"actions-per-second"`
	ActionBurst      int           `yaml:"action-burst"`
	AllowedOrigins   []string      `yaml:"allowed-origins"`
}

// RedisConfig seeds the Redis rate limit backend when the settings table leaves it unset.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// SentryConfig holds error reporting settings. An empty DSN disables Sentry.
type SentryConfig struct {
	DSN         string `yaml:"dsn"`
	Environment string `yaml:"environment"`
}

// ServerConfig captures the process-level settings read at startup.
type ServerConfig struct {
	Host     string         `yaml:"host"`
	Port     int            `yaml:"port"`
	Debug    bool           `yaml:"debug"`
	LogLevel string         `yaml:"log-level"`
	SMTP     SMTPConfig     `yaml:"smtp"`
	Realtime RealtimeConfig `yaml:"realtime"`
	Redis    RedisConfig    `yaml:"redis"`
	Sentry   SentryConfig   `yaml:"sentry"`
}

// Realtime defaults.
const (
	defaultSendBuffer       = 64
	defaultPingInterval     = 25 * time.Second
	defaultPongWait         = 60 * time.Second
	defaultWriteWait        = 10 * time.Second
	defaultActionsPerSecond = 5
	defaultActionBurst      = 10
	defaultSMTPPort         = 587
)

// LoadDatabaseDSN reads the database DSN from the YAML config file.
func LoadDatabaseDSN(configPath string) (string, error) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		return dsn, nil
	}

	// fileConfig maps the YAML fields needed for DSN resolution.
	type fileConfig struct {
		DatabaseDSN string `yaml:"database-dsn"`
		Database    struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return "", fmt.Errorf("read config file: %w", err)
	}

	var cfg fileConfig
	if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
		return "", fmt.Errorf("parse config file: %w", errUnmarshal)
	}

	if dsn := strings.TrimSpace(cfg.DatabaseDSN); dsn != "" {
		return dsn, nil
	}
	if dsn := strings.TrimSpace(cfg.Database.DSN); dsn != "" {
		return dsn, nil
	}
	return "", ErrMissingDatabaseDSN
}

// defaultJWTExpiry is used when the config omits or invalidates JWT expiry.
const defaultJWTExpiry = 12 * time.Hour

// LoadJWTConfig loads JWT settings from the YAML config file.
func LoadJWTConfig(configPath string) (JWTConfig, error) {
	// fileConfig maps the YAML fields needed for JWT settings.
	type fileConfig struct {
		JWT JWTConfig `yaml:"jwt"`
	}

	result := JWTConfig{Expiry: defaultJWTExpiry}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		var cfg fileConfig
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal == nil {
			result = cfg.JWT
		}
	}

	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		result.Secret = secret
	}
	if expiryRaw := strings.TrimSpace(os.Getenv(EnvJWTExpiry)); expiryRaw != "" {
		if expiry, errParse := time.ParseDuration(expiryRaw); errParse == nil && expiry > 0 {
			result.Expiry = expiry
		}
	}

	if result.Expiry <= 0 {
		result.Expiry = defaultJWTExpiry
	}
	return result, nil
}

// LoadServerConfig loads the remaining sections of the config file and applies env overrides.
// A missing file yields defaults; a malformed file is an error.
func LoadServerConfig(configPath string) (ServerConfig, error) {
	var result ServerConfig

	data, errRead := os.ReadFile(configPath)
	if errRead != nil && !os.IsNotExist(errRead) {
		return ServerConfig{}, fmt.Errorf("read config file: %w", errRead)
	}
	if len(data) > 0 {
		if errUnmarshal := yaml.Unmarshal(data, &result); errUnmarshal != nil {
			return ServerConfig{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	}

	applySMTPEnv(&result.SMTP)
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		result.Redis.Addr = addr
	}
	if dsn := strings.TrimSpace(os.Getenv(EnvSentryDSN)); dsn != "" {
		result.Sentry.DSN = dsn
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		result.LogLevel = level
	}

	result.Realtime = result.Realtime.withDefaults()
	if result.SMTP.Port <= 0 {
		result.SMTP.Port = defaultSMTPPort
	}
	if strings.TrimSpace(result.LogLevel) == "" {
		result.LogLevel = "info"
	}
	return result, nil
}

// applySMTPEnv overrides SMTP fields with non-empty environment values.
func applySMTPEnv(cfg *SMTPConfig) {
	if host := strings.TrimSpace(os.Getenv(EnvSMTPHost)); host != "" {
		cfg.Host = host
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvSMTPPort)); portRaw != "" {
		if port, errParse := strconv.Atoi(portRaw); errParse == nil && port > 0 {
			cfg.Port = port
		}
	}
	if username := strings.TrimSpace(os.Getenv(EnvSMTPUsername)); username != "" {
		cfg.Username = username
	}
	if password := os.Getenv(EnvSMTPPassword); password != "" {
		cfg.Password = password
	}
	if from := strings.TrimSpace(os.Getenv(EnvSMTPFrom)); from != "" {
		cfg.From = from
	}
}

// withDefaults fills zero values with the realtime defaults.
func (c RealtimeConfig) withDefaults() RealtimeConfig {
	if c.SendBuffer <= 0 {
		c.SendBuffer = defaultSendBuffer
	}
	if c.PingInterval <= 0 {
		c.PingInterval = defaultPingInterval
	}
	if c.PongWait <= 0 {
		c.PongWait = defaultPongWait
	}
	if c.PongWait <= c.PingInterval {
		c.PongWait = c.PingInterval + c.PingInterval/2
	}
	if c.WriteWait <= 0 {
		c.WriteWait = defaultWriteWait
	}
	if c.ActionsPerSecond <= 0 {
		c.ActionsPerSecond = defaultActionsPerSecond
	}
	if c.ActionBurst <= 0 {
		c.ActionBurst = defaultActionBurst
	}
	return c
}

// DefaultRealtimeConfig returns the realtime settings used when no config file is present.
func DefaultRealtimeConfig() RealtimeConfig {
	return RealtimeConfig{}.withDefaults()
}

// SeedAdmin describes the bootstrap admin read from the environment.
type SeedAdmin struct {
	Username string
	Password string
	Email    string
}

// LoadSeedAdmin returns the bootstrap admin from env, or ok=false when unset.
func LoadSeedAdmin() (SeedAdmin, bool) {
	seed := SeedAdmin{
		Username: strings.TrimSpace(os.Getenv(EnvAdminUsername)),
		Password: os.Getenv(EnvAdminPassword),
		Email:    strings.TrimSpace(os.Getenv(EnvAdminEmail)),
	}
	if seed.Username == "" || seed.Password == "" {
		return SeedAdmin{}, false
	}
	return seed, true
}
