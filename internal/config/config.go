// Package config loads the governor configuration from YAML with
// environment-variable overrides for every documented scalar.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/router-for-me/ModelGovernor/internal/models"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max-size-mb"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAgeDays int    `yaml:"max-age-days"`
}

// DatabaseConfig holds the optional audit-store settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the optional metrics-sink settings.
type RedisConfig struct {
	Addr         string `yaml:"addr"`
	Password     string `yaml:"password"`
	DB           int    `yaml:"db"`
	StreamPrefix string `yaml:"stream-prefix"`
}

// SecurityConfig holds management-API credentials.
type SecurityConfig struct {
	JWTSecret string `yaml:"jwt-secret"`
	// ManagementKeys are bcrypt hashes of accepted static bearer keys.
	ManagementKeys []string `yaml:"management-keys"`
}

// ProviderConfig holds upstream provider settings for the bundled HTTP
// provider. The governance layer itself treats the provider as opaque.
type ProviderConfig struct {
	BaseURL   string        `yaml:"base-url"`
	APIKeyEnv string        `yaml:"api-key-env"`
	Timeout   time.Duration `yaml:"-"`
	TimeoutMs int64         `yaml:"timeout-ms"`
}

// Thresholds holds the performance alerting thresholds. Accuracy thresholds
// are inverted: observed values below them breach.
type Thresholds struct {
	LatencyWarningMs             int64   `yaml:"latency-warning-ms"`
	LatencyCriticalMs            int64   `yaml:"latency-critical-ms"`
	AccuracyWarning              float64 `yaml:"accuracy-warning"`
	AccuracyCritical             float64 `yaml:"accuracy-critical"`
	CostPerRequestWarningMicros  int64   `yaml:"cost-per-request-warning-micros"`
	CostPerRequestCriticalMicros int64   `yaml:"cost-per-request-critical-micros"`
	ErrorRateWarning             float64 `yaml:"error-rate-warning"`
	ThrottleRateWarning          float64 `yaml:"throttle-rate-warning"`
}

// GovernanceConfig holds budgets, rate limits and cache behavior.
type GovernanceConfig struct {
	Limits              models.Limits            `yaml:"limits"`
	ScopeLimits         map[string]models.Limits `yaml:"scope-limits"`
	CacheTTLMs          int64                    `yaml:"cache-ttl-ms"`
	DefaultOutputTokens int64                    `yaml:"default-output-tokens"`
	SampleRetentionDays int                      `yaml:"sample-retention-days"`
	AlertRetentionDays  int                      `yaml:"alert-retention-days"`
	Thresholds          Thresholds               `yaml:"thresholds"`
}

// Config is the root configuration document.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Log        LogConfig        `yaml:"log"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Security   SecurityConfig   `yaml:"security"`
	Provider   ProviderConfig   `yaml:"provider"`
	Governance GovernanceConfig `yaml:"governance"`
}

// Default returns the documented default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{Addr: ":8317"},
		Log:    LogConfig{Level: "info", MaxSizeMB: 100, MaxBackups: 3, MaxAgeDays: 28},
		Redis:  RedisConfig{StreamPrefix: "modelgovernor"},
		Provider: ProviderConfig{
			APIKeyEnv: "PROVIDER_API_KEY",
			TimeoutMs: 120_000,
		},
		Governance: GovernanceConfig{
			Limits: models.Limits{
				PerRequestMicros:     5_000_000,
				DailyMicros:          10_000_000,
				WeeklyMicros:         50_000_000,
				MonthlyMicros:        150_000_000,
				WarningThreshold:     0.8,
				MaxRequestsPerMinute: 60,
			},
			CacheTTLMs:          300_000,
			DefaultOutputTokens: 500,
			SampleRetentionDays: 7,
			AlertRetentionDays:  7,
			Thresholds: Thresholds{
				LatencyWarningMs:             5_000,
				LatencyCriticalMs:            15_000,
				AccuracyWarning:              0.7,
				AccuracyCritical:             0.5,
				CostPerRequestWarningMicros:  500_000,
				CostPerRequestCriticalMicros: 2_000_000,
				ErrorRateWarning:             0.1,
				ThrottleRateWarning:          0.2,
			},
		},
	}
}

// Load reads the YAML file at path, applies environment overrides, and
// validates the result. An empty path yields the defaults plus environment
// overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	path = strings.TrimSpace(path)
	if path != "" {
		raw, errRead := os.ReadFile(path)
		if errRead != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, errRead)
		}
		if errUnmarshal := yaml.Unmarshal(raw, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, errUnmarshal)
		}
	}
	applyEnv(cfg)
	cfg.Provider.Timeout = time.Duration(cfg.Provider.TimeoutMs) * time.Millisecond
	if errValidate := cfg.Validate(); errValidate != nil {
		return nil, errValidate
	}
	return cfg, nil
}

// Validate checks the configuration for inconsistent limits.
func (c *Config) Validate() error {
	if c == nil {
		return fmt.Errorf("config: nil config")
	}
	if errLimits := validateLimits("governance.limits", c.Governance.Limits); errLimits != nil {
		return errLimits
	}
	for key, limits := range c.Governance.ScopeLimits {
		if errLimits := validateLimits("governance.scope-limits."+key, limits); errLimits != nil {
			return errLimits
		}
	}
	t := c.Governance.Thresholds
	if t.LatencyWarningMs > 0 && t.LatencyCriticalMs > 0 && t.LatencyWarningMs >= t.LatencyCriticalMs {
		return fmt.Errorf("config: latency warning threshold %dms must be below critical %dms", t.LatencyWarningMs, t.LatencyCriticalMs)
	}
	if t.AccuracyCritical > 0 && t.AccuracyWarning > 0 && t.AccuracyCritical >= t.AccuracyWarning {
		return fmt.Errorf("config: accuracy critical threshold %.2f must be below warning %.2f", t.AccuracyCritical, t.AccuracyWarning)
	}
	if t.CostPerRequestWarningMicros > 0 && t.CostPerRequestCriticalMicros > 0 &&
		t.CostPerRequestWarningMicros >= t.CostPerRequestCriticalMicros {
		return fmt.Errorf("config: cost-per-request warning threshold must be below critical")
	}
	if c.Governance.CacheTTLMs < 0 {
		return fmt.Errorf("config: cache-ttl-ms must not be negative")
	}
	return nil
}

func validateLimits(where string, limits models.Limits) error {
	if limits.PerRequestMicros < 0 || limits.DailyMicros < 0 || limits.WeeklyMicros < 0 || limits.MonthlyMicros < 0 {
		return fmt.Errorf("config: %s: limits must not be negative", where)
	}
	if limits.WarningThreshold < 0 || limits.WarningThreshold > 1 {
		return fmt.Errorf("config: %s: warning-threshold must be within [0,1]", where)
	}
	if limits.MaxRequestsPerMinute < 0 {
		return fmt.Errorf("config: %s: max-requests-per-minute must not be negative", where)
	}
	return nil
}

// applyEnv overrides scalars from the environment. Monetary values are
// expressed in micros.
func applyEnv(cfg *Config) {
	if cfg == nil {
		return
	}
	overrideString("GOVERNOR_ADDR", &cfg.Server.Addr)
	overrideString("GOVERNOR_LOG_LEVEL", &cfg.Log.Level)
	overrideString("GOVERNOR_LOG_FILE", &cfg.Log.File)
	overrideString("GOVERNOR_DATABASE_DSN", &cfg.Database.DSN)
	overrideString("GOVERNOR_REDIS_ADDR", &cfg.Redis.Addr)
	overrideString("GOVERNOR_REDIS_PASSWORD", &cfg.Redis.Password)
	overrideString("GOVERNOR_JWT_SECRET", &cfg.Security.JWTSecret)
	overrideString("GOVERNOR_PROVIDER_BASE_URL", &cfg.Provider.BaseURL)

	overrideInt64("GOVERNOR_PER_REQUEST_LIMIT_MICROS", &cfg.Governance.Limits.PerRequestMicros)
	overrideInt64("GOVERNOR_DAILY_LIMIT_MICROS", &cfg.Governance.Limits.DailyMicros)
	overrideInt64("GOVERNOR_WEEKLY_LIMIT_MICROS", &cfg.Governance.Limits.WeeklyMicros)
	overrideInt64("GOVERNOR_MONTHLY_LIMIT_MICROS", &cfg.Governance.Limits.MonthlyMicros)
	overrideFloat("GOVERNOR_WARNING_THRESHOLD", &cfg.Governance.Limits.WarningThreshold)
	overrideInt("GOVERNOR_MAX_REQUESTS_PER_MINUTE", &cfg.Governance.Limits.MaxRequestsPerMinute)
	overrideInt64("GOVERNOR_CACHE_TTL_MS", &cfg.Governance.CacheTTLMs)
	overrideInt64("GOVERNOR_DEFAULT_OUTPUT_TOKENS", &cfg.Governance.DefaultOutputTokens)

	overrideInt64("GOVERNOR_LATENCY_WARNING_MS", &cfg.Governance.Thresholds.LatencyWarningMs)
	overrideInt64("GOVERNOR_LATENCY_CRITICAL_MS", &cfg.Governance.Thresholds.LatencyCriticalMs)
	overrideFloat("GOVERNOR_ACCURACY_WARNING", &cfg.Governance.Thresholds.AccuracyWarning)
	overrideFloat("GOVERNOR_ACCURACY_CRITICAL", &cfg.Governance.Thresholds.AccuracyCritical)
	overrideInt64("GOVERNOR_COST_PER_REQUEST_WARNING_MICROS", &cfg.Governance.Thresholds.CostPerRequestWarningMicros)
	overrideInt64("GOVERNOR_COST_PER_REQUEST_CRITICAL_MICROS", &cfg.Governance.Thresholds.CostPerRequestCriticalMicros)
	overrideFloat("GOVERNOR_ERROR_RATE_WARNING", &cfg.Governance.Thresholds.ErrorRateWarning)
	overrideFloat("GOVERNOR_THROTTLE_RATE_WARNING", &cfg.Governance.Thresholds.ThrottleRateWarning)
}

func overrideString(key string, target *string) {
	if value, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(value)
		if trimmed != "" {
			*target = trimmed
		}
	}
}

func overrideInt64(key string, target *int64) {
	if value, ok := os.LookupEnv(key); ok {
		parsed, errParse := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if errParse == nil {
			*target = parsed
		}
	}
}

func overrideInt(key string, target *int) {
	if value, ok := os.LookupEnv(key); ok {
		parsed, errParse := strconv.Atoi(strings.TrimSpace(value))
		if errParse == nil {
			*target = parsed
		}
	}
}

func overrideFloat(key string, target *float64) {
	if value, ok := os.LookupEnv(key); ok {
		parsed, errParse := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if errParse == nil {
			*target = parsed
		}
	}
}
