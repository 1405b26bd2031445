// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
	GetMigrationsDir() string
}

// SchedulerConfig provides settings for the asynq worker and client.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetSnapshotCron() string
}

// SessionStoreConfig provides settings for the review session store.
type SessionStoreConfig interface {
	GetRedisURL() string
	GetSessionTTL() time.Duration
}

// LLMConfig provides settings for the text generation service.
type LLMConfig interface {
	GetLLMAPIKey() string
	GetLLMBaseURL() string
	GetLLMModel() string
	GetLLMTemperature() float64
	GetLLMTimeout() time.Duration
	IsLLMEnabled() bool
}

// DispatchConfig provides settings for the review dispatch client.
type DispatchConfig interface {
	GetReviewsBaseURL() string
	GetDispatchTimeout() time.Duration
	GetDispatchConcurrency() int
	GetDispatchRatePerSecond() float64
	GetManagerID() string
}

// SMTPConfig provides settings for the manager report mailer.
type SMTPConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetManagerEmail() string
	IsSMTPEnabled() bool
}

// MinIOConfig provides settings for MinIO S3-compatible storage.
type MinIOConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketNotifications() string
	IsMinIOEnabled() bool
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
	GetRateLimitPerMinute() int
}

// CoachingConfig provides the tunables of the coaching pipeline.
type CoachingConfig interface {
	GetWindowDays() int
	GetPreviewLimit() int
	GetTargetingMode() string
	GetTargetTopN() int
	GetTargetMinRisk() float64
	GetDefaultStyle() string
	GetRiskBandLow() float64
	GetRiskBandMedium() float64
	IsSummaryEnabled() bool
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                      string
	HTTPAddr                 string
	DatabaseURL              string
	MigrationsDir            string
	CORSAllowAll             bool
	CORSOrigins              []string
	CORSAllowCreds           bool
	RateLimitPerMinute       int
	RedisURL                 string
	RedisTLSInsecure         bool
	AsynqQueueName           string
	AsynqConcurrency         int
	SnapshotCron             string
	SessionTTL               time.Duration
	LLMAPIKey                string
	LLMBaseURL               string
	LLMModel                 string
	LLMTemperature           float64
	LLMTimeout               time.Duration
	ReviewsBaseURL           string
	DispatchTimeout          time.Duration
	DispatchConcurrency      int
	DispatchRatePerSecond    float64
	ManagerID                string
	SMTPHost                 string
	SMTPPort                 int
	SMTPUsername             string
	SMTPPassword             string
	EmailFromName            string
	EmailFromAddress         string
	ManagerEmail             string
	MinIOEndpoint            string
	MinIOAccessKey           string
	MinIOSecretKey           string
	MinIOUseSSL              bool
	MinioBucketNotifications string
	WindowDays               int
	PreviewLimit             int
	TargetingMode            string
	TargetTopN               int
	TargetMinRisk            float64
	DefaultStyle             string
	RiskBandLow              float64
	RiskBandMedium           float64
	SummaryEnabled           bool
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string   { return c.DatabaseURL }
func (c *Config) GetMigrationsDir() string { return c.MigrationsDir }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetSnapshotCron() string   { return c.SnapshotCron }

// SessionStoreConfig implementation
func (c *Config) GetSessionTTL() time.Duration { return c.SessionTTL }

// LLMConfig implementation
func (c *Config) GetLLMAPIKey() string          { return c.LLMAPIKey }
func (c *Config) GetLLMBaseURL() string         { return c.LLMBaseURL }
func (c *Config) GetLLMModel() string           { return c.LLMModel }
func (c *Config) GetLLMTemperature() float64    { return c.LLMTemperature }
func (c *Config) GetLLMTimeout() time.Duration  { return c.LLMTimeout }
func (c *Config) IsLLMEnabled() bool            { return c.LLMAPIKey != "" }

// DispatchConfig implementation
func (c *Config) GetReviewsBaseURL() string          { return c.ReviewsBaseURL }
func (c *Config) GetDispatchTimeout() time.Duration  { return c.DispatchTimeout }
func (c *Config) GetDispatchConcurrency() int        { return c.DispatchConcurrency }
func (c *Config) GetDispatchRatePerSecond() float64  { return c.DispatchRatePerSecond }
func (c *Config) GetManagerID() string               { return c.ManagerID }

// SMTPConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) GetManagerEmail() string     { return c.ManagerEmail }
func (c *Config) IsSMTPEnabled() bool {
	return c.SMTPHost != "" && c.EmailFromAddress != "" && c.ManagerEmail != ""
}

// MinIOConfig implementation
func (c *Config) GetMinIOEndpoint() string  { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool      { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketNotifications() string {
	return c.MinioBucketNotifications
}
func (c *Config) IsMinIOEnabled() bool { return c.MinIOEndpoint != "" }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string        { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool      { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string   { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool    { return c.CORSAllowCreds }
func (c *Config) GetRateLimitPerMinute() int { return c.RateLimitPerMinute }

// CoachingConfig implementation
func (c *Config) GetWindowDays() int         { return c.WindowDays }
func (c *Config) GetPreviewLimit() int       { return c.PreviewLimit }
func (c *Config) GetTargetingMode() string   { return c.TargetingMode }
func (c *Config) GetTargetTopN() int         { return c.TargetTopN }
func (c *Config) GetTargetMinRisk() float64  { return c.TargetMinRisk }
func (c *Config) GetDefaultStyle() string    { return c.DefaultStyle }
func (c *Config) GetRiskBandLow() float64    { return c.RiskBandLow }
func (c *Config) GetRiskBandMedium() float64 { return c.RiskBandMedium }
func (c *Config) IsSummaryEnabled() bool     { return c.SummaryEnabled }

// RequireDatabase reports an error when no database is configured.
// The API and scheduler cannot start without one; the console can.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// =============================================================================
// Loading
// =============================================================================

// LookupFunc resolves a configuration key. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the environment (and a .env file if present).
func Load() (*Config, error) {
	_ = godotenv.Load()
	return LoadFrom(os.LookupEnv)
}

// LoadFrom builds the configuration from an arbitrary key source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	get := func(key, fallback string) string {
		if val, ok := lookup(key); ok && strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
		return fallback
	}

	cfg := &Config{
		Env:                      get("APP_ENV", "development"),
		HTTPAddr:                 get("HTTP_ADDR", ":8080"),
		DatabaseURL:              get("DATABASE_URL", ""),
		MigrationsDir:            get("MIGRATIONS_DIR", "migrations"),
		CORSAllowAll:             parseBool(get("CORS_ALLOW_ALL", "false")),
		CORSOrigins:              splitCSV(get("CORS_ORIGINS", "http://localhost:4200")),
		CORSAllowCreds:           parseBool(get("CORS_ALLOW_CREDENTIALS", "false")),
		RateLimitPerMinute:       mustInt(get("RATE_LIMIT_PER_MINUTE", "120")),
		RedisURL:                 get("REDIS_URL", ""),
		RedisTLSInsecure:         parseBool(get("REDIS_TLS_INSECURE", "false")),
		AsynqQueueName:           get("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:         mustInt(get("ASYNQ_CONCURRENCY", "4")),
		SnapshotCron:             get("COACHING_SNAPSHOT_CRON", "0 6 * * *"),
		SessionTTL:               mustDuration(get("SESSION_TTL", "24h")),
		LLMAPIKey:                get("LLM_API_KEY", ""),
		LLMBaseURL:               get("LLM_BASE_URL", "https://api.moonshot.ai/v1"),
		LLMModel:                 get("LLM_MODEL", "kimi-k2-turbo-preview"),
		LLMTemperature:           mustFloat(get("LLM_TEMPERATURE", "0.3")),
		LLMTimeout:               mustDuration(get("LLM_TIMEOUT", "60s")),
		ReviewsBaseURL:           get("REVIEWS_BASE_URL", "http://localhost:8000"),
		DispatchTimeout:          mustDuration(get("DISPATCH_TIMEOUT", "10s")),
		DispatchConcurrency:      mustInt(get("DISPATCH_CONCURRENCY", "4")),
		DispatchRatePerSecond:    mustFloat(get("DISPATCH_RATE_PER_SECOND", "5")),
		ManagerID:                get("MANAGER_ID", "1"),
		SMTPHost:                 get("SMTP_HOST", ""),
		SMTPPort:                 mustInt(get("SMTP_PORT", "587")),
		SMTPUsername:             get("SMTP_USERNAME", ""),
		SMTPPassword:             get("SMTP_PASSWORD", ""),
		EmailFromName:            get("EMAIL_FROM_NAME", "Sales Coach"),
		EmailFromAddress:         get("EMAIL_FROM_ADDRESS", ""),
		ManagerEmail:             get("MANAGER_EMAIL", ""),
		MinIOEndpoint:            get("MINIO_ENDPOINT", ""),
		MinIOAccessKey:           get("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:           get("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:              parseBool(get("MINIO_USE_SSL", "false")),
		MinioBucketNotifications: get("MINIO_BUCKET_NOTIFICATIONS", "notifbox"),
		WindowDays:               mustInt(get("COACHING_WINDOW_DAYS", "30")),
		PreviewLimit:             mustInt(get("COACHING_PREVIEW_LIMIT", "15")),
		TargetingMode:            strings.ToLower(get("COACHING_TARGETING_MODE", "deterministic")),
		TargetTopN:               mustInt(get("COACHING_TARGET_TOP_N", "3")),
		TargetMinRisk:            mustFloat(get("COACHING_TARGET_MIN_RISK", "0")),
		DefaultStyle:             strings.ToLower(get("COACHING_DEFAULT_STYLE", "professional")),
		RiskBandLow:              mustFloat(get("COACHING_RISK_BAND_LOW", "0.66")),
		RiskBandMedium:           mustFloat(get("COACHING_RISK_BAND_MEDIUM", "0.33")),
		SummaryEnabled:           parseBool(get("COACHING_SUMMARY_ENABLED", "false")),
	}

	if cfg.WindowDays < 1 {
		return nil, fmt.Errorf("COACHING_WINDOW_DAYS must be at least 1")
	}
	if cfg.PreviewLimit < 1 || cfg.PreviewLimit > 15 {
		return nil, fmt.Errorf("COACHING_PREVIEW_LIMIT must be between 1 and 15")
	}
	if cfg.TargetingMode != "deterministic" && cfg.TargetingMode != "delegated" {
		return nil, fmt.Errorf("COACHING_TARGETING_MODE must be deterministic or delegated")
	}
	if cfg.RiskBandMedium > cfg.RiskBandLow {
		return nil, fmt.Errorf("COACHING_RISK_BAND_MEDIUM cannot exceed COACHING_RISK_BAND_LOW")
	}
	if cfg.DispatchConcurrency < 1 {
		cfg.DispatchConcurrency = 1
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if cfg.SMTPHost != "" && cfg.EmailFromAddress == "" {
		return nil, fmt.Errorf("EMAIL_FROM_ADDRESS is required when SMTP_HOST is set")
	}

	return cfg, nil
}

func parseBool(value string) bool {
	return strings.EqualFold(strings.TrimSpace(value), "true")
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0
	}
	return result
}

func mustFloat(value string) float64 {
	result, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}
