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
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// RedisConfig provides the shared Redis connection used by cache and rate limiting.
type RedisConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
}

// SchedulerConfig provides settings for the asynq client and worker.
type SchedulerConfig interface {
	RedisConfig
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetOutboxPollInterval() time.Duration
}

// CreditConfig provides credit pull pricing and provider settings.
type CreditConfig interface {
	GetCreditPullCost() int64
	GetCreditPreQualifyCost() int64
	GetCreditProviderURL() string
	GetCreditProviderAPIKey() string
}

// PixelConfig provides ad-platform OAuth and API settings.
type PixelConfig interface {
	GetAppBaseURL() string
	GetAPIBaseURL() string
	GetTokenEncryptionSecret() string
	IsPixelSandbox() bool
	GetMetaAppID() string
	GetMetaAppSecret() string
	GetGoogleClientID() string
	GetGoogleClientSecret() string
	GetGoogleDeveloperToken() string
	GetTikTokAppID() string
	GetTikTokAppSecret() string
}

// StorageConfig provides settings for MinIO S3-compatible storage.
type StorageConfig interface {
	GetMinIOEndpoint() string
	GetMinIOAccessKey() string
	GetMinIOSecretKey() string
	GetMinIOUseSSL() bool
	GetMinioBucketCreditReports() string
	IsMinIOEnabled() bool
}

// MailConfig provides SMTP settings for outbound notifications.
type MailConfig interface {
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	IsMailEnabled() bool
}

// AIConfig provides settings for the optional LLM recommendation provider.
type AIConfig interface {
	GetMoonshotAPIKey() string
	GetMoonshotModel() string
	IsLLMEnabled() bool
}

// RulesConfig provides auto-tagging evaluation policy.
type RulesConfig interface {
	GetRuleConflictPolicy() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                   string
	HTTPAddr              string
	DatabaseURL           string
	JWTAccessSecret       string
	CORSAllowAll          bool
	CORSOrigins           []string
	CORSAllowCreds        bool
	AppBaseURL            string
	APIBaseURL            string
	RedisURL              string
	RedisTLSInsecure      bool
	AsynqQueueName        string
	AsynqConcurrency      int
	OutboxPollInterval    time.Duration
	CreditPullCost        int64
	CreditPreQualifyCost  int64
	CreditProviderURL     string
	CreditProviderAPIKey  string
	TokenEncryptionSecret string
	PixelSandbox          bool
	MetaAppID             string
	MetaAppSecret         string
	GoogleClientID        string
	GoogleClientSecret    string
	GoogleDeveloperToken  string
	TikTokAppID           string
	TikTokAppSecret       string
	MinIOEndpoint         string
	MinIOAccessKey        string
	MinIOSecretKey        string
	MinIOUseSSL           bool
	MinioBucketReports    string
	SMTPHost              string
	SMTPPort              int
	SMTPUsername          string
	SMTPPassword          string
	EmailFromName         string
	EmailFromAddress      string
	MoonshotAPIKey        string
	MoonshotModel         string
	RuleConflictPolicy    string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// RedisConfig / SchedulerConfig implementation
func (c *Config) GetRedisURL() string       { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }
func (c *Config) GetOutboxPollInterval() time.Duration {
	return c.OutboxPollInterval
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool { return strings.EqualFold(c.Env, "production") }

// CreditConfig implementation
func (c *Config) GetCreditPullCost() int64        { return c.CreditPullCost }
func (c *Config) GetCreditPreQualifyCost() int64  { return c.CreditPreQualifyCost }
func (c *Config) GetCreditProviderURL() string    { return c.CreditProviderURL }
func (c *Config) GetCreditProviderAPIKey() string { return c.CreditProviderAPIKey }

// PixelConfig implementation
func (c *Config) GetAppBaseURL() string            { return c.AppBaseURL }
func (c *Config) GetAPIBaseURL() string            { return c.APIBaseURL }
func (c *Config) GetTokenEncryptionSecret() string { return c.TokenEncryptionSecret }
func (c *Config) IsPixelSandbox() bool             { return c.PixelSandbox }
func (c *Config) GetMetaAppID() string             { return c.MetaAppID }
func (c *Config) GetMetaAppSecret() string         { return c.MetaAppSecret }
func (c *Config) GetGoogleClientID() string        { return c.GoogleClientID }
func (c *Config) GetGoogleClientSecret() string    { return c.GoogleClientSecret }
func (c *Config) GetGoogleDeveloperToken() string  { return c.GoogleDeveloperToken }
func (c *Config) GetTikTokAppID() string           { return c.TikTokAppID }
func (c *Config) GetTikTokAppSecret() string       { return c.TikTokAppSecret }

// StorageConfig implementation
func (c *Config) GetMinIOEndpoint() string            { return c.MinIOEndpoint }
func (c *Config) GetMinIOAccessKey() string           { return c.MinIOAccessKey }
func (c *Config) GetMinIOSecretKey() string           { return c.MinIOSecretKey }
func (c *Config) GetMinIOUseSSL() bool                { return c.MinIOUseSSL }
func (c *Config) GetMinioBucketCreditReports() string { return c.MinioBucketReports }
func (c *Config) IsMinIOEnabled() bool                { return c.MinIOEndpoint != "" }

// MailConfig implementation
func (c *Config) GetSMTPHost() string         { return c.SMTPHost }
func (c *Config) GetSMTPPort() int            { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string     { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string     { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string    { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }
func (c *Config) IsMailEnabled() bool         { return c.SMTPHost != "" && c.EmailFromAddress != "" }

// AIConfig implementation
func (c *Config) GetMoonshotAPIKey() string { return c.MoonshotAPIKey }
func (c *Config) GetMoonshotModel() string  { return c.MoonshotModel }
func (c *Config) IsLLMEnabled() bool        { return c.MoonshotAPIKey != "" }

// RulesConfig implementation
func (c *Config) GetRuleConflictPolicy() string { return c.RuleConflictPolicy }

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	env := getEnv("APP_ENV", "development")
	sandboxDefault := "false"
	if !strings.EqualFold(env, "production") {
		sandboxDefault = "true"
	}

	cfg := &Config{
		Env:                   env,
		HTTPAddr:              getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:           getEnv("DATABASE_URL", ""),
		JWTAccessSecret:       getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:          corsAllowAll,
		CORSOrigins:           corsOrigins,
		CORSAllowCreds:        strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:            strings.TrimRight(getEnv("APP_BASE_URL", "http://localhost:3000"), "/"),
		APIBaseURL:            strings.TrimRight(getEnv("API_BASE_URL", "http://localhost:8080"), "/"),
		RedisURL:              getEnv("REDIS_URL", ""),
		RedisTLSInsecure:      strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:        getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:      mustInt(getEnv("ASYNQ_CONCURRENCY", "10")),
		OutboxPollInterval:    ParseDuration(getEnv("OUTBOX_POLL_INTERVAL", "2s"), 2*time.Second),
		CreditPullCost:        mustInt64(getEnv("CREDIT_PULL_COST", "100")),
		CreditPreQualifyCost:  mustInt64(getEnv("CREDIT_PREQUALIFY_COST", "50")),
		CreditProviderURL:     getEnv("CREDIT_PROVIDER_URL", ""),
		CreditProviderAPIKey:  getEnv("CREDIT_PROVIDER_API_KEY", ""),
		TokenEncryptionSecret: getEnv("TOKEN_ENCRYPTION_SECRET", ""),
		PixelSandbox:          strings.EqualFold(getEnv("PIXEL_SANDBOX", sandboxDefault), "true"),
		MetaAppID:             getEnv("META_APP_ID", ""),
		MetaAppSecret:         getEnv("META_APP_SECRET", ""),
		GoogleClientID:        getEnv("GOOGLE_ADS_CLIENT_ID", ""),
		GoogleClientSecret:    getEnv("GOOGLE_ADS_CLIENT_SECRET", ""),
		GoogleDeveloperToken:  getEnv("GOOGLE_ADS_DEVELOPER_TOKEN", ""),
		TikTokAppID:           getEnv("TIKTOK_APP_ID", ""),
		TikTokAppSecret:       getEnv("TIKTOK_APP_SECRET", ""),
		MinIOEndpoint:         getEnv("MINIO_ENDPOINT", ""),
		MinIOAccessKey:        getEnv("MINIO_ACCESS_KEY", ""),
		MinIOSecretKey:        getEnv("MINIO_SECRET_KEY", ""),
		MinIOUseSSL:           strings.EqualFold(getEnv("MINIO_USE_SSL", "false"), "true"),
		MinioBucketReports:    getEnv("MINIO_BUCKET_CREDIT_REPORTS", "credit-reports"),
		SMTPHost:              getEnv("SMTP_HOST", ""),
		SMTPPort:              mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:          getEnv("SMTP_USERNAME", ""),
		SMTPPassword:          getEnv("SMTP_PASSWORD", ""),
		EmailFromName:         getEnv("EMAIL_FROM_NAME", "GlassWallet"),
		EmailFromAddress:      getEnv("EMAIL_FROM_ADDRESS", ""),
		MoonshotAPIKey:        getEnv("MOONSHOT_API_KEY", ""),
		MoonshotModel:         getEnv("MOONSHOT_MODEL", ""),
		RuleConflictPolicy:    getEnv("RULE_CONFLICT_POLICY", "cumulative"),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	if cfg.JWTAccessSecret == "" {
		return nil, fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if cfg.TokenEncryptionSecret == "" {
		return nil, fmt.Errorf("TOKEN_ENCRYPTION_SECRET is required")
	}
	if cfg.CreditPullCost <= 0 || cfg.CreditPreQualifyCost <= 0 {
		return nil, fmt.Errorf("CREDIT_PULL_COST and CREDIT_PREQUALIFY_COST must be positive")
	}
	if cfg.CORSAllowAll && cfg.CORSAllowCreds {
		return nil, fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	switch cfg.RuleConflictPolicy {
	case "cumulative", "first_match":
	default:
		return nil, fmt.Errorf("RULE_CONFLICT_POLICY must be cumulative or first_match")
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

// ParseDuration parses a duration, returning fallback on error.
func ParseDuration(value string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func mustInt64(value string) int64 {
	result, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
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

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
