// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Session store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

// Primary lead sinks.
const (
	SinkSQLite   = "sqlite"
	SinkPostgres = "postgres"
	SinkSheets   = "sheets"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	FrontendURL        string
	AppEnv             string
	LogLevel           string
	AllowedOrigins     []string
	DBPath             string
	SessionStore       string
	SessionTTL         time.Duration
	Redis              RedisConfig
	Conversation       ConversationConfig
	Sink               SinkConfig
	RateLimit          RateLimitConfig
	Timeout            TimeoutConfig
	ConversationLog    ConversationLogConfig
	MaxRequestBodySize int64
}

// RedisConfig holds Redis connection settings for the session store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// ConversationConfig tunes the chat flow.
type ConversationConfig struct {
	SubmitTimeout     time.Duration
	DiscloseOnFailure bool
	StrictValidation  bool
}

// SinkConfig selects where completed leads go.
type SinkConfig struct {
	Primary     string
	PostgresDSN string
	Sheets      SheetsConfig
	Webhook     WebhookConfig
	Email       EmailConfig
}

// SheetsConfig holds Google Sheets settings.
type SheetsConfig struct {
	SpreadsheetID       string
	Range               string
	CredentialsFile     string
	ServiceAccountEmail string
	PrivateKey          string
}

// WebhookConfig holds the optional CRM webhook follower.
type WebhookConfig struct {
	URL   string
	Token string
}

// EmailConfig holds the optional SES breakdown mailer.
type EmailConfig struct {
	Enabled bool
	Region  string
	From    string
}

// RateLimitConfig controls per-visitor message throttling.
type RateLimitConfig struct {
	RequestsPerWindow int
	WindowDuration    time.Duration
}

// TimeoutConfig holds operational timeouts.
type TimeoutConfig struct {
	HealthCheck time.Duration
	Shutdown    time.Duration
	TTLSweep    time.Duration
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:           getEnv("PORT", "8080"),
		FrontendURL:    getEnv("FRONTEND_URL", ""),
		AppEnv:         getEnv("APP_ENV", ""),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		AllowedOrigins: getEnvList("ALLOWED_ORIGINS", []string{"*"}),
		DBPath:         getEnv("DB_PATH", "./data/widget.db"),
		SessionStore:   strings.ToLower(getEnv("SESSION_STORE", StoreSQLite)),
		SessionTTL:     getEnvDuration("SESSION_TTL", 60*time.Minute),
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Conversation: ConversationConfig{
			SubmitTimeout:     getEnvDuration("SUBMIT_TIMEOUT", 5*time.Second),
			DiscloseOnFailure: getEnvBool("DISCLOSE_ON_FAILURE", true),
			StrictValidation:  getEnvBool("STRICT_VALIDATION", false),
		},
		Sink: SinkConfig{
			Primary:     strings.ToLower(getEnv("SINK", SinkSQLite)),
			PostgresDSN: getEnv("POSTGRES_DSN", ""),
			Sheets: SheetsConfig{
				SpreadsheetID:       getEnv("GOOGLE_SHEETS_ID", ""),
				Range:               getEnv("GOOGLE_SHEETS_RANGE", "A:F"),
				CredentialsFile:     getEnv("GOOGLE_CREDENTIALS_FILE", ""),
				ServiceAccountEmail: getEnv("GOOGLE_SERVICE_ACCOUNT_EMAIL", ""),
				PrivateKey:          getEnv("GOOGLE_PRIVATE_KEY", ""),
			},
			Webhook: WebhookConfig{
				URL:   getEnv("LEAD_WEBHOOK_URL", ""),
				Token: getEnv("LEAD_WEBHOOK_TOKEN", ""),
			},
			Email: EmailConfig{
				Enabled: getEnvBool("SES_ENABLED", false),
				Region:  getEnv("AWS_REGION", "us-east-1"),
				From:    getEnv("SES_FROM_EMAIL", ""),
			},
		},
		RateLimit: RateLimitConfig{
			RequestsPerWindow: getEnvInt("RATE_LIMIT_REQUESTS", 30),
			WindowDuration:    getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		},
		Timeout: TimeoutConfig{
			HealthCheck: getEnvDuration("HEALTH_CHECK_TIMEOUT", 5*time.Second),
			Shutdown:    getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
			TTLSweep:    getEnvDuration("TTL_SWEEP_INTERVAL", 5*time.Minute),
		},
		ConversationLog: ConversationLogConfig{
			Enabled:       getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:           getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			GlobalEnabled: getEnvBool("CONVERSATION_LOG_GLOBAL_ENABLED", false),
			GlobalPath:    getEnv("CONVERSATION_LOG_GLOBAL_PATH", "./data/logs/conversations/all.ndjson"),
			QueueSize:     queueSize,
		},
		MaxRequestBodySize: int64(getEnvInt("MAX_REQUEST_BODY_SIZE", 64<<10)),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of per-setting checks.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	switch c.SessionStore {
	case StoreSQLite, StoreMemory:
	case StoreRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR is required when SESSION_STORE=redis")
		}
	default:
		return fmt.Errorf("SESSION_STORE must be one of sqlite, redis, memory (got %q)", c.SessionStore)
	}
	switch c.Sink.Primary {
	case SinkSQLite:
	case SinkPostgres:
		if c.Sink.PostgresDSN == "" {
			return fmt.Errorf("POSTGRES_DSN is required when SINK=postgres")
		}
	case SinkSheets:
		if c.Sink.Sheets.SpreadsheetID == "" {
			return fmt.Errorf("GOOGLE_SHEETS_ID is required when SINK=sheets")
		}
		if c.Sink.Sheets.CredentialsFile == "" &&
			(c.Sink.Sheets.ServiceAccountEmail == "" || c.Sink.Sheets.PrivateKey == "") {
			return fmt.Errorf("GOOGLE_CREDENTIALS_FILE or GOOGLE_SERVICE_ACCOUNT_EMAIL and GOOGLE_PRIVATE_KEY are required when SINK=sheets")
		}
	default:
		return fmt.Errorf("SINK must be one of sqlite, postgres, sheets (got %q)", c.Sink.Primary)
	}
	if c.UsesSQLite() && c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.Sink.Email.Enabled && c.Sink.Email.From == "" {
		return fmt.Errorf("SES_FROM_EMAIL is required when SES_ENABLED=true")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be > 0")
	}
	if c.Conversation.SubmitTimeout <= 0 {
		return fmt.Errorf("SUBMIT_TIMEOUT must be > 0")
	}
	if c.RateLimit.RequestsPerWindow <= 0 || c.RateLimit.WindowDuration <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be > 0")
	}
	if c.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}
	if c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.GlobalPath == "" {
		return fmt.Errorf("CONVERSATION_LOG_GLOBAL_PATH cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// UsesSQLite reports whether the session store or the primary sink needs the SQLite database.
func (c *Config) UsesSQLite() bool {
	return c.SessionStore == StoreSQLite || c.Sink.Primary == SinkSQLite
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	if c.AppEnv != "" {
		return c.AppEnv == "development"
	}
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}

func getEnvList(key string, fallback []string) []string {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
