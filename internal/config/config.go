// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes server settings,
// Redis and CRM connections, Telegram credentials, LLM budget limits, and
// observability options.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// RedisConfig defines the connection to the shared store (sessions, budget
// counters, idempotency locks, CRM cache, fallback queue, webhook dedup).
type RedisConfig struct {
	Addr     string // REDIS_ADDR (host:port)
	Password string // REDIS_PASSWORD
	DB       int    // REDIS_DB
}

// CRMConfig defines the external booking system connection.
type CRMConfig struct {
	BaseURL string // CRM_BASE_URL (e.g. "https://studio.impulsecrm.ru/api")
	APIKey  string // CRM_API_KEY
}

// TelegramConfig defines the bot credentials and webhook verification.
type TelegramConfig struct {
	BotToken      string // TELEGRAM_BOT_TOKEN
	WebhookSecret string // TELEGRAM_SECRET_TOKEN
	AdminChatID   string // ADMIN_TELEGRAM_CHAT_ID (empty disables admin alerts)
}

// LLMConfig defines the generation backend (OpenAI-compatible chat API).
type LLMConfig struct {
	BaseURL string // LLM_BASE_URL
	APIKey  string // LLM_API_KEY
	Model   string // LLM_MODEL
}

// BudgetConfig defines the hard spending limits on the generation backend.
type BudgetConfig struct {
	RequestsPerMinute int64 // MAX_REQUESTS_PER_MINUTE
	TokensPerHour     int64 // MAX_TOKENS_PER_HOUR
	CostPerDayUSD     int64 // MAX_COST_PER_DAY_USD (whole dollars)
	ErrorsPerHour     int64 // MAX_ERRORS_PER_HOUR
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string        // just the number
	ReadTimeout       time.Duration // e.g. 15s
	ReadHeaderTimeout time.Duration // e.g. 10s
	WriteTimeout      time.Duration // e.g. 20s
	IdleTimeout       time.Duration // e.g. 60s
	MaxHeaderBytes    int           // bytes
	GinMode           string        // debug|release|test

	// Logging
	LogLevel  string // debug|info|warn|error|fatal|panic
	LogPretty bool   // pretty console logs in dev

	// App
	TestMode      bool   // enables the /debug endpoint and the /debug chat command
	Timezone      string // IANA name, studio local time
	KnowledgePath string // YAML knowledge base
	AuditDBPath   string // SQLite audit trail

	// Rate limiting (HTTP edge; LLM cost control is Budget's job)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	Redis    RedisConfig
	CRM      CRMConfig
	Telegram TelegramConfig
	LLM      LLMConfig
	Budget   BudgetConfig
	OTEL     OTELConfig
}

// MustLoad loads the configuration and panics if validation fails.
func MustLoad() Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// Load reads configuration from environment variables,
// applies defaults, normalizes values, and validates the result.
func Load() (Config, error) {
	cfg := Config{
		// Server
		Port:              getenv("PORT", "8080"),
		ReadTimeout:       getdur("READ_TIMEOUT", 15*time.Second),
		ReadHeaderTimeout: getdur("READ_HEADER_TIMEOUT", 10*time.Second),
		WriteTimeout:      getdur("WRITE_TIMEOUT", 20*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:  strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty: getbool("LOG_PRETTY", false),

		// App
		TestMode:      getbool("TEST_MODE", false),
		Timezone:      getenv("TIMEZONE", "Asia/Vladivostok"),
		KnowledgePath: getenv("KNOWLEDGE_PATH", "knowledge/studio.yaml"),
		AuditDBPath:   getenv("AUDIT_DB_PATH", "audit.db"),

		// Rate limiting
		RateRPS:   getfloat("RATE_RPS", 30.0),
		RateBurst: getint("RATE_BURST", 60),

		Redis: RedisConfig{
			Addr:     getenv("REDIS_ADDR", "localhost:6379"),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getint("REDIS_DB", 0),
		},

		CRM: CRMConfig{
			BaseURL: getenv("CRM_BASE_URL", ""),
			APIKey:  getenv("CRM_API_KEY", ""),
		},

		Telegram: TelegramConfig{
			BotToken:      getenv("TELEGRAM_BOT_TOKEN", ""),
			WebhookSecret: getenv("TELEGRAM_SECRET_TOKEN", ""),
			AdminChatID:   getenv("ADMIN_TELEGRAM_CHAT_ID", ""),
		},

		LLM: LLMConfig{
			BaseURL: getenv("LLM_BASE_URL", ""),
			APIKey:  getenv("LLM_API_KEY", ""),
			Model:   getenv("LLM_MODEL", "gpt-4o-mini"),
		},

		Budget: BudgetConfig{
			RequestsPerMinute: getint64("MAX_REQUESTS_PER_MINUTE", 30),
			TokensPerHour:     getint64("MAX_TOKENS_PER_HOUR", 100_000),
			CostPerDayUSD:     getint64("MAX_COST_PER_DAY_USD", 10),
			ErrorsPerHour:     getint64("MAX_ERRORS_PER_HOUR", 50),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "go-booking-backend"),
			SampleRatio: getfloat("OTEL_TRACES_SAMPLER_ARG", 1.0),
		},
	}

	// --- normalization ---
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	switch cfg.GinMode {
	case "debug", "release", "test":
	default:
		cfg.GinMode = "release"
	}

	// --- validation ---
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error", "fatal", "panic":
	default:
		return cfg, errors.New("LOG_LEVEL must be one of: debug, info, warn, error, fatal, panic")
	}
	if strings.TrimSpace(cfg.Port) == "" {
		return cfg, errors.New("PORT must not be empty")
	}
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.Timezone) == "" {
		return cfg, errors.New("TIMEZONE must not be empty")
	}
	if strings.TrimSpace(cfg.KnowledgePath) == "" {
		return cfg, errors.New("KNOWLEDGE_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.AuditDBPath) == "" {
		return cfg, errors.New("AUDIT_DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.Redis.Addr) == "" {
		return cfg, errors.New("REDIS_ADDR must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Budget.RequestsPerMinute <= 0 || cfg.Budget.TokensPerHour <= 0 ||
		cfg.Budget.CostPerDayUSD <= 0 || cfg.Budget.ErrorsPerHour <= 0 {
		return cfg, errors.New("budget limits must be > 0")
	}
	if cfg.OTEL.SampleRatio < 0 || cfg.OTEL.SampleRatio > 1 {
		return cfg, errors.New("OTEL_TRACES_SAMPLER_ARG must be in [0,1]")
	}

	return cfg, nil
}

// ---- helpers (no external deps) ----

func getenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		return v
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getint(k string, def int) int {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if i, err := strconv.ParseInt(v, 10, 64); err == nil {
			return i
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "true", "yes", "y", "on":
			return true
		case "0", "false", "no", "n", "off":
			return false
		}
	}
	return def
}

func getdur(k string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(k); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
