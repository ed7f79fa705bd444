// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, the AI provider, web
// search vendors, rate limiting, and observability.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"
)

// CORSConfig defines Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string
}

// SecurityConfig defines security-related settings such as HSTS.
type SecurityConfig struct {
	EnableHSTS bool
	HSTSMaxAge time.Duration
}

// OTELConfig defines OpenTelemetry observability settings.
type OTELConfig struct {
	Enabled     bool    // OTEL_ENABLED
	Endpoint    string  // OTEL_EXPORTER_OTLP_ENDPOINT (e.g. "otel:4317")
	Insecure    bool    // OTEL_EXPORTER_OTLP_INSECURE (true if no TLS)
	ServiceName string  // OTEL_SERVICE_NAME (e.g. "fitbot-backend")
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// ProviderConfig configures the language-model backend. When APIKey is empty
// the gateway runs in demo mode and streams a canned document instead of
// calling the vendor.
type ProviderConfig struct {
	APIKey           string        // OPENAI_API_KEY
	Model            string        // OPENAI_MODEL
	Temperature      float32       // PROVIDER_TEMPERATURE
	MaxTokens        int           // PROVIDER_MAX_TOKENS
	TopP             float32       // PROVIDER_TOP_P
	FrequencyPenalty float32       // PROVIDER_FREQUENCY_PENALTY
	PresencePenalty  float32       // PROVIDER_PRESENCE_PENALTY
	RequestTimeout   time.Duration // PROVIDER_TIMEOUT
}

// SearchConfig configures the web-search vendor chain. Either key may be
// empty; a vendor without a key is skipped and the chain falls through to the
// next provider.
type SearchConfig struct {
	TavilyAPIKey string // TAVILY_API_KEY
	SerperAPIKey string // SERPER_API_KEY
}

// LimitsConfig holds the per-user hourly ceilings for the three rate-limited
// operations. The conversation-count ceilings per subscription tier live in
// the domain package; these are frequency ceilings, not ownership quotas.
type LimitsConfig struct {
	ChatPerHour       int // RATE_CHAT_PER_HOUR
	SearchPerHour     int // RATE_SEARCH_PER_HOUR
	RecommendPerHour  int // RATE_RECOMMEND_PER_HOUR
	HistoryMessages   int // CONTEXT_HISTORY_MESSAGES (prior turns fed to the model)
	MaxMessageRunes   int // CHAT_MAX_MESSAGE_RUNES
	TitlePrefixRunes  int // title = first N runes of the opening message
	RenameClampRunes  int // rename requests are clipped to this length
	ConversationsPage int // sidebar listing cap
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

	// Logging / Docs
	LogLevel       string // debug|info|warn|error|fatal|panic
	LogPretty      bool   // pretty console logs in dev
	SwaggerEnabled bool   // enable Swagger UI route
	APIBasePath    string // base path for API routes

	// App
	DBPath string // SQLite path

	// Shared counter store. Empty means the in-process limiter backend.
	RedisAddr     string // REDIS_ADDR (host:port)
	RedisPassword string // REDIS_PASSWORD

	// Edge protection (per-IP token bucket)
	RateRPS   float64 // tokens per second (>= 0)
	RateBurst int     // bucket size (>= 1)

	Limits   LimitsConfig
	Provider ProviderConfig
	Search   SearchConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Observability
	OTEL OTELConfig
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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 0), // 0: streaming responses must outlive slow generations
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging / Docs
		LogLevel:       strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:      getbool("LOG_PRETTY", false),
		SwaggerEnabled: getbool("SWAGGER_ENABLED", false),
		APIBasePath:    normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath: getenv("DB_PATH", "fitbot.db"),

		RedisAddr:     getenv("REDIS_ADDR", ""),
		RedisPassword: getenv("REDIS_PASSWORD", ""),

		// Edge protection
		RateRPS:   getfloat("RATE_RPS", 5.0),
		RateBurst: getint("RATE_BURST", 10),

		Limits: LimitsConfig{
			ChatPerHour:       getint("RATE_CHAT_PER_HOUR", 10),
			SearchPerHour:     getint("RATE_SEARCH_PER_HOUR", 20),
			RecommendPerHour:  getint("RATE_RECOMMEND_PER_HOUR", 15),
			HistoryMessages:   getint("CONTEXT_HISTORY_MESSAGES", 20),
			MaxMessageRunes:   getint("CHAT_MAX_MESSAGE_RUNES", 500),
			TitlePrefixRunes:  getint("CHAT_TITLE_PREFIX_RUNES", 50),
			RenameClampRunes:  getint("CHAT_RENAME_CLAMP_RUNES", 100),
			ConversationsPage: getint("CONVERSATIONS_PAGE_LIMIT", 50),
		},

		Provider: ProviderConfig{
			APIKey:           getenv("OPENAI_API_KEY", ""),
			Model:            getenv("OPENAI_MODEL", "gpt-4-turbo-preview"),
			Temperature:      float32(getfloat("PROVIDER_TEMPERATURE", 0.7)),
			MaxTokens:        getint("PROVIDER_MAX_TOKENS", 1500),
			TopP:             float32(getfloat("PROVIDER_TOP_P", 0.9)),
			FrequencyPenalty: float32(getfloat("PROVIDER_FREQUENCY_PENALTY", 0.1)),
			PresencePenalty:  float32(getfloat("PROVIDER_PRESENCE_PENALTY", 0.1)),
			RequestTimeout:   getdur("PROVIDER_TIMEOUT", 2*time.Minute),
		},

		Search: SearchConfig{
			TavilyAPIKey: getenv("TAVILY_API_KEY", ""),
			SerperAPIKey: getenv("SERPER_API_KEY", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "fitbot-backend"),
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
	if cfg.ReadTimeout <= 0 || cfg.ReadHeaderTimeout <= 0 || cfg.IdleTimeout <= 0 {
		return cfg, errors.New("timeouts must be positive durations")
	}
	if cfg.WriteTimeout < 0 {
		return cfg, errors.New("WRITE_TIMEOUT must be >= 0 (0 disables it for streaming)")
	}
	if cfg.MaxHeaderBytes <= 0 {
		return cfg, errors.New("MAX_HEADER_BYTES must be > 0")
	}
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if cfg.RateRPS < 0 {
		return cfg, errors.New("RATE_RPS must be >= 0")
	}
	if cfg.RateBurst < 1 {
		return cfg, errors.New("RATE_BURST must be >= 1")
	}
	if cfg.Limits.ChatPerHour < 1 || cfg.Limits.SearchPerHour < 1 || cfg.Limits.RecommendPerHour < 1 {
		return cfg, errors.New("hourly rate ceilings must be >= 1")
	}
	if cfg.Limits.HistoryMessages < 0 {
		return cfg, errors.New("CONTEXT_HISTORY_MESSAGES must be >= 0")
	}
	if cfg.Limits.MaxMessageRunes < 1 {
		return cfg, errors.New("CHAT_MAX_MESSAGE_RUNES must be >= 1")
	}
	if cfg.Provider.MaxTokens < 1 {
		return cfg, errors.New("PROVIDER_MAX_TOKENS must be >= 1")
	}
	if cfg.Provider.Temperature < 0 || cfg.Provider.Temperature > 2 {
		return cfg, errors.New("PROVIDER_TEMPERATURE must be in [0,2]")
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
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

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		t := strings.TrimSpace(p)
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

// normalizeBasePath ensures leading '/' and strips trailing '/' (except root).
func normalizeBasePath(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	if len(p) > 1 && strings.HasSuffix(p, "/") {
		p = strings.TrimRight(p, "/")
	}
	return p
}
