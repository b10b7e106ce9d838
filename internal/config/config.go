// Package config provides application configuration loaded from environment
// variables with defaults and validation. It centralizes application settings
// such as server timeouts, logging, database paths, JWT and OAuth secrets,
// AI provider keys, SMTP relay parameters, rate limiting, and observability.
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
	ServiceName string  // OTEL_SERVICE_NAME
	SampleRatio float64 // OTEL_TRACES_SAMPLER_ARG in [0..1]
}

// JWTConfig holds the signing secret and lifetimes for the access+refresh pair.
type JWTConfig struct {
	Secret     string        // JWT_SECRET
	AccessTTL  time.Duration // JWT_ACCESS_TTL, e.g. 15m
	RefreshTTL time.Duration // JWT_REFRESH_TTL, e.g. 720h
	Issuer     string        // JWT_ISSUER
}

// OAuthConfig holds the Google OAuth client used for the login handoff.
type OAuthConfig struct {
	GoogleClientID     string // OAUTH_GOOGLE_CLIENT_ID
	GoogleClientSecret string // OAUTH_GOOGLE_CLIENT_SECRET
	RedirectURL        string // OAUTH_REDIRECT_URL
}

// SMTPConfig holds transactional email relay settings. Email sending is
// disabled (logged only) when Host is empty.
type SMTPConfig struct {
	Host     string // SMTP_HOST
	Port     string // SMTP_PORT
	Username string // SMTP_USERNAME
	Password string // SMTP_PASSWORD
	From     string // SMTP_FROM
}

// ProvidersConfig holds API credentials and endpoints for the AI providers.
type ProvidersConfig struct {
	GeminiAPIKey    string        // GEMINI_API_KEY
	DeepSeekAPIKey  string        // DEEPSEEK_API_KEY
	DeepSeekBaseURL string        // DEEPSEEK_BASE_URL (OpenAI-compatible gateway)
	HFAPIKey        string        // HF_API_KEY (Hugging Face fallback)
	HFBaseURL       string        // HF_BASE_URL
	RequestTimeout  time.Duration // AI_REQUEST_TIMEOUT
	HistoryLimit    int           // AI_HISTORY_LIMIT (messages sent per request)
}

// RateTier is one named limiter: tokens per second plus a burst ceiling.
type RateTier struct {
	RPS   float64
	Burst int
}

// RateConfig groups the named limiters. When RedisAddr is set the chat/auth
// tiers are additionally enforced through a shared fixed-window counter so
// limits hold across replicas.
type RateConfig struct {
	Auth    RateTier // login/signup endpoints
	API     RateTier // general authenticated API
	Chat    RateTier // message send/edit/regenerate
	Upload  RateTier // avatar upload
	Summary RateTier // AI summary regeneration
	Strict  RateTier // destructive operations (account delete)

	RedisAddr     string // REDIS_ADDR, empty disables the shared store
	RedisPassword string // REDIS_PASSWORD
}

// Config holds all configuration values for the application.
type Config struct {
	// Server
	Port              string
	ReadTimeout       time.Duration
	ReadHeaderTimeout time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	MaxHeaderBytes    int
	GinMode           string // debug|release|test

	// Logging
	LogLevel    string // debug|info|warn|error|fatal|panic
	LogPretty   bool
	APIBasePath string

	// App
	DBPath          string // SQLite path
	UploadDir       string // avatar upload directory
	PublicBaseURL   string // used in email links
	DefaultLanguage string // "en" or "ar"
	DefaultModel    string // model used when a chat does not name one

	// Auth
	JWT   JWTConfig
	OAuth OAuthConfig

	// Email
	SMTP SMTPConfig

	// AI providers
	Providers ProvidersConfig

	// Rate limiting
	Rate RateConfig

	// Web protection
	CORS     CORSConfig
	Security SecurityConfig

	// Idempotency
	IdempotencyTTL time.Duration

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
		WriteTimeout:      getdur("WRITE_TIMEOUT", 60*time.Second),
		IdleTimeout:       getdur("IDLE_TIMEOUT", 60*time.Second),
		MaxHeaderBytes:    getint("MAX_HEADER_BYTES", 1<<20),
		GinMode:           strings.ToLower(getenv("GIN_MODE", "release")),

		// Logging
		LogLevel:    strings.ToLower(getenv("LOG_LEVEL", "info")),
		LogPretty:   getbool("LOG_PRETTY", false),
		APIBasePath: normalizeBasePath(getenv("API_BASE_PATH", "/api/v1")),

		// App
		DBPath:          getenv("DB_PATH", "app.db"),
		UploadDir:       getenv("UPLOAD_DIR", "uploads"),
		PublicBaseURL:   strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		DefaultLanguage: strings.ToLower(getenv("DEFAULT_LANGUAGE", "en")),
		DefaultModel:    getenv("DEFAULT_MODEL", "gemini-1.5-flash"),

		// Auth
		JWT: JWTConfig{
			Secret:     getenv("JWT_SECRET", ""),
			AccessTTL:  getdur("JWT_ACCESS_TTL", 15*time.Minute),
			RefreshTTL: getdur("JWT_REFRESH_TTL", 30*24*time.Hour),
			Issuer:     getenv("JWT_ISSUER", "chat-ai-backend"),
		},
		OAuth: OAuthConfig{
			GoogleClientID:     getenv("OAUTH_GOOGLE_CLIENT_ID", ""),
			GoogleClientSecret: getenv("OAUTH_GOOGLE_CLIENT_SECRET", ""),
			RedirectURL:        getenv("OAUTH_REDIRECT_URL", ""),
		},

		// Email
		SMTP: SMTPConfig{
			Host:     getenv("SMTP_HOST", ""),
			Port:     getenv("SMTP_PORT", "587"),
			Username: getenv("SMTP_USERNAME", ""),
			Password: getenv("SMTP_PASSWORD", ""),
			From:     getenv("SMTP_FROM", "no-reply@localhost"),
		},

		// AI providers
		Providers: ProvidersConfig{
			GeminiAPIKey:    getenv("GEMINI_API_KEY", ""),
			DeepSeekAPIKey:  getenv("DEEPSEEK_API_KEY", ""),
			DeepSeekBaseURL: getenv("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
			HFAPIKey:        getenv("HF_API_KEY", ""),
			HFBaseURL:       getenv("HF_BASE_URL", "https://api-inference.huggingface.co"),
			RequestTimeout:  getdur("AI_REQUEST_TIMEOUT", 60*time.Second),
			HistoryLimit:    getint("AI_HISTORY_LIMIT", 20),
		},

		// Rate limiting (tokens/second, burst)
		Rate: RateConfig{
			Auth:    RateTier{RPS: getfloat("RATE_AUTH_RPS", 0.2), Burst: getint("RATE_AUTH_BURST", 5)},
			API:     RateTier{RPS: getfloat("RATE_API_RPS", 10), Burst: getint("RATE_API_BURST", 20)},
			Chat:    RateTier{RPS: getfloat("RATE_CHAT_RPS", 0.5), Burst: getint("RATE_CHAT_BURST", 5)},
			Upload:  RateTier{RPS: getfloat("RATE_UPLOAD_RPS", 0.1), Burst: getint("RATE_UPLOAD_BURST", 3)},
			Summary: RateTier{RPS: getfloat("RATE_SUMMARY_RPS", 0.02), Burst: getint("RATE_SUMMARY_BURST", 2)},
			Strict:  RateTier{RPS: getfloat("RATE_STRICT_RPS", 0.05), Burst: getint("RATE_STRICT_BURST", 2)},

			RedisAddr:     getenv("REDIS_ADDR", ""),
			RedisPassword: getenv("REDIS_PASSWORD", ""),
		},

		// Web protection
		CORS: CORSConfig{
			AllowedOrigins: splitCSV(getenv("CORS_ALLOWED_ORIGINS", "")),
		},
		Security: SecurityConfig{
			EnableHSTS: getbool("ENABLE_HSTS", false),
			HSTSMaxAge: getdur("HSTS_MAX_AGE", 180*24*time.Hour),
		},

		// Idempotency
		IdempotencyTTL: getdur("IDEMPOTENCY_TTL", 24*time.Hour),

		// Observability (OpenTelemetry)
		OTEL: OTELConfig{
			Enabled:     getbool("OTEL_ENABLED", false),
			Endpoint:    getenv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			Insecure:    getbool("OTEL_EXPORTER_OTLP_INSECURE", true),
			ServiceName: getenv("OTEL_SERVICE_NAME", "chat-ai-backend"),
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
	if cfg.DefaultLanguage != "en" && cfg.DefaultLanguage != "ar" {
		cfg.DefaultLanguage = "en"
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
	if strings.TrimSpace(cfg.DBPath) == "" {
		return cfg, errors.New("DB_PATH must not be empty")
	}
	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return cfg, errors.New("JWT_SECRET must not be empty")
	}
	if cfg.JWT.AccessTTL <= 0 || cfg.JWT.RefreshTTL <= 0 {
		return cfg, errors.New("JWT TTLs must be positive durations")
	}
	if cfg.JWT.RefreshTTL <= cfg.JWT.AccessTTL {
		return cfg, errors.New("JWT_REFRESH_TTL must exceed JWT_ACCESS_TTL")
	}
	if cfg.Providers.HistoryLimit < 1 {
		return cfg, errors.New("AI_HISTORY_LIMIT must be >= 1")
	}
	if cfg.Providers.RequestTimeout <= 0 {
		return cfg, errors.New("AI_REQUEST_TIMEOUT must be > 0")
	}
	for _, t := range []RateTier{cfg.Rate.Auth, cfg.Rate.API, cfg.Rate.Chat, cfg.Rate.Upload, cfg.Rate.Summary, cfg.Rate.Strict} {
		if t.RPS < 0 {
			return cfg, errors.New("rate limiter RPS must be >= 0")
		}
		if t.Burst < 1 {
			return cfg, errors.New("rate limiter burst must be >= 1")
		}
	}
	if cfg.Security.HSTSMaxAge < 0 {
		return cfg, errors.New("HSTS_MAX_AGE must be >= 0")
	}
	if cfg.IdempotencyTTL <= 0 {
		return cfg, errors.New("IDEMPOTENCY_TTL must be > 0")
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
