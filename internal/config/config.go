package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App          AppConfig
	Postgres     PostgresConfig
	Redis        RedisConfig
	Logger       LoggerConfig
	Auth         AuthConfig
	Notification NotificationConfig
	Crisis       CrisisConfig
	Live         LiveConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token validation parameters. Token issuance lives in
// the external auth service; only the shared secret is needed here.
type AuthConfig struct {
	JWTSecret string
}

// NotificationConfig holds escalation channel endpoints.
type NotificationConfig struct {
	EmailFrom          string
	WebhookURL         string
	SecurityWebhookURL string
}

// CrisisConfig carries the keyword tiers the evaluator scans messages
// against. Each tier is a comma-separated phrase list.
type CrisisConfig struct {
	CriticalKeywords []string
	HighKeywords     []string
	MediumKeywords   []string
	LowKeywords      []string
}

// LiveConfig tunes the real-time channel layer.
type LiveConfig struct {
	OutboundBufferSize  int
	WriteTimeoutSeconds int
	LockTimeoutSeconds  int
	ReplayLimit         int
}

var defaultCrisisKeywords = map[string]string{
	"critical": "kill myself,suicide,end my life,want to die,no reason to live",
	"high":     "self harm,self-harm,hurt myself,cutting myself,overdose",
	"medium":   "panic attack,can't cope,cant cope,worthless",
	"low":      "very anxious,can't sleep,cant sleep",
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "counseling-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8000"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret: getEnv("AUTH_JWT_SECRET", "dev-secret"),
		},
		Notification: NotificationConfig{
			EmailFrom:          getEnv("NOTIFY_EMAIL_FROM", "noreply@example.com"),
			WebhookURL:         getEnv("NOTIFY_WEBHOOK_URL", ""),
			SecurityWebhookURL: getEnv("NOTIFY_SECURITY_WEBHOOK_URL", ""),
		},
		Crisis: CrisisConfig{
			CriticalKeywords: getEnvAsList("CRISIS_KEYWORDS_CRITICAL", defaultCrisisKeywords["critical"]),
			HighKeywords:     getEnvAsList("CRISIS_KEYWORDS_HIGH", defaultCrisisKeywords["high"]),
			MediumKeywords:   getEnvAsList("CRISIS_KEYWORDS_MEDIUM", defaultCrisisKeywords["medium"]),
			LowKeywords:      getEnvAsList("CRISIS_KEYWORDS_LOW", defaultCrisisKeywords["low"]),
		},
		Live: LiveConfig{
			OutboundBufferSize:  getEnvAsInt("LIVE_OUTBOUND_BUFFER_SIZE", 64),
			WriteTimeoutSeconds: getEnvAsInt("LIVE_WRITE_TIMEOUT_SECONDS", 5),
			LockTimeoutSeconds:  getEnvAsInt("TICKET_LOCK_TIMEOUT_SECONDS", 5),
			ReplayLimit:         getEnvAsInt("LIVE_REPLAY_LIMIT", 500),
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// WriteTimeout returns the live channel write deadline.
func (l LiveConfig) WriteTimeout() time.Duration {
	if l.WriteTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.WriteTimeoutSeconds) * time.Second
}

// LockTimeout returns the per-ticket lock acquisition budget.
func (l LiveConfig) LockTimeout() time.Duration {
	if l.LockTimeoutSeconds <= 0 {
		return 5 * time.Second
	}
	return time.Duration(l.LockTimeoutSeconds) * time.Second
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key, fallback string) []string {
	val := os.Getenv(key)
	if val == "" {
		val = fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
