package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultAllowedOrigin = "http://localhost:3000"

type Config struct {
	AppEnv      string
	Port        string
	DatabaseURL string
	JWTSecret   string
	SentryDSN   string
	RedisURL    string

	SettingsFile   string
	AllowedOrigins []string

	LockWindow           time.Duration
	CSRFTokenTTL         time.Duration
	CSRFSweepInterval    time.Duration
	LoginRateLimitMax    int
	LoginRateLimitWindow time.Duration

	CronSecret             string
	CleanupBatchSize       int
	AdminEmail             string
	AdminPassword          string
	RunMigrationsOnStartup bool

	DBMaxOpenConns    int
	DBMaxIdleConns    int
	DBConnMaxLifetime time.Duration
	DBConnMaxIdleTime time.Duration
}

// Load reads configuration from the environment. When loadDotEnv is set a
// local .env file is applied first; missing files are ignored.
func Load(loadDotEnv bool) (Config, error) {
	if loadDotEnv {
		_ = godotenv.Load()
	}

	databaseURL, err := mustEnv("DATABASE_URL")
	if err != nil {
		return Config{}, err
	}
	jwtSecret, err := mustEnv("JWT_SECRET")
	if err != nil {
		return Config{}, err
	}

	return Config{
		AppEnv:      EnvOrDefault("APP_ENV", "development"),
		Port:        EnvOrDefault("PORT", "8080"),
		DatabaseURL: databaseURL,
		JWTSecret:   jwtSecret,
		SentryDSN:   strings.TrimSpace(os.Getenv("SENTRY_DSN")),
		RedisURL:    strings.TrimSpace(os.Getenv("REDIS_URL")),

		SettingsFile:   strings.TrimSpace(os.Getenv("SETTINGS_FILE")),
		AllowedOrigins: envListOrDefault("ALLOWED_ORIGINS", []string{defaultAllowedOrigin}),

		LockWindow:           envMinutesOrDefault("LOGIN_LOCK_MINUTES", 15),
		CSRFTokenTTL:         envHoursOrDefault("CSRF_TOKEN_TTL_HOURS", 24),
		CSRFSweepInterval:    envMinutesOrDefault("CSRF_SWEEP_INTERVAL_MINUTES", 60),
		LoginRateLimitMax:    EnvIntOrDefault("LOGIN_RATE_LIMIT_MAX", 10),
		LoginRateLimitWindow: envSecondsOrDefault("LOGIN_RATE_LIMIT_WINDOW_SECONDS", 60),

		CronSecret:             strings.TrimSpace(os.Getenv("CRON_SECRET")),
		CleanupBatchSize:       EnvIntOrDefault("AUTH_CLEANUP_BATCH_SIZE", 500),
		AdminEmail:             strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword:          strings.TrimSpace(os.Getenv("ADMIN_PASSWORD")),
		RunMigrationsOnStartup: EnvBoolOrDefault("RUN_MIGRATIONS_ON_STARTUP", false),

		DBMaxOpenConns:    EnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		DBMaxIdleConns:    EnvIntOrDefault("DB_MAX_IDLE_CONNS", 5),
		DBConnMaxLifetime: envMinutesOrDefault("DB_CONN_MAX_LIFETIME_MINUTES", 30),
		DBConnMaxIdleTime: envMinutesOrDefault("DB_CONN_MAX_IDLE_TIME_MINUTES", 10),
	}, nil
}

// IsDevelopment reports whether cookies may be sent without the Secure flag.
func (c Config) IsDevelopment() bool {
	switch strings.ToLower(c.AppEnv) {
	case "development", "dev", "local", "test":
		return true
	default:
		return false
	}
}

func (c Config) Addr() string {
	return fmt.Sprintf(":%s", c.Port)
}

func mustEnv(name string) (string, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return "", fmt.Errorf("missing required env: %s", name)
	}
	return value, nil
}

func EnvOrDefault(name, fallback string) string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	return value
}

func EnvIntOrDefault(name string, fallback int) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func EnvBoolOrDefault(name string, fallback bool) bool {
	value := strings.TrimSpace(strings.ToLower(os.Getenv(name)))
	if value == "" {
		return fallback
	}

	switch value {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func envListOrDefault(name string, fallback []string) []string {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return fallback
	}

	items := make([]string, 0)
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return fallback
	}
	return items
}

func envMinutesOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * time.Minute
}

func envHoursOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * time.Hour
}

func envSecondsOrDefault(name string, fallback int) time.Duration {
	return time.Duration(EnvIntOrDefault(name, fallback)) * time.Second
}
