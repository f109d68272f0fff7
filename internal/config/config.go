package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/toolrental/rentkeeper/internal/database"
)

type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Scheduler SchedulerConfig
	API       APIConfig
	Email     EmailConfig
	Actor     ActorConfig
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	TrustedProxies []string
}

type DatabaseConfig struct {
	SQLitePath string

	// MirrorEnabled turns on the best-effort cloud mirror. Enabled when a
	// mirror host is configured.
	MirrorEnabled bool
	Mirror        database.PostgresConfig
}

type SchedulerConfig struct {
	// CronSpec uses the standard five-field format. The default runs the
	// weekly rotation pass early Monday morning.
	CronSpec           string
	AccountsConfigPath string
	ReconcileInterval  time.Duration
}

type APIConfig struct {
	RateLimitPerMinute int
	DefaultDailyQuota  int
}

type EmailConfig struct {
	Enabled     bool
	Region      string
	FromAddress string
	ToAddress   string
}

// ActorConfig holds browser tuning. Headless mode is not set here; it is
// a per-pass setting read from the accounts config.
type ActorConfig struct {
	StepTimeout time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mirrorHost := getEnv("MIRROR_DB_HOST", "")

	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            getEnv("ENV", "development"),
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			TrustedProxies: splitNonEmpty(getEnv("TRUSTED_PROXIES", "")),
		},
		Database: DatabaseConfig{
			SQLitePath:    getEnv("SQLITE_PATH", "data/rentkeeper.db"),
			MirrorEnabled: mirrorHost != "",
			Mirror: database.PostgresConfig{
				Host:              mirrorHost,
				Port:              getEnvAsInt("MIRROR_DB_PORT", 5432),
				User:              getEnv("MIRROR_DB_USER", "postgres"),
				Password:          getEnv("MIRROR_DB_PASSWORD", ""),
				Name:              getEnv("MIRROR_DB_NAME", "rentkeeper"),
				SSLMode:           getEnv("MIRROR_DB_SSLMODE", "require"),
				MaxConns:          int32(getEnvAsInt("MIRROR_DB_MAX_CONNS", 10)),
				MinConns:          int32(getEnvAsInt("MIRROR_DB_MIN_CONNS", 2)),
				MaxConnLifetime:   getEnvAsDuration("MIRROR_DB_MAX_CONN_LIFETIME", 5*time.Minute),
				MaxConnIdleTime:   getEnvAsDuration("MIRROR_DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
				HealthCheckPeriod: getEnvAsDuration("MIRROR_DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
			},
		},
		Scheduler: SchedulerConfig{
			CronSpec:           getEnv("RESET_CRON", "0 2 * * 1"),
			AccountsConfigPath: getEnv("ACCOUNTS_CONFIG", "config/accounts.json"),
			ReconcileInterval:  getEnvAsDuration("RECONCILE_INTERVAL", 5*time.Minute),
		},
		API: APIConfig{
			RateLimitPerMinute: getEnvAsInt("API_RATE_LIMIT_PER_MINUTE", 60),
			DefaultDailyQuota:  getEnvAsInt("API_DEFAULT_DAILY_QUOTA", 1000),
		},
		Email: EmailConfig{
			Enabled:     getEnvAsBool("EMAIL_NOTIFICATIONS", false),
			Region:      getEnv("AWS_SES_REGION", "us-east-1"),
			FromAddress: getEnv("EMAIL_FROM", ""),
			ToAddress:   getEnv("EMAIL_TO", ""),
		},
		Actor: ActorConfig{
			StepTimeout: getEnvAsDuration("ACTOR_STEP_TIMEOUT", 30*time.Second),
		},
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
