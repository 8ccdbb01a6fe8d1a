package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App        AppConfig
	Postgres   PostgresConfig
	Redis      RedisConfig
	Logger     LoggerConfig
	Auth       AuthConfig
	Workflow   WorkflowConfig
	Assignment AssignmentConfig
	Bulk       BulkConfig
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

// AuthConfig defines bearer token verification parameters. Tokens are
// minted by the external identity provider; this service only verifies.
type AuthConfig struct {
	JWTSecret string
}

// WorkflowConfig tunes case workflow behavior.
type WorkflowConfig struct {
	// ReturnToOriginalHolder controls where a returned case lands: the
	// holder it had before escalation when still eligible, else the
	// capacity-ranked pool.
	ReturnToOriginalHolder bool
}

// AssignmentConfig tunes assignee selection.
type AssignmentConfig struct {
	// BindMaxRetries bounds re-selection attempts when the capacity
	// re-check loses a race at commit time.
	BindMaxRetries int
}

// BulkConfig tunes bulk job processing.
type BulkConfig struct {
	// FatalErrorRate is the fraction of total rows whose validation
	// failures flip a job to FAILED.
	FatalErrorRate float64
	// StallAfterSeconds marks a job stalled when no row completes within
	// the interval.
	StallAfterSeconds int
	// RowDelayMillis throttles row processing; zero runs flat out.
	RowDelayMillis int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	fatalRate, err := strconv.ParseFloat(getEnv("BULK_FATAL_ERROR_RATE", "0.5"), 64)
	if err != nil {
		return nil, fmt.Errorf("invalid BULK_FATAL_ERROR_RATE: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "hra-case-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
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
		Workflow: WorkflowConfig{
			ReturnToOriginalHolder: getEnvAsBool("WORKFLOW_RETURN_TO_ORIGINAL_HOLDER", true),
		},
		Assignment: AssignmentConfig{
			BindMaxRetries: getEnvAsInt("ASSIGNMENT_BIND_MAX_RETRIES", 3),
		},
		Bulk: BulkConfig{
			FatalErrorRate:    fatalRate,
			StallAfterSeconds: getEnvAsInt("BULK_STALL_AFTER_SECONDS", 120),
			RowDelayMillis:    getEnvAsInt("BULK_ROW_DELAY_MILLIS", 0),
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

// StallAfter returns the stalled-job detection interval.
func (b BulkConfig) StallAfter() time.Duration {
	if b.StallAfterSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(b.StallAfterSeconds) * time.Second
}

// RowDelay returns the per-row throttle.
func (b BulkConfig) RowDelay() time.Duration {
	if b.RowDelayMillis <= 0 {
		return 0
	}
	return time.Duration(b.RowDelayMillis) * time.Millisecond
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
