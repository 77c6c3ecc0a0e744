package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	LogLevel string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Mux      MuxConfig
	AWS      AWSConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port         string
	ReadTimeout  int
	WriteTimeout int
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL      string // if set, used as-is (e.g. postgres://localhost:5432/prepcoach?sslmode=disable)
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string

	MaxConns       int           // 0 keeps the pgx default
	ConnectTimeout time.Duration // 0 keeps the pgx default
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// JWTConfig holds settings for the service tokens accepted by the read API.
type JWTConfig struct {
	Secret      string
	ExpireHours int
}

// MuxConfig holds Mux webhook settings.
type MuxConfig struct {
	WebhookSecret    string
	WebhookTolerance time.Duration // max age of the Mux-Signature timestamp
	StoreTimeout     time.Duration // bound on each metadata read/write
	MaxBodyBytes     int64
}

// AWSConfig holds AWS credentials and the dead-letter archive bucket.
type AWSConfig struct {
	Region           string
	AccessKeyID      string
	SecretAccessKey  string
	DeadLetterBucket string
}

// DSN returns the PostgreSQL connection string.
// If DatabaseConfig.URL is set (e.g. DATABASE_URL env), it is used as-is; otherwise built from components.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode,
	)
}

// ArchiveEnabled reports whether dead letters can be archived to S3.
func (c AWSConfig) ArchiveEnabled() bool {
	return c.Region != "" && c.DeadLetterBucket != ""
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()      // .env
	_ = godotenv.Load("env") // env (no leading dot)

	cfg := &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Server: ServerConfig{
			Port:         getEnv("PORT", "8080"),
			ReadTimeout:  getEnvInt("READ_TIMEOUT_SEC", 30),
			WriteTimeout: getEnvInt("WRITE_TIMEOUT_SEC", 30),
		},
		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", ""),
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			DBName:   getEnv("DB_NAME", "prepcoach"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),

			MaxConns:       getEnvInt("DB_MAX_CONNS", 0),
			ConnectTimeout: getEnvDuration("DB_CONNECT_TIMEOUT_SEC", time.Second, 0),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		JWT: JWTConfig{
			Secret:      getEnv("JWT_SECRET", "change-me-in-production"),
			ExpireHours: getEnvInt("JWT_EXPIRE_HOURS", 24),
		},
		Mux: MuxConfig{
			WebhookSecret:    getEnv("MUX_WEBHOOK_SECRET", ""),
			WebhookTolerance: getEnvDuration("MUX_WEBHOOK_TOLERANCE_SEC", time.Second, 300*time.Second),
			StoreTimeout:     getEnvDuration("MUX_STORE_TIMEOUT_MS", time.Millisecond, 5*time.Second),
			MaxBodyBytes:     int64(getEnvInt("MUX_MAX_BODY_BYTES", 1<<20)),
		},
		AWS: AWSConfig{
			Region:           getEnv("AWS_REGION", ""),
			AccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			DeadLetterBucket: getEnv("AWS_S3_DEAD_LETTER_BUCKET", ""),
		},
	}
	return cfg, nil
}

// Validate checks the settings the webhook server cannot run without.
func (c MuxConfig) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("MUX_WEBHOOK_SECRET is required")
	}
	return nil
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration reads an integer count of unit from key.
func getEnvDuration(key string, unit, fallback time.Duration) time.Duration {
	if n := getEnvInt(key, 0); n > 0 {
		return time.Duration(n) * unit
	}
	return fallback
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
