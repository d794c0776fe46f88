package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	ListenAddr string // relay TCP listener
	AdminAddr  string // admin HTTP listener, empty disables it
	Env        string

	StoreDriver string
	DatabaseURL string
	SQLitePath  string
	SecretsDir  string // one-shot secrets, used when DatabaseURL is empty
	DBMaxConns  int
	RedisURL    string

	IntegrityKey string // hex encoded

	MaxConnections  int
	MaxRequestBytes int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	StoreTimeout    time.Duration

	CompactInterval       time.Duration // 0 disables background compaction
	AckRequiresPermission bool

	AdminTokenHash string // bcrypt hash of the admin bearer token

	// Connection rate limiting
	ConnectionRateLimit     int      // connections per minute and IP, 0 disables
	ConnectionRateWhitelist []string // IPs or CIDRs exempt from rate limiting
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
// In production, it panics on missing required variables.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		ListenAddr:            getEnv("LISTEN_ADDR", ":9518"),
		AdminAddr:             getEnv("ADMIN_ADDR", ":9519"),
		Env:                   getEnv("ENV", "development"),
		StoreDriver:           getEnv("STORE_DRIVER", DriverSQLite),
		DatabaseURL:           os.Getenv("DATABASE_URL"),
		SQLitePath:            getEnv("SQLITE_PATH", "./data/ironpulse.db"),
		SecretsDir:            os.Getenv("SECRETS_DIR"),
		DBMaxConns:            getEnvInt("DB_MAX_CONNS", 16),
		RedisURL:              os.Getenv("REDIS_URL"),
		IntegrityKey:          os.Getenv("INTEGRITY_KEY"),
		MaxConnections:        getEnvInt("MAX_CONNECTIONS", 64),
		MaxRequestBytes:       getEnvInt("MAX_REQUEST_BYTES", 16<<10),
		ReadTimeout:           getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:          getEnvDuration("WRITE_TIMEOUT", 10*time.Second),
		StoreTimeout:          getEnvDuration("STORE_TIMEOUT", 10*time.Second),
		CompactInterval:       getEnvDuration("COMPACT_INTERVAL", 5*time.Minute),
		AckRequiresPermission: getEnv("ACK_REQUIRES_PERMISSION", "false") == "true",
		AdminTokenHash:        os.Getenv("ADMIN_TOKEN_HASH"),
		ConnectionRateLimit:   getEnvInt("CONNECTION_RATE_LIMIT", 0),
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("CONNECTION_RATE_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.ConnectionRateWhitelist = append(cfg.ConnectionRateWhitelist, entry)
			}
		}
	}

	if cfg.StoreDriver != DriverSQLite && cfg.StoreDriver != DriverPostgres {
		panic("STORE_DRIVER must be sqlite or postgres")
	}

	// In production, require a real database and a keyed integrity hash
	if cfg.Env == "production" {
		if cfg.StoreDriver != DriverPostgres {
			panic("STORE_DRIVER=postgres is required in production")
		}
		if cfg.DatabaseURL == "" && cfg.SecretsDir == "" {
			panic("DATABASE_URL or SECRETS_DIR is required in production")
		}
		if cfg.IntegrityKey == "" {
			panic("INTEGRITY_KEY is required in production")
		}
	}

	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		panic(key + " must be an integer")
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		panic(key + " must be a duration such as 30s")
	}
	return d
}
