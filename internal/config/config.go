package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"
)

// Directory backends.
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
	BackendPebble   = "pebble"
)

// Config holds all configuration for the application. It is built once at
// startup and handed to every component by value or pointer; nothing reads
// the environment after Load returns.
type Config struct {
	Port      string
	Env       string
	PublicURL string

	// Telegram
	BotToken         string
	TelegramAPIURL   string
	StorageChannelID int64
	AdminID          int64
	WebhookSecret    string

	// Token codec
	TokenSecret string

	// User directory
	DirectoryBackend string
	DatabaseURL      string
	RedisURL         string
	SQLitePath       string
	PebblePath       string

	// Broadcast
	BroadcastInterval time.Duration
	BroadcastPageSize int
	BroadcastTimeout  time.Duration

	// Ingestion and background work
	MaxUploadSize     int64
	BackgroundTimeout time.Duration
	BackgroundWorkers int

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		PublicURL:         strings.TrimRight(os.Getenv("PUBLIC_URL"), "/"),
		BotToken:          os.Getenv("BOT_TOKEN"),
		TelegramAPIURL:    getEnv("TELEGRAM_API_URL", "https://api.telegram.org"),
		StorageChannelID:  getInt64("STORAGE_CHANNEL_ID", 0),
		AdminID:           getInt64("ADMIN_ID", 0),
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		TokenSecret:       os.Getenv("TOKEN_SECRET"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		RedisURL:          os.Getenv("REDIS_URL"),
		SQLitePath:        getEnv("SQLITE_PATH", "./data/directory.db"),
		PebblePath:        getEnv("PEBBLE_PATH", "./data/directory"),
		BroadcastInterval: getDuration("BROADCAST_INTERVAL", 50*time.Millisecond),
		BroadcastPageSize: int(getInt64("BROADCAST_PAGE_SIZE", 100)),
		BroadcastTimeout:  getDuration("BROADCAST_TIMEOUT", time.Hour),
		MaxUploadSize:     getBytes("MAX_UPLOAD_SIZE", 50*humanize.MByte),
		BackgroundTimeout: getDuration("BACKGROUND_TIMEOUT", 30*time.Second),
		BackgroundWorkers: int(getInt64("BACKGROUND_WORKERS", 16)),
		AutoBlockEnabled:  getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	cfg.DirectoryBackend = strings.ToLower(os.Getenv("DIRECTORY_BACKEND"))
	if cfg.DirectoryBackend == "" {
		switch {
		case cfg.RedisURL != "":
			cfg.DirectoryBackend = BackendRedis
		case cfg.DatabaseURL != "":
			cfg.DirectoryBackend = BackendPostgres
		default:
			cfg.DirectoryBackend = BackendMemory
		}
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	if whitelist := os.Getenv("RATE_LIMIT_WHITELIST"); whitelist != "" {
		for _, entry := range strings.Split(whitelist, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.RateLimitWhitelist = append(cfg.RateLimitWhitelist, entry)
			}
		}
	}

	return cfg
}

// Validate reports every missing or inconsistent setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	if c.TokenSecret == "" {
		errs = append(errs, errors.New("TOKEN_SECRET is required"))
	}
	if c.AdminID == 0 {
		errs = append(errs, errors.New("ADMIN_ID is required"))
	}
	if c.StorageChannelID == 0 {
		errs = append(errs, errors.New("STORAGE_CHANNEL_ID is required"))
	}
	if c.WebhookSecret == "" {
		errs = append(errs, errors.New("WEBHOOK_SECRET is required"))
	}
	if c.MaxUploadSize <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_SIZE must be positive"))
	}
	if c.BroadcastPageSize <= 0 {
		errs = append(errs, errors.New("BROADCAST_PAGE_SIZE must be positive"))
	}

	switch c.DirectoryBackend {
	case BackendMemory, BackendSQLite, BackendPebble:
	case BackendRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required for the redis directory"))
		}
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres directory"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown DIRECTORY_BACKEND %q", c.DirectoryBackend))
	}

	if c.Env == "production" && c.PublicURL == "" {
		errs = append(errs, errors.New("PUBLIC_URL is required in production"))
	}

	return errors.Join(errs...)
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

func getInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getBytes accepts human sizes such as "50MB" or "1.5 GiB".
func getBytes(key string, defaultValue uint64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := humanize.ParseBytes(value); err == nil {
			return int64(n)
		}
	}
	return int64(defaultValue)
}
