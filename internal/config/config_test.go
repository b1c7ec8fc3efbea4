package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("TOKEN_SECRET", "s3cret")
	t.Setenv("ADMIN_ID", "42")
	t.Setenv("STORAGE_CHANNEL_ID", "-1001234567890")
	t.Setenv("WEBHOOK_SECRET", "hook")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)
	t.Setenv("REDIS_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DIRECTORY_BACKEND", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, int64(42), cfg.AdminID)
	assert.Equal(t, int64(-1001234567890), cfg.StorageChannelID)
	assert.Equal(t, BackendMemory, cfg.DirectoryBackend)
	assert.Equal(t, int64(50_000_000), cfg.MaxUploadSize)
	assert.Equal(t, 50*time.Millisecond, cfg.BroadcastInterval)
	assert.Equal(t, 100, cfg.BroadcastPageSize)
	assert.Equal(t, time.Hour, cfg.BroadcastTimeout)
	assert.Equal(t, 30*time.Second, cfg.BackgroundTimeout)
	require.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("MAX_UPLOAD_SIZE", "2 MiB")
	t.Setenv("BROADCAST_INTERVAL", "1s")
	t.Setenv("BROADCAST_TIMEOUT", "3h")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("DIRECTORY_BACKEND", "")
	t.Setenv("PUBLIC_URL", "https://files.example.com/")
	t.Setenv("RATE_LIMIT_WHITELIST", "10.0.0.0/8, 127.0.0.1 ,")

	cfg := Load()

	assert.Equal(t, int64(2*1024*1024), cfg.MaxUploadSize)
	assert.Equal(t, time.Second, cfg.BroadcastInterval)
	assert.Equal(t, 3*time.Hour, cfg.BroadcastTimeout)
	assert.Equal(t, BackendRedis, cfg.DirectoryBackend)
	assert.Equal(t, "https://files.example.com", cfg.PublicURL)
	assert.Equal(t, []string{"10.0.0.0/8", "127.0.0.1"}, cfg.RateLimitWhitelist)
}

func TestValidate_ReportsAllMissing(t *testing.T) {
	cfg := &Config{DirectoryBackend: BackendPostgres, MaxUploadSize: 1, BroadcastPageSize: 1}

	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{"BOT_TOKEN", "TOKEN_SECRET", "ADMIN_ID", "STORAGE_CHANNEL_ID", "WEBHOOK_SECRET", "DATABASE_URL"} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidate_UnknownBackend(t *testing.T) {
	setRequired(t)
	t.Setenv("DIRECTORY_BACKEND", "etcd")

	err := Load().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "etcd")
}
