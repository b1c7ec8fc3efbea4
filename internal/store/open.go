package store

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/config"
)

// Open connects the directory backend selected by cfg.DirectoryBackend.
// For postgres it also applies pending migrations.
func Open(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (Directory, error) {
	switch cfg.DirectoryBackend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory user directory; recipients are lost on restart")
		return NewMemoryDirectory(), nil

	case config.BackendRedis:
		d, err := NewRedisDirectory(ctx, cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("redis connection failed: %w", err)
		}
		logger.Info().Msg("connected to Redis")
		return d, nil

	case config.BackendPostgres:
		d, err := NewPostgresDirectory(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("postgres connection failed: %w", err)
		}
		logger.Info().Msg("running database migrations...")
		if err := d.RunMigrations(ctx); err != nil {
			d.Close()
			return nil, err
		}
		logger.Info().Msg("connected to PostgreSQL")
		return d, nil

	case config.BackendSQLite:
		d, err := NewSQLiteDirectory(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("sqlite open failed: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite directory")
		return d, nil

	case config.BackendPebble:
		d, err := NewPebbleDirectory(cfg.PebblePath)
		if err != nil {
			return nil, fmt.Errorf("pebble open failed: %w", err)
		}
		logger.Info().Str("path", cfg.PebblePath).Msg("opened pebble directory")
		return d, nil
	}

	return nil, fmt.Errorf("unknown directory backend %q", cfg.DirectoryBackend)
}
