package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/api"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/api/middleware"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/blobstore"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/bot"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/broadcast"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/config"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/crypto"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/handlers"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/store"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/worker"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx := context.Background()

	// User directory
	dir, err := store.Open(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.DirectoryBackend).Msg("directory unavailable")
	}
	defer dir.Close()

	// Rate limiting shares the directory's Redis connection when there is one.
	var redisClient *redis.Client
	if rd, ok := dir.(*store.RedisDirectory); ok {
		redisClient = rd.Client()
	} else if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("invalid REDIS_URL")
		}
		redisClient = redis.NewClient(opts)
		defer redisClient.Close()
	}
	if redisClient == nil {
		logger.Warn().Msg("REDIS_URL not set; rate limiting disabled")
	}

	directory := store.Instrument(dir, cfg.DirectoryBackend)

	// Telegram
	tg, err := telegram.NewClient(telegram.ClientConfig{
		Token:  cfg.BotToken,
		APIURL: cfg.TelegramAPIURL,
		Logger: logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram client")
	}

	codec := crypto.NewCodec(cfg.TokenSecret)
	blobs := blobstore.New(tg, cfg.StorageChannelID, logger)

	engine := broadcast.NewEngine(directory, tg, broadcast.Config{
		AdminID:  cfg.AdminID,
		Interval: cfg.BroadcastInterval,
		PageSize: cfg.BroadcastPageSize,
	}, logger)

	executor := worker.NewExecutor(cfg.BackgroundWorkers, cfg.BackgroundTimeout, logger)

	dispatcher := bot.NewDispatcher(tg, blobs, codec, directory, engine, bot.Config{
		PublicURL:        cfg.PublicURL,
		MaxUploadSize:    cfg.MaxUploadSize,
		Tasks:            executor,
		BroadcastTimeout: cfg.BroadcastTimeout,
	}, logger)

	h := handlers.NewHandler(handlers.Deps{
		Blobs:     blobs,
		Tokens:    codec,
		Bot:       tg,
		Directory: directory,
		Updates:   dispatcher,
		Executor:  executor,
		Config: handlers.Config{
			PublicURL:     cfg.PublicURL,
			WebhookSecret: cfg.WebhookSecret,
			MaxUploadSize: cfg.MaxUploadSize,
		},
		Logger: logger,
	})

	// Create router
	router := api.NewRouter(logger, h, api.RouterConfig{
		WebhookSecret: cfg.WebhookSecret,
		MaxUploadSize: cfg.MaxUploadSize,
		RedisClient:   redisClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server. No write timeout: file responses stream for as long as
	// the download takes.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       5 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("directory", cfg.DirectoryBackend).
			Int64("channel", cfg.StorageChannelID).
			Msg("starting file gateway")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	// Drain updates that were acknowledged but not yet processed.
	if err := executor.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("background tasks cancelled")
	}

	logger.Info().Msg("server stopped")
}
