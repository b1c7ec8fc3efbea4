package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/api/middleware"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/handlers"
)

// defaultBodyLimit applies to every route except /upload, which gets the
// configured upload ceiling.
const defaultBodyLimit = 1 << 20

// RouterConfig holds router settings.
type RouterConfig struct {
	WebhookSecret string
	MaxUploadSize int64
	RateLimit     middleware.RateLimiterConfig
	// RedisClient enables rate limiting when set.
	RedisClient *redis.Client
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, h *handlers.Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	if cfg.RedisClient != nil {
		limiter := middleware.NewRateLimiter(cfg.RedisClient, logger, cfg.RateLimit)
		r.Use(limiter.Middleware)
	}

	// CORS - files are embedded from any origin
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "HEAD", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Range"},
		ExposedHeaders:   []string{"Content-Disposition", "Content-Length", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	auth := middleware.NewSecretAuth(cfg.WebhookSecret, logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)

	// File gateway: every method reaches the handler so it can answer 405
	// in its own error format.
	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(defaultBodyLimit))
		r.HandleFunc("/file", h.ServeFile)
		r.HandleFunc("/file/{fileID}", h.ServeDirect)
	})

	r.With(middleware.MaxBodySize(cfg.MaxUploadSize+(1<<20))).Post("/upload", h.Upload)

	r.Group(func(r chi.Router) {
		r.Use(middleware.MaxBodySize(defaultBodyLimit))
		r.Use(auth.RequireWebhookSecret)
		r.Post("/webhook", h.Webhook)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireBearer)
		r.Post("/setup", h.SetWebhook)
		r.Delete("/setup", h.DeleteWebhook)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		h.JSON(w, http.StatusNotFound, handlers.ErrorResponse{ErrorCode: http.StatusNotFound, Description: "not found"})
	})

	return r
}
