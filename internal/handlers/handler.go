package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/store"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/worker"
)

// Blobs is the channel blob store as seen by the HTTP layer.
type Blobs interface {
	ChannelID() int64
	Peek(ctx context.Context, channelID, messageID int64) (models.BlobReference, error)
	FetchBytes(ctx context.Context, ref models.BlobReference) (*telegram.Download, error)
	ResolveByFileID(ctx context.Context, fileID string) (models.BlobReference, *telegram.Download, error)
	StoreUpload(ctx context.Context, fileName string, data []byte) (int64, error)
}

// Tokens encodes and decodes public file tokens.
type Tokens interface {
	EncodeMessageID(messageID int64) (string, error)
	DecodeMessageID(token string) (int64, error)
}

// Bot is the Bot API surface used for health checks and webhook setup.
type Bot interface {
	GetMe(ctx context.Context) (*telegram.User, error)
	SetWebhook(ctx context.Context, url, secretToken string) error
	DeleteWebhook(ctx context.Context) error
}

// UpdateHandler processes one inbound update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, update telegram.Update)
}

// Spawner runs detached background work.
type Spawner interface {
	Go(name string, task worker.Task) error
}

// Config holds the handler settings.
type Config struct {
	PublicURL     string
	WebhookSecret string
	MaxUploadSize int64
}

// Deps are the collaborators of Handler. Bot, Directory, Updates and
// Executor may be nil in tests that do not exercise them.
type Deps struct {
	Blobs     Blobs
	Tokens    Tokens
	Bot       Bot
	Directory store.Directory
	Updates   UpdateHandler
	Executor  Spawner
	Config    Config
	Logger    zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	blobs   Blobs
	tokens  Tokens
	bot     Bot
	dir     store.Directory
	updates UpdateHandler
	exec    Spawner
	cfg     Config
	logger  zerolog.Logger
	started time.Time
}

// NewHandler creates a new Handler.
func NewHandler(d Deps) *Handler {
	return &Handler{
		blobs:   d.Blobs,
		tokens:  d.Tokens,
		bot:     d.Bot,
		dir:     d.Directory,
		updates: d.Updates,
		exec:    d.Executor,
		cfg:     d.Config,
		logger:  d.Logger.With().Str("component", "http").Logger(),
		started: time.Now(),
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// errorClass maps a taxonomy error to a stable status and description.
type errorClass struct {
	err         error
	status      int
	description string
}

// Order matters: the first match wins.
var errorClasses = []errorClass{
	{common.ErrMissingFile, http.StatusNotFound, "missing file parameter"},
	{common.ErrMethodNotAllowed, http.StatusMethodNotAllowed, "method not allowed"},
	{common.ErrUnsupportedKind, http.StatusNotAcceptable, "unsupported media kind"},
	{common.ErrInvalidToken, 407, "invalid token"},
	{common.ErrInvalidMode, http.StatusRequestTimeout, "mode must be attachment or inline"},
	{common.ErrTooLarge, http.StatusRequestEntityTooLarge, "file too large"},
	{common.ErrNotFound, http.StatusNotFound, "file not found"},
	{common.ErrValidation, http.StatusBadRequest, "invalid request"},
	{common.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
	{common.ErrPermissionDenied, http.StatusForbidden, "forbidden"},
	{common.ErrUpstreamWrite, http.StatusBadGateway, "upstream rejected the file"},
	{common.ErrTransient, http.StatusBadGateway, "upstream unavailable"},
}

// StatusFor returns the HTTP status and public description for err.
func StatusFor(err error) (int, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.err) {
			return c.status, c.description
		}
	}
	return http.StatusInternalServerError, "internal error"
}

// Fail sends the JSON error body for err. Internal error text is logged,
// never returned.
func (h *Handler) Fail(w http.ResponseWriter, r *http.Request, err error) {
	status, description := StatusFor(err)
	if status >= 500 {
		h.logger.Error().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request failed")
	} else {
		h.logger.Debug().Err(err).Str("path", r.URL.Path).Int("status", status).Msg("request rejected")
	}
	h.JSON(w, status, ErrorResponse{ErrorCode: status, Description: description})
}

const maxFileNameBytes = 200

// sanitizeFileName trims name and removes control characters and path
// separators. Long names are cut to maxFileNameBytes on a rune boundary.
func sanitizeFileName(name string) string {
	name = strings.TrimSpace(name)

	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) || r == '/' || r == '\\' {
			return -1
		}
		return r
	}, name)

	if len(name) > maxFileNameBytes {
		cut := maxFileNameBytes
		for cut > 0 && !utf8.RuneStart(name[cut]) {
			cut--
		}
		name = name[:cut]
	}
	if name == "" || name == "." || name == ".." {
		return "upload"
	}
	return name
}

func recordGatewayError(status int) {
	metrics.GatewayErrors.WithLabelValues(strconv.Itoa(status)).Inc()
}
