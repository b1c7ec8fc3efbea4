// Package broadcast fans an administrator's message out to every recipient
// in the user directory.
package broadcast

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/store"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
)

// Messenger sends a text message to one recipient.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
}

// Config holds the engine settings.
type Config struct {
	AdminID  int64
	Interval time.Duration
	PageSize int
}

// Engine runs broadcasts. Recipients are contacted one at a time, paced by
// a limiter shared across runs.
type Engine struct {
	dir       store.Directory
	messenger Messenger
	adminID   int64
	pageSize  int
	limiter   *rate.Limiter
	logger    zerolog.Logger
}

// NewEngine creates a broadcast engine.
func NewEngine(dir store.Directory, messenger Messenger, cfg Config, logger zerolog.Logger) *Engine {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	return &Engine{
		dir:       dir,
		messenger: messenger,
		adminID:   cfg.AdminID,
		pageSize:  cfg.PageSize,
		limiter:   rate.NewLimiter(limit, 1),
		logger:    logger.With().Str("component", "broadcast").Logger(),
	}
}

// IsAdmin reports whether senderID may broadcast.
func (e *Engine) IsAdmin(senderID int64) bool {
	return e.adminID != 0 && senderID == e.adminID
}

// Run sends text to every recipient. A failed send never stops the run; a
// recipient that can no longer be reached is removed from the directory.
// Errors are returned only for rejected requests and for directory listing
// failures, in which case the counts so far are still returned.
func (e *Engine) Run(ctx context.Context, senderID int64, text string) (models.BroadcastResult, error) {
	if !e.IsAdmin(senderID) {
		return models.BroadcastResult{}, fmt.Errorf("broadcast by %d: %w", senderID, common.ErrUnauthorized)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return models.BroadcastResult{}, fmt.Errorf("broadcast: empty message: %w", common.ErrValidation)
	}

	job := &models.BroadcastJob{
		ID:          ulid.Make().String(),
		SenderID:    senderID,
		MessageText: text,
	}
	log := e.logger.With().Str("job_id", job.ID).Logger()
	log.Info().Msg("broadcast started")

	for {
		page, err := e.dir.List(ctx, job.Cursor, e.pageSize)
		if err != nil {
			log.Error().Err(err).Str("cursor", job.Cursor).Msg("directory listing failed")
			return job.Result(), fmt.Errorf("broadcast %s: list directory: %w", job.ID, err)
		}

		for _, recipientID := range page.IDs {
			if err := e.limiter.Wait(ctx); err != nil {
				return job.Result(), fmt.Errorf("broadcast %s: %w", job.ID, err)
			}
			e.deliver(ctx, job, recipientID, log)
		}

		if page.Complete {
			break
		}
		job.Cursor = page.Cursor
	}

	res := job.Result()
	log.Info().
		Int("success", res.SuccessCount).
		Int("failure", res.FailureCount).
		Int("removed", res.Removed).
		Msg("broadcast finished")
	return res, nil
}

func (e *Engine) deliver(ctx context.Context, job *models.BroadcastJob, recipientID int64, log zerolog.Logger) {
	_, err := e.messenger.SendMessage(ctx, recipientID, job.MessageText)
	if err == nil {
		job.SuccessCount++
		metrics.BroadcastSends.WithLabelValues("success").Inc()
		return
	}

	job.FailureCount++
	if !telegram.IsPermissionDenied(err) {
		metrics.BroadcastSends.WithLabelValues("failure").Inc()
		log.Warn().Err(err).Int64("recipient", recipientID).Msg("broadcast send failed")
		return
	}

	metrics.BroadcastSends.WithLabelValues("unreachable").Inc()
	if err := e.dir.Remove(ctx, recipientID); err != nil {
		log.Warn().Err(err).Int64("recipient", recipientID).Msg("failed to remove unreachable recipient")
		return
	}
	job.RemovedCount++
	metrics.DirectoryRemovals.Inc()
	log.Info().Int64("recipient", recipientID).Msg("removed unreachable recipient")
}

// Summary renders a result for the administrator.
func Summary(res models.BroadcastResult) string {
	return fmt.Sprintf("Broadcast finished.\nSuccess: %d\nFailed: %d\nTotal: %d", res.SuccessCount, res.FailureCount, res.Total)
}
