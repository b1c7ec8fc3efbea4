package handlers

import (
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	Users         int64  `json:"users"`
	StartedAt     string `json:"started_at"`
	Uptime        string `json:"uptime"`
	MaxUploadSize string `json:"max_upload_size"`
}

// Stats returns directory and process statistics.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	var users int64
	if h.dir != nil {
		n, err := h.dir.Count(r.Context())
		if err != nil {
			h.logger.Error().Err(err).Msg("failed to count users")
			h.JSON(w, http.StatusInternalServerError, ErrorResponse{ErrorCode: http.StatusInternalServerError, Description: "failed to count users"})
			return
		}
		users = n
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		Users:         users,
		StartedAt:     h.started.UTC().Format(time.RFC3339),
		Uptime:        humanize.RelTime(h.started, time.Now(), "", ""),
		MaxUploadSize: humanize.Bytes(uint64(h.cfg.MaxUploadSize)),
	})
}
