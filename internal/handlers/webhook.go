package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
)

// Webhook handles POST /webhook. The secret header is checked by middleware.
// The update is acknowledged right away and processed on the executor; this
// handler never waits for it.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		metrics.WebhookUpdates.WithLabelValues("malformed").Inc()
		h.logger.Warn().Err(err).Msg("malformed update")
		http.Error(w, "Error", http.StatusInternalServerError)
		return
	}

	err := h.exec.Go("update", func(ctx context.Context) {
		h.updates.HandleUpdate(ctx, update)
	})
	if err != nil {
		// Telegram retries on non-2xx, so the update is not lost.
		metrics.WebhookUpdates.WithLabelValues("rejected").Inc()
		h.logger.Warn().Err(err).Int64("update_id", update.UpdateID).Msg("update not scheduled")
		http.Error(w, "Unavailable", http.StatusServiceUnavailable)
		return
	}

	metrics.WebhookUpdates.WithLabelValues("accepted").Inc()
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}
