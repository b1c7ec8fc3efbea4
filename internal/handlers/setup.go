package handlers

import (
	"net/http"
)

// SetupResponse reports the webhook state after a setup call.
type SetupResponse struct {
	OK         bool   `json:"ok"`
	WebhookURL string `json:"webhook_url,omitempty"`
	Message    string `json:"message"`
}

// SetWebhook handles POST /setup: points Telegram at PUBLIC_URL/webhook.
func (h *Handler) SetWebhook(w http.ResponseWriter, r *http.Request) {
	if h.cfg.PublicURL == "" {
		h.JSON(w, http.StatusBadRequest, ErrorResponse{ErrorCode: http.StatusBadRequest, Description: "PUBLIC_URL is not configured"})
		return
	}

	target := h.cfg.PublicURL + "/webhook"
	if err := h.bot.SetWebhook(r.Context(), target, h.cfg.WebhookSecret); err != nil {
		h.Fail(w, r, err)
		return
	}

	h.logger.Info().Str("url", target).Msg("webhook registered")
	h.JSON(w, http.StatusOK, SetupResponse{OK: true, WebhookURL: target, Message: "webhook set"})
}

// DeleteWebhook handles DELETE /setup.
func (h *Handler) DeleteWebhook(w http.ResponseWriter, r *http.Request) {
	if err := h.bot.DeleteWebhook(r.Context()); err != nil {
		h.Fail(w, r, err)
		return
	}

	h.logger.Info().Msg("webhook removed")
	h.JSON(w, http.StatusOK, SetupResponse{OK: true, Message: "webhook deleted"})
}
