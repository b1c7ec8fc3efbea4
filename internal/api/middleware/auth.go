package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rs/zerolog"
)

// TelegramSecretHeader carries the secret_token passed to setWebhook.
const TelegramSecretHeader = "X-Telegram-Bot-Api-Secret-Token"

// SecretAuth compares request credentials against a pre-shared secret.
type SecretAuth struct {
	secret []byte
	logger zerolog.Logger
}

// NewSecretAuth creates a checker for secret.
func NewSecretAuth(secret string, logger zerolog.Logger) *SecretAuth {
	return &SecretAuth{secret: []byte(secret), logger: logger}
}

// matches compares digests so the comparison time does not depend on where
// the values differ or on their lengths.
func (a *SecretAuth) matches(presented string) bool {
	if len(a.secret) == 0 || presented == "" {
		return false
	}
	want := sha256.Sum256(a.secret)
	got := sha256.Sum256([]byte(presented))
	return subtle.ConstantTimeCompare(want[:], got[:]) == 1
}

// RequireWebhookSecret rejects webhook deliveries without the Telegram
// secret header with 403.
func (a *SecretAuth) RequireWebhookSecret(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.matches(r.Header.Get(TelegramSecretHeader)) {
			a.logger.Warn().
				Str("type", "security").
				Str("event", "webhook_secret_mismatch").
				Str("ip", RealIP(r)).
				Msg("webhook delivery rejected")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireBearer protects operator endpoints with "Authorization: Bearer <secret>".
func (a *SecretAuth) RequireBearer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || !a.matches(strings.TrimSpace(token)) {
			a.logger.Warn().
				Str("type", "security").
				Str("event", "bearer_mismatch").
				Str("ip", RealIP(r)).
				Str("endpoint", r.URL.Path).
				Msg("operator request rejected")
			jsonError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// jsonError sends an error body in the gateway's format.
func jsonError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"ok":          false,
		"error_code":  status,
		"description": message,
	})
}
