package telegram

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
)

// APIError is an ok:false response from the Bot API. Callers match it with
// errors.Is against the common taxonomy, or errors.As for the raw fields:
//
//	var apiErr *APIError
//	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 { ... }
type APIError struct {
	Method      string
	Code        int
	Description string
	RetryAfter  int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("telegram: %s (%d): %s", e.Method, e.Code, e.Description)
}

// Unwrap maps the Bot API error onto the shared taxonomy. It returns nil
// when the error has no better classification than "the call failed".
func (e *APIError) Unwrap() error {
	desc := strings.ToLower(e.Description)

	switch {
	case e.Code == http.StatusForbidden:
		return common.ErrPermissionDenied
	case e.Code == http.StatusTooManyRequests, e.Code >= 500:
		return common.ErrTransient
	case e.Code == http.StatusNotFound:
		return common.ErrNotFound
	}

	switch {
	case strings.Contains(desc, "chat not found"),
		strings.Contains(desc, "user is deactivated"),
		strings.Contains(desc, "bot was blocked"),
		strings.Contains(desc, "bot was kicked"),
		strings.Contains(desc, "peer_id_invalid"):
		return common.ErrPermissionDenied
	case strings.Contains(desc, "not found"),
		strings.Contains(desc, "wrong file_id"),
		strings.Contains(desc, "invalid file_id"),
		strings.Contains(desc, "wrong remote file identifier"):
		return common.ErrNotFound
	case strings.Contains(desc, "there is no caption"),
		strings.Contains(desc, "no media"):
		return common.ErrUnsupportedKind
	}
	return nil
}

// IsPermissionDenied reports whether err means the recipient can no longer
// be reached by the bot.
func IsPermissionDenied(err error) bool {
	return errors.Is(err, common.ErrPermissionDenied)
}
