package middleware

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
)

const (
	// fileCSP lets browsers render served media inline but never run it.
	fileCSP = "default-src 'none'; img-src 'self' data:; media-src 'self'; style-src 'unsafe-inline'; sandbox"
	apiCSP  = "default-src 'none'; frame-ancestors 'none'"
)

// SecurityHeaders adds security headers to all responses. Gateway responses
// may be embedded by any origin; API responses may not.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")

		if isGatewayPath(r.URL.Path) {
			h.Set("Content-Security-Policy", fileCSP)
			h.Set("Cross-Origin-Resource-Policy", "cross-origin")
		} else {
			h.Set("Content-Security-Policy", apiCSP)
			h.Set("X-Frame-Options", "DENY")
		}

		next.ServeHTTP(w, r)
	})
}

func isGatewayPath(p string) bool {
	return p == "/file" || strings.HasPrefix(p, "/file/")
}

// MaxBodySize limits request body size.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				jsonError(w, http.StatusRequestEntityTooLarge, "request body too large")
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			next.ServeHTTP(w, r)
		})
	}
}

// ValidateRequest validates incoming requests for common attack patterns.
func ValidateRequest(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check Content-Type for POST/PUT/PATCH. The gateway answers any
		// method other than GET/HEAD with 405 itself.
		writes := r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch
		if writes && !isGatewayPath(r.URL.Path) {
			ct := r.Header.Get("Content-Type")
			// Allow empty body with no content-type
			if r.ContentLength != 0 && !allowedContentType(r.URL.Path, ct) {
				metrics.BlockedRequests.WithLabelValues("content_type").Inc()
				jsonError(w, http.StatusUnsupportedMediaType, "unsupported content-type")
				return
			}
		}

		// Check for suspicious patterns in URL
		if containsSuspiciousPatterns(r.URL.Path) {
			metrics.BlockedRequests.WithLabelValues("suspicious_path").Inc()
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}

		// Check query parameters
		if containsSuspiciousPatterns(decodedQuery(r.URL.RawQuery)) {
			metrics.BlockedRequests.WithLabelValues("suspicious_query").Inc()
			jsonError(w, http.StatusBadRequest, "invalid request")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// decodedQuery percent-decodes raw so encoded patterns are caught. A query
// that does not decode is checked as is.
func decodedQuery(raw string) string {
	decoded, err := url.QueryUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// allowedContentType accepts JSON everywhere and multipart only on /upload.
func allowedContentType(path, ct string) bool {
	if strings.HasPrefix(ct, "application/json") {
		return true
	}
	return path == "/upload" && strings.HasPrefix(ct, "multipart/form-data")
}

// containsSuspiciousPatterns checks for common attack patterns.
func containsSuspiciousPatterns(input string) bool {
	if input == "" {
		return false
	}

	suspicious := []string{
		"..",          // Path traversal
		"//",          // Path manipulation
		"<script",     // XSS
		"javascript:", // XSS
		"vbscript:",   // XSS
		"onload=",     // XSS event handlers
		"onerror=",    // XSS event handlers
	}

	lower := strings.ToLower(input)
	for _, s := range suspicious {
		if strings.Contains(lower, s) {
			return true
		}
	}
	return false
}
