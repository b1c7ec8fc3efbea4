package handlers

import (
	"context"
	"net/http"
	"os"
	"time"
)

const version = "1.0.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

// probe runs one dependency check and times it. A nil fn means the
// dependency was never configured.
func probe(ctx context.Context, fn func(context.Context) error, failure string) Check {
	if fn == nil {
		return Check{Status: "fail", Message: "not configured"}
	}
	start := time.Now()
	if err := fn(ctx); err != nil {
		return Check{Status: "fail", Message: failure}
	}
	return Check{Status: "pass", Latency: time.Since(start).String()}
}

// Health reports whether the directory and the Bot API are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	var pingDir, pingBot func(context.Context) error
	if h.dir != nil {
		pingDir = h.dir.Ping
	}
	if h.bot != nil {
		pingBot = func(ctx context.Context) error {
			_, err := h.bot.GetMe(ctx)
			return err
		}
	}

	checks := map[string]Check{
		"directory": probe(ctx, pingDir, "connection failed"),
		"telegram":  probe(ctx, pingBot, "bot api unreachable"),
	}

	resp := HealthResponse{
		Status:    "healthy",
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK
	for _, c := range checks {
		if c.Status != "pass" {
			resp.Status = "degraded"
			status = http.StatusServiceUnavailable
		}
	}

	h.JSON(w, status, resp)
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "Arsynox Uploader",
		Version: version,
		Endpoints: []string{
			"GET /file?file=<token>&mode=attachment|inline",
			"GET /file/<file_id>",
			"POST /upload",
			"GET /health",
			"GET /stats",
		},
	})
}
