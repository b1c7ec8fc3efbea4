// Package arsynox provides a client for the Arsynox file gateway.
package arsynox

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

// Download modes accepted by the gateway.
const (
	ModeAttachment = "attachment"
	ModeInline     = "inline"
)

// Client is a gateway API client.
type Client struct {
	BaseURL string
	// OperatorSecret authorizes /setup calls.
	OperatorSecret string
	HTTPClient     *http.Client
}

// NewClient creates a new client.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	return &Client{
		BaseURL:        baseURL,
		OperatorSecret: os.Getenv("ARSYNOX_OPERATOR_SECRET"),
		HTTPClient:     &http.Client{Timeout: 5 * time.Minute},
	}
}

// Error is a failed gateway call.
type Error struct {
	StatusCode  int
	Description string
}

func (e *Error) Error() string {
	return fmt.Sprintf("gateway error %d: %s", e.StatusCode, e.Description)
}

// IsNotFound reports whether err means the file does not exist.
func IsNotFound(err error) bool {
	var e *Error
	return errors.As(err, &e) && e.StatusCode == http.StatusNotFound
}

func (c *Client) newRequest(method, path string, body io.Reader) (*http.Request, error) {
	return http.NewRequest(method, c.BaseURL+path, body)
}

// do performs req and returns the response for 2xx statuses.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 400 {
		return resp, nil
	}
	defer resp.Body.Close()

	var errResp struct {
		Description string `json:"description"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(body, &errResp) != nil || errResp.Description == "" {
		errResp.Description = http.StatusText(resp.StatusCode)
	}
	return nil, &Error{StatusCode: resp.StatusCode, Description: errResp.Description}
}

func (c *Client) getJSON(path string, out any) error {
	req, err := c.newRequest(http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(out)
}

// UploadResponse is the result of an upload.
type UploadResponse struct {
	OK       bool   `json:"ok"`
	Token    string `json:"token"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// Upload sends r as a file named name.
func (c *Client) Upload(name string, r io.Reader) (*UploadResponse, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", name)
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, r); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}

	req, err := c.newRequest(http.MethodPost, "/upload", &buf)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadFile uploads the file at path under its base name.
func (c *Client) UploadFile(path string) (*UploadResponse, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return c.Upload(filepath.Base(path), f)
}

// FileInfo describes a downloaded file.
type FileInfo struct {
	ContentType        string
	ContentDisposition string
	Size               int64
}

// Download writes the file behind token to w.
func (c *Client) Download(token, mode string, w io.Writer) (*FileInfo, error) {
	q := url.Values{"file": {token}}
	if mode != "" {
		q.Set("mode", mode)
	}
	req, err := c.newRequest(http.MethodGet, "/file?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return nil, err
	}
	return &FileInfo{
		ContentType:        resp.Header.Get("Content-Type"),
		ContentDisposition: resp.Header.Get("Content-Disposition"),
		Size:               n,
	}, nil
}

// HealthResponse is the gateway health report.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Checks  map[string]struct {
		Status  string `json:"status"`
		Latency string `json:"latency,omitempty"`
		Message string `json:"message,omitempty"`
	} `json:"checks"`
}

// Health checks server health. A degraded server answers 503, which is
// returned as a report rather than an error.
func (c *Client) Health() (*HealthResponse, error) {
	req, err := c.newRequest(http.MethodGet, "/health", nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("health %d: %w", resp.StatusCode, err)
	}
	return &out, nil
}

// StatsResponse is the gateway stats report.
type StatsResponse struct {
	Users         int64  `json:"users"`
	StartedAt     string `json:"started_at"`
	Uptime        string `json:"uptime"`
	MaxUploadSize string `json:"max_upload_size"`
}

// Stats fetches server statistics.
func (c *Client) Stats() (*StatsResponse, error) {
	var out StatsResponse
	if err := c.getJSON("/stats", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupResponse is returned by the webhook setup calls.
type SetupResponse struct {
	OK         bool   `json:"ok"`
	WebhookURL string `json:"webhook_url,omitempty"`
	Message    string `json:"message"`
}

// SetWebhook registers the server's webhook with Telegram. remove deletes it
// instead.
func (c *Client) SetWebhook(remove bool) (*SetupResponse, error) {
	method := http.MethodPost
	if remove {
		method = http.MethodDelete
	}
	req, err := c.newRequest(method, "/setup", nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.OperatorSecret)

	resp, err := c.do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var out SetupResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}
