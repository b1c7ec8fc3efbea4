package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
)

// DefaultAPIURL is the public Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// maxResponseSize bounds JSON responses; file downloads are streamed instead.
const maxResponseSize = 4 << 20

// ClientConfig holds configuration for creating a Client.
type ClientConfig struct {
	// Token is the bot credential issued by @BotFather.
	Token string
	// APIURL overrides DefaultAPIURL (tests, local Bot API servers).
	APIURL string
	// HTTPClient is used for method calls. If nil, a client with a 60s timeout is used.
	HTTPClient *http.Client
	// DownloadClient fetches file bodies. It must not set a total Timeout,
	// which would also cut off reading the body. If nil, a client bounded only
	// by DownloadHeaderTimeout and the request context is used.
	DownloadClient *http.Client
	Logger         zerolog.Logger
}

// DownloadHeaderTimeout bounds the wait for a file download's response
// headers. The body is streamed without a deadline.
const DownloadHeaderTimeout = 30 * time.Second

func newDownloadClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = DownloadHeaderTimeout
	return &http.Client{Transport: transport}
}

// Client talks to the Telegram Bot API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	downloads  *http.Client
	logger     zerolog.Logger
}

// NewClient creates a Bot API client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}

	apiURL := cfg.APIURL
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	if _, err := url.Parse(apiURL); err != nil {
		return nil, fmt.Errorf("telegram: invalid API URL %q: %w", apiURL, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 60 * time.Second}
	}
	downloads := cfg.DownloadClient
	if downloads == nil {
		downloads = newDownloadClient()
	}

	return &Client{
		baseURL:    strings.TrimRight(apiURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		downloads:  downloads,
		logger:     cfg.Logger.With().Str("component", "telegram").Logger(),
	}, nil
}

// call performs a JSON method call and decodes the result into out (if non-nil).
func (c *Client) call(ctx context.Context, method string, params any, out any) error {
	encoded, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("telegram: encode %s params: %w", method, err)
	}
	return c.do(ctx, method, "application/json", bytes.NewReader(encoded), out)
}

// callMultipart performs a method call with a multipart body. The Bot API
// needs the whole body up front, so the file is buffered in memory.
func (c *Client) callMultipart(ctx context.Context, method string, fields map[string]string, fileField, fileName string, data []byte, out any) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return fmt.Errorf("telegram: multipart field %s: %w", k, err)
		}
	}
	part, err := mw.CreateFormFile(fileField, fileName)
	if err != nil {
		return fmt.Errorf("telegram: multipart file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("telegram: multipart file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("telegram: multipart close: %w", err)
	}

	return c.do(ctx, method, mw.FormDataContentType(), &body, out)
}

func (c *Client) do(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	}()

	err := c.roundTrip(ctx, method, contentType, body, out)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues(method).Inc()
		c.logger.Debug().Str("method", method).Err(err).Msg("bot api call failed")
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, method, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.methodURL(method), body)
	if err != nil {
		return fmt.Errorf("telegram: create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("telegram: %s request failed: %w: %w", method, common.ErrTransient, redactToken(err, c.token))
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return fmt.Errorf("telegram: read %s response: %w: %w", method, common.ErrTransient, err)
	}

	var envelope response
	if err := json.Unmarshal(raw, &envelope); err != nil {
		if resp.StatusCode >= 500 {
			return fmt.Errorf("telegram: %s returned %d: %w", method, resp.StatusCode, common.ErrTransient)
		}
		return fmt.Errorf("telegram: unexpected %d response from %s: %s", resp.StatusCode, method, string(raw))
	}

	if !envelope.OK {
		apiErr := &APIError{
			Method:      method,
			Code:        envelope.ErrorCode,
			Description: envelope.Description,
		}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if envelope.Parameters != nil {
			apiErr.RetryAfter = envelope.Parameters.RetryAfter
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("telegram: decode %s result: %w", method, err)
	}
	return nil
}

func (c *Client) methodURL(method string) string {
	return c.baseURL + "/bot" + c.token + "/" + method
}

func (c *Client) fileURL(filePath string) string {
	return c.baseURL + "/file/bot" + c.token + "/" + strings.TrimLeft(filePath, "/")
}

// Download is an open file body. The caller must close Body.
type Download struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// OpenFile starts downloading a file previously resolved with GetFile.
func (c *Client) OpenFile(ctx context.Context, filePath string) (*Download, error) {
	start := time.Now()
	defer func() {
		metrics.UpstreamDuration.WithLabelValues("download").Observe(time.Since(start).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.fileURL(filePath), nil)
	if err != nil {
		return nil, fmt.Errorf("telegram: create download request: %w", err)
	}

	resp, err := c.downloads.Do(req)
	if err != nil {
		metrics.UpstreamErrors.WithLabelValues("download").Inc()
		return nil, fmt.Errorf("telegram: download failed: %w: %w", common.ErrTransient, redactToken(err, c.token))
	}

	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		metrics.UpstreamErrors.WithLabelValues("download").Inc()
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("telegram: file path %q: %w", filePath, common.ErrNotFound)
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			return nil, fmt.Errorf("telegram: download returned %d: %w", resp.StatusCode, common.ErrTransient)
		default:
			return nil, fmt.Errorf("telegram: download returned %d: %w", resp.StatusCode, common.ErrNotFound)
		}
	}

	return &Download{
		Body:        resp.Body,
		Size:        resp.ContentLength,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}

// redactToken strips the bot token from transport errors, which embed the
// request URL.
func redactToken(err error, token string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return &url.Error{
			Op:  urlErr.Op,
			URL: strings.ReplaceAll(urlErr.URL, token, "<token>"),
			Err: urlErr.Err,
		}
	}
	return err
}
