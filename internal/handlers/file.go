package handlers

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"regexp"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
)

const (
	ModeAttachment = "attachment"
	ModeInline     = "inline"

	cacheForever = "public, max-age=31536000, immutable"
)

// imageSuffix is stripped from direct file ids so links can end in an image
// extension.
var imageSuffix = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp)$`)

// fileRequest is the validated input of one gateway request.
type fileRequest struct {
	token string
	mode  string
	head  bool
}

// parseFileRequest validates parameters first, then the method.
func parseFileRequest(r *http.Request, token string) (fileRequest, error) {
	if token == "" {
		return fileRequest{}, common.ErrMissingFile
	}

	mode := r.URL.Query().Get("mode")
	switch mode {
	case "":
		mode = ModeAttachment
	case ModeAttachment, ModeInline:
	default:
		return fileRequest{}, fmt.Errorf("mode %q: %w", mode, common.ErrInvalidMode)
	}

	switch r.Method {
	case http.MethodGet, http.MethodHead:
	default:
		return fileRequest{}, fmt.Errorf("%s: %w", r.Method, common.ErrMethodNotAllowed)
	}

	return fileRequest{token: token, mode: mode, head: r.Method == http.MethodHead}, nil
}

// ServeFile handles GET /file?file=<token>&mode=attachment|inline.
func (h *Handler) ServeFile(w http.ResponseWriter, r *http.Request) {
	req, err := parseFileRequest(r, r.URL.Query().Get("file"))
	if err != nil {
		h.gatewayFail(w, r, err)
		return
	}

	messageID, err := h.tokens.DecodeMessageID(req.token)
	if err != nil {
		h.gatewayFail(w, r, err)
		return
	}

	// The upstream round trips run to completion even if the client goes away.
	ctx := context.WithoutCancel(r.Context())

	ref, err := h.blobs.Peek(ctx, h.blobs.ChannelID(), messageID)
	if err != nil {
		h.gatewayFail(w, r, err)
		return
	}

	dl, err := h.blobs.FetchBytes(ctx, ref)
	if err != nil {
		h.gatewayFail(w, r, err)
		return
	}
	defer dl.Body.Close()

	metrics.FilesServed.WithLabelValues(string(ref.Kind), "token").Inc()
	h.stream(w, r, req, ref, dl)
}

// ServeDirect handles GET /file/{fileID}, for callers that hold a platform
// file id instead of a token.
func (h *Handler) ServeDirect(w http.ResponseWriter, r *http.Request) {
	fileID := imageSuffix.ReplaceAllString(chi.URLParam(r, "fileID"), "")

	req, err := parseFileRequest(r, fileID)
	if err != nil {
		h.gatewayFail(w, r, err)
		return
	}

	ref, dl, err := h.blobs.ResolveByFileID(context.WithoutCancel(r.Context()), req.token)
	if err != nil {
		h.gatewayFail(w, r, err)
		return
	}
	defer dl.Body.Close()

	metrics.FilesServed.WithLabelValues("direct", "direct").Inc()
	h.stream(w, r, req, ref, dl)
}

// stream writes the success response shared by both strategies.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request, req fileRequest, ref models.BlobReference, dl *telegram.Download) {
	size := ref.SizeBytes
	if size <= 0 {
		size = dl.Size
	}
	contentType := ref.MimeType
	if contentType == "" {
		contentType = dl.ContentType
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	header := w.Header()
	header.Set("Content-Type", contentType)
	header.Set("Content-Disposition", contentDisposition(req.mode, ref.FileName))
	if size > 0 {
		header.Set("Content-Length", strconv.FormatInt(size, 10))
	}
	header.Set("Access-Control-Allow-Origin", "*")
	header.Set("Cache-Control", cacheForever)
	w.WriteHeader(http.StatusOK)

	if req.head {
		return
	}

	if _, err := io.Copy(w, dl.Body); err != nil {
		h.logger.Warn().Err(err).Str("file", ref.FileName).Msg("stream interrupted")
	}
}

// contentDisposition renders `<mode>; filename=<name>`, quoting or
// RFC 2231-encoding the name only when it needs it.
func contentDisposition(mode, name string) string {
	if name == "" {
		return mode
	}
	if v := mime.FormatMediaType(mode, map[string]string{"filename": name}); v != "" {
		return v
	}
	return mode
}

func (h *Handler) gatewayFail(w http.ResponseWriter, r *http.Request, err error) {
	status, _ := StatusFor(err)
	recordGatewayError(status)
	h.Fail(w, r, err)
}
