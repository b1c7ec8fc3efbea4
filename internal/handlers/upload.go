package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/blobstore"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
)

// multipartOverhead is allowed on top of MaxUploadSize for form boundaries
// and headers.
const multipartOverhead = 1 << 20

// UploadResponse is returned by a successful upload.
type UploadResponse struct {
	OK       bool   `json:"ok"`
	Token    string `json:"token"`
	URL      string `json:"url"`
	FileName string `json:"file_name"`
	Size     int64  `json:"size"`
}

// Upload handles POST /upload with a multipart "file" field.
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	limit := h.cfg.MaxUploadSize
	r.Body = http.MaxBytesReader(w, r.Body, limit+multipartOverhead)

	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			h.Fail(w, r, fmt.Errorf("multipart body: %w", common.ErrTooLarge))
			return
		}
		h.Fail(w, r, fmt.Errorf("multipart body: %w: %v", common.ErrValidation, err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		h.Fail(w, r, fmt.Errorf("file field: %w", common.ErrValidation))
		return
	}
	defer file.Close()

	if header.Size > limit {
		h.Fail(w, r, fmt.Errorf("upload of %d bytes: %w", header.Size, common.ErrTooLarge))
		return
	}
	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		h.Fail(w, r, fmt.Errorf("read upload: %w: %v", common.ErrValidation, err))
		return
	}
	if int64(len(data)) > limit {
		h.Fail(w, r, fmt.Errorf("upload: %w", common.ErrTooLarge))
		return
	}

	name := sanitizeFileName(header.Filename)
	messageID, err := h.blobs.StoreUpload(r.Context(), name, data)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	token, err := h.tokens.EncodeMessageID(messageID)
	if err != nil {
		h.Fail(w, r, err)
		return
	}

	h.logger.Info().Int64("message_id", messageID).Str("file_name", name).Int("size", len(data)).Msg("file uploaded")
	h.JSON(w, http.StatusOK, UploadResponse{
		OK:       true,
		Token:    token,
		URL:      blobstore.PublicLink(h.cfg.PublicURL, token),
		FileName: name,
		Size:     int64(len(data)),
	})
}
