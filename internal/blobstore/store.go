// Package blobstore treats a Telegram channel as an append-only object
// store. Writes return the channel message id; reads resolve a message id to
// file metadata and then to a byte stream.
package blobstore

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path"
	"strings"

	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/metrics"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
)

const defaultMimeType = "application/octet-stream"

// Platform is the subset of the Bot API the store depends on.
type Platform interface {
	SendMedia(ctx context.Context, chatID int64, kind models.MediaKind, fileID, caption string) (*telegram.Message, error)
	UploadDocument(ctx context.Context, chatID int64, fileName string, data []byte, caption string) (*telegram.Message, error)
	PeekMessage(ctx context.Context, chatID, messageID int64) (*telegram.Message, error)
	GetFile(ctx context.Context, fileID string) (*telegram.File, error)
	OpenFile(ctx context.Context, filePath string) (*telegram.Download, error)
}

// FileHandle is a file the platform already holds, e.g. one a user sent to
// the bot.
type FileHandle struct {
	FileID string
	Kind   models.MediaKind
}

// ChannelStore archives files into a single channel.
type ChannelStore struct {
	platform  Platform
	channelID int64
	logger    zerolog.Logger
}

// New creates a store bound to channelID.
func New(platform Platform, channelID int64, logger zerolog.Logger) *ChannelStore {
	return &ChannelStore{
		platform:  platform,
		channelID: channelID,
		logger:    logger.With().Str("component", "blobstore").Logger(),
	}
}

// ChannelID returns the storage channel.
func (s *ChannelStore) ChannelID() int64 {
	return s.channelID
}

// Store copies a platform file into the channel and returns the new message id.
func (s *ChannelStore) Store(ctx context.Context, fh FileHandle) (int64, error) {
	if fh.FileID == "" {
		return 0, fmt.Errorf("store: empty file id: %w", common.ErrValidation)
	}

	msg, err := s.platform.SendMedia(ctx, s.channelID, fh.Kind, fh.FileID, "")
	if err != nil {
		return 0, fmt.Errorf("store %s: %w: %w", fh.Kind, common.ErrUpstreamWrite, err)
	}

	metrics.BlobsStored.WithLabelValues("forward").Inc()
	s.logger.Debug().Int64("message_id", msg.MessageID).Str("kind", string(fh.Kind)).Msg("blob stored")
	return msg.MessageID, nil
}

// StoreUpload uploads raw bytes into the channel as a document.
func (s *ChannelStore) StoreUpload(ctx context.Context, fileName string, data []byte) (int64, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("store upload: empty body: %w", common.ErrValidation)
	}

	msg, err := s.platform.UploadDocument(ctx, s.channelID, fileName, data, "")
	if err != nil {
		return 0, fmt.Errorf("store upload %q: %w: %w", fileName, common.ErrUpstreamWrite, err)
	}

	metrics.BlobsStored.WithLabelValues("upload").Inc()
	s.logger.Debug().Int64("message_id", msg.MessageID).Str("file_name", fileName).Int("size", len(data)).Msg("blob uploaded")
	return msg.MessageID, nil
}

// Peek returns the metadata of the file attached to a channel message.
func (s *ChannelStore) Peek(ctx context.Context, channelID, messageID int64) (models.BlobReference, error) {
	msg, err := s.platform.PeekMessage(ctx, channelID, messageID)
	if errors.Is(err, common.ErrPermissionDenied) {
		// The bot cannot see the channel, so nothing in it is servable.
		s.logger.Warn().Err(err).Int64("channel_id", channelID).Msg("storage channel not accessible")
		return models.BlobReference{}, fmt.Errorf("peek message %d: %w: %v", messageID, common.ErrNotFound, err)
	}
	if err != nil {
		return models.BlobReference{}, fmt.Errorf("peek message %d: %w", messageID, err)
	}

	ref, err := referenceFor(msg)
	if err != nil {
		return models.BlobReference{}, fmt.Errorf("peek message %d: %w", messageID, err)
	}
	ref.ChannelID = channelID
	ref.MessageID = messageID
	return ref, nil
}

// FetchBytes opens the file behind ref. The caller must close the body.
func (s *ChannelStore) FetchBytes(ctx context.Context, ref models.BlobReference) (*telegram.Download, error) {
	f, err := s.resolvePath(ctx, ref.FileExternalID)
	if err != nil {
		return nil, err
	}
	return s.platform.OpenFile(ctx, f.FilePath)
}

// ResolveByFileID resolves a platform file id without going through the
// channel and opens it. The caller must close the body.
func (s *ChannelStore) ResolveByFileID(ctx context.Context, fileID string) (models.BlobReference, *telegram.Download, error) {
	f, err := s.resolvePath(ctx, fileID)
	if err != nil {
		return models.BlobReference{}, nil, err
	}

	dl, err := s.platform.OpenFile(ctx, f.FilePath)
	if err != nil {
		return models.BlobReference{}, nil, err
	}

	ref := models.BlobReference{
		FileExternalID: fileID,
		FileName:       path.Base(f.FilePath),
		MimeType:       mimeForPath(f.FilePath),
		SizeBytes:      f.FileSize,
	}
	if ref.SizeBytes == 0 {
		ref.SizeBytes = dl.Size
	}
	return ref, dl, nil
}

// resolvePath turns a file id into a download path. Anything other than a
// transport failure means the file cannot be served.
func (s *ChannelStore) resolvePath(ctx context.Context, fileID string) (*telegram.File, error) {
	if fileID == "" {
		return nil, fmt.Errorf("resolve file: empty file id: %w", common.ErrNotFound)
	}

	f, err := s.platform.GetFile(ctx, fileID)
	if err != nil {
		if errors.Is(err, common.ErrTransient) || errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("resolve file: %w", err)
		}
		return nil, fmt.Errorf("resolve file: %w: %w", common.ErrNotFound, err)
	}
	if f.FilePath == "" {
		return nil, fmt.Errorf("resolve file %s: no download path: %w", fileID, common.ErrNotFound)
	}
	return f, nil
}

// kindOf reports which attachment field msg carries.
func kindOf(msg *telegram.Message) (models.MediaKind, bool) {
	switch {
	case msg.Document != nil:
		return models.KindDocument, true
	case msg.Audio != nil:
		return models.KindAudio, true
	case msg.Video != nil:
		return models.KindVideo, true
	case len(msg.Photo) > 0:
		return models.KindPhoto, true
	}
	return "", false
}

func referenceFor(msg *telegram.Message) (models.BlobReference, error) {
	kind, ok := kindOf(msg)
	if !ok {
		return models.BlobReference{}, common.ErrUnsupportedKind
	}

	switch kind {
	case models.KindDocument:
		d := msg.Document
		return models.BlobReference{
			Kind:           kind,
			FileExternalID: d.FileID,
			FileName:       orDefault(d.FileName, d.FileUniqueID),
			MimeType:       orDefault(d.MimeType, defaultMimeType),
			SizeBytes:      d.FileSize,
		}, nil
	case models.KindAudio:
		a := msg.Audio
		return models.BlobReference{
			Kind:           kind,
			FileExternalID: a.FileID,
			FileName:       orDefault(a.FileName, a.FileUniqueID+".mp3"),
			MimeType:       orDefault(a.MimeType, "audio/mpeg"),
			SizeBytes:      a.FileSize,
		}, nil
	case models.KindVideo:
		v := msg.Video
		return models.BlobReference{
			Kind:           kind,
			FileExternalID: v.FileID,
			FileName:       orDefault(v.FileName, v.FileUniqueID+".mp4"),
			MimeType:       orDefault(v.MimeType, "video/mp4"),
			SizeBytes:      v.FileSize,
		}, nil
	case models.KindPhoto:
		p := LargestPhoto(msg.Photo)
		return models.BlobReference{
			Kind:           kind,
			FileExternalID: p.FileID,
			FileName:       p.FileUniqueID + ".jpg",
			MimeType:       "image/jpeg",
			SizeBytes:      p.FileSize,
		}, nil
	default:
		return models.BlobReference{}, fmt.Errorf("kind %q: %w", kind, common.ErrUnsupportedKind)
	}
}

// LargestPhoto picks the variant with the most pixels, then the biggest file.
// sizes must not be empty.
func LargestPhoto(sizes []telegram.PhotoSize) telegram.PhotoSize {
	best := sizes[0]
	for _, p := range sizes[1:] {
		area, bestArea := p.Width*p.Height, best.Width*best.Height
		if area > bestArea || (area == bestArea && p.FileSize > best.FileSize) {
			best = p
		}
	}
	return best
}

func mimeForPath(p string) string {
	if strings.HasPrefix(p, "photos/") {
		return "image/jpeg"
	}
	if t := mime.TypeByExtension(path.Ext(p)); t != "" {
		return t
	}
	return defaultMimeType
}

func orDefault(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
