// Package bot routes inbound Telegram updates: commands, file archiving and
// URL ingestion.
package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/blobstore"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/broadcast"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/store"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/worker"
)

// Messenger is the chat side of the Bot API.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	SendMarkdown(ctx context.Context, chatID int64, text string) (*telegram.Message, error)
	EditMessageText(ctx context.Context, chatID, messageID int64, text string) error
	DeleteMessage(ctx context.Context, chatID, messageID int64) error
}

// Archive stores files in the storage channel.
type Archive interface {
	Store(ctx context.Context, fh blobstore.FileHandle) (int64, error)
	StoreUpload(ctx context.Context, fileName string, data []byte) (int64, error)
}

// Tokenizer turns a channel message id into a public token.
type Tokenizer interface {
	EncodeMessageID(messageID int64) (string, error)
}

// Broadcaster runs admin broadcasts.
type Broadcaster interface {
	Run(ctx context.Context, senderID int64, text string) (models.BroadcastResult, error)
}

// Config holds dispatcher settings.
type Config struct {
	PublicURL     string
	MaxUploadSize int64
	// HTTPClient fetches URLs sent by users. Defaults to NewIngestClient.
	HTTPClient *http.Client
	// Tasks runs broadcasts under BroadcastTimeout instead of the update's
	// own deadline. If nil, broadcasts run inline.
	Tasks            TaskRunner
	BroadcastTimeout time.Duration
}

// TaskRunner schedules detached work with its own deadline.
type TaskRunner interface {
	GoWithTimeout(name string, timeout time.Duration, task worker.Task) error
}

// Dispatcher handles one update at a time; it holds no per-update state and
// is safe for concurrent use.
type Dispatcher struct {
	messenger   Messenger
	archive     Archive
	tokens      Tokenizer
	dir         store.Directory
	broadcaster Broadcaster
	cfg         Config
	httpClient  *http.Client
	logger      zerolog.Logger
	now         func() time.Time
}

// NewDispatcher wires a dispatcher.
func NewDispatcher(messenger Messenger, archive Archive, tokens Tokenizer, dir store.Directory, broadcaster Broadcaster, cfg Config, logger zerolog.Logger) *Dispatcher {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = NewIngestClient(60 * time.Second)
	}
	return &Dispatcher{
		messenger:   messenger,
		archive:     archive,
		tokens:      tokens,
		dir:         dir,
		broadcaster: broadcaster,
		cfg:         cfg,
		httpClient:  httpClient,
		logger:      logger.With().Str("component", "bot").Logger(),
		now:         time.Now,
	}
}

// summaryTimeout bounds the final broadcast reply.
const summaryTimeout = 10 * time.Second

var urlPattern = regexp.MustCompile(`^https?://[^\s"]+$`)

// HandleUpdate processes one update. Failures are reported to the user where
// possible and logged; nothing is returned because the update has already
// been acknowledged.
func (d *Dispatcher) HandleUpdate(ctx context.Context, update telegram.Update) {
	msg := update.Message
	if msg == nil {
		return
	}
	chatID := msg.Chat.ID
	log := d.logger.With().Int64("update_id", update.UpdateID).Int64("chat_id", chatID).Logger()

	if msg.Chat.Type == "private" {
		if err := d.dir.Touch(ctx, chatID, d.now()); err != nil {
			log.Warn().Err(err).Msg("failed to record user")
		}
	}

	if fh, ok := fileHandle(msg); ok {
		d.archiveFile(ctx, chatID, fh, log)
		return
	}

	text := strings.TrimSpace(msg.Text)
	command, args := splitCommand(text)
	switch command {
	case "/start":
		d.reply(ctx, chatID, welcomeText, true, log)
	case "/help":
		d.reply(ctx, chatID, helpText, true, log)
	case "/broadcast":
		var senderID int64
		if msg.From != nil {
			senderID = msg.From.ID
		}
		d.startBroadcast(ctx, chatID, senderID, args, log)
	case "":
		if urlPattern.MatchString(text) {
			d.ingestURL(ctx, chatID, text, log)
		}
	}
}

// splitCommand returns ("/cmd", rest) for "/cmd@BotName rest", or ("", "")
// when text is not a command.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	command, rest, _ := strings.Cut(text, " ")
	if i := strings.IndexByte(command, '@'); i >= 0 {
		command = command[:i]
	}
	return strings.ToLower(command), strings.TrimSpace(rest)
}

// fileHandle picks the attachment of msg, preferring the largest photo
// variant.
func fileHandle(msg *telegram.Message) (blobstore.FileHandle, bool) {
	switch {
	case msg.Document != nil:
		return blobstore.FileHandle{FileID: msg.Document.FileID, Kind: models.KindDocument}, true
	case msg.Audio != nil:
		return blobstore.FileHandle{FileID: msg.Audio.FileID, Kind: models.KindAudio}, true
	case msg.Video != nil:
		return blobstore.FileHandle{FileID: msg.Video.FileID, Kind: models.KindVideo}, true
	case len(msg.Photo) > 0:
		return blobstore.FileHandle{FileID: blobstore.LargestPhoto(msg.Photo).FileID, Kind: models.KindPhoto}, true
	}
	return blobstore.FileHandle{}, false
}

func (d *Dispatcher) archiveFile(ctx context.Context, chatID int64, fh blobstore.FileHandle, log zerolog.Logger) {
	messageID, err := d.archive.Store(ctx, fh)
	if err != nil {
		log.Error().Err(err).Str("kind", string(fh.Kind)).Msg("archiving failed")
		d.reply(ctx, chatID, "❌ Could not store this file. Please try again later.", false, log)
		return
	}

	link, err := d.link(messageID)
	if err != nil {
		log.Error().Err(err).Msg("token encoding failed")
		d.reply(ctx, chatID, "❌ Could not create a link for this file.", false, log)
		return
	}
	d.reply(ctx, chatID, "✅ File stored.\n🔗 "+link, false, log)
}

// startBroadcast hands the run to Tasks so a large audience is not cut off
// by the deadline of the update that requested it.
func (d *Dispatcher) startBroadcast(ctx context.Context, chatID, senderID int64, text string, log zerolog.Logger) {
	if d.cfg.Tasks == nil {
		d.runBroadcast(ctx, chatID, senderID, text, log)
		return
	}
	err := d.cfg.Tasks.GoWithTimeout("broadcast", d.cfg.BroadcastTimeout, func(ctx context.Context) {
		d.runBroadcast(ctx, chatID, senderID, text, log)
	})
	if err != nil {
		log.Warn().Err(err).Msg("broadcast not started")
		d.reply(ctx, chatID, "⚠️ Server is restarting, try the broadcast again shortly.", false, log)
	}
}

func (d *Dispatcher) runBroadcast(ctx context.Context, chatID, senderID int64, text string, log zerolog.Logger) {
	res, err := d.broadcaster.Run(ctx, senderID, text)
	switch {
	case errors.Is(err, common.ErrUnauthorized):
		d.reply(ctx, chatID, "❌ *Access Denied.*", true, log)
		return
	case errors.Is(err, common.ErrValidation):
		d.reply(ctx, chatID, "⚠️ Usage: `/broadcast <message>`", true, log)
		return
	}

	// The task deadline may have ended the run; the admin still gets a summary.
	replyCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), summaryTimeout)
	defer cancel()
	if err != nil {
		log.Error().Err(err).Msg("broadcast aborted")
		d.reply(replyCtx, chatID, "⚠️ Broadcast stopped early.\n"+broadcast.Summary(res), false, log)
		return
	}
	d.reply(replyCtx, chatID, broadcast.Summary(res), false, log)
}

func (d *Dispatcher) ingestURL(ctx context.Context, chatID int64, rawURL string, log zerolog.Logger) {
	status, err := d.messenger.SendMarkdown(ctx, chatID, "⏳ *Downloading file...*")
	if err != nil {
		log.Warn().Err(err).Msg("failed to send status message")
	}

	link, size, err := d.fetchAndStore(ctx, rawURL)
	if err != nil {
		log.Warn().Err(err).Str("url", rawURL).Msg("url ingest failed")
		text := "❌ Error: " + userError(err, d.cfg.MaxUploadSize)
		if status != nil {
			if editErr := d.messenger.EditMessageText(ctx, chatID, status.MessageID, text); editErr == nil {
				return
			}
		}
		d.reply(ctx, chatID, text, false, log)
		return
	}

	if status != nil {
		if err := d.messenger.DeleteMessage(ctx, chatID, status.MessageID); err != nil {
			log.Debug().Err(err).Msg("failed to delete status message")
		}
	}
	d.reply(ctx, chatID, fmt.Sprintf("✅ File stored (%s).\n🔗 %s", humanize.Bytes(uint64(size)), link), false, log)
}

func (d *Dispatcher) fetchAndStore(ctx context.Context, rawURL string) (string, int, error) {
	name, data, err := d.download(ctx, rawURL)
	if err != nil {
		return "", 0, err
	}
	messageID, err := d.archive.StoreUpload(ctx, name, data)
	if err != nil {
		return "", 0, err
	}
	link, err := d.link(messageID)
	if err != nil {
		return "", 0, err
	}
	return link, len(data), nil
}

func (d *Dispatcher) link(messageID int64) (string, error) {
	token, err := d.tokens.EncodeMessageID(messageID)
	if err != nil {
		return "", err
	}
	return blobstore.PublicLink(d.cfg.PublicURL, token), nil
}

func (d *Dispatcher) reply(ctx context.Context, chatID int64, text string, markdown bool, log zerolog.Logger) {
	var err error
	if markdown {
		_, err = d.messenger.SendMarkdown(ctx, chatID, text)
	} else {
		_, err = d.messenger.SendMessage(ctx, chatID, text)
	}
	if err != nil {
		log.Warn().Err(err).Msg("reply failed")
	}
}

func userError(err error, limit int64) string {
	switch {
	case errors.Is(err, common.ErrTooLarge):
		return "file is larger than " + humanize.Bytes(uint64(limit)) + "."
	case errors.Is(err, common.ErrUpstreamWrite):
		return "Telegram rejected the upload."
	case errors.Is(err, common.ErrValidation):
		return "the URL returned an empty file."
	}
	var fe *fetchError
	if errors.As(err, &fe) {
		return fe.Error()
	}
	return "could not download the file."
}

const welcomeText = `🌟 *Arsynox File Upload & Hosting Bot* 🌟

📤 Send any file, photo, audio or video and get a permanent public link.
🌐 Send a direct http(s) URL and the bot uploads it for you.

Type /help for details.`

const helpText = `*How it works*

• Send a document, photo, audio or video: it is archived and you get a link.
• Send a direct URL: the file is downloaded, archived and linked.
• Links accept ` + "`&mode=inline`" + ` to open in the browser instead of downloading.`
