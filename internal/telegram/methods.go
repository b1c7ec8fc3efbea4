package telegram

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

// GetMe returns the bot's own account; used as a health probe.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", struct{}{}, &me); err != nil {
		return nil, err
	}
	return &me, nil
}

// SendMessage sends a plain or Markdown text message.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.sendText(ctx, chatID, text, "")
}

// SendMarkdown sends text with parse_mode Markdown and link previews disabled.
func (c *Client) SendMarkdown(ctx context.Context, chatID int64, text string) (*Message, error) {
	return c.sendText(ctx, chatID, text, "Markdown")
}

func (c *Client) sendText(ctx context.Context, chatID int64, text, parseMode string) (*Message, error) {
	params := map[string]any{
		"chat_id":                  chatID,
		"text":                     text,
		"disable_web_page_preview": true,
	}
	if parseMode != "" {
		params["parse_mode"] = parseMode
	}

	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// EditMessageText replaces the text of a message the bot sent earlier.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text string) error {
	return c.call(ctx, "editMessageText", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"text":       text,
	}, nil)
}

// DeleteMessage removes a message the bot sent earlier.
func (c *Client) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	return c.call(ctx, "deleteMessage", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
	}, nil)
}

// SendMedia re-sends an existing file, identified by its file_id, into chatID.
func (c *Client) SendMedia(ctx context.Context, chatID int64, kind models.MediaKind, fileID, caption string) (*Message, error) {
	var method, field string
	switch kind {
	case models.KindDocument:
		method, field = "sendDocument", "document"
	case models.KindAudio:
		method, field = "sendAudio", "audio"
	case models.KindVideo:
		method, field = "sendVideo", "video"
	case models.KindPhoto:
		method, field = "sendPhoto", "photo"
	default:
		return nil, fmt.Errorf("telegram: cannot send media kind %q", kind)
	}

	params := map[string]any{
		"chat_id": chatID,
		field:     fileID,
	}
	if caption != "" {
		params["caption"] = caption
	}

	var msg Message
	if err := c.call(ctx, method, params, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// UploadDocument uploads raw bytes as a document.
func (c *Client) UploadDocument(ctx context.Context, chatID int64, fileName string, data []byte, caption string) (*Message, error) {
	fields := map[string]string{
		"chat_id": strconv.FormatInt(chatID, 10),
	}
	if caption != "" {
		fields["caption"] = caption
	}

	var msg Message
	if err := c.callMultipart(ctx, "sendDocument", fields, "document", fileName, data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// PeekMessage returns the full message object for a message in chatID.
//
// The Bot API has no method that reads a single message, so this edits the
// message caption to a fresh marker and returns the edited message. The
// marker has to change on every call, otherwise the API answers "message is
// not modified" without a result. Nothing outside this method should rely on
// the caption.
func (c *Client) PeekMessage(ctx context.Context, chatID, messageID int64) (*Message, error) {
	marker := "#" + strconv.FormatInt(messageID, 10) + "/" + strconv.FormatInt(time.Now().UnixNano(), 36)

	var msg Message
	err := c.call(ctx, "editMessageCaption", map[string]any{
		"chat_id":    chatID,
		"message_id": messageID,
		"caption":    marker,
	}, &msg)
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// GetFile resolves a file_id to a short-lived download path.
func (c *Client) GetFile(ctx context.Context, fileID string) (*File, error) {
	var f File
	if err := c.call(ctx, "getFile", map[string]any{"file_id": fileID}, &f); err != nil {
		return nil, err
	}
	return &f, nil
}

// SetWebhook points update delivery at url. Telegram echoes secretToken in
// the X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string) error {
	return c.call(ctx, "setWebhook", map[string]any{
		"url":             url,
		"secret_token":    secretToken,
		"allowed_updates": []string{"message"},
	}, nil)
}

// DeleteWebhook stops update delivery.
func (c *Client) DeleteWebhook(ctx context.Context) error {
	return c.call(ctx, "deleteWebhook", map[string]any{"drop_pending_updates": false}, nil)
}
