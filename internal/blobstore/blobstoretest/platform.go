// Package blobstoretest provides an in-memory Platform for tests.
package blobstoretest

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
)

// Platform fakes the Bot API file surface. Files registered with AddFile can
// be sent into a chat with SendMedia; messages can be peeked and their files
// downloaded.
type Platform struct {
	mu       sync.Mutex
	nextID   int64
	messages map[int64]*telegram.Message
	files    map[string]file
	calls    map[string]int

	// Per-method failures returned instead of a result.
	SendErr error
	PeekErr error
	GetErr  error
	OpenErr error
}

type file struct {
	meta telegram.Message
	path string
	data []byte
}

// New returns an empty fake.
func New() *Platform {
	return &Platform{
		nextID:   100,
		messages: map[int64]*telegram.Message{},
		files:    map[string]file{},
		calls:    map[string]int{},
	}
}

// AddDocument registers a document the bot has seen and returns its file id.
func (p *Platform) AddDocument(name, mimeType string, data []byte) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	id := fmt.Sprintf("doc-%d", len(p.files)+1)
	p.files[id] = file{
		meta: telegram.Message{Document: &telegram.Document{
			FileID: id, FileUniqueID: "u" + id, FileName: name, MimeType: mimeType, FileSize: int64(len(data)),
		}},
		path: "documents/" + name,
		data: data,
	}
	return id
}

// AddPhoto registers a photo with the given variants. Each variant becomes a
// downloadable file; the id of the first variant is returned.
func (p *Platform) AddPhoto(variants []telegram.PhotoSize) string {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, v := range variants {
		p.files[v.FileID] = file{
			meta: telegram.Message{Photo: variants},
			path: "photos/" + v.FileUniqueID + ".jpg",
			data: bytes.Repeat([]byte{0xff}, int(v.FileSize)),
		}
	}
	return variants[0].FileID
}

// AddMessage places an arbitrary message in the channel, e.g. a text post.
func (p *Platform) AddMessage(msg telegram.Message) int64 {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.nextID++
	msg.MessageID = p.nextID
	p.messages[msg.MessageID] = &msg
	return msg.MessageID
}

// Calls returns how many times method was invoked.
func (p *Platform) Calls(method string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[method]
}

// TotalCalls counts every upstream call.
func (p *Platform) TotalCalls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, c := range p.calls {
		n += c
	}
	return n
}

func (p *Platform) SendMedia(_ context.Context, chatID int64, kind models.MediaKind, fileID, _ string) (*telegram.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["SendMedia"]++

	if p.SendErr != nil {
		return nil, p.SendErr
	}
	f, ok := p.files[fileID]
	if !ok {
		return nil, &telegram.APIError{Method: "send", Code: 400, Description: "Bad Request: wrong file identifier"}
	}

	msg := f.meta
	if kind == models.KindPhoto && msg.Photo == nil {
		return nil, &telegram.APIError{Method: "sendPhoto", Code: 400, Description: "Bad Request: type of file mismatch"}
	}
	return p.appendLocked(chatID, msg), nil
}

func (p *Platform) UploadDocument(_ context.Context, chatID int64, fileName string, data []byte, _ string) (*telegram.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["UploadDocument"]++

	if p.SendErr != nil {
		return nil, p.SendErr
	}
	id := fmt.Sprintf("upload-%d", len(p.files)+1)
	f := file{
		meta: telegram.Message{Document: &telegram.Document{
			FileID: id, FileUniqueID: "u" + id, FileName: fileName, MimeType: "application/octet-stream", FileSize: int64(len(data)),
		}},
		path: "documents/" + fileName,
		data: append([]byte(nil), data...),
	}
	p.files[id] = f
	return p.appendLocked(chatID, f.meta), nil
}

func (p *Platform) appendLocked(chatID int64, msg telegram.Message) *telegram.Message {
	p.nextID++
	msg.MessageID = p.nextID
	msg.Chat = telegram.Chat{ID: chatID, Type: "channel"}
	p.messages[msg.MessageID] = &msg
	out := msg
	return &out
}

func (p *Platform) PeekMessage(_ context.Context, _ int64, messageID int64) (*telegram.Message, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["PeekMessage"]++

	if p.PeekErr != nil {
		return nil, p.PeekErr
	}
	msg, ok := p.messages[messageID]
	if !ok {
		return nil, &telegram.APIError{Method: "editMessageCaption", Code: 400, Description: "Bad Request: message to edit not found"}
	}
	out := *msg
	return &out, nil
}

func (p *Platform) GetFile(_ context.Context, fileID string) (*telegram.File, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["GetFile"]++

	if p.GetErr != nil {
		return nil, p.GetErr
	}
	f, ok := p.files[fileID]
	if !ok {
		return nil, &telegram.APIError{Method: "getFile", Code: 400, Description: "Bad Request: invalid file_id"}
	}
	return &telegram.File{FileID: fileID, FileSize: int64(len(f.data)), FilePath: f.path}, nil
}

func (p *Platform) OpenFile(_ context.Context, filePath string) (*telegram.Download, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls["OpenFile"]++

	if p.OpenErr != nil {
		return nil, p.OpenErr
	}
	for _, f := range p.files {
		if f.path == filePath {
			return &telegram.Download{
				Body: io.NopCloser(bytes.NewReader(f.data)),
				Size: int64(len(f.data)),
			}, nil
		}
	}
	return nil, fmt.Errorf("open %s: %w", filePath, common.ErrNotFound)
}
