package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/common"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/models"
)

const testToken = "123:SECRET"

// fakeAPI routes /bot<token>/<method> to handlers keyed by method name.
type fakeAPI struct {
	mu       sync.Mutex
	methods  map[string]http.HandlerFunc
	files    map[string]string
	requests []string
}

func newFakeAPI(t *testing.T) (*fakeAPI, *Client) {
	t.Helper()
	api := &fakeAPI{methods: map[string]http.HandlerFunc{}, files: map[string]string{}}
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{Token: testToken, APIURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return api, client
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if path, ok := strings.CutPrefix(r.URL.Path, "/file/bot"+testToken+"/"); ok {
		body, found := f.files[path]
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/pdf")
		io.WriteString(w, body)
		return
	}

	method, ok := strings.CutPrefix(r.URL.Path, "/bot"+testToken+"/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	f.mu.Lock()
	f.requests = append(f.requests, method)
	h := f.methods[method]
	f.mu.Unlock()

	if h == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"ok": false, "error_code": 404, "description": "Not Found: method not found"})
		return
	}
	h(w, r)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func ok(result any) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": result})
	}
}

func fail(status int, description string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, status, map[string]any{"ok": false, "error_code": status, "description": description})
	}
}

func TestNewClient(t *testing.T) {
	_, err := NewClient(ClientConfig{})
	require.Error(t, err)

	c, err := NewClient(ClientConfig{Token: "t"})
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIURL, c.baseURL)
}

func TestSendMessage(t *testing.T) {
	api, client := newFakeAPI(t)

	var got map[string]any
	api.methods["sendMessage"] = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		ok(map[string]any{"message_id": 9, "chat": map[string]any{"id": 77, "type": "private"}})(w, r)
	}

	msg, err := client.SendMessage(context.Background(), 77, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(9), msg.MessageID)
	assert.Equal(t, "hello", got["text"])
	assert.Equal(t, float64(77), got["chat_id"])
	_, hasParseMode := got["parse_mode"]
	assert.False(t, hasParseMode)
}

func TestAPIErrorClassification(t *testing.T) {
	cases := []struct {
		status int
		desc   string
		want   error
	}{
		{403, "Forbidden: bot was blocked by the user", common.ErrPermissionDenied},
		{403, "Forbidden: user is deactivated", common.ErrPermissionDenied},
		{400, "Bad Request: chat not found", common.ErrPermissionDenied},
		{400, "Bad Request: message to edit not found", common.ErrNotFound},
		{400, "Bad Request: wrong file_id or the file is temporarily unavailable", common.ErrNotFound},
		{400, "Bad Request: there is no caption in the message to edit", common.ErrUnsupportedKind},
		{429, "Too Many Requests: retry after 5", common.ErrTransient},
		{502, "Bad Gateway", common.ErrTransient},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			api, client := newFakeAPI(t)
			api.methods["sendMessage"] = fail(tc.status, tc.desc)

			_, err := client.SendMessage(context.Background(), 1, "x")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)

			var apiErr *APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, tc.status, apiErr.Code)
		})
	}
}

func TestAPIError_RetryAfter(t *testing.T) {
	api, client := newFakeAPI(t)
	api.methods["sendMessage"] = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 429, map[string]any{
			"ok": false, "error_code": 429, "description": "Too Many Requests",
			"parameters": map[string]any{"retry_after": 7},
		})
	}

	_, err := client.SendMessage(context.Background(), 1, "x")
	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 7, apiErr.RetryAfter)
}

func TestPeekMessage_UsesFreshCaption(t *testing.T) {
	api, client := newFakeAPI(t)

	var captions []string
	api.methods["editMessageCaption"] = func(w http.ResponseWriter, r *http.Request) {
		var params map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&params))
		captions = append(captions, params["caption"].(string))
		ok(map[string]any{
			"message_id": 5,
			"chat":       map[string]any{"id": -100, "type": "channel"},
			"document":   map[string]any{"file_id": "F1", "file_unique_id": "U1", "file_name": "a.pdf", "mime_type": "application/pdf", "file_size": 3},
		})(w, r)
	}

	for i := 0; i < 2; i++ {
		msg, err := client.PeekMessage(context.Background(), -100, 5)
		require.NoError(t, err)
		require.NotNil(t, msg.Document)
		assert.Equal(t, "F1", msg.Document.FileID)
	}
	require.Len(t, captions, 2)
	assert.NotEqual(t, captions[0], captions[1])
}

func TestGetFileAndOpenFile(t *testing.T) {
	api, client := newFakeAPI(t)
	api.methods["getFile"] = ok(map[string]any{"file_id": "F1", "file_unique_id": "U1", "file_size": 5, "file_path": "documents/file_1.pdf"})
	api.files["documents/file_1.pdf"] = "%PDF!"

	f, err := client.GetFile(context.Background(), "F1")
	require.NoError(t, err)
	assert.Equal(t, "documents/file_1.pdf", f.FilePath)

	dl, err := client.OpenFile(context.Background(), f.FilePath)
	require.NoError(t, err)
	defer dl.Body.Close()
	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF!", string(body))
	assert.Equal(t, "application/pdf", dl.ContentType)

	_, err = client.OpenFile(context.Background(), "documents/missing.pdf")
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestUploadDocument_Multipart(t *testing.T) {
	api, client := newFakeAPI(t)
	api.methods["sendDocument"] = func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "-100", r.FormValue("chat_id"))
		file, header, err := r.FormFile("document")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "notes.txt", header.Filename)
		assert.Equal(t, "hi there", string(data))
		ok(map[string]any{"message_id": 11, "chat": map[string]any{"id": -100, "type": "channel"}})(w, r)
	}

	msg, err := client.UploadDocument(context.Background(), -100, "notes.txt", []byte("hi there"), "")
	require.NoError(t, err)
	assert.Equal(t, int64(11), msg.MessageID)
}

func TestSendMedia_MethodPerKind(t *testing.T) {
	api, client := newFakeAPI(t)
	for _, m := range []string{"sendDocument", "sendAudio", "sendVideo", "sendPhoto"} {
		api.methods[m] = ok(map[string]any{"message_id": 1, "chat": map[string]any{"id": 1}})
	}

	for _, kind := range []models.MediaKind{models.KindDocument, models.KindAudio, models.KindVideo, models.KindPhoto} {
		_, err := client.SendMedia(context.Background(), 1, kind, "F", "")
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"sendDocument", "sendAudio", "sendVideo", "sendPhoto"}, api.requests)

	_, err := client.SendMedia(context.Background(), 1, models.MediaKind("sticker"), "F", "")
	assert.Error(t, err)
}

func TestTransportErrorIsTransientAndRedacted(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	server.Close()

	client, err := NewClient(ClientConfig{Token: testToken, APIURL: server.URL, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = client.GetMe(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrTransient)
	assert.NotContains(t, err.Error(), "SECRET")
}

func TestOpenFile_SlowBodyOutlivesMethodTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", "10")
		w.WriteHeader(http.StatusOK)
		for i := 0; i < 10; i++ {
			w.Write([]byte{'x'})
			w.(http.Flusher).Flush()
			time.Sleep(50 * time.Millisecond)
		}
	}))
	t.Cleanup(server.Close)

	client, err := NewClient(ClientConfig{
		Token:      testToken,
		APIURL:     server.URL,
		HTTPClient: &http.Client{Timeout: 200 * time.Millisecond},
		Logger:     zerolog.Nop(),
	})
	require.NoError(t, err)

	dl, err := client.OpenFile(context.Background(), "videos/slow.mp4")
	require.NoError(t, err)
	defer dl.Body.Close()

	body, err := io.ReadAll(dl.Body)
	require.NoError(t, err)
	assert.Len(t, body, 10)
	assert.Equal(t, int64(10), dl.Size)
}
