package bot

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/blobstore"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/blobstore/blobstoretest"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/broadcast"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/crypto"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/store"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/telegram"
	"github.com/Johndevils/Arsynox-Uploader-Hosting/internal/worker"
)

const (
	adminID   = 1
	userID    = 555
	channelID = -100777
	publicURL = "https://files.example.com"
)

type sent struct {
	chatID int64
	text   string
}

type fakeMessenger struct {
	mu      sync.Mutex
	sent    []sent
	edited  []string
	deleted []int64
	nextID  int64
}

func (f *fakeMessenger) SendMessage(_ context.Context, chatID int64, text string) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sent{chatID, text})
	return &telegram.Message{MessageID: f.nextID, Chat: telegram.Chat{ID: chatID}}, nil
}

func (f *fakeMessenger) SendMarkdown(ctx context.Context, chatID int64, text string) (*telegram.Message, error) {
	return f.SendMessage(ctx, chatID, text)
}

func (f *fakeMessenger) EditMessageText(_ context.Context, _, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edited = append(f.edited, text)
	return nil
}

func (f *fakeMessenger) DeleteMessage(_ context.Context, _, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

func (f *fakeMessenger) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		return ""
	}
	return f.sent[len(f.sent)-1].text
}

type harness struct {
	d        *Dispatcher
	m        *fakeMessenger
	platform *blobstoretest.Platform
	store    *blobstore.ChannelStore
	codec    *crypto.Codec
	dir      *store.MemoryDirectory
}

func newHarness(t *testing.T, maxUpload int64) *harness {
	t.Helper()
	return newHarnessWithClient(t, maxUpload, http.DefaultClient)
}

// newHarnessWithClient builds a harness whose URL ingest uses client; nil
// selects the dispatcher's default.
func newHarnessWithClient(t *testing.T, maxUpload int64, client *http.Client) *harness {
	t.Helper()
	m := &fakeMessenger{}
	platform := blobstoretest.New()
	bs := blobstore.New(platform, channelID, zerolog.Nop())
	codec := crypto.NewCodec("test-secret")
	dir := store.NewMemoryDirectory()
	engine := broadcast.NewEngine(dir, m, broadcast.Config{AdminID: adminID, PageSize: 10}, zerolog.Nop())

	d := NewDispatcher(m, bs, codec, dir, engine, Config{PublicURL: publicURL, MaxUploadSize: maxUpload, HTTPClient: client}, zerolog.Nop())
	return &harness{d: d, m: m, platform: platform, store: bs, codec: codec, dir: dir}
}

func privateMessage(from int64, text string) telegram.Update {
	return telegram.Update{UpdateID: 1, Message: &telegram.Message{
		MessageID: 10,
		From:      &telegram.User{ID: from},
		Chat:      telegram.Chat{ID: from, Type: "private"},
		Text:      text,
	}}
}

// tokenFromReply extracts the file token from a reply containing a link.
func tokenFromReply(t *testing.T, reply string) string {
	t.Helper()
	i := strings.Index(reply, publicURL)
	require.GreaterOrEqual(t, i, 0, "no link in %q", reply)
	u, err := url.Parse(strings.Fields(reply[i:])[0])
	require.NoError(t, err)
	return u.Query().Get("file")
}

func TestStartRecordsUser(t *testing.T) {
	h := newHarness(t, 1024)
	h.d.HandleUpdate(context.Background(), privateMessage(userID, "/start"))

	rec, err := h.dir.Get(context.Background(), userID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Contains(t, h.m.last(), "Arsynox")
}

func TestGroupMessagesAreNotRecorded(t *testing.T) {
	h := newHarness(t, 1024)
	u := privateMessage(userID, "/help")
	u.Message.Chat = telegram.Chat{ID: -42, Type: "group"}
	h.d.HandleUpdate(context.Background(), u)

	n, _ := h.dir.Count(context.Background())
	assert.Zero(t, n)
	assert.Contains(t, h.m.last(), "How it works")
}

func TestDocumentIsArchivedAndLinked(t *testing.T) {
	h := newHarness(t, 1024)
	ctx := context.Background()
	fileID := h.platform.AddDocument("report.pdf", "application/pdf", []byte("%PDF"))

	u := privateMessage(userID, "")
	u.Message.Document = &telegram.Document{FileID: fileID, FileName: "report.pdf"}
	h.d.HandleUpdate(ctx, u)

	messageID, err := h.codec.DecodeMessageID(tokenFromReply(t, h.m.last()))
	require.NoError(t, err)
	ref, err := h.store.Peek(ctx, channelID, messageID)
	require.NoError(t, err)
	assert.Equal(t, "report.pdf", ref.FileName)
}

func TestPhotoUsesLargestVariant(t *testing.T) {
	h := newHarness(t, 1024)
	variants := []telegram.PhotoSize{
		{FileID: "p-small", FileUniqueID: "s", Width: 90, Height: 90, FileSize: 10},
		{FileID: "p-big", FileUniqueID: "b", Width: 800, Height: 800, FileSize: 90},
	}
	h.platform.AddPhoto(variants)

	u := privateMessage(userID, "")
	u.Message.Photo = variants
	fh, ok := fileHandle(u.Message)
	require.True(t, ok)
	assert.Equal(t, "p-big", fh.FileID)

	h.d.HandleUpdate(context.Background(), u)
	assert.Contains(t, h.m.last(), publicURL+"/file?file=")
}

func TestArchiveFailureIsReported(t *testing.T) {
	h := newHarness(t, 1024)
	h.platform.SendErr = &telegram.APIError{Method: "sendDocument", Code: 400, Description: "Bad Request"}

	u := privateMessage(userID, "")
	u.Message.Document = &telegram.Document{FileID: "x"}
	h.d.HandleUpdate(context.Background(), u)
	assert.Contains(t, h.m.last(), "Could not store")
}

func TestBroadcastCommand(t *testing.T) {
	h := newHarness(t, 1024)
	ctx := context.Background()
	for _, id := range []int64{11, 12, 13} {
		require.NoError(t, h.dir.Touch(ctx, id, time.Now()))
	}

	h.d.HandleUpdate(ctx, privateMessage(userID, "/broadcast hi all"))
	assert.Contains(t, h.m.last(), "Access Denied")

	h.d.HandleUpdate(ctx, privateMessage(adminID, "/broadcast"))
	assert.Contains(t, h.m.last(), "Usage")

	// 11, 12, 13 plus the two users who just wrote to the bot
	h.d.HandleUpdate(ctx, privateMessage(adminID, "/broadcast@ArsynoxBot  hi all"))
	assert.Contains(t, h.m.last(), "Success: 5")
	assert.Contains(t, h.m.last(), "Total: 5")
}

type recordingTasks struct {
	mu       sync.Mutex
	timeouts []time.Duration
	tasks    []worker.Task
	err      error
}

func (r *recordingTasks) GoWithTimeout(_ string, timeout time.Duration, task worker.Task) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.timeouts = append(r.timeouts, timeout)
	r.tasks = append(r.tasks, task)
	return nil
}

func TestBroadcastCommand_RunsUnderItsOwnDeadline(t *testing.T) {
	h := newHarness(t, 1024)
	tasks := &recordingTasks{}
	h.d.cfg.Tasks = tasks
	h.d.cfg.BroadcastTimeout = time.Hour

	// The update is finished by the time the task runs.
	updateCtx, cancel := context.WithCancel(context.Background())
	h.d.HandleUpdate(updateCtx, privateMessage(adminID, "/broadcast hello"))
	cancel()

	require.Len(t, tasks.tasks, 1)
	assert.Equal(t, time.Hour, tasks.timeouts[0])
	assert.Empty(t, h.m.sent, "nothing is sent until the task runs")

	taskCtx, stop := context.WithTimeout(context.Background(), time.Hour)
	defer stop()
	tasks.tasks[0](taskCtx)

	assert.Contains(t, h.m.last(), "Success: 1")
	assert.Contains(t, h.m.last(), "Total: 1")
}

func TestBroadcastCommand_ExecutorClosed(t *testing.T) {
	h := newHarness(t, 1024)
	h.d.cfg.Tasks = &recordingTasks{err: worker.ErrShuttingDown}

	h.d.HandleUpdate(context.Background(), privateMessage(adminID, "/broadcast hello"))
	assert.Contains(t, h.m.last(), "try the broadcast again")
}

func TestSplitCommand(t *testing.T) {
	cases := map[string][2]string{
		"/start":                 {"/start", ""},
		"/Broadcast@Bot hello x": {"/broadcast", "hello x"},
		"hello":                  {"", ""},
		"":                       {"", ""},
	}
	for in, want := range cases {
		cmd, args := splitCommand(in)
		assert.Equal(t, want, [2]string{cmd, args}, in)
	}
}

func TestURLIngest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/files/photo.png":
			w.Write([]byte("png-bytes"))
		case "/download":
			w.Header().Set("Content-Disposition", `attachment; filename="data.csv"`)
			w.Write([]byte("a,b\n1,2\n"))
		case "/big":
			w.Write([]byte(strings.Repeat("x", 64)))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	ctx := context.Background()

	t.Run("name from path", func(t *testing.T) {
		h := newHarness(t, 32)
		h.d.HandleUpdate(ctx, privateMessage(userID, srv.URL+"/files/photo.png"))

		id, err := h.codec.DecodeMessageID(tokenFromReply(t, h.m.last()))
		require.NoError(t, err)
		ref, err := h.store.Peek(ctx, channelID, id)
		require.NoError(t, err)
		assert.Equal(t, "photo.png", ref.FileName)
		assert.Len(t, h.m.deleted, 1)
	})

	t.Run("name from content disposition", func(t *testing.T) {
		h := newHarness(t, 32)
		h.d.HandleUpdate(ctx, privateMessage(userID, srv.URL+"/download"))

		id, err := h.codec.DecodeMessageID(tokenFromReply(t, h.m.last()))
		require.NoError(t, err)
		ref, err := h.store.Peek(ctx, channelID, id)
		require.NoError(t, err)
		assert.Equal(t, "data.csv", ref.FileName)
	})

	t.Run("too large", func(t *testing.T) {
		h := newHarness(t, 32)
		h.d.HandleUpdate(ctx, privateMessage(userID, srv.URL+"/big"))

		require.Len(t, h.m.edited, 1)
		assert.Contains(t, h.m.edited[0], "larger than")
		assert.Zero(t, h.platform.Calls("UploadDocument"))
	})

	t.Run("upstream 404", func(t *testing.T) {
		h := newHarness(t, 32)
		h.d.HandleUpdate(ctx, privateMessage(userID, srv.URL+"/missing"))

		require.Len(t, h.m.edited, 1)
		assert.Contains(t, h.m.edited[0], "404")
	})
}

func TestURLIngest_DefaultClientRefusesInternalAddresses(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Write([]byte("secret"))
	}))
	defer srv.Close()

	for name, target := range map[string]string{
		"loopback":    srv.URL + "/secret.txt",
		"localhost":   strings.Replace(srv.URL, "127.0.0.1", "localhost", 1) + "/secret.txt",
		"link local":  "http://169.254.169.254/latest/meta-data",
		"unspecified": "http://0.0.0.0:1/x",
	} {
		t.Run(name, func(t *testing.T) {
			h := newHarnessWithClient(t, 1024, nil)
			h.d.HandleUpdate(context.Background(), privateMessage(userID, target))

			require.Len(t, h.m.edited, 1)
			assert.Contains(t, h.m.edited[0], "private address")
			assert.Zero(t, h.platform.Calls("UploadDocument"))
		})
	}
	assert.Zero(t, hits.Load())
}

func TestPublicAddress(t *testing.T) {
	for addr, want := range map[string]bool{
		"8.8.8.8":          true,
		"2606:4700::1111":  true,
		"127.0.0.1":        false,
		"::1":              false,
		"10.1.2.3":         false,
		"172.16.0.1":       false,
		"192.168.1.1":      false,
		"169.254.169.254":  false,
		"fe80::1":          false,
		"fd00::1":          false,
		"100.64.0.1":       false,
		"0.0.0.0":          false,
		"::ffff:127.0.0.1": false,
		"224.0.0.1":        false,
	} {
		assert.Equal(t, want, publicAddress(netip.MustParseAddr(addr)), addr)
	}
}

func TestFileNameFor(t *testing.T) {
	mustURL := func(s string) *url.URL {
		u, err := url.Parse(s)
		require.NoError(t, err)
		return u
	}

	assert.Equal(t, "a.zip", fileNameFor(`attachment; filename="a.zip"`, mustURL("https://x/y")))
	assert.Equal(t, "evil.sh", fileNameFor(`attachment; filename="../../evil.sh"`, nil))
	assert.Equal(t, "song.mp3", fileNameFor("", mustURL("https://x/music/song.mp3")))
	assert.Equal(t, defaultFileName, fileNameFor("", mustURL("https://x/music/")))
	assert.Equal(t, defaultFileName, fileNameFor("", mustURL("https://x")))
}

func TestNonMessageUpdatesAreIgnored(t *testing.T) {
	h := newHarness(t, 32)
	h.d.HandleUpdate(context.Background(), telegram.Update{UpdateID: 3, ChannelPost: &telegram.Message{Text: "/start"}})
	assert.Empty(t, h.m.sent)
}
