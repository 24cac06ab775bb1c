package chat

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jwulff/copilot/internal/backend"
	"github.com/jwulff/copilot/internal/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	answer    string
	err       error
	upload    backend.UploadResponse
	uploadErr error

	asks    atomic.Int32
	uploads atomic.Int32
}

func (f *fakeBackend) Ask(context.Context, string) (string, error) {
	f.asks.Add(1)
	return f.answer, f.err
}

func (f *fakeBackend) Upload(context.Context, []string) (backend.UploadResponse, error) {
	f.uploads.Add(1)
	return f.upload, f.uploadErr
}

func TestSubmitTextAddsTwoEntries(t *testing.T) {
	c := New(&fakeBackend{answer: "hi there"})

	require.True(t, c.SubmitText(context.Background(), "hello"))
	assert.Equal(t, []Entry{
		{Role: RoleUser, Text: "hello"},
		{Role: RoleBot, Text: "hi there"},
	}, c.Entries())
	assert.False(t, c.Typing())
}

func TestSubmitBlankIsNoop(t *testing.T) {
	fb := &fakeBackend{answer: "x"}
	c := New(fb)

	for _, text := range []string{"", "   ", "\t\n"} {
		assert.False(t, c.SubmitText(context.Background(), text))
	}
	assert.Zero(t, c.Len())
	assert.Zero(t, fb.asks.Load())
	assert.ErrorIs(t, Validate("  "), ErrEmptyQuery)
}

func TestUserEntryAppendedBeforeReply(t *testing.T) {
	c := New(&fakeBackend{answer: "later"})

	q, ok := c.Begin("question")
	require.True(t, ok)
	assert.Equal(t, []Entry{{Role: RoleUser, Text: "question"}}, c.Entries())
	assert.True(t, c.Typing())

	c.Complete(c.Ask(context.Background(), q))
	assert.Equal(t, 2, c.Len())
	assert.False(t, c.Typing())
}

func TestReplyTexts(t *testing.T) {
	tests := []struct {
		name string
		fb   *fakeBackend
		want string
	}{
		{"answer", &fakeBackend{answer: "42"}, "42"},
		{"empty answer", &fakeBackend{}, NoAnswerText},
		{"server error", &fakeBackend{err: &backend.ServerError{Status: 500}}, "Error: Server error: 500"},
		{"network error", &fakeBackend{err: errors.New("connection refused")}, "Error: connection refused"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.fb)
			c.SubmitText(context.Background(), "q")
			entries := c.Entries()
			require.Len(t, entries, 2)
			assert.Equal(t, Entry{Role: RoleBot, Text: tt.want}, entries[1])
			assert.False(t, c.Typing(), "typing clears regardless of outcome")
		})
	}
}

// slowBackend answers each query after the delay named in it, so replies
// can arrive out of submission order.
type slowBackend struct{ fakeBackend }

func (s *slowBackend) Ask(_ context.Context, q string) (string, error) {
	d, _ := time.ParseDuration(q)
	time.Sleep(d)
	return "answer to " + q, nil
}

func TestRapidSubmissionsYieldFourEntries(t *testing.T) {
	c := New(&slowBackend{})

	q1, _ := c.Begin("40ms")
	q2, _ := c.Begin("1ms")
	assert.True(t, c.Typing())

	var wg sync.WaitGroup
	for _, q := range []Query{q1, q2} {
		wg.Add(1)
		go func(q Query) {
			defer wg.Done()
			r := c.Ask(context.Background(), q)
			c.Complete(r)
		}(q)
	}

	// One reply in, one still outstanding: typing must stay on.
	time.Sleep(20 * time.Millisecond)
	assert.True(t, c.Typing())

	wg.Wait()
	entries := c.Entries()
	require.Len(t, entries, 4)
	assert.Equal(t, RoleUser, entries[0].Role)
	assert.Equal(t, RoleUser, entries[1].Role)
	assert.ElementsMatch(t, []string{"answer to 40ms", "answer to 1ms"},
		[]string{entries[2].Text, entries[3].Text})
	assert.False(t, c.Typing())
}

func TestUploadNoFiles(t *testing.T) {
	fb := &fakeBackend{}
	c := New(fb)

	assert.Equal(t, NoFilesMessage, c.Upload(context.Background(), nil))
	assert.Equal(t, NoFilesMessage, c.Upload(context.Background(), []string{}))
	assert.Zero(t, fb.uploads.Load())
	assert.Zero(t, c.Len())
}

func TestUploadMessages(t *testing.T) {
	tests := []struct {
		name string
		fb   *fakeBackend
		want string
	}{
		{"message", &fakeBackend{upload: backend.UploadResponse{Message: "1 file(s) uploaded successfully"}}, "1 file(s) uploaded successfully"},
		{"error body", &fakeBackend{uploadErr: &backend.ServerError{Status: 400, Message: "No valid files uploaded"}}, "No valid files uploaded"},
		{"transport", &fakeBackend{uploadErr: errors.New("connection reset")}, "Upload failed: connection reset"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(tt.fb)
			assert.Equal(t, tt.want, c.Upload(context.Background(), []string{"a.pdf"}))
			assert.Zero(t, c.Len(), "uploads never touch the transcript")
		})
	}
}

func TestUploadAgainstServer(t *testing.T) {
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte("notes"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(1<<20))
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"message": "1 file(s) uploaded successfully",
			"files":   []string{r.MultipartForm.File["files"][0].Filename},
		})
	}))
	defer srv.Close()

	c := New(backend.New(srv.URL))
	assert.Equal(t, "1 file(s) uploaded successfully", c.Upload(context.Background(), []string{path}))
}

func TestChangesSignal(t *testing.T) {
	c := New(&fakeBackend{answer: "a"})
	c.SubmitText(context.Background(), "q")

	select {
	case <-c.Changes():
	default:
		t.Fatal("expected a change signal")
	}
}

func TestArchiveRecordsTurns(t *testing.T) {
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	archive := NewArchive(store, "https://localhost:5000")
	c := New(&fakeBackend{answer: "pong"}, WithRecorder(archive))

	c.SubmitText(context.Background(), "ping")

	turns, err := store.Turns(archive.ID())
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "user", turns[0].Role)
	assert.Equal(t, "ping", turns[0].Text)
	assert.Equal(t, "bot", turns[1].Role)
	assert.Equal(t, "pong", turns[1].Text)
}

func TestArchiveLazyStart(t *testing.T) {
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()

	New(&fakeBackend{}, WithRecorder(NewArchive(store, "x")))

	convs, err := store.Conversations(10)
	require.NoError(t, err)
	assert.Empty(t, convs)
}

type sliceRecorder struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *sliceRecorder) Record(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func TestConcurrentAppendsRecordedInTranscriptOrder(t *testing.T) {
	rec := &sliceRecorder{}
	c := New(&fakeBackend{answer: "a"}, WithRecorder(rec))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			c.Append(RoleBot, "voice")
		}()
		go func() {
			defer wg.Done()
			c.SubmitText(context.Background(), "text")
		}()
	}
	wg.Wait()

	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.Equal(t, c.Entries(), rec.entries)
}
