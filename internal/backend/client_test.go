package backend

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func TestAskSendsQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, PathAsk, r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req AskRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "what is go?", req.Query)

		writeJSON(w, http.StatusOK, AskResponse{Answer: "a language"})
	}))
	defer srv.Close()

	answer, err := New(srv.URL).Ask(context.Background(), "what is go?")
	require.NoError(t, err)
	assert.Equal(t, "a language", answer)
}

func TestAskServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Please log in first"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Ask(context.Background(), "hi")
	require.Error(t, err)

	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusUnauthorized, se.Status)
	assert.Equal(t, "Please log in first", se.Message)
	assert.Equal(t, "Server error: 401 (Please log in first)", err.Error())
	assert.True(t, IsUnauthorized(err))
}

func TestServerErrorPlainBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	_, err := New(srv.URL).Ask(context.Background(), "hi")
	var se *ServerError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "boom", se.Message)
}

func TestNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url).Ask(context.Background(), "hi")
	require.Error(t, err)
	assert.True(t, IsNetwork(err))
	assert.False(t, IsUnauthorized(err))
}

func TestMe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathMe, r.URL.Path)
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": "github",
			"user":     map[string]any{"login": "octo"},
		})
	}))
	defer srv.Close()

	me, err := New(srv.URL).Me(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "github", me.Provider)
	assert.Equal(t, "octo", me.User["login"])
}

func TestMeNotLoggedIn(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "User not logged in"})
	}))
	defer srv.Close()

	_, err := New(srv.URL).Me(context.Background())
	assert.True(t, IsUnauthorized(err))
}

func TestMeWithCookiesLeavesJarAlone(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie("session")
		if err != nil || c.Value != "candidate" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "User not logged in"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"provider": "google",
			"user":     map[string]any{"email": "a@b.com"},
		})
	}))
	defer srv.Close()

	jar, err := NewPersistentJar(srv.URL, nil)
	require.NoError(t, err)
	jar.Import([]*http.Cookie{{Name: "session", Value: "stored", Path: "/"}})
	client := New(srv.URL, WithJar(jar))

	me, err := client.MeWithCookies(context.Background(), []*http.Cookie{{Name: "session", Value: "candidate", Path: "/"}})
	require.NoError(t, err)
	assert.Equal(t, "google", me.Provider)

	_, err = client.Me(context.Background())
	assert.True(t, IsUnauthorized(err), "client jar still holds the stored cookie")
}

func TestUploadMultipart(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.pdf")
	b := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(a, []byte("pdf-bytes"), 0o600))
	require.NoError(t, os.WriteFile(b, []byte("txt-bytes"), 0o600))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathUpload, r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))

		files := r.MultipartForm.File[FieldFiles]
		require.Len(t, files, 2)
		assert.Equal(t, "a.pdf", files[0].Filename)
		assert.Equal(t, "b.txt", files[1].Filename)

		writeJSON(w, http.StatusOK, UploadResponse{
			Message: "2 file(s) uploaded successfully",
			Files:   []string{"a.pdf", "b.txt"},
		})
	}))
	defer srv.Close()

	resp, err := New(srv.URL).Upload(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, "2 file(s) uploaded successfully", resp.Message)
	assert.Equal(t, []string{"a.pdf", "b.txt"}, resp.Files)
}

func TestUploadMissingFile(t *testing.T) {
	_, err := New("http://127.0.0.1:1").Upload(context.Background(), []string{"/nonexistent/file.pdf"})
	require.Error(t, err)
	assert.False(t, IsNetwork(err), "local file errors happen before any request")
}

func TestTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathSTT, r.URL.Path)
		f, hdr, err := r.FormFile(FieldAudio)
		require.NoError(t, err)
		defer f.Close()

		assert.Equal(t, AudioFileName, hdr.Filename)
		assert.Equal(t, "audio/wav", hdr.Header.Get("Content-Type"))
		data, _ := io.ReadAll(f)
		assert.Equal(t, "RIFF....", string(data))

		writeJSON(w, http.StatusOK, TranscribeResponse{Text: "hello"})
	}))
	defer srv.Close()

	text, err := New(srv.URL).Transcribe(context.Background(), []byte("RIFF...."))
	require.NoError(t, err)
	assert.Equal(t, "hello", text)
}

func TestSynthesize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req SynthesizeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "hi", req.Text)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte{0xFF, 0xFB, 0x90, 0x00})
	}))
	defer srv.Close()

	audio, err := New(srv.URL).Synthesize(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xFB, 0x90, 0x00}, audio)
}

func TestLogoutStatus(t *testing.T) {
	status := http.StatusOK
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, PathLogout, r.URL.Path)
		assert.Equal(t, http.MethodGet, r.Method)
		writeJSON(w, status, map[string]string{"message": "Logged out successfully"})
	}))
	defer srv.Close()

	c := New(srv.URL)
	require.NoError(t, c.Logout(context.Background()))

	status = http.StatusInternalServerError
	assert.Error(t, c.Logout(context.Background()))
}
