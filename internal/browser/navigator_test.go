package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvert(t *testing.T) {
	raw := []*proto.NetworkCookie{
		{Name: "session", Value: "abc", Path: "/", Domain: "localhost", HTTPOnly: true, Session: true},
		{Name: "pref", Value: "x", Path: "/", Domain: "localhost", Expires: proto.TimeSinceEpoch(1893456000)},
	}
	got := convert(raw)
	require.Len(t, got, 2)

	assert.Equal(t, "session", got[0].Name)
	assert.True(t, got[0].HttpOnly)
	assert.True(t, got[0].Expires.IsZero())

	assert.Equal(t, int64(1893456000), got[1].Expires.Unix())
}

// TestLiveLogin drives a headless browser through a fake login redirect.
// Skipped if no browser is installed.
func TestLiveLogin(t *testing.T) {
	if _, found := launcher.LookPath(); !found {
		t.Skip("no browser installed")
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/login", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/callback", http.StatusFound)
	})
	mux.HandleFunc("/callback", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "granted", Path: "/"})
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	nav := &Navigator{Headless: true, Timeout: 30 * time.Second, PollInterval: 100 * time.Millisecond}
	cookies, err := nav.Login(context.Background(), srv.URL+"/login", func(_ context.Context, cs []*http.Cookie) bool {
		for _, c := range cs {
			if c.Name == "session" && c.Value == "granted" {
				return true
			}
		}
		return false
	})
	require.NoError(t, err)
	assert.NotEmpty(t, cookies)
}
