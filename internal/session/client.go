package session

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"github.com/jwulff/copilot/internal/backend"
)

// ErrUnknownProvider is returned by BeginLogin for a provider the backend
// does not offer.
var ErrUnknownProvider = errors.New("unknown login provider")

// LogoutError reports a failed logout. The session is left as it was.
type LogoutError struct {
	Err error
}

func (e *LogoutError) Error() string {
	return fmt.Sprintf("logout failed: %v", e.Err)
}

func (e *LogoutError) Unwrap() error { return e.Err }

// Backend is the part of the backend API the session needs.
type Backend interface {
	Me(ctx context.Context) (backend.MeResponse, error)
	MeWithCookies(ctx context.Context, cookies []*http.Cookie) (backend.MeResponse, error)
	Logout(ctx context.Context) error
	URL(path string) string
}

// Navigator drives a full-page login navigation. It opens loginURL and
// returns the cookies the browser holds for the backend once verify
// accepts them.
type Navigator interface {
	Login(ctx context.Context, loginURL string, verify func(context.Context, []*http.Cookie) bool) ([]*http.Cookie, error)
}

// CookieJar receives cookies captured from a browser login.
type CookieJar interface {
	Import(cookies []*http.Cookie)
	Clear()
}

// Client queries and changes the login state.
type Client struct {
	backend Backend
	nav     Navigator
	jar     CookieJar
}

// NewClient creates a session client. nav and jar may be nil when login is
// not needed (e.g. one-shot commands that only read the session).
func NewClient(b Backend, nav Navigator, jar CookieJar) *Client {
	return &Client{backend: b, nav: nav, jar: jar}
}

// Fetch asks the backend who is logged in. Any failure yields the anonymous
// session; the cause is only logged.
func (c *Client) Fetch(ctx context.Context) Session {
	me, err := c.backend.Me(ctx)
	if err != nil {
		if !backend.IsUnauthorized(err) {
			log.Printf("[SESSION]: fetch failed: %v", err)
		}
		return Anonymous()
	}
	s := New(me.User, me.Provider)
	if !s.Authenticated() {
		log.Printf("[SESSION]: ignoring identity with provider %q", me.Provider)
	}
	return s
}

// LoginPath returns the backend path that starts a login with provider.
func LoginPath(provider Provider) (string, error) {
	switch provider {
	case ProviderGoogle:
		return backend.PathLogin, nil
	case ProviderGitHub:
		return backend.PathLoginGitHub, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}
}

// BeginLogin opens the provider's login page and blocks until the browser
// holds a session the backend accepts, then imports its cookies. Candidate
// cookies are checked without touching the jar, so a failed login keeps the
// stored session. The caller reloads afterwards.
func (c *Client) BeginLogin(ctx context.Context, provider Provider) (Session, error) {
	path, err := LoginPath(provider)
	if err != nil {
		return Anonymous(), err
	}
	if c.nav == nil || c.jar == nil {
		return Anonymous(), errors.New("browser login is not available")
	}

	var got Session
	verify := func(ctx context.Context, cookies []*http.Cookie) bool {
		if len(cookies) == 0 {
			return false
		}
		me, err := c.backend.MeWithCookies(ctx, cookies)
		if err != nil {
			return false
		}
		got = New(me.User, me.Provider)
		return got.Authenticated()
	}

	log.Printf("[SESSION]: starting %s login", provider)
	cookies, err := c.nav.Login(ctx, c.backend.URL(path), verify)
	if err != nil {
		return Anonymous(), fmt.Errorf("%s login: %w", provider, err)
	}
	c.jar.Import(cookies)
	log.Printf("[SESSION]: logged in as %s", got.DisplayName())
	return got, nil
}

// Logout ends the backend session. On success the stored cookies are
// dropped and the caller reloads; on failure nothing changes.
func (c *Client) Logout(ctx context.Context) error {
	if err := c.backend.Logout(ctx); err != nil {
		log.Printf("[SESSION]: logout failed: %v", err)
		return &LogoutError{Err: err}
	}
	if c.jar != nil {
		c.jar.Clear()
	}
	return nil
}
