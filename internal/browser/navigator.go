// Package browser opens a real browser window for OAuth logins and captures
// the session cookies the backend sets once the provider redirects back.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// ErrNoBrowser is returned when no Chromium-family browser can be found.
var ErrNoBrowser = errors.New("no browser found; set login.browser_bin")

// Navigator performs logins in a visible browser.
type Navigator struct {
	Bin          string
	Timeout      time.Duration
	PollInterval time.Duration
	InsecureTLS  bool
	Headless     bool
}

// Login opens loginURL and polls the browser's cookies for the backend
// origin until verify accepts them or the timeout expires.
func (n *Navigator) Login(ctx context.Context, loginURL string, verify func(context.Context, []*http.Cookie) bool) ([]*http.Cookie, error) {
	u, err := url.Parse(loginURL)
	if err != nil {
		return nil, fmt.Errorf("parse login url: %w", err)
	}
	origin := u.Scheme + "://" + u.Host

	bin := n.Bin
	if bin == "" {
		path, found := launcher.LookPath()
		if !found {
			return nil, ErrNoBrowser
		}
		bin = path
	}

	timeout := n.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	poll := n.PollInterval
	if poll <= 0 {
		poll = time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	l := launcher.New().Bin(bin).Headless(n.Headless)
	if n.InsecureTLS {
		l = l.Set("ignore-certificate-errors")
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	defer l.Kill()

	b := rod.New().ControlURL(controlURL).Context(ctx)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("connect to browser: %w", err)
	}
	defer b.Close()

	page, err := b.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("open page: %w", err)
	}
	log.Printf("[SESSION]: browser opened at %s", loginURL)
	if err := page.Navigate(loginURL); err != nil {
		return nil, fmt.Errorf("navigate: %w", err)
	}

	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("waiting for login: %w", ctx.Err())
		case <-ticker.C:
		}

		raw, err := page.Cookies([]string{origin})
		if err != nil {
			// The page may be mid-redirect; try again on the next tick.
			continue
		}
		cookies := convert(raw)
		if verify(ctx, cookies) {
			return cookies, nil
		}
	}
}

func convert(raw []*proto.NetworkCookie) []*http.Cookie {
	out := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		hc := &http.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Path:     c.Path,
			Domain:   c.Domain,
			Secure:   c.Secure,
			HttpOnly: c.HTTPOnly,
		}
		if !c.Session && c.Expires > 0 {
			hc.Expires = time.Unix(int64(c.Expires), 0)
		}
		out = append(out, hc)
	}
	return out
}
