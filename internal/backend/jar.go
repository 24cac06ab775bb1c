package backend

import (
	"fmt"
	"log"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"sync"
	"time"

	"github.com/jwulff/copilot/internal/db"
)

// CookieStore persists cookies per backend origin.
type CookieStore interface {
	Cookies(origin string) ([]db.StoredCookie, error)
	SaveCookies(origin string, cookies []db.StoredCookie) error
}

// PersistentJar is a cookie jar for a single backend origin that writes every
// change through to a CookieStore, so a login outlives the process.
type PersistentJar struct {
	origin *url.URL
	inner  *cookiejar.Jar
	store  CookieStore

	mu      sync.Mutex
	cookies map[string]*http.Cookie
}

// NewPersistentJar creates a jar for origin and seeds it from store.
// A nil store keeps cookies in memory only.
func NewPersistentJar(origin string, store CookieStore) (*PersistentJar, error) {
	u, err := url.Parse(origin)
	if err != nil {
		return nil, fmt.Errorf("parse origin: %w", err)
	}
	inner, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	j := &PersistentJar{
		origin:  u,
		inner:   inner,
		store:   store,
		cookies: make(map[string]*http.Cookie),
	}

	if store != nil {
		stored, err := store.Cookies(origin)
		if err != nil {
			return nil, fmt.Errorf("load cookies: %w", err)
		}
		var seed []*http.Cookie
		for _, sc := range stored {
			c := fromStored(sc)
			j.cookies[c.Name] = c
			seed = append(seed, c)
		}
		inner.SetCookies(u, seed)
	}

	return j, nil
}

// SetCookies implements http.CookieJar.
func (j *PersistentJar) SetCookies(u *url.URL, cookies []*http.Cookie) {
	j.inner.SetCookies(u, cookies)
	if u.Host != j.origin.Host {
		return
	}

	j.mu.Lock()
	now := time.Now()
	for _, c := range cookies {
		if c.MaxAge < 0 || (!c.Expires.IsZero() && c.Expires.Before(now)) {
			delete(j.cookies, c.Name)
			continue
		}
		cp := *c
		if cp.MaxAge > 0 {
			cp.Expires = now.Add(time.Duration(cp.MaxAge) * time.Second)
		}
		j.cookies[c.Name] = &cp
	}
	snapshot := j.snapshotLocked()
	j.mu.Unlock()

	j.persist(snapshot)
}

// Cookies implements http.CookieJar.
func (j *PersistentJar) Cookies(u *url.URL) []*http.Cookie {
	return j.inner.Cookies(u)
}

// Import replaces the origin's cookies, e.g. with those captured from a
// browser login.
func (j *PersistentJar) Import(cookies []*http.Cookie) {
	j.mu.Lock()
	var expired []*http.Cookie
	for name := range j.cookies {
		expired = append(expired, &http.Cookie{Name: name, Path: "/", MaxAge: -1})
	}
	j.cookies = make(map[string]*http.Cookie)
	for _, c := range cookies {
		cp := *c
		j.cookies[c.Name] = &cp
	}
	snapshot := j.snapshotLocked()
	j.mu.Unlock()

	j.inner.SetCookies(j.origin, expired)
	j.inner.SetCookies(j.origin, cookies)
	j.persist(snapshot)
}

// Clear drops every cookie for the origin.
func (j *PersistentJar) Clear() {
	j.Import(nil)
}

// Has reports whether a cookie with the given name is held.
func (j *PersistentJar) Has(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	_, ok := j.cookies[name]
	return ok
}

func (j *PersistentJar) snapshotLocked() []db.StoredCookie {
	out := make([]db.StoredCookie, 0, len(j.cookies))
	for _, c := range j.cookies {
		out = append(out, toStored(j.origin.String(), c))
	}
	return out
}

func (j *PersistentJar) persist(snapshot []db.StoredCookie) {
	if j.store == nil {
		return
	}
	if err := j.store.SaveCookies(j.origin.String(), snapshot); err != nil {
		log.Printf("[BACKEND]: Warning, could not persist cookies: %v", err)
	}
}

func toStored(origin string, c *http.Cookie) db.StoredCookie {
	sc := db.StoredCookie{
		Origin:   origin,
		Name:     c.Name,
		Value:    c.Value,
		Path:     c.Path,
		Domain:   c.Domain,
		Secure:   c.Secure,
		HTTPOnly: c.HttpOnly,
	}
	if !c.Expires.IsZero() {
		t := c.Expires
		sc.Expires = &t
	}
	return sc
}

func fromStored(sc db.StoredCookie) *http.Cookie {
	c := &http.Cookie{
		Name:     sc.Name,
		Value:    sc.Value,
		Path:     sc.Path,
		Domain:   sc.Domain,
		Secure:   sc.Secure,
		HttpOnly: sc.HTTPOnly,
	}
	if sc.Expires != nil {
		c.Expires = *sc.Expires
	}
	return c
}
