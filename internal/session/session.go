// Package session tracks who the user is logged in as with the backend.
package session

import (
	"fmt"
	"strings"
)

// Provider names an identity provider the backend supports.
type Provider string

const (
	ProviderGoogle Provider = "google"
	ProviderGitHub Provider = "github"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	return p == ProviderGoogle || p == ProviderGitHub
}

// Session is the login state. It is either anonymous (no identity, no
// provider) or authenticated (both set); there is no partial state.
type Session struct {
	identity map[string]any
	provider Provider
}

// Anonymous returns the empty session.
func Anonymous() Session {
	return Session{}
}

// New builds a session from a backend identity. A nil or empty identity, or
// an unknown provider, yields the anonymous session.
func New(identity map[string]any, provider string) Session {
	p := Provider(provider)
	if len(identity) == 0 || !p.Valid() {
		return Session{}
	}
	cp := make(map[string]any, len(identity))
	for k, v := range identity {
		cp[k] = v
	}
	return Session{identity: cp, provider: p}
}

// Authenticated reports whether the session carries an identity.
func (s Session) Authenticated() bool {
	return s.identity != nil
}

// Provider returns the identity provider, or "" when anonymous.
func (s Session) Provider() Provider {
	return s.provider
}

// Identity returns the identity field named key as a string, or "".
func (s Session) Identity(key string) string {
	v, ok := s.identity[key]
	if !ok || v == nil {
		return ""
	}
	if str, ok := v.(string); ok {
		return str
	}
	return fmt.Sprint(v)
}

// DisplayName is the user's email, falling back to their login.
func (s Session) DisplayName() string {
	if email := s.Identity("email"); email != "" {
		return email
	}
	return s.Identity("login")
}

// Banner is the one-line login summary shown on the chat surface,
// e.g. "Logged in via Github as a@b.com".
func (s Session) Banner() string {
	if !s.Authenticated() {
		return ""
	}
	name := string(s.provider)
	name = strings.ToUpper(name[:1]) + name[1:]
	return fmt.Sprintf("Logged in via %s as %s", name, s.DisplayName())
}
