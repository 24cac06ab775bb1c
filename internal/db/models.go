// Package db provides SQLite storage for the copilot client: the persisted
// cookie jar and the conversation archive.
package db

import "time"

// Conversation is one UI load's worth of chat turns.
type Conversation struct {
	ID        string
	Backend   string
	StartedAt time.Time
	Turns     int
}

// Turn is an archived transcript entry.
type Turn struct {
	ConversationID string
	Seq            int
	Role           string
	Text           string
	CreatedAt      time.Time
}

// StoredCookie is a cookie persisted for a backend origin.
type StoredCookie struct {
	Origin   string
	Name     string
	Value    string
	Path     string
	Domain   string
	Expires  *time.Time
	Secure   bool
	HTTPOnly bool
}
