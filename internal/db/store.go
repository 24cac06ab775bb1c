package db

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
	CREATE TABLE IF NOT EXISTS conversations (
		id TEXT PRIMARY KEY,
		backend TEXT NOT NULL,
		startedAt REAL NOT NULL
	);

	CREATE TABLE IF NOT EXISTS turns (
		conversationId TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		createdAt REAL NOT NULL,
		PRIMARY KEY (conversationId, seq)
	);

	CREATE TABLE IF NOT EXISTS cookies (
		origin TEXT NOT NULL,
		name TEXT NOT NULL,
		value TEXT NOT NULL,
		path TEXT NOT NULL DEFAULT '/',
		domain TEXT NOT NULL DEFAULT '',
		expiresAt REAL,
		secure INTEGER NOT NULL DEFAULT 0,
		httpOnly INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (origin, name)
	);
`

// Store provides access to the copilot SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies the schema.
// Pass ":memory:" for a throwaway database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// A single connection keeps ":memory:" databases alive and serialises writers.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartConversation records a new conversation row.
func (s *Store) StartConversation(id, backend string) error {
	_, err := s.db.Exec(`INSERT INTO conversations (id, backend, startedAt) VALUES (?, ?, ?)`,
		id, backend, unixFromTime(time.Now()))
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// AppendTurn stores the next turn of a conversation and returns its sequence number.
func (s *Store) AppendTurn(conversationID, role, text string) (int, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	var seq int
	if err := tx.QueryRow(`SELECT COALESCE(MAX(seq), 0) + 1 FROM turns WHERE conversationId = ?`,
		conversationID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("next seq: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO turns (conversationId, seq, role, text, createdAt) VALUES (?, ?, ?, ?, ?)`,
		conversationID, seq, role, text, unixFromTime(time.Now())); err != nil {
		return 0, fmt.Errorf("insert turn: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return seq, nil
}

// Turns returns a conversation's turns in order.
func (s *Store) Turns(conversationID string) ([]Turn, error) {
	rows, err := s.db.Query(`
		SELECT conversationId, seq, role, text, createdAt
		FROM turns
		WHERE conversationId = ?
		ORDER BY seq ASC
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query turns: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var t Turn
		var createdAt float64
		if err := rows.Scan(&t.ConversationID, &t.Seq, &t.Role, &t.Text, &createdAt); err != nil {
			return nil, fmt.Errorf("scan turn: %w", err)
		}
		t.CreatedAt = timeFromUnix(createdAt)
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// Conversations returns the most recent conversations that have at least one turn.
func (s *Store) Conversations(limit int) ([]Conversation, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.Query(`
		SELECT c.id, c.backend, c.startedAt, COUNT(t.seq)
		FROM conversations c
		JOIN turns t ON t.conversationId = c.id
		GROUP BY c.id
		ORDER BY c.startedAt DESC, c.rowid DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var convs []Conversation
	for rows.Next() {
		var c Conversation
		var startedAt float64
		if err := rows.Scan(&c.ID, &c.Backend, &startedAt, &c.Turns); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		c.StartedAt = timeFromUnix(startedAt)
		convs = append(convs, c)
	}
	return convs, rows.Err()
}

// SaveCookies replaces every cookie stored for origin.
func (s *Store) SaveCookies(origin string, cookies []StoredCookie) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM cookies WHERE origin = ?`, origin); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	for _, c := range cookies {
		var expires sql.NullFloat64
		if c.Expires != nil {
			expires = sql.NullFloat64{Float64: unixFromTime(*c.Expires), Valid: true}
		}
		path := c.Path
		if path == "" {
			path = "/"
		}
		if _, err := tx.Exec(`
			INSERT OR REPLACE INTO cookies (origin, name, value, path, domain, expiresAt, secure, httpOnly)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, origin, c.Name, c.Value, path, c.Domain, expires, c.Secure, c.HTTPOnly); err != nil {
			return fmt.Errorf("insert cookie %s: %w", c.Name, err)
		}
	}
	return tx.Commit()
}

// Cookies returns the unexpired cookies stored for origin.
func (s *Store) Cookies(origin string) ([]StoredCookie, error) {
	rows, err := s.db.Query(`
		SELECT origin, name, value, path, domain, expiresAt, secure, httpOnly
		FROM cookies
		WHERE origin = ? AND (expiresAt IS NULL OR expiresAt > ?)
		ORDER BY name ASC
	`, origin, unixFromTime(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("query cookies: %w", err)
	}
	defer rows.Close()

	var cookies []StoredCookie
	for rows.Next() {
		var c StoredCookie
		var expires sql.NullFloat64
		if err := rows.Scan(&c.Origin, &c.Name, &c.Value, &c.Path, &c.Domain,
			&expires, &c.Secure, &c.HTTPOnly); err != nil {
			return nil, fmt.Errorf("scan cookie: %w", err)
		}
		if expires.Valid {
			t := timeFromUnix(expires.Float64)
			c.Expires = &t
		}
		cookies = append(cookies, c)
	}
	return cookies, rows.Err()
}

// ClearCookies removes every cookie stored for origin.
func (s *Store) ClearCookies(origin string) error {
	if _, err := s.db.Exec(`DELETE FROM cookies WHERE origin = ?`, origin); err != nil {
		return fmt.Errorf("clear cookies: %w", err)
	}
	return nil
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}
