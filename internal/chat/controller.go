// Package chat owns the conversation transcript and the text and upload
// paths to the backend.
package chat

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"

	"github.com/jwulff/copilot/internal/backend"
)

// User-visible messages.
const (
	NoAnswerText   = "No answer received"
	NoFilesMessage = "Please select file(s) to upload."
)

var (
	// ErrEmptyQuery rejects a query that is empty after trimming.
	ErrEmptyQuery = errors.New("empty query")
	// ErrNoFiles rejects an upload with no files.
	ErrNoFiles = errors.New("no files selected")
)

// Role identifies who produced a transcript entry.
type Role string

const (
	RoleUser Role = "user"
	RoleBot  Role = "bot"
)

// Entry is one line of the transcript. Entries are never modified once
// appended.
type Entry struct {
	Role Role
	Text string
}

// Backend is the part of the backend API the controller needs.
type Backend interface {
	Ask(ctx context.Context, query string) (string, error)
	Upload(ctx context.Context, paths []string) (backend.UploadResponse, error)
}

// Recorder receives every appended entry, e.g. to archive the conversation.
type Recorder interface {
	Record(e Entry)
}

// Query is a validated text query whose user entry has been appended.
type Query struct {
	Text string
}

// Reply is the outcome of one query.
type Reply struct {
	Query  Query
	Answer string
	Err    error
}

// Text is the bot entry a reply produces.
func (r Reply) Text() string {
	switch {
	case r.Err != nil:
		return "Error: " + r.Err.Error()
	case r.Answer == "":
		return NoAnswerText
	default:
		return r.Answer
	}
}

// Controller holds the append-only transcript and the typing indicator.
// It is safe for concurrent use.
type Controller struct {
	backend  Backend
	recorder Recorder

	mu       sync.Mutex
	entries  []Entry
	inFlight int

	changes chan struct{}
}

// Option configures a Controller.
type Option func(*Controller)

// WithRecorder forwards every appended entry to r.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// New creates a controller with an empty transcript.
func New(b Backend, opts ...Option) *Controller {
	c := &Controller{
		backend: b,
		changes: make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Validate reports ErrEmptyQuery for text that is blank after trimming.
func Validate(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyQuery
	}
	return nil
}

// Entries returns a copy of the transcript.
func (c *Controller) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// Len returns the number of transcript entries.
func (c *Controller) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Typing reports whether any text query is awaiting its reply.
func (c *Controller) Typing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight > 0
}

// Changes delivers a signal after every transcript or typing change.
// Signals coalesce, so a receiver should re-read the state on each one.
func (c *Controller) Changes() <-chan struct{} {
	return c.changes
}

// Append adds an entry to the transcript.
func (c *Controller) Append(role Role, text string) {
	c.mu.Lock()
	c.appendLocked(Entry{Role: role, Text: text})
	c.mu.Unlock()
	c.notify()
}

// Begin validates text, appends the user entry and marks a query in flight.
// It returns false, changing nothing, for blank text.
func (c *Controller) Begin(text string) (Query, bool) {
	if Validate(text) != nil {
		return Query{}, false
	}
	e := Entry{Role: RoleUser, Text: text}

	c.mu.Lock()
	c.appendLocked(e)
	c.inFlight++
	c.mu.Unlock()

	c.notify()
	return Query{Text: text}, true
}

// Ask sends the query to the backend. It does not touch the transcript.
func (c *Controller) Ask(ctx context.Context, q Query) Reply {
	answer, err := c.backend.Ask(ctx, q.Text)
	if err != nil {
		log.Printf("[CHAT]: ask failed: %v", err)
	}
	return Reply{Query: q, Answer: answer, Err: err}
}

// Complete appends the reply's bot entry and clears its in-flight mark.
func (c *Controller) Complete(r Reply) {
	e := Entry{Role: RoleBot, Text: r.Text()}

	c.mu.Lock()
	c.appendLocked(e)
	if c.inFlight > 0 {
		c.inFlight--
	}
	c.mu.Unlock()

	c.notify()
}

// SubmitText runs one full text query: user entry, backend call, bot entry.
// It returns false for blank text.
func (c *Controller) SubmitText(ctx context.Context, text string) bool {
	q, ok := c.Begin(text)
	if !ok {
		return false
	}
	c.Complete(c.Ask(ctx, q))
	return true
}

// Upload sends files for ingestion and returns the message to show.
// Uploads never touch the transcript.
func (c *Controller) Upload(ctx context.Context, paths []string) string {
	if len(paths) == 0 {
		return NoFilesMessage
	}
	resp, err := c.backend.Upload(ctx, paths)
	if err != nil {
		var se *backend.ServerError
		if errors.As(err, &se) && se.Message != "" {
			return se.Message
		}
		log.Printf("[CHAT]: upload failed: %v", err)
		return "Upload failed: " + err.Error()
	}
	if resp.Message != "" {
		return resp.Message
	}
	return resp.Error
}

// appendLocked adds e to the transcript and the recorder in one step, so
// the archive keeps transcript order. c.mu must be held.
func (c *Controller) appendLocked(e Entry) {
	c.entries = append(c.entries, e)
	if c.recorder != nil {
		c.recorder.Record(e)
	}
}

func (c *Controller) notify() {
	select {
	case c.changes <- struct{}{}:
	default:
	}
}
