package chat

import (
	"log"
	"sync"

	"github.com/google/uuid"
)

// ArchiveStore is where archived conversations are written.
type ArchiveStore interface {
	StartConversation(id, backend string) error
	AppendTurn(conversationID, role, text string) (int, error)
}

// Archive records a transcript as one stored conversation. The
// conversation row is created lazily on the first entry, so loads that
// never chat leave nothing behind.
type Archive struct {
	store   ArchiveStore
	backend string
	id      string

	mu      sync.Mutex
	started bool
}

// NewArchive creates an archive for a new conversation against backendURL.
func NewArchive(store ArchiveStore, backendURL string) *Archive {
	return &Archive{store: store, backend: backendURL, id: uuid.NewString()}
}

// ID returns the conversation id.
func (a *Archive) ID() string { return a.id }

// Record implements Recorder. Storage failures are logged and dropped.
func (a *Archive) Record(e Entry) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.started {
		if err := a.store.StartConversation(a.id, a.backend); err != nil {
			log.Printf("[CHAT]: archive start failed: %v", err)
			return
		}
		a.started = true
	}
	if _, err := a.store.AppendTurn(a.id, string(e.Role), e.Text); err != nil {
		log.Printf("[CHAT]: archive append failed: %v", err)
	}
}
