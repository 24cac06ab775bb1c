package voice

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/jwulff/copilot/internal/chat"
)

// State is the recording state.
type State int

const (
	Idle State = iota
	Recording
)

func (s State) String() string {
	if s == Recording {
		return "recording"
	}
	return "idle"
}

// Backend is the part of the backend API a voice round trip uses.
type Backend interface {
	Transcribe(ctx context.Context, wav []byte) (string, error)
	Ask(ctx context.Context, query string) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Transcript receives the entries a round trip produces.
type Transcript interface {
	Append(role chat.Role, text string)
}

// ErrClosed is returned by Start after Close.
var ErrClosed = errors.New("voice controller closed")

// ErrNoSpeech is returned when the transcription is blank.
var ErrNoSpeech = errors.New("no speech recognized")

// RoundTrip turns one recording into a spoken answer.
type RoundTrip struct {
	Backend    Backend
	Transcript Transcript
	Player     Player
}

// Run transcribes wav, asks the backend, and plays the spoken answer. The
// first failing step ends the trip; entries already appended stay. A blank
// transcription adds nothing and never reaches the backend's ask endpoint.
func (rt *RoundTrip) Run(ctx context.Context, wav []byte) error {
	text, err := rt.Backend.Transcribe(ctx, wav)
	if err != nil {
		return fmt.Errorf("transcribe: %w", err)
	}
	if chat.Validate(text) != nil {
		return fmt.Errorf("transcribe: %w", ErrNoSpeech)
	}
	rt.Transcript.Append(chat.RoleUser, text)

	answer, err := rt.Backend.Ask(ctx, text)
	if err != nil {
		return fmt.Errorf("ask: %w", err)
	}
	answer = chat.Reply{Answer: answer}.Text()
	rt.Transcript.Append(chat.RoleBot, answer)

	speech, err := rt.Backend.Synthesize(ctx, answer)
	if err != nil {
		return fmt.Errorf("synthesize: %w", err)
	}
	if err := rt.Player.Play(speech); err != nil {
		return fmt.Errorf("play: %w", err)
	}
	return nil
}

// Controller toggles recording and runs a round trip for each finished
// recording. It is safe for concurrent use.
type Controller struct {
	recorder Recorder
	trip     *RoundTrip

	mu      sync.Mutex
	state   State
	capture Capture
	closed  bool

	wg sync.WaitGroup
}

// NewController creates an idle controller.
func NewController(rec Recorder, trip *RoundTrip) *Controller {
	return &Controller{recorder: rec, trip: trip}
}

// State returns the current recording state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start begins recording. It is a no-op while already recording.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if c.state == Recording {
		return nil
	}

	capture, err := c.recorder.Start(ctx)
	if err != nil {
		log.Printf("[VOICE]: start failed: %v", err)
		return err
	}
	c.capture = capture
	c.state = Recording
	return nil
}

// Stop ends recording and starts the round trip in the background. It is a
// no-op while idle. A failure to package the recording is returned; round
// trip failures are appended to the transcript as an error entry.
func (c *Controller) Stop(ctx context.Context) error {
	c.mu.Lock()
	if c.state != Recording {
		c.mu.Unlock()
		return nil
	}
	capture := c.capture
	c.capture = nil
	c.state = Idle
	c.mu.Unlock()

	wav, err := capture.Stop()
	if err != nil {
		log.Printf("[VOICE]: stop failed: %v", err)
		return err
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.trip.Run(ctx, wav); err != nil {
			log.Printf("[VOICE]: round trip failed: %v", err)
			c.trip.Transcript.Append(chat.RoleBot, "Error: "+userMessage(err))
		}
	}()
	return nil
}

// Close stops an active recording and discards it without a round trip.
// Later calls to Start fail with ErrClosed. Round trips already started keep
// running.
func (c *Controller) Close() {
	c.mu.Lock()
	capture := c.capture
	c.capture = nil
	c.state = Idle
	c.closed = true
	c.mu.Unlock()

	if capture == nil {
		return
	}
	if _, err := capture.Stop(); err != nil {
		log.Printf("[VOICE]: close: %v", err)
	}
	log.Printf("[VOICE]: recording discarded")
}

// Toggle starts recording when idle and stops it when recording.
func (c *Controller) Toggle(ctx context.Context) (State, error) {
	if c.State() == Recording {
		return Idle, c.Stop(ctx)
	}
	if err := c.Start(ctx); err != nil {
		return Idle, err
	}
	return Recording, nil
}

// Wait blocks until every started round trip has finished.
func (c *Controller) Wait() {
	c.wg.Wait()
}

// userMessage drops the step prefix so the entry reads like the text path.
func userMessage(err error) string {
	if inner := errors.Unwrap(err); inner != nil {
		return inner.Error()
	}
	return err.Error()
}
