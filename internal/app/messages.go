package app

import (
	"github.com/jwulff/copilot/internal/chat"
	"github.com/jwulff/copilot/internal/session"
	"github.com/jwulff/copilot/internal/voice"
)

// Every message produced by a command carries the epoch of the load that
// issued it. Messages from an earlier load are dropped after a reload.

// SessionLoadedMsg carries the result of the load-time session fetch.
type SessionLoadedMsg struct {
	Epoch   int
	Session session.Session
}

// LoginDoneMsg is sent when a browser login finishes or fails.
type LoginDoneMsg struct {
	Epoch int
	Err   error
}

// LogoutDoneMsg is sent when the logout request finishes.
type LogoutDoneMsg struct {
	Epoch int
	Err   error
}

// ReplyMsg carries the backend's reply to a text query.
type ReplyMsg struct {
	Epoch int
	Reply chat.Reply
}

// UploadDoneMsg carries the message to show after an upload.
type UploadDoneMsg struct {
	Epoch   int
	Message string
}

// TranscriptChangedMsg signals that the transcript or typing state changed.
type TranscriptChangedMsg struct {
	Epoch int
}

// VoiceToggledMsg reports the recording state after a toggle.
type VoiceToggledMsg struct {
	Epoch int
	State voice.State
	Err   error
}

// ClearTransientErrorMsg clears a transient error after a timeout.
type ClearTransientErrorMsg struct{}
