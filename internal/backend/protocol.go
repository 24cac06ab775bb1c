// Package backend provides the HTTP client and wire types for the
// research-assistant backend: session check, logout, ask, upload and the two
// speech endpoints. Every request carries the client's cookie jar.
package backend

// Endpoint paths, relative to the backend origin.
const (
	PathMe          = "/me"
	PathLogin       = "/login"
	PathLoginGitHub = "/login/github"
	PathLogout      = "/logout"
	PathUpload      = "/upload"
	PathAsk         = "/ask"
	PathSTT         = "/stt"
	PathTTS         = "/tts"
)

// Multipart field names.
const (
	FieldFiles = "files"
	FieldAudio = "audio"

	AudioFileName = "speech.wav"
)

// MeResponse is returned by GET /me. Error is set when nobody is logged in.
type MeResponse struct {
	User     map[string]any `json:"user,omitempty"`
	Provider string         `json:"provider,omitempty"`
	Error    string         `json:"error,omitempty"`
}

// AskRequest is the body of POST /ask.
type AskRequest struct {
	Query string `json:"query"`
}

// AskResponse is returned by POST /ask.
type AskResponse struct {
	Answer string `json:"answer"`
	Error  string `json:"error,omitempty"`
}

// UploadResponse is returned by POST /upload.
type UploadResponse struct {
	Message  string   `json:"message,omitempty"`
	Files    []string `json:"files,omitempty"`
	Previews []string `json:"previews,omitempty"`
	Error    string   `json:"error,omitempty"`
}

// TranscribeResponse is returned by POST /stt.
type TranscribeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

// SynthesizeRequest is the body of POST /tts.
type SynthesizeRequest struct {
	Text string `json:"text"`
}

// errorBody is the shape of every JSON error the backend returns.
type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
