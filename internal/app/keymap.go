package app

// Key binding constants used in handleKey.
const (
	KeyCtrlC       = "ctrl+c"
	KeyEsc         = "esc"
	KeyEnter       = "enter"
	KeyRecord      = "ctrl+r"
	KeyLogout      = "ctrl+o"
	KeyPageUp      = "pgup"
	KeyPageDown    = "pgdown"
	KeyLoginGoogle = "g"
	KeyLoginGitHub = "h"
)

// UploadCommand prefixes an input line that uploads files instead of asking.
const UploadCommand = "/upload"
