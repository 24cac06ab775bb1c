package chat

import (
	"fmt"
	"strings"

	"github.com/jwulff/copilot/internal/db"
)

// FormatConversations lists archived conversations, newest first.
func FormatConversations(convs []db.Conversation) string {
	if len(convs) == 0 {
		return "No conversations yet."
	}
	var b strings.Builder
	for _, c := range convs {
		fmt.Fprintf(&b, "%s  %s  %d turns\n", c.ID, c.StartedAt.Format("2006-01-02 15:04"), c.Turns)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatTurns prints one conversation as "role: text" lines.
func FormatTurns(turns []db.Turn) string {
	if len(turns) == 0 {
		return "No turns."
	}
	var b strings.Builder
	for _, t := range turns {
		label := "You"
		if Role(t.Role) == RoleBot {
			label = "Copilot"
		}
		fmt.Fprintf(&b, "[%s] %s: %s\n", t.CreatedAt.Format("15:04:05"), label, t.Text)
	}
	return strings.TrimRight(b.String(), "\n")
}
