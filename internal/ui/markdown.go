package ui

import (
	"strings"
	"sync"

	"github.com/charmbracelet/glamour"
)

// Markdown renders bot answers for the terminal. Renderers are rebuilt only
// when the wrap width changes.
type Markdown struct {
	style string

	mu       sync.Mutex
	width    int
	renderer *glamour.TermRenderer
}

// NewMarkdown creates a renderer with a glamour standard style ("dark",
// "light", "notty", ...). An empty style detects it from the terminal,
// which must not be used while a bubbletea program owns the screen.
func NewMarkdown(style string) *Markdown {
	return &Markdown{style: style}
}

// Render returns text rendered at width columns, or text unchanged if
// rendering fails.
func (m *Markdown) Render(text string, width int) string {
	if width < 20 {
		width = 20
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.renderer == nil || m.width != width {
		styleOpt := glamour.WithAutoStyle()
		if m.style != "" {
			styleOpt = glamour.WithStandardStyle(m.style)
		}
		r, err := glamour.NewTermRenderer(styleOpt, glamour.WithWordWrap(width))
		if err != nil {
			return text
		}
		m.renderer = r
		m.width = width
	}

	out, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	return strings.Trim(out, "\n")
}
