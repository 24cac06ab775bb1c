package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	"github.com/charmbracelet/lipgloss"
	"github.com/jwulff/copilot/internal/chat"
	"github.com/jwulff/copilot/internal/session"
	"github.com/jwulff/copilot/internal/ui"
	"github.com/jwulff/copilot/internal/voice"

	tea "github.com/charmbracelet/bubbletea"
)

// SessionClient queries and changes the login state.
type SessionClient interface {
	Fetch(ctx context.Context) session.Session
	BeginLogin(ctx context.Context, provider session.Provider) (session.Session, error)
	Logout(ctx context.Context) error
}

// VoiceToggler starts and stops voice recording. Close releases an active
// recording without sending it.
type VoiceToggler interface {
	Toggle(ctx context.Context) (voice.State, error)
	Close()
}

// Load is the per-load state a reload throws away.
type Load struct {
	Chat  *chat.Controller
	Voice VoiceToggler // nil disables voice input
}

// LoadFunc builds a fresh Load. It is called once per load.
type LoadFunc func() Load

// Model is the root bubbletea model for the copilot TUI.
type Model struct {
	ctx      context.Context
	sessions SessionClient
	load     LoadFunc
	markdown *ui.Markdown

	// Load state, replaced on reload
	epoch   int
	done    chan struct{}
	chat    *chat.Controller
	voice   VoiceToggler
	loaded  bool
	session session.Session

	// Transcript snapshot for rendering
	entries  []chat.Entry
	rendered []string
	typing   bool

	// Modes
	loggingIn  bool
	loggingOut bool
	recording  bool

	// Widgets
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	follow   bool

	// UI state
	width  int
	height int

	// Messages
	statusMessage  string
	errorMessage   string
	errorTransient bool
}

// New creates a Model for its first load.
func New(ctx context.Context, sessions SessionClient, load LoadFunc, md *ui.Markdown) Model {
	ti := textinput.New()
	ti.Placeholder = "Ask a question, or /upload <files...>"
	ti.Prompt = "> "
	ti.CharLimit = 4000
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = ui.SpinnerStyle

	if md == nil {
		md = ui.NewMarkdown("dark")
	}

	m := Model{
		ctx:      ctx,
		sessions: sessions,
		load:     load,
		markdown: md,
		input:    ti,
		viewport: viewport.New(80, 20),
		spinner:  sp,
		follow:   true,
	}
	m.begin(1)
	return m
}

// begin installs a fresh load under epoch.
func (m *Model) begin(epoch int) {
	l := m.load()
	m.epoch = epoch
	m.done = make(chan struct{})
	m.chat = l.Chat
	m.voice = l.Voice
	m.loaded = false
	m.session = session.Anonymous()
	m.entries = nil
	m.rendered = nil
	m.typing = false
	m.loggingIn = false
	m.loggingOut = false
	m.recording = false
	m.follow = true
	m.statusMessage = ""
	m.errorMessage = ""
	m.errorTransient = false
	m.input.Reset()
	m.viewport.SetContent("")
}

// Init fetches the session and starts listening for transcript changes.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		fetchSessionCmd(m.ctx, m.sessions, m.epoch),
		listenCmd(m.chat, m.done, m.epoch),
		textinput.Blink,
		m.spinner.Tick,
	)
}

// reload discards the current load and starts over, as a page reload would.
func (m Model) reload() (tea.Model, tea.Cmd) {
	m.teardown()
	m.begin(m.epoch + 1)
	m.resize()
	return m, m.Init()
}

// teardown ends the current load: its listener exits and any recording
// releases the capture device.
func (m *Model) teardown() {
	select {
	case <-m.done:
		return
	default:
		close(m.done)
	}
	if m.voice != nil {
		m.voice.Close()
	}
}

// fetchSessionCmd asks the backend who is logged in.
func fetchSessionCmd(ctx context.Context, sessions SessionClient, epoch int) tea.Cmd {
	return func() tea.Msg {
		return SessionLoadedMsg{Epoch: epoch, Session: sessions.Fetch(ctx)}
	}
}

// listenCmd waits for the next transcript change of the current load.
func listenCmd(c *chat.Controller, done <-chan struct{}, epoch int) tea.Cmd {
	return func() tea.Msg {
		select {
		case <-c.Changes():
			return TranscriptChangedMsg{Epoch: epoch}
		case <-done:
			return nil
		}
	}
}

// loginCmd runs a browser login.
func loginCmd(ctx context.Context, sessions SessionClient, provider session.Provider, epoch int) tea.Cmd {
	return func() tea.Msg {
		_, err := sessions.BeginLogin(ctx, provider)
		return LoginDoneMsg{Epoch: epoch, Err: err}
	}
}

// logoutCmd ends the backend session.
func logoutCmd(ctx context.Context, sessions SessionClient, epoch int) tea.Cmd {
	return func() tea.Msg {
		return LogoutDoneMsg{Epoch: epoch, Err: sessions.Logout(ctx)}
	}
}

// askCmd sends a text query whose user entry is already in the transcript.
func askCmd(ctx context.Context, c *chat.Controller, q chat.Query, epoch int) tea.Cmd {
	return func() tea.Msg {
		return ReplyMsg{Epoch: epoch, Reply: c.Ask(ctx, q)}
	}
}

// uploadCmd uploads files.
func uploadCmd(ctx context.Context, c *chat.Controller, paths []string, epoch int) tea.Cmd {
	return func() tea.Msg {
		return UploadDoneMsg{Epoch: epoch, Message: c.Upload(ctx, paths)}
	}
}

// voiceToggleCmd starts or stops recording.
func voiceToggleCmd(ctx context.Context, v VoiceToggler, epoch int) tea.Cmd {
	return func() tea.Msg {
		state, err := v.Toggle(ctx)
		return VoiceToggledMsg{Epoch: epoch, State: state, Err: err}
	}
}

// clearTransientErrorCmd fires after a delay to clear transient errors.
func clearTransientErrorCmd() tea.Cmd {
	return tea.Tick(5*time.Second, func(time.Time) tea.Msg {
		return ClearTransientErrorMsg{}
	})
}

// Update processes messages and returns the updated model and any commands.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.rendered = nil
		m.resize()
		m.refresh()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case SessionLoadedMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.loaded = true
		m.session = msg.Session
		return m, nil

	case LoginDoneMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.loggingIn = false
		if msg.Err != nil {
			return m.showTransientError("Login failed: " + msg.Err.Error())
		}
		return m.reload()

	case LogoutDoneMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.loggingOut = false
		if msg.Err != nil {
			m.errorMessage = msg.Err.Error()
			m.errorTransient = false
			return m, nil
		}
		return m.reload()

	case ReplyMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.chat.Complete(msg.Reply)
		m.refresh()
		return m, nil

	case UploadDoneMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.statusMessage = msg.Message
		return m, nil

	case TranscriptChangedMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.refresh()
		return m, listenCmd(m.chat, m.done, m.epoch)

	case VoiceToggledMsg:
		if msg.Epoch != m.epoch {
			return m, nil
		}
		m.recording = msg.State == voice.Recording
		if msg.Err != nil {
			text := msg.Err.Error()
			if errors.Is(msg.Err, voice.ErrPermissionDenied) {
				text = "Microphone unavailable: " + text
			}
			return m.showTransientError(text)
		}
		return m, nil

	case ClearTransientErrorMsg:
		if m.errorTransient {
			m.errorMessage = ""
			m.errorTransient = false
		}
		return m, nil
	}

	return m, nil
}

// handleKey processes key presses.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyCtrlC, KeyEsc:
		m.teardown()
		return m, tea.Quit
	}

	if !m.loaded {
		return m, nil
	}
	if !m.session.Authenticated() {
		return m.handleLoginKey(msg)
	}

	switch msg.String() {
	case KeyEnter:
		return m.submit()

	case KeyRecord:
		if m.voice == nil {
			return m.showTransientError("Voice input is not available")
		}
		return m, voiceToggleCmd(m.ctx, m.voice, m.epoch)

	case KeyLogout:
		if m.loggingOut {
			return m, nil
		}
		m.loggingOut = true
		return m, logoutCmd(m.ctx, m.sessions, m.epoch)

	case KeyPageUp:
		m.follow = false
		m.viewport.SetYOffset(m.viewport.YOffset - m.viewport.Height)
		return m, nil

	case KeyPageDown:
		m.viewport.SetYOffset(m.viewport.YOffset + m.viewport.Height)
		if m.viewport.AtBottom() {
			m.follow = true
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleLoginKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.loggingIn {
		return m, nil
	}
	var provider session.Provider
	switch msg.String() {
	case KeyLoginGoogle:
		provider = session.ProviderGoogle
	case KeyLoginGitHub:
		provider = session.ProviderGitHub
	default:
		return m, nil
	}
	m.loggingIn = true
	m.errorMessage = ""
	return m, loginCmd(m.ctx, m.sessions, provider, m.epoch)
}

// submit handles the input line: an upload command or a text query.
func (m Model) submit() (tea.Model, tea.Cmd) {
	value := m.input.Value()
	trimmed := strings.TrimSpace(value)

	if trimmed == UploadCommand || strings.HasPrefix(trimmed, UploadCommand+" ") {
		paths := strings.Fields(strings.TrimPrefix(trimmed, UploadCommand))
		m.input.Reset()
		m.statusMessage = "Uploading..."
		return m, uploadCmd(m.ctx, m.chat, paths, m.epoch)
	}

	q, ok := m.chat.Begin(value)
	if !ok {
		return m, nil
	}
	m.input.Reset()
	m.follow = true
	m.refresh()
	return m, askCmd(m.ctx, m.chat, q, m.epoch)
}

func (m Model) showTransientError(text string) (tea.Model, tea.Cmd) {
	m.errorMessage = text
	m.errorTransient = true
	return m, clearTransientErrorCmd()
}

// refresh re-reads the transcript and re-renders the viewport.
func (m *Model) refresh() {
	m.entries = m.chat.Entries()
	m.typing = m.chat.Typing()

	width := m.transcriptWidth()
	for i := len(m.rendered); i < len(m.entries); i++ {
		m.rendered = append(m.rendered, m.renderEntry(m.entries[i], width))
	}
	m.viewport.SetContent(strings.Join(m.rendered, "\n\n"))
	if m.follow {
		m.viewport.GotoBottom()
	}
}

func (m *Model) resize() {
	m.viewport.Width = m.transcriptWidth()
	m.viewport.Height = m.transcriptVisibleLines()
	m.input.Width = max(10, m.width-4)
}

func (m Model) transcriptVisibleLines() int {
	if m.height == 0 {
		return 20
	}
	// Reserve: header(1) + divider(2) + status(1) + error(1) + input(1) + footer(1)
	reserved := 7
	return max(3, m.height-reserved)
}

func (m Model) transcriptWidth() int {
	if m.width == 0 {
		return 80
	}
	return max(20, m.width-2)
}

// View renders the full TUI.
func (m Model) View() string {
	if m.width == 0 {
		return "Initializing..."
	}
	if !m.loaded {
		return m.spinner.View() + " Checking session..."
	}
	if !m.session.Authenticated() {
		return m.renderLogin()
	}
	return m.renderChat()
}

func (m Model) renderLogin() string {
	var lines []string
	lines = append(lines, ui.TitleStyle.Render("COPILOT"))
	lines = append(lines, ui.DimStyle.Render("Your research assistant"))
	lines = append(lines, "")

	if m.loggingIn {
		lines = append(lines, m.spinner.View()+" Complete the login in your browser...")
	} else {
		lines = append(lines, ui.LoginOptionStyle.Render("Sign in to continue"))
		lines = append(lines, "")
		lines = append(lines, ui.FooterKeyStyle.Render("g")+ui.LoginOptionStyle.Render("  Continue with Google"))
		lines = append(lines, ui.FooterKeyStyle.Render("h")+ui.LoginOptionStyle.Render("  Continue with GitHub"))
	}

	box := ui.LoginBoxStyle.Render(strings.Join(lines, "\n"))

	var sections []string
	sections = append(sections, box)
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	}
	sections = append(sections, ui.FooterKeyStyle.Render("esc")+ui.FooterDescStyle.Render(" Quit"))

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center,
		lipgloss.JoinVertical(lipgloss.Center, sections...))
}

func (m Model) renderChat() string {
	var sections []string

	// Header
	sections = append(sections, m.renderHeader())
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Transcript
	if len(m.entries) == 0 {
		empty := ui.DimStyle.Render("  Ask anything about your documents.")
		sections = append(sections, padLines(empty, m.transcriptVisibleLines()))
	} else {
		sections = append(sections, m.viewport.View())
	}
	sections = append(sections, ui.DividerStyle.Render(strings.Repeat("─", m.width)))

	// Status line: typing indicator, recording, last upload message
	sections = append(sections, m.renderStatusLine())

	// Error bar
	if m.errorMessage != "" {
		sections = append(sections, m.renderErrorBar())
	} else {
		sections = append(sections, "")
	}

	sections = append(sections, m.input.View())
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

func (m Model) renderHeader() string {
	title := ui.TitleStyle.Render("COPILOT")
	banner := ui.BannerStyle.Render("  " + m.session.Banner())
	return title + banner
}

func (m Model) renderStatusLine() string {
	var parts []string
	if m.recording {
		parts = append(parts, ui.RecordingDotStyle.Render("● REC"))
	}
	if m.typing {
		parts = append(parts, m.spinner.View()+ui.DimStyle.Render(" Thinking..."))
	}
	if m.loggingOut {
		parts = append(parts, ui.DimStyle.Render("Logging out..."))
	}
	if m.statusMessage != "" {
		parts = append(parts, ui.StatusMessageStyle.Render(m.statusMessage))
	}
	return strings.Join(parts, "  ")
}

func (m Model) renderEntry(e chat.Entry, width int) string {
	if e.Role == chat.RoleUser {
		label := ui.UserLabelStyle.Render("You")
		wrapped := wrapText(e.Text, max(10, width-2))
		return label + "\n" + ui.UserTextStyle.Render(strings.Join(wrapped, "\n"))
	}
	label := ui.BotLabelStyle.Render("Copilot")
	return label + "\n" + m.markdown.Render(e.Text, width)
}

func (m Model) renderErrorBar() string {
	return ui.ErrorStyle.Render("Error: ") + ui.ErrorTextStyle.Render(m.errorMessage)
}

func (m Model) renderFooter() string {
	var parts []string

	parts = append(parts, ui.FooterKeyStyle.Render("Enter")+ui.FooterDescStyle.Render(" Send"))
	if m.recording {
		parts = append(parts, ui.FooterKeyStyle.Render("^R")+ui.FooterDescStyle.Render(" Stop"))
	} else {
		parts = append(parts, ui.FooterKeyStyle.Render("^R")+ui.FooterDescStyle.Render(" Speak"))
	}
	parts = append(parts, ui.FooterKeyStyle.Render("PgUp/PgDn")+ui.FooterDescStyle.Render(" Scroll"))
	parts = append(parts, ui.FooterKeyStyle.Render("^O")+ui.FooterDescStyle.Render(" Logout"))
	parts = append(parts, ui.FooterKeyStyle.Render("Esc")+ui.FooterDescStyle.Render(" Quit"))

	return strings.Join(parts, "  ")
}

// Helpers

func padLines(s string, height int) string {
	lines := strings.Split(s, "\n")
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}

func wrapText(text string, width int) []string {
	if width <= 0 {
		return []string{text}
	}

	var lines []string
	for _, paragraph := range strings.Split(text, "\n") {
		var current string
		for _, word := range strings.Fields(paragraph) {
			if current == "" {
				current = word
			} else if len(current)+1+len(word) <= width {
				current += " " + word
			} else {
				lines = append(lines, current)
				current = word
			}
		}
		lines = append(lines, current)
	}
	if len(lines) == 0 {
		return []string{""}
	}
	return lines
}
