package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jwulff/copilot/internal/app"
	"github.com/jwulff/copilot/internal/backend"
	"github.com/jwulff/copilot/internal/browser"
	"github.com/jwulff/copilot/internal/chat"
	"github.com/jwulff/copilot/internal/config"
	"github.com/jwulff/copilot/internal/db"
	"github.com/jwulff/copilot/internal/session"
	"github.com/jwulff/copilot/internal/ui"
	"github.com/jwulff/copilot/internal/voice"

	tea "github.com/charmbracelet/bubbletea"
)

// runtime is everything a command needs, built from the config.
type runtime struct {
	cfg      *config.Config
	store    *db.Store
	jar      *backend.PersistentJar
	client   *backend.Client
	sessions *session.Client
	logFile  *os.File
}

// setup loads the config, opens the log and the store, and wires the
// backend client to the persisted cookie jar.
func setup() (*runtime, error) {
	cfg, err := config.Load(configPath, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logFile, err := tea.LogToFile(cfg.Log.Path, "")
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}

	store, err := db.Open(cfg.Storage.Path)
	if err != nil {
		logFile.Close()
		return nil, err
	}

	jar, err := backend.NewPersistentJar(cfg.BackendURL, store)
	if err != nil {
		store.Close()
		logFile.Close()
		return nil, err
	}

	opts := []backend.Option{backend.WithJar(jar), backend.WithTimeout(cfg.RequestTimeout)}
	if cfg.InsecureTLS {
		opts = append(opts, backend.WithInsecureTLS())
	}
	client := backend.New(cfg.BackendURL, opts...)

	nav := &browser.Navigator{
		Bin:          cfg.Login.BrowserBin,
		Timeout:      cfg.Login.Timeout,
		PollInterval: cfg.Login.PollInterval,
		InsecureTLS:  cfg.InsecureTLS,
	}

	log.Printf("[SESSION]: backend %s", cfg.BackendURL)
	return &runtime{
		cfg:      cfg,
		store:    store,
		jar:      jar,
		client:   client,
		sessions: session.NewClient(client, nav, jar),
		logFile:  logFile,
	}, nil
}

func (r *runtime) Close() {
	r.store.Close()
	r.logFile.Close()
}

// newChat creates a controller with a fresh transcript, archived when
// configured.
func (r *runtime) newChat() *chat.Controller {
	var opts []chat.Option
	if r.cfg.Storage.Archive {
		opts = append(opts, chat.WithRecorder(chat.NewArchive(r.store, r.cfg.BackendURL)))
	}
	return chat.New(r.client, opts...)
}

// newLoad builds the per-load state of the TUI.
func (r *runtime) newLoad() app.Load {
	c := r.newChat()
	rec := &voice.ExecRecorder{Tool: r.cfg.Voice.Recorder, SampleRate: r.cfg.Voice.SampleRate}
	trip := &voice.RoundTrip{
		Backend:    r.client,
		Transcript: c,
		Player:     &voice.ExecPlayer{Tool: r.cfg.Voice.Player},
	}
	return app.Load{Chat: c, Voice: voice.NewController(rec, trip)}
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func runTUI(parent context.Context) error {
	rt, err := setup()
	if err != nil {
		return err
	}
	defer rt.Close()

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	m := app.New(ctx, rt.sessions, rt.newLoad, ui.NewMarkdown("dark"))
	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("run TUI: %w", err)
	}
	return nil
}
