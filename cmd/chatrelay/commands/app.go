package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/chatrelay/chatrelay/internal/config"
	"github.com/chatrelay/chatrelay/internal/dispatch"
	"github.com/chatrelay/chatrelay/internal/event"
	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/internal/prompt"
	"github.com/chatrelay/chatrelay/internal/provider"
	"github.com/chatrelay/chatrelay/internal/server"
	"github.com/chatrelay/chatrelay/internal/session"
	"github.com/chatrelay/chatrelay/internal/storage"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// app holds the wired components shared by the commands.
type app struct {
	config     *types.Config
	catalog    *prompt.Catalog
	store      *session.Store
	exporter   *session.Exporter
	bus        *event.Bus
	dispatcher *dispatch.Dispatcher
	status     server.Status
}

// loadApp loads configuration and wires every component. Missing provider
// credentials are logged and replaced with provider.Unavailable so that
// offline commands keep working.
func loadApp(ctx context.Context, logToStderr bool) (*app, error) {
	dir, err := getWorkDir()
	if err != nil {
		return nil, err
	}

	cfg, err := config.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	configureLogging(cfg, logToStderr)

	catalog, err := prompt.Load(prompt.Config{
		SystemFile:   cfg.Prompts.SystemFile,
		ImplicitFile: cfg.Prompts.ImplicitFile,
		WelcomeFile:  cfg.Prompts.WelcomeFile,
		Include:      cfg.Prompts.Include,
	})
	if err != nil {
		return nil, fmt.Errorf("load prompts: %w", err)
	}

	store, err := session.Open(ctx, storage.New(cfg.Storage.SessionsDir))
	if err != nil {
		return nil, fmt.Errorf("open sessions: %w", err)
	}

	a := &app{
		config:   cfg,
		catalog:  catalog,
		store:    store,
		exporter: session.NewExporter(storage.New(cfg.Storage.ExportsDir)),
		bus:      event.NewBus(logging.NewWatermillAdapter(logging.Logger)),
	}

	var threads provider.ThreadClient = provider.Unavailable{}
	openai := cfg.Provider["openai"]
	if client, err := provider.NewAssistantsClient(provider.AssistantsConfig{
		APIKey:  openai.APIKey,
		BaseURL: openai.BaseURL,
	}); err != nil {
		logging.Warn().Err(err).Msg("normal mode disabled")
	} else {
		threads = client
		a.status.Assistants = true
	}

	registry := provider.InitializeProviders(ctx, cfg)
	for _, p := range registry.List() {
		a.status.Providers = append(a.status.Providers, p.ID())
	}
	var completer provider.Completer = provider.Unavailable{}
	if c, err := registry.Completer(cfg.Search.Provider); err != nil {
		logging.Warn().Err(err).Str("provider", cfg.Search.Provider).Msg("search mode disabled")
	} else {
		completer = c
		a.status.Search = true
		a.status.WebSearch = c.HostsWebSearch()
	}

	opts := dispatch.Options{
		PollInterval:  config.PollInterval(cfg),
		MaxWait:       config.MaxWait(cfg),
		HistoryWindow: cfg.Search.HistoryWindow,
		AgentModel:    cfg.Assistant.Model,
		AgentName:     cfg.Assistant.Name,
		Bus:           a.bus,
	}
	if cfg.Assistant.ReleaseRetries != nil {
		opts.ReleaseRetries = *cfg.Assistant.ReleaseRetries
		if opts.ReleaseRetries == 0 {
			opts.ReleaseRetries = -1
		}
	}
	a.dispatcher = dispatch.New(store, catalog, threads, completer, opts)

	logging.Info().
		Int("sessions", store.Len()).
		Bool("assistants", a.status.Assistants).
		Bool("search", a.status.Search).
		Bool("webSearch", a.status.WebSearch).
		Msg("chatrelay ready")
	return a, nil
}

// Close releases the event bus.
func (a *app) Close() error {
	return a.bus.Close()
}

// configureLogging re-initializes the logger from the loaded config. Flags
// given on the command line win.
func configureLogging(cfg *types.Config, logToStderr bool) {
	level := logLevel
	if level == "" {
		level = cfg.Log.Level
	}

	var out io.Writer = io.Discard
	if printLogs || logToStderr {
		out = os.Stderr
	}

	logging.Init(logging.Config{
		Level:     logging.ParseLevel(level),
		Output:    out,
		Pretty:    cfg.Log.Pretty || printLogs,
		LogToFile: cfg.Log.Dir != "",
		LogDir:    cfg.Log.Dir,
	})
}
