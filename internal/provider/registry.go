package provider

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/chatrelay/chatrelay/internal/logging"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// Registry manages the available chat model providers.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty provider registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a provider, replacing one with the same ID.
func (r *Registry) Register(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.ID()] = provider
}

// Get retrieves a provider by ID.
func (r *Registry) Get(providerID string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	provider, ok := r.providers[providerID]
	if !ok {
		return nil, fmt.Errorf("provider not found: %s", providerID)
	}
	return provider, nil
}

// List returns all providers sorted by ID.
func (r *Registry) List() []Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()

	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	sort.Slice(providers, func(i, j int) bool { return providers[i].ID() < providers[j].ID() })
	return providers
}

// Completer returns a Completer for providerID. An empty providerID picks
// the first provider that hosts web search, then the first registered one.
func (r *Registry) Completer(providerID string) (*ChatCompleter, error) {
	var p Provider
	if providerID == "" {
		providers := r.List()
		if len(providers) == 0 {
			return nil, ErrNotConfigured
		}
		p = providers[0]
		for _, candidate := range providers {
			if candidate.HostsWebSearch() {
				p = candidate
				break
			}
		}
	} else {
		var err error
		if p, err = r.Get(providerID); err != nil {
			return nil, err
		}
	}
	if !p.HostsWebSearch() {
		logging.Warn().Str("provider", p.ID()).Msg("provider has no hosted web search, search mode answers from model knowledge")
	}
	return NewChatCompleter(p.ChatModel(), p.HostsWebSearch()), nil
}

type providerFactory func(ctx context.Context, config ModelConfig) (Provider, error)

var factories = map[string]providerFactory{
	"openai":    NewOpenAIProvider,
	"anthropic": NewAnthropicProvider,
	"ark":       NewArkProvider,
}

// InitializeProviders creates and registers every configured provider.
// Providers without credentials are skipped; other failures are logged and
// skipped so one bad entry does not disable the rest.
func InitializeProviders(ctx context.Context, config *types.Config) *Registry {
	registry := NewRegistry()
	if config == nil {
		return registry
	}

	ids := make([]string, 0, len(factories))
	for id := range factories {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		cfg, ok := config.Provider[id]
		if !ok || cfg.Disable || cfg.APIKey == "" {
			continue
		}
		modelCfg := ModelConfig{
			APIKey:    cfg.APIKey,
			BaseURL:   cfg.BaseURL,
			Model:     cfg.Model,
			MaxTokens: config.Search.MaxTokens,
		}
		if id == config.Search.Provider && config.Search.Model != "" {
			modelCfg.Model = config.Search.Model
		}
		p, err := factories[id](ctx, modelCfg)
		if err != nil {
			if !errors.Is(err, ErrNotConfigured) {
				logging.Warn().Err(err).Str("provider", id).Msg("provider init failed")
			}
			continue
		}
		registry.Register(p)
		logging.Debug().Str("provider", id).Msg("provider registered")
	}
	return registry
}
