package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
)

const defaultMaxTokens = 4096

// DefaultOpenAISearchModel is the OpenAI chat model used for search-mode
// completions. It searches the web on the provider side for every request.
const DefaultOpenAISearchModel = "gpt-4o-search-preview"

// IsOpenAISearchModel reports whether model is one of OpenAI's search chat
// models, e.g. gpt-4o-search-preview or gpt-4o-mini-search-preview.
func IsOpenAISearchModel(model string) bool {
	return strings.Contains(model, "-search-")
}

// ModelConfig configures one chat model provider. Empty fields fall back to
// the provider's environment variables and defaults.
type ModelConfig struct {
	// ID overrides the provider identifier, e.g. for OpenAI-compatible
	// endpoints registered under their own name.
	ID        string
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

func (c ModelConfig) maxTokens() int {
	if c.MaxTokens > 0 {
		return c.MaxTokens
	}
	return defaultMaxTokens
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

// chatProvider is a Provider backed by an already-built chat model.
type chatProvider struct {
	id        string
	name      string
	chatModel model.ToolCallingChatModel
	webSearch bool
}

func (p *chatProvider) ID() string                            { return p.id }
func (p *chatProvider) Name() string                          { return p.name }
func (p *chatProvider) ChatModel() model.ToolCallingChatModel { return p.chatModel }
func (p *chatProvider) HostsWebSearch() bool                  { return p.webSearch }

// NewProvider wraps an existing chat model, mostly for tests and for
// endpoints configured outside this package.
func NewProvider(id, name string, chatModel model.ToolCallingChatModel, hostsWebSearch bool) Provider {
	return &chatProvider{id: id, name: name, chatModel: chatModel, webSearch: hostsWebSearch}
}

// NewOpenAIProvider creates a provider for OpenAI or an OpenAI-compatible
// endpoint. The model defaults to DefaultOpenAISearchModel; any other model
// is registered without hosted web search.
func NewOpenAIProvider(ctx context.Context, config ModelConfig) (Provider, error) {
	apiKey := firstNonEmpty(config.APIKey, os.Getenv("OPENAI_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set: %w", ErrNotConfigured)
	}
	maxTokens := config.maxTokens()
	modelID := firstNonEmpty(config.Model, os.Getenv("OPENAI_SEARCH_MODEL"), DefaultOpenAISearchModel)

	cfg := &openai.ChatModelConfig{
		APIKey:              apiKey,
		Model:               modelID,
		MaxCompletionTokens: &maxTokens,
		BaseURL:             firstNonEmpty(config.BaseURL, os.Getenv("OPENAI_BASE_URL")),
	}
	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create OpenAI model: %w", err)
	}
	return &chatProvider{
		id:        firstNonEmpty(config.ID, "openai"),
		name:      "OpenAI",
		chatModel: chatModel,
		webSearch: IsOpenAISearchModel(modelID),
	}, nil
}

// NewAnthropicProvider creates a provider for Anthropic Claude models.
func NewAnthropicProvider(ctx context.Context, config ModelConfig) (Provider, error) {
	apiKey := firstNonEmpty(config.APIKey, os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY not set: %w", ErrNotConfigured)
	}

	cfg := &claude.Config{
		APIKey:    apiKey,
		Model:     firstNonEmpty(config.Model, "claude-sonnet-4-20250514"),
		MaxTokens: config.maxTokens(),
	}
	if config.BaseURL != "" {
		baseURL := config.BaseURL
		cfg.BaseURL = &baseURL
	}
	chatModel, err := claude.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create Claude model: %w", err)
	}
	return &chatProvider{id: firstNonEmpty(config.ID, "anthropic"), name: "Anthropic", chatModel: chatModel}, nil
}

// NewArkProvider creates a provider for Volcengine ARK. Model is the ARK
// endpoint ID and has no default.
func NewArkProvider(ctx context.Context, config ModelConfig) (Provider, error) {
	apiKey := firstNonEmpty(config.APIKey, os.Getenv("ARK_API_KEY"))
	if apiKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY not set: %w", ErrNotConfigured)
	}
	modelID := firstNonEmpty(config.Model, os.Getenv("ARK_MODEL_ID"))
	if modelID == "" {
		return nil, fmt.Errorf("ARK_MODEL_ID not set: %w", ErrNotConfigured)
	}
	maxTokens := config.maxTokens()

	cfg := &ark.ChatModelConfig{
		APIKey:    apiKey,
		Model:     modelID,
		MaxTokens: &maxTokens,
		BaseURL:   firstNonEmpty(config.BaseURL, os.Getenv("ARK_BASE_URL")),
	}
	chatModel, err := ark.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create ARK model: %w", err)
	}
	return &chatProvider{id: firstNonEmpty(config.ID, "ark"), name: "ARK", chatModel: chatModel}, nil
}
