package types

// Config represents the chatrelay configuration.
type Config struct {
	// Schema reference (for editor support)
	Schema string `json:"$schema,omitempty"`

	Server    ServerConfig    `json:"server"`
	Storage   StorageConfig   `json:"storage"`
	Prompts   PromptsConfig   `json:"prompts"`
	Assistant AssistantConfig `json:"assistant"`
	Search    SearchConfig    `json:"search"`
	Log       LogConfig       `json:"log"`

	// Provider configs keyed by provider ID ("openai", "anthropic", "ark").
	Provider map[string]ProviderConfig `json:"provider,omitempty"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Host string `json:"host,omitempty"`
	Port int    `json:"port,omitempty"`
	CORS *bool  `json:"cors,omitempty"`
}

// StorageConfig locates durable data.
type StorageConfig struct {
	SessionsDir string `json:"sessionsDir,omitempty"`
	ExportsDir  string `json:"exportsDir,omitempty"`
}

// PromptsConfig locates the prompt catalog files.
type PromptsConfig struct {
	SystemFile   string   `json:"systemFile,omitempty"`
	ImplicitFile string   `json:"implicitFile,omitempty"`
	WelcomeFile  string   `json:"welcomeFile,omitempty"`
	Include      []string `json:"include,omitempty"` // doublestar globs of extra system prompt files
	Watch        bool     `json:"watch,omitempty"`
}

// AssistantConfig configures normal-mode turns.
type AssistantConfig struct {
	Model          string `json:"model,omitempty"`
	Name           string `json:"name,omitempty"`
	PollIntervalMs int    `json:"pollIntervalMs,omitempty"`
	MaxWaitMs      int    `json:"maxWaitMs,omitempty"`
	ReleaseRetries *int   `json:"releaseRetries,omitempty"`
}

// SearchConfig configures search-mode turns.
type SearchConfig struct {
	// Provider selects the completion provider ("openai", "anthropic", "ark").
	Provider      string `json:"provider,omitempty"`
	Model         string `json:"model,omitempty"`
	HistoryWindow int    `json:"historyWindow,omitempty"`
	MaxTokens     int    `json:"maxTokens,omitempty"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `json:"level,omitempty"`
	Pretty bool   `json:"pretty,omitempty"`
	Dir    string `json:"dir,omitempty"` // writes JSON logs to a file in Dir when set
}

// ProviderConfig holds configuration for a specific provider.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`

	// Model/Endpoint ID (for providers like ARK that require endpoint specification)
	Model string `json:"model,omitempty"`

	Disable bool `json:"disable,omitempty"`
}
