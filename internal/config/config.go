package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/chatrelay/chatrelay/pkg/types"
	"github.com/tidwall/jsonc"
)

// Defaults used when no configuration source sets a value.
const (
	DefaultHost           = "localhost"
	DefaultPort           = 8000
	DefaultSessionsDir    = "data/sessions"
	DefaultExportsDir     = "exports"
	DefaultSystemFile     = "config/system_prompts.ini"
	DefaultImplicitFile   = "config/implicit_prompts.ini"
	DefaultWelcomeFile    = "config/welcome_messages.ini"
	DefaultAssistantModel = "gpt-4o"
	DefaultAssistantName  = "Chat Assistant"
	DefaultHistoryWindow  = 10
	DefaultPollInterval   = time.Second
	DefaultMaxWait        = 60 * time.Second
)

var (
	envPattern  = regexp.MustCompile(`\{env:([^}]+)\}`)
	filePattern = regexp.MustCompile(`\{file:([^}]+)\}`)
)

// Default returns a configuration populated with the built-in defaults.
func Default() *types.Config {
	return &types.Config{
		Server: types.ServerConfig{
			Host: DefaultHost,
			Port: DefaultPort,
		},
		Storage: types.StorageConfig{
			SessionsDir: DefaultSessionsDir,
			ExportsDir:  DefaultExportsDir,
		},
		Prompts: types.PromptsConfig{
			SystemFile:   DefaultSystemFile,
			ImplicitFile: DefaultImplicitFile,
			WelcomeFile:  DefaultWelcomeFile,
		},
		Assistant: types.AssistantConfig{
			Model:          DefaultAssistantModel,
			Name:           DefaultAssistantName,
			PollIntervalMs: int(DefaultPollInterval / time.Millisecond),
			MaxWaitMs:      int(DefaultMaxWait / time.Millisecond),
		},
		Search: types.SearchConfig{
			HistoryWindow: DefaultHistoryWindow,
		},
		Log: types.LogConfig{
			Level: "info",
		},
		Provider: make(map[string]types.ProviderConfig),
	}
}

// Load loads configuration from multiple sources (priority order):
// 1. Built-in defaults
// 2. Global config (~/.config/chatrelay/)
// 3. Project config (chatrelay.json in directory)
// 4. CHATRELAY_CONFIG file
// 5. Environment variables
func Load(directory string) (*types.Config, error) {
	config := Default()

	loaded := make(map[string]bool)

	loadOnce := func(path string, baseDir string) error {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil
		}
		if loaded[absPath] {
			return nil
		}
		err = loadConfigFile(path, config, baseDir)
		if err == nil {
			loaded[absPath] = true
			return nil
		}
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}

	globalPath := GetPaths().Config
	for _, name := range []string{"chatrelay.json", "chatrelay.jsonc"} {
		if err := loadOnce(filepath.Join(globalPath, name), globalPath); err != nil {
			return nil, err
		}
	}

	if directory != "" {
		for _, name := range []string{"chatrelay.json", "chatrelay.jsonc"} {
			if err := loadOnce(filepath.Join(directory, name), directory); err != nil {
				return nil, err
			}
		}
	}

	// An explicitly named file must exist.
	if configPath := os.Getenv("CHATRELAY_CONFIG"); configPath != "" {
		if err := loadConfigFile(configPath, config, filepath.Dir(configPath)); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(config)

	return config, nil
}

// loadConfigFile loads a single config file with interpolation support.
func loadConfigFile(path string, config *types.Config, baseDir string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	data = jsonc.ToJSON(data)
	data = interpolate(data, baseDir)

	var fileConfig types.Config
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return &ParseError{Path: path, Err: err}
	}

	mergeConfig(config, &fileConfig)
	return nil
}

// ParseError reports a config file that is not valid JSON or JSONC.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return "config: parse " + e.Path + ": " + e.Err.Error() }
func (e *ParseError) Unwrap() error { return e.Err }

// interpolate processes {env:VAR} and {file:path} placeholders.
func interpolate(data []byte, baseDir string) []byte {
	str := string(data)

	str = envPattern.ReplaceAllStringFunc(str, func(match string) string {
		return os.Getenv(envPattern.FindStringSubmatch(match)[1])
	})

	str = filePattern.ReplaceAllStringFunc(str, func(match string) string {
		filePath := filePattern.FindStringSubmatch(match)[1]

		if strings.HasPrefix(filePath, "~/") {
			filePath = filepath.Join(os.Getenv("HOME"), filePath[2:])
		} else if !filepath.IsAbs(filePath) {
			filePath = filepath.Join(baseDir, filePath)
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return match
		}

		// Marshal yields a quoted JSON string; the placeholder already sits inside quotes.
		quoted, _ := json.Marshal(strings.TrimRight(string(content), "\r\n"))
		return string(quoted[1 : len(quoted)-1])
	})

	return []byte(str)
}

// mergeConfig merges source config into target. Zero values in source leave
// target untouched.
func mergeConfig(target, source *types.Config) {
	if source.Schema != "" {
		target.Schema = source.Schema
	}

	setString(&target.Server.Host, source.Server.Host)
	setInt(&target.Server.Port, source.Server.Port)
	if source.Server.CORS != nil {
		target.Server.CORS = source.Server.CORS
	}

	setString(&target.Storage.SessionsDir, source.Storage.SessionsDir)
	setString(&target.Storage.ExportsDir, source.Storage.ExportsDir)

	setString(&target.Prompts.SystemFile, source.Prompts.SystemFile)
	setString(&target.Prompts.ImplicitFile, source.Prompts.ImplicitFile)
	setString(&target.Prompts.WelcomeFile, source.Prompts.WelcomeFile)
	if len(source.Prompts.Include) > 0 {
		target.Prompts.Include = append(target.Prompts.Include, source.Prompts.Include...)
	}
	if source.Prompts.Watch {
		target.Prompts.Watch = true
	}

	setString(&target.Assistant.Model, source.Assistant.Model)
	setString(&target.Assistant.Name, source.Assistant.Name)
	setInt(&target.Assistant.PollIntervalMs, source.Assistant.PollIntervalMs)
	setInt(&target.Assistant.MaxWaitMs, source.Assistant.MaxWaitMs)
	if source.Assistant.ReleaseRetries != nil {
		target.Assistant.ReleaseRetries = source.Assistant.ReleaseRetries
	}

	setString(&target.Search.Provider, source.Search.Provider)
	setString(&target.Search.Model, source.Search.Model)
	setInt(&target.Search.HistoryWindow, source.Search.HistoryWindow)
	setInt(&target.Search.MaxTokens, source.Search.MaxTokens)

	setString(&target.Log.Level, source.Log.Level)
	setString(&target.Log.Dir, source.Log.Dir)
	if source.Log.Pretty {
		target.Log.Pretty = true
	}

	if source.Provider != nil {
		if target.Provider == nil {
			target.Provider = make(map[string]types.ProviderConfig)
		}
		for k, v := range source.Provider {
			target.Provider[k] = v
		}
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(config *types.Config) {
	providerEnvMap := map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
		"ark":       "ARK_API_KEY",
	}

	for provider, envVar := range providerEnvMap {
		if apiKey := os.Getenv(envVar); apiKey != "" {
			if config.Provider == nil {
				config.Provider = make(map[string]types.ProviderConfig)
			}
			p := config.Provider[provider]
			if p.APIKey == "" {
				p.APIKey = apiKey
				config.Provider[provider] = p
			}
		}
	}

	if baseURL := os.Getenv("OPENAI_BASE_URL"); baseURL != "" {
		p := config.Provider["openai"]
		if p.BaseURL == "" {
			p.BaseURL = baseURL
			config.Provider["openai"] = p
		}
	}

	if host := os.Getenv("HOST"); host != "" {
		config.Server.Host = host
	}
	if port, err := strconv.Atoi(os.Getenv("PORT")); err == nil && port > 0 {
		config.Server.Port = port
	}

	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		config.Log.Level = level
	}

	if dataDir := os.Getenv("CHATRELAY_DATA_DIR"); dataDir != "" {
		config.Storage.SessionsDir = filepath.Join(dataDir, "sessions")
		config.Storage.ExportsDir = filepath.Join(dataDir, "exports")
	}
}

// Save saves the configuration to a file.
func Save(config *types.Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(path, data, 0644)
}

// Addr returns the listen address for the HTTP server.
func Addr(config *types.Config) string {
	return config.Server.Host + ":" + strconv.Itoa(config.Server.Port)
}

// PollInterval returns the configured run poll interval.
func PollInterval(config *types.Config) time.Duration {
	return millis(config.Assistant.PollIntervalMs, DefaultPollInterval)
}

// MaxWait returns the configured bound on waiting for a run.
func MaxWait(config *types.Config) time.Duration {
	return millis(config.Assistant.MaxWaitMs, DefaultMaxWait)
}

func millis(ms int, fallback time.Duration) time.Duration {
	if ms <= 0 {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

// CORSEnabled reports whether the server should send CORS headers. It is on
// unless explicitly disabled.
func CORSEnabled(config *types.Config) bool {
	return config.Server.CORS == nil || *config.Server.CORS
}
