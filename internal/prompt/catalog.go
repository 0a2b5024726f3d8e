// Package prompt loads the prompt catalogs: system prompts, implicit prompts
// and welcome texts. Catalogs are INI or YAML files keyed by section; a
// "default" section always exists and backs every unknown key.
package prompt

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/chatrelay/chatrelay/internal/logging"
)

// DefaultKey names the section used when a requested key is unknown.
const DefaultKey = "default"

const (
	keyName     = "name"
	keySystem   = "system_prompt"
	keyImplicit = "implicit_prompt"
	keyTitle    = "title"
	keyMessage  = "message"
)

// Built-in default sections, written to a catalog file that lacks one.
var (
	defaultSystem = map[string]string{
		keyName:   "General Assistant",
		keySystem: "You are a helpful AI assistant. Please answer the user's questions kindly and accurately.",
	}
	defaultImplicit = map[string]string{
		keyName:     "Default",
		keyImplicit: "",
	}
	defaultWelcome = map[string]string{
		keyTitle:   "Welcome",
		keyMessage: "Hello! How can I help you today?",
	}
)

// Config locates the catalog files.
type Config struct {
	SystemFile   string
	ImplicitFile string
	WelcomeFile  string
	// Include holds glob patterns for extra system prompt files. Their
	// sections are merged over SystemFile in memory and never written back.
	Include []string
}

// Welcome is the greeting shown for an interface mode.
type Welcome struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// Catalog serves prompt lookups. It is safe for concurrent use; Reload swaps
// the loaded tables atomically.
type Catalog struct {
	cfg Config

	mu       sync.RWMutex
	system   *table
	implicit *table
	welcome  *table
}

// Load reads every catalog file, creating missing files and default sections.
func Load(cfg Config) (*Catalog, error) {
	c := &Catalog{cfg: cfg}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog files. On error the previous tables stay in
// place.
func (c *Catalog) Reload() error {
	system, err := loadWithDefault(c.cfg.SystemFile, defaultSystem)
	if err != nil {
		return err
	}
	for _, pattern := range c.cfg.Include {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			return fmt.Errorf("include pattern %q: %w", pattern, err)
		}
		sort.Strings(matches)
		for _, path := range matches {
			extra, err := readTable(path)
			if err != nil {
				logging.Warn().Err(err).Str("file", path).Msg("skipping prompt include")
				continue
			}
			system.merge(extra)
		}
	}
	implicit, err := loadWithDefault(c.cfg.ImplicitFile, defaultImplicit)
	if err != nil {
		return err
	}
	welcome, err := loadWithDefault(c.cfg.WelcomeFile, defaultWelcome)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.system, c.implicit, c.welcome = system, implicit, welcome
	c.mu.Unlock()
	return nil
}

// loadWithDefault reads path, adding and persisting the default section when
// the file or the section is missing. An empty path yields an in-memory table.
func loadWithDefault(path string, defaults map[string]string) (*table, error) {
	if path == "" {
		t := newTable()
		t.set(DefaultKey, copyValues(defaults))
		return t, nil
	}
	t, err := readTable(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		t = newTable()
	case err != nil:
		return nil, fmt.Errorf("load prompt file %s: %w", path, err)
	}
	if _, ok := t.get(DefaultKey); !ok {
		t.set(DefaultKey, copyValues(defaults))
		if err := writeTable(path, t); err != nil {
			return nil, fmt.Errorf("write prompt file %s: %w", path, err)
		}
		logging.Info().Str("file", path).Msg("created default prompt section")
	}
	return t, nil
}

func copyValues(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// lookup returns the section for key, falling back to the default section.
// The returned map must not be modified.
func (c *Catalog) lookup(t *table, kind, key string) (map[string]string, bool) {
	if values, ok := t.get(key); ok {
		return values, true
	}
	if key != "" && key != DefaultKey {
		ev := logging.Debug().Str("kind", kind).Str("key", key)
		if s := suggest(key, t.order); s != "" {
			ev = ev.Str("suggestion", s)
		}
		ev.Msg("unknown prompt key, using default")
	}
	values, _ := t.get(DefaultKey)
	return values, false
}

// SystemPrompt returns the system prompt text for promptType, or the default
// section's text when promptType is unknown.
func (c *Catalog) SystemPrompt(promptType string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values, _ := c.lookup(c.system, "system", promptType)
	return values[keySystem]
}

// PromptName returns the display name for promptType. A known section without
// a name uses the type itself; an unknown type uses the default's name.
func (c *Catalog) PromptName(promptType string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values, found := c.lookup(c.system, "system", promptType)
	if name := values[keyName]; name != "" {
		return name
	}
	if found {
		return promptType
	}
	return "Default"
}

// ListPrompts maps every system prompt type to its display name.
func (c *Catalog) ListPrompts() map[string]string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[string]string, len(c.system.order))
	for _, name := range c.system.order {
		display := c.system.sections[name][keyName]
		if display == "" {
			display = name
		}
		out[name] = display
	}
	return out
}

// ImplicitPrompt returns the implicit guidance for category, falling back to
// the default section. The text may be empty.
func (c *Catalog) ImplicitPrompt(category string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values, _ := c.lookup(c.implicit, "implicit", category)
	return values[keyImplicit]
}

// Welcome returns the greeting for an interface mode.
func (c *Catalog) Welcome(mode string) Welcome {
	c.mu.RLock()
	defer c.mu.RUnlock()
	values, _ := c.lookup(c.welcome, "welcome", mode)
	fallback, _ := c.welcome.get(DefaultKey)
	w := Welcome{Title: values[keyTitle], Message: values[keyMessage]}
	if w.Title == "" {
		w.Title = fallback[keyTitle]
	}
	if w.Message == "" {
		w.Message = fallback[keyMessage]
	}
	return w
}

// AddSystemPrompt adds or replaces a system prompt section and persists the
// system catalog file. Included files are not touched.
func (c *Catalog) AddSystemPrompt(promptType, name, text string) error {
	if promptType == "" {
		return errors.New("prompt type is required")
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	values := map[string]string{keyName: name, keySystem: text}
	if c.cfg.SystemFile != "" {
		onDisk, err := readTable(c.cfg.SystemFile)
		if err != nil {
			return fmt.Errorf("load prompt file %s: %w", c.cfg.SystemFile, err)
		}
		onDisk.set(promptType, values)
		if err := writeTable(c.cfg.SystemFile, onDisk); err != nil {
			return fmt.Errorf("write prompt file %s: %w", c.cfg.SystemFile, err)
		}
	}
	next := c.system.clone()
	next.set(promptType, values)
	c.system = next
	return nil
}

// Files lists the catalog files, including include matches, for watching.
func (c *Catalog) Files() []string {
	var files []string
	for _, f := range []string{c.cfg.SystemFile, c.cfg.ImplicitFile, c.cfg.WelcomeFile} {
		if f != "" {
			files = append(files, f)
		}
	}
	for _, pattern := range c.cfg.Include {
		matches, err := doublestar.FilepathGlob(pattern)
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}
	return files
}
