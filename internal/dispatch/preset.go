package dispatch

import (
	"sort"

	"github.com/chatrelay/chatrelay/internal/prompt"
	"github.com/chatrelay/chatrelay/pkg/types"
)

// Preset is a fixed interface entry point: a prompt type paired with a mode.
// Its Name also selects the welcome message.
type Preset struct {
	Name       string
	PromptType string
	Mode       types.Mode
}

var presets = map[string]Preset{
	"default":  {Name: "default", PromptType: prompt.DefaultKey, Mode: types.ModeNormal},
	"search":   {Name: "search", PromptType: "research_assistant", Mode: types.ModeSearch},
	"nosystem": {Name: "nosystem", PromptType: "nosystem", Mode: types.ModeNormal},
}

// LookupPreset returns the preset called name.
func LookupPreset(name string) (Preset, bool) {
	p, ok := presets[name]
	return p, ok
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
