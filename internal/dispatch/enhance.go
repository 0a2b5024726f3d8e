package dispatch

import "github.com/chatrelay/chatrelay/pkg/types"

// Implicit prompt categories.
const (
	CategoryNoSystem = "nosystem"
	CategorySearch   = "search"
	CategoryNormal   = "normal"
)

// implicitSeparator joins the raw message and its implicit guidance.
const implicitSeparator = "\n\n[implicit guidance]: "

// ImplicitResolver supplies implicit prompt text by category.
type ImplicitResolver interface {
	ImplicitPrompt(category string) string
}

// ResolveImplicitCategory picks the implicit prompt category for sess. The
// nosystem prompt type wins over the mode.
func ResolveImplicitCategory(sess *types.Session) string {
	switch {
	case sess.PromptType == CategoryNoSystem:
		return CategoryNoSystem
	case sess.Mode == types.ModeSearch:
		return CategorySearch
	default:
		return CategoryNormal
	}
}

// Enhance appends the implicit prompt for the session's category to raw.
// raw is returned unchanged when that prompt is empty. The result is only
// sent to the provider; sessions store raw.
func Enhance(raw string, sess *types.Session, prompts ImplicitResolver) string {
	implicit := prompts.ImplicitPrompt(ResolveImplicitCategory(sess))
	if implicit == "" {
		return raw
	}
	return raw + implicitSeparator + implicit
}
