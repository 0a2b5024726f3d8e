package dispatch

import (
	"strings"

	"github.com/chatrelay/chatrelay/pkg/types"
)

const searchInstruction = "Please answer accurately based on the conversation history above and the current question. " +
	"If up-to-date information is needed, use the search capability."

// BuildSearchContext flattens a search-mode turn into one input string, one
// part per line: the system prompt, the history turns labelled by role, the
// current message and the closing instruction.
func BuildSearchContext(systemPrompt string, history []types.Message, current string) string {
	parts := make([]string, 0, len(history)+4)
	if systemPrompt != "" {
		parts = append(parts, "System role: "+systemPrompt)
	}
	if len(history) > 0 {
		parts = append(parts, "Conversation history:")
		for _, m := range history {
			switch m.Role {
			case types.RoleUser:
				parts = append(parts, "User: "+m.Content)
			case types.RoleAssistant:
				parts = append(parts, "Assistant: "+m.Content)
			}
		}
	}
	parts = append(parts, "\nCurrent user question: "+current)
	parts = append(parts, "\n"+searchInstruction)
	return strings.Join(parts, "\n")
}
