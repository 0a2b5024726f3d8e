package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/chatrelay/chatrelay/internal/logging"
)

// ErrEmptyCompletion is returned when the model produced no text.
var ErrEmptyCompletion = errors.New("completion returned no text")

// ChatCompleter implements Completer with a single Generate call on an Eino
// chat model. Web search is never declared as a function tool: it is either
// hosted by the model itself or not available.
type ChatCompleter struct {
	chatModel model.ToolCallingChatModel
	webSearch bool
	opts      []model.Option
}

var _ Completer = (*ChatCompleter)(nil)

// NewChatCompleter wraps chatModel. hostsWebSearch marks a model that runs
// web search on the provider side. opts are passed to every Generate call.
func NewChatCompleter(chatModel model.ToolCallingChatModel, hostsWebSearch bool, opts ...model.Option) *ChatCompleter {
	return &ChatCompleter{chatModel: chatModel, webSearch: hostsWebSearch, opts: opts}
}

// HostsWebSearch reports whether requests with WebSearch set are searched.
func (c *ChatCompleter) HostsWebSearch() bool { return c.webSearch }

// Complete sends req.Input as one user message and returns the text output.
func (c *ChatCompleter) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if req.WebSearch && !c.webSearch {
		logging.Debug().Msg("model has no hosted web search, answering without it")
	}

	msg, err := c.chatModel.Generate(ctx, []*schema.Message{schema.UserMessage(req.Input)}, c.opts...)
	if err != nil {
		return "", fmt.Errorf("generate: %w", err)
	}
	if msg == nil || strings.TrimSpace(msg.Content) == "" {
		if msg != nil && len(msg.ToolCalls) > 0 {
			return "", fmt.Errorf("%w: model requested local tool %q", ErrEmptyCompletion, msg.ToolCalls[0].Function.Name)
		}
		return "", ErrEmptyCompletion
	}
	return msg.Content, nil
}
