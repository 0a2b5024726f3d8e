package provider

import (
	"context"
	"errors"

	"github.com/cloudwego/eino/components/model"
)

// ErrNotConfigured is returned by Unavailable for every remote call.
var ErrNotConfigured = errors.New("provider not configured")

// Provider represents an LLM provider with an Eino chat model.
type Provider interface {
	// ID returns the provider identifier.
	ID() string

	// Name returns the human-readable provider name.
	Name() string

	// ChatModel returns the Eino ChatModel for this provider.
	ChatModel() model.ToolCallingChatModel

	// HostsWebSearch reports whether the model searches the web on the
	// provider side. No search tool call ever reaches this process.
	HostsWebSearch() bool
}

// AgentSpec describes a transient instructed agent.
type AgentSpec struct {
	Model        string
	Name         string
	Instructions string
}

// Run is the polled state of a remote run.
type Run struct {
	ID     string
	Status string
	// LastError is the provider's failure message, if any.
	LastError string
}

// ThreadMessage is one message read back from a thread.
type ThreadMessage struct {
	ID   string
	Role string
	Text string
}

// ThreadClient is the stateful, thread-based conversation capability.
type ThreadClient interface {
	CreateThread(ctx context.Context) (string, error)
	DeleteThread(ctx context.Context, threadID string) error
	CreateAgent(ctx context.Context, spec AgentSpec) (string, error)
	DeleteAgent(ctx context.Context, agentID string) error
	PostMessage(ctx context.Context, threadID, content string) error
	StartRun(ctx context.Context, threadID, agentID string) (string, error)
	GetRun(ctx context.Context, threadID, runID string) (Run, error)
	// LatestMessage returns the newest message of the thread. ok is false
	// for an empty thread.
	LatestMessage(ctx context.Context, threadID string) (msg ThreadMessage, ok bool, err error)
}

// CompletionRequest is a single stateless completion call.
type CompletionRequest struct {
	Input string
	// WebSearch asks for provider-hosted web search. The provider runs the
	// search and returns only the final text.
	WebSearch bool
}

// Completer is the stateless single-call completion capability.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// Unavailable implements ThreadClient and Completer for a process started
// without provider credentials.
type Unavailable struct{}

var (
	_ ThreadClient = Unavailable{}
	_ Completer    = Unavailable{}
)

func (Unavailable) CreateThread(context.Context) (string, error)                { return "", ErrNotConfigured }
func (Unavailable) DeleteThread(context.Context, string) error                  { return ErrNotConfigured }
func (Unavailable) CreateAgent(context.Context, AgentSpec) (string, error)      { return "", ErrNotConfigured }
func (Unavailable) DeleteAgent(context.Context, string) error                   { return ErrNotConfigured }
func (Unavailable) PostMessage(context.Context, string, string) error           { return ErrNotConfigured }
func (Unavailable) StartRun(context.Context, string, string) (string, error)    { return "", ErrNotConfigured }
func (Unavailable) GetRun(context.Context, string, string) (Run, error)         { return Run{}, ErrNotConfigured }
func (Unavailable) Complete(context.Context, CompletionRequest) (string, error) { return "", ErrNotConfigured }
func (Unavailable) LatestMessage(context.Context, string) (ThreadMessage, bool, error) {
	return ThreadMessage{}, false, ErrNotConfigured
}
