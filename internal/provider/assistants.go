package provider

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// AssistantsConfig configures AssistantsClient.
type AssistantsConfig struct {
	APIKey  string
	BaseURL string
}

// AssistantsClient implements ThreadClient on the OpenAI Assistants API:
// threads, assistants (transient instructed agents), messages and runs.
type AssistantsClient struct {
	client *openai.Client
}

var _ ThreadClient = (*AssistantsClient)(nil)

// NewAssistantsClient creates a client. The key falls back to OPENAI_API_KEY.
func NewAssistantsClient(config AssistantsConfig) (*AssistantsClient, error) {
	apiKey := config.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set: %w", ErrNotConfigured)
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}
	return &AssistantsClient{client: openai.NewClientWithConfig(clientConfig)}, nil
}

// CreateThread opens an empty thread.
func (c *AssistantsClient) CreateThread(ctx context.Context) (string, error) {
	thread, err := c.client.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}
	return thread.ID, nil
}

// DeleteThread deletes a thread.
func (c *AssistantsClient) DeleteThread(ctx context.Context, threadID string) error {
	if _, err := c.client.DeleteThread(ctx, threadID); err != nil {
		return fmt.Errorf("delete thread %s: %w", threadID, err)
	}
	return nil
}

// CreateAgent creates an assistant carrying the given instructions.
func (c *AssistantsClient) CreateAgent(ctx context.Context, spec AgentSpec) (string, error) {
	req := openai.AssistantRequest{Model: spec.Model}
	if spec.Name != "" {
		req.Name = &spec.Name
	}
	if spec.Instructions != "" {
		req.Instructions = &spec.Instructions
	}
	assistant, err := c.client.CreateAssistant(ctx, req)
	if err != nil {
		return "", fmt.Errorf("create assistant: %w", err)
	}
	return assistant.ID, nil
}

// DeleteAgent deletes an assistant.
func (c *AssistantsClient) DeleteAgent(ctx context.Context, agentID string) error {
	if _, err := c.client.DeleteAssistant(ctx, agentID); err != nil {
		return fmt.Errorf("delete assistant %s: %w", agentID, err)
	}
	return nil
}

// PostMessage adds a user message to the thread.
func (c *AssistantsClient) PostMessage(ctx context.Context, threadID, content string) error {
	_, err := c.client.CreateMessage(ctx, threadID, openai.MessageRequest{
		Role:    openai.ChatMessageRoleUser,
		Content: content,
	})
	if err != nil {
		return fmt.Errorf("post message: %w", err)
	}
	return nil
}

// StartRun triggers a run of agentID over the thread.
func (c *AssistantsClient) StartRun(ctx context.Context, threadID, agentID string) (string, error) {
	run, err := c.client.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: agentID})
	if err != nil {
		return "", fmt.Errorf("create run: %w", err)
	}
	return run.ID, nil
}

// GetRun retrieves the current status of a run.
func (c *AssistantsClient) GetRun(ctx context.Context, threadID, runID string) (Run, error) {
	run, err := c.client.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return Run{}, fmt.Errorf("retrieve run %s: %w", runID, err)
	}
	out := Run{ID: run.ID, Status: string(run.Status)}
	if run.LastError != nil {
		out.LastError = run.LastError.Message
	}
	return out, nil
}

// LatestMessage returns the newest message in the thread with its text parts
// joined.
func (c *AssistantsClient) LatestMessage(ctx context.Context, threadID string) (ThreadMessage, bool, error) {
	limit := 1
	order := "desc"
	list, err := c.client.ListMessage(ctx, threadID, &limit, &order, nil, nil, nil)
	if err != nil {
		return ThreadMessage{}, false, fmt.Errorf("list messages: %w", err)
	}
	if len(list.Messages) == 0 {
		return ThreadMessage{}, false, nil
	}
	msg := list.Messages[0]
	var text strings.Builder
	for _, part := range msg.Content {
		if part.Text != nil {
			text.WriteString(part.Text.Value)
		}
	}
	return ThreadMessage{ID: msg.ID, Role: msg.Role, Text: text.String()}, true, nil
}
