// Package provider is the boundary to the hosted LLM service.
//
// Two capabilities are exposed to the dispatcher:
//
//   - ThreadClient: provider-side threads, transient instructed agents and
//     runs. AssistantsClient implements it on the OpenAI Assistants API
//     (github.com/sashabaranov/go-openai).
//   - Completer: a stateless single-call completion that may ask for
//     provider-hosted web search. ChatCompleter implements it on any Eino
//     ToolCallingChatModel. Search runs on the provider side (OpenAI search
//     models such as gpt-4o-search-preview); models without hosted search
//     answer from their own knowledge.
//
// Chat models are built per provider (OpenAI, Anthropic Claude and
// Volcengine ARK) and collected in a Registry:
//
//	registry := provider.InitializeProviders(ctx, cfg)
//	p, err := registry.Get("openai")
//	completer := provider.NewChatCompleter(p.ChatModel(), p.HostsWebSearch())
//
// When no API key is configured, Unavailable stands in for both interfaces
// and fails every call with ErrNotConfigured, so the server can still start.
package provider
