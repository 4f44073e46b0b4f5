// Package llm provides the model provider clients used by the agent:
// Ollama, Anthropic and Google Gemini, plus a router that picks one by
// model name.
package llm

import "context"

// Client is the interface that all LLM providers must implement.
type Client interface {
	// Chat sends a chat completion request and returns the response.
	// Tools may be nil when the model should answer directly.
	Chat(ctx context.Context, model string, messages []Message, tools []ToolDef) (*ChatResponse, error)

	// Ping checks if the provider is reachable.
	Ping(ctx context.Context) error
}
