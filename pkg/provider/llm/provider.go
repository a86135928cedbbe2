// Package llm defines the Provider interface for chat-completion backends.
//
// A provider wraps a remote or local model API (e.g. OpenAI, Anthropic via
// any-llm, or a local Ollama instance) and exposes the one call the dispatch
// engine needs: submit a system prompt, conversation, and tool schema set;
// get back text and/or tool calls. Token accounting for request assembly is
// handled by pkg/tokens before a request is built, so providers do not
// estimate budgets themselves.
//
// Implementations must be safe for concurrent use.
package llm

import "context"

// Usage holds token accounting returned by the backend. Counts are in the
// model's native token unit and may differ between providers for the same
// text.
type Usage struct {
	// PromptTokens is the number of tokens consumed by the input messages,
	// system prompt, and tool schemas.
	PromptTokens int

	// CompletionTokens is the number of tokens generated in the response.
	CompletionTokens int

	// TotalTokens is PromptTokens + CompletionTokens.
	TotalTokens int
}

// CompletionRequest carries everything the model needs to produce a
// response. At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the
	// conversation. Providers without a dedicated system field prepend it as
	// a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The last message is typically
	// the "user" prompt driving the response.
	Messages []Message

	// Tools is the set of function schemas offered to the model. The model
	// may respond with zero, one, or several calls into this set.
	Tools []ToolDefinition

	// MaxTokens caps completion length. Zero means provider default.
	MaxTokens int

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64
}

// CompletionResponse is the full (non-streaming) model reply.
type CompletionResponse struct {
	// Content is the assistant's text. Empty when the model responds
	// exclusively with tool calls.
	Content string

	// ToolCalls lists the invocations the model requested, in response
	// order. The caller decodes and executes them.
	ToolCalls []ToolCall

	// Usage contains token accounting for this request/response pair.
	Usage Usage
}

// Provider is the abstraction over any chat-completion backend.
//
// Implementations must be safe for concurrent use and should propagate
// context cancellation promptly.
type Provider interface {
	// Complete sends req and waits for the full response. Returns an error
	// if the request fails or ctx is cancelled first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// ModelID returns the backend model identifier (e.g.
	// "gpt-4-1106-preview"), for logging and telemetry.
	ModelID() string
}
