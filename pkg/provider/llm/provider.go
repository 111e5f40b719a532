// Package llm defines the Provider interface for text-generation backends.
//
// A provider wraps a remote or local model API (a local Ollama server, OpenAI,
// Anthropic, …) and exposes a single-turn completion interface. The device
// session sends one system prompt plus the user's spoken command and expects
// one short reply; conversation history, tool calling, and streaming are
// deliberately not part of this boundary.
//
// Implementations must be safe for concurrent use and must propagate context
// cancellation promptly. Errors cross the boundary as plain error returns —
// the session controller, not the provider, decides what fallback text the
// device hears.
package llm

import "context"

// Message is one turn of a chat-style completion request.
type Message struct {
	// Role is "system", "user", or "assistant".
	Role string `json:"role"`

	// Content is the message text.
	Content string `json:"content"`
}

// CompletionRequest carries everything the model needs to produce a reply.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before Messages.
	// Providers without a dedicated system-prompt mechanism prepend it as a
	// "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation. The device session sends exactly
	// one "user" turn, but the type admits history for callers that keep it.
	Messages []Message
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the full text of the reply.
	Content string
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	// Returns an error if the request fails, the server responds with a
	// non-success status, or ctx expires first.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}
