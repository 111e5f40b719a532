// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., a local Coqui server
// or the OpenAI speech API) and presents a uniform batch interface. The session
// synthesises one finished reply at a time, so Synthesize takes the full reply
// text and returns the complete PCM payload; chunking for delivery happens in
// the session layer.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Voice identifies the voice a provider should synthesise with.
type Voice struct {
	// Model is the provider-specific model identifier (e.g., a Coqui VCTK
	// model name or an OpenAI speech model). Empty means the provider default.
	Model string

	// Speaker is the speaker identifier within the model (e.g., "p297" for a
	// VCTK multi-speaker model, or an OpenAI voice name).
	Speaker string

	// Metadata holds provider-specific voice attributes (gender, age, accent, etc.).
	Metadata map[string]string
}

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize converts text into raw 16-bit little-endian mono PCM at the
	// provider's configured sample rate. The full payload is returned in one
	// slice; callers chunk it for delivery.
	//
	// Returns an error if the backend cannot be reached, rejects the request,
	// or ctx is cancelled.
	Synthesize(ctx context.Context, text string, voice Voice) ([]byte, error)

	// ListVoices returns all voices available from this provider. The list
	// reflects the provider's current catalogue and may change between calls
	// if the underlying service adds or removes voices.
	ListVoices(ctx context.Context) ([]Voice, error)
}
