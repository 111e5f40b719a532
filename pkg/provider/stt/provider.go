// Package stt defines the Provider interface for speech-to-text backends.
//
// The device session submits one complete utterance at a time, so the
// interface is batch-shaped: normalized float32 mono samples in, transcript
// text out. Streaming partials are deliberately out of scope — the wake-word
// gate only ever runs on a finished utterance.
//
// Implementations must be safe for concurrent use; a single provider instance
// is shared by every active device session.
package stt

import "context"

// Provider is the abstraction over any speech-to-text backend.
//
// Transcribe converts one utterance of normalized mono samples (range [-1, 1],
// at the sample rate the provider was configured with) into plain text.
// language is a BCP-47 hint ("en", "de"); an empty string uses the provider
// default. Errors never carry partial text — on error the transcript is
// discarded by the caller.
type Provider interface {
	Transcribe(ctx context.Context, samples []float32, language string) (string, error)
}
