// Package mock provides a test double for the stt.Provider interface.
//
// Use Provider to return controlled transcripts and to inspect which samples
// and language hints were submitted.
//
// Example:
//
//	p := &mock.Provider{TranscribeResult: "hey frank start brewing"}
//	text, err := p.Transcribe(ctx, samples, "en")
package mock

import (
	"context"
	"sync"

	"github.com/soven-tech/soven-server/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Samples is a copy of the sample slice passed to Transcribe.
	Samples []float32
	// Language is the language hint passed to Transcribe.
	Language string
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is the transcript returned by Transcribe.
	TranscribeResult string

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// TranscribeCalls records every call to Transcribe.
	TranscribeCalls []TranscribeCall
}

// Ensure Provider implements stt.Provider at compile time.
var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns TranscribeResult, TranscribeErr.
func (p *Provider) Transcribe(_ context.Context, samples []float32, language string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]float32, len(samples))
	copy(cp, samples)
	p.TranscribeCalls = append(p.TranscribeCalls, TranscribeCall{Samples: cp, Language: language})
	if p.TranscribeErr != nil {
		return "", p.TranscribeErr
	}
	return p.TranscribeResult, nil
}

// Calls returns a copy of all recorded Transcribe calls. Thread-safe.
func (p *Provider) Calls() []TranscribeCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]TranscribeCall, len(p.TranscribeCalls))
	copy(out, p.TranscribeCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = nil
}
