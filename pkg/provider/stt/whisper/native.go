// This file contains the NativeProvider implementation backed by the
// whisper.cpp CGO bindings. The whisper.cpp static library (libwhisper.a)
// and headers (whisper.h) must be available at link time via LIBRARY_PATH
// and C_INCLUDE_PATH environment variables.

package whisper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	whisperlib "github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"

	"github.com/soven-tech/soven-server/pkg/provider/stt"
)

// Compile-time assertion that NativeProvider satisfies stt.Provider.
var _ stt.Provider = (*NativeProvider)(nil)

// NativeOption is a functional option for configuring a NativeProvider.
type NativeOption func(*NativeProvider)

// WithNativeLanguage sets the BCP-47 language code for transcription
// (e.g., "en", "de", "fr"). Defaults to "en".
func WithNativeLanguage(lang string) NativeOption {
	return func(p *NativeProvider) { p.language = lang }
}

// NativeProvider implements stt.Provider using the whisper.cpp Go bindings.
//
// The model file is expensive to load, so loading is deferred until the first
// Transcribe call and guarded by sync.Once: concurrent sessions hitting a cold
// provider trigger exactly one load, and every later call reuses the shared
// model. Each inference uses a fresh whisper context — contexts are not
// thread-safe, but the model is.
type NativeProvider struct {
	modelPath string
	language  string

	loadOnce sync.Once
	loadErr  error
	model    whisperlib.Model
}

// NewNative creates a NativeProvider for the whisper.cpp model at modelPath.
// The model file is not touched until the first Transcribe call. The caller
// must call Close when the provider is no longer needed.
func NewNative(modelPath string, opts ...NativeOption) (*NativeProvider, error) {
	if modelPath == "" {
		return nil, errors.New("whisper: modelPath must not be empty")
	}
	p := &NativeProvider{
		modelPath: modelPath,
		language:  defaultLanguage,
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// Close releases the whisper model if it was loaded.
func (p *NativeProvider) Close() error {
	if p.model != nil {
		return p.model.Close()
	}
	return nil
}

// Transcribe runs whisper.cpp inference on the given normalized mono samples
// and returns the concatenated segment text.
func (p *NativeProvider) Transcribe(ctx context.Context, samples []float32, language string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("whisper: context cancelled: %w", err)
	}
	if len(samples) == 0 {
		return "", nil
	}
	if language == "" {
		language = p.language
	}

	p.loadOnce.Do(func() {
		model, err := whisperlib.New(p.modelPath)
		if err != nil {
			p.loadErr = fmt.Errorf("whisper: load model %q: %w", p.modelPath, err)
			return
		}
		p.model = model
	})
	if p.loadErr != nil {
		return "", p.loadErr
	}

	wctx, err := p.model.NewContext()
	if err != nil {
		return "", fmt.Errorf("whisper: create context: %w", err)
	}
	if err := wctx.SetLanguage(language); err != nil {
		return "", fmt.Errorf("whisper: set language %q: %w", language, err)
	}

	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return "", fmt.Errorf("whisper: process audio: %w", err)
	}

	var parts []string
	for {
		segment, err := wctx.NextSegment()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return "", fmt.Errorf("whisper: read segment: %w", err)
		}
		text := strings.TrimSpace(segment.Text)
		if text != "" {
			parts = append(parts, text)
		}
	}

	return strings.Join(parts, " "), nil
}
