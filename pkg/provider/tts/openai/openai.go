// Package openai provides a TTS provider backed by the OpenAI speech API.
//
// Synthesis requests raw PCM output (16-bit little-endian mono at 24 kHz), so
// no container stripping is required. The API has no voice-listing endpoint;
// ListVoices returns the documented static catalogue.
package openai

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/soven-tech/soven-server/pkg/provider/tts"
)

// DefaultModel is the default OpenAI speech model.
const DefaultModel = oai.SpeechModelTTS1

// DefaultVoice is used when the requested voice has no speaker set.
const DefaultVoice = string(oai.AudioSpeechNewParamsVoiceAlloy)

// SampleRate is the fixed rate of PCM responses from the speech API.
const SampleRate = 24000

// Ensure Provider implements the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

// Provider implements tts.Provider using the OpenAI speech API.
type Provider struct {
	client oai.Client
	model  string
}

// config holds optional configuration for the provider.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Provider.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// New constructs a new OpenAI speech Provider.
// If model is empty, DefaultModel (tts-1) is used.
func New(apiKey string, model string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai tts: apiKey must not be empty")
	}
	if model == "" {
		model = DefaultModel
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	return &Provider{
		client: oai.NewClient(reqOpts...),
		model:  model,
	}, nil
}

// Synthesize converts text into raw 16-bit PCM at 24 kHz. The voice's Speaker
// field selects the OpenAI voice name; an empty Speaker falls back to
// DefaultVoice. An empty text returns empty PCM without calling the API.
func (p *Provider) Synthesize(ctx context.Context, text string, voice tts.Voice) ([]byte, error) {
	if text == "" {
		return nil, nil
	}

	speaker := voice.Speaker
	if speaker == "" {
		speaker = DefaultVoice
	}
	model := p.model
	if voice.Model != "" {
		model = voice.Model
	}

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          model,
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(speaker),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatPCM,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: speech request: %w", err)
	}
	defer resp.Body.Close()

	pcm, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read speech response: %w", err)
	}
	return pcm, nil
}

// ListVoices returns the static catalogue of OpenAI speech voices. The API
// exposes no listing endpoint, so the list tracks the published voice names.
func (p *Provider) ListVoices(_ context.Context) ([]tts.Voice, error) {
	names := []string{
		string(oai.AudioSpeechNewParamsVoiceAlloy),
		string(oai.AudioSpeechNewParamsVoiceAsh),
		string(oai.AudioSpeechNewParamsVoiceCoral),
		string(oai.AudioSpeechNewParamsVoiceEcho),
		// Fable, nova, and onyx are still published OpenAI voices but their
		// constants were dropped from openai-go v1.12.0, the minimum version
		// the dependency graph allows.
		"fable",
		"nova",
		"onyx",
		string(oai.AudioSpeechNewParamsVoiceSage),
		string(oai.AudioSpeechNewParamsVoiceShimmer),
	}
	voices := make([]tts.Voice, 0, len(names))
	for _, name := range names {
		voices = append(voices, tts.Voice{
			Model:   p.model,
			Speaker: name,
			Metadata: map[string]string{
				"type": "preset",
			},
		})
	}
	return voices, nil
}
