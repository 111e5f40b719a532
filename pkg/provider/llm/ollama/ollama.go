// Package ollama provides an llm.Provider backed by a local Ollama server.
//
// It speaks the /api/chat JSON contract directly: a request carrying model,
// messages, and stream:false, answered with a 200 status and a single JSON
// body. This is the default generation backend for an appliance fleet served
// from the same host or LAN segment as the Ollama instance.
//
// Usage:
//
//	p, err := ollama.New("llama3.2:1b",
//	    ollama.WithBaseURL("http://localhost:11434"),
//	    ollama.WithTimeout(30*time.Second),
//	)
//	resp, err := p.Complete(ctx, req)
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/soven-tech/soven-server/pkg/provider/llm"
)

const (
	defaultBaseURL = "http://localhost:11434"
	defaultTimeout = 30 * time.Second
	chatEndpoint   = "/api/chat"
)

// Compile-time assertion that Provider implements llm.Provider.
var _ llm.Provider = (*Provider)(nil)

// Option is a functional option for configuring a Provider.
type Option func(*Provider)

// WithBaseURL overrides the Ollama server address.
// Defaults to "http://localhost:11434".
func WithBaseURL(url string) Option {
	return func(p *Provider) { p.baseURL = strings.TrimRight(url, "/") }
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 30 s.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) { p.httpClient.Timeout = d }
}

// WithFormat requests a constrained output format from the server.
// The only value Ollama currently honours is "json".
func WithFormat(format string) Option {
	return func(p *Provider) { p.format = format }
}

// Provider implements llm.Provider against an Ollama /api/chat endpoint.
// It is safe for concurrent use.
type Provider struct {
	baseURL    string
	model      string
	format     string
	httpClient *http.Client
}

// New creates a Provider for the given model name (e.g., "llama3.2:1b").
func New(model string, opts ...Option) (*Provider, error) {
	if model == "" {
		return nil, errors.New("ollama: model must not be empty")
	}
	p := &Provider{
		baseURL:    defaultBaseURL,
		model:      model,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// ---- wire types -------------------------------------------------------------

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Format   string        `json:"format,omitempty"`
}

type chatResponse struct {
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done bool `json:"done"`
}

// Complete sends a single non-streaming chat request and returns the reply.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	messages := make([]llm.Message, 0, len(req.Messages)+1)
	if req.SystemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, req.Messages...)
	if len(messages) == 0 {
		return nil, errors.New("ollama: request has no messages")
	}

	body, err := json.Marshal(chatRequest{
		Model:    p.model,
		Messages: messages,
		Stream:   false,
		Format:   p.format,
	})
	if err != nil {
		return nil, fmt.Errorf("ollama: marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+chatEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("ollama: create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ollama: http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("ollama: server returned HTTP %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ollama: read response body: %w", err)
	}

	var cr chatResponse
	if err := json.Unmarshal(data, &cr); err != nil {
		return nil, fmt.Errorf("ollama: parse JSON response: %w", err)
	}

	return &llm.CompletionResponse{Content: cr.Message.Content}, nil
}
