// Package llmprovider implements a small provider-agnostic client for LLM
// chat completion, with connectors for OpenAI-compatible and Anthropic
// Messages API backends, a registry that resolves a model name to its
// connector, and a pricing table used to compute SPU cost from token
// usage.
package llmprovider

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ContentPart is one piece of a multimodal message: either text or an
// inline image. Image data is base64-encoded PNG; each connector encodes
// it into the wire format its API expects.
type ContentPart struct {
	Type      string `json:"type"` // "text" or "image"
	Text      string `json:"text,omitempty"`
	ImageData string `json:"image_data,omitempty"`
}

// ChatMessage is a single message in a chat completion request. Content is
// either a plain string or a []ContentPart for multimodal input.
type ChatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

// ResponseFormat constrains how the model must structure its reply.
type ResponseFormat struct {
	Type   string `json:"type"` // "text", "json_object", or "json_schema"
	Schema []byte `json:"schema,omitempty"`
}

// ChatRequest is a provider-agnostic chat completion request.
type ChatRequest struct {
	Model          string
	Messages       []ChatMessage
	Temperature    *float64
	MaxTokens      *int
	TopP           *float64
	ResponseFormat *ResponseFormat
}

// Usage is token accounting for a single completion.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatResponse is a provider-agnostic chat completion response.
type ChatResponse struct {
	Content      string
	FinishReason string
	Usage        Usage
}

// StreamChunk is one increment of a streaming chat completion. The stream
// ends with either Done=true or a non-nil Err.
type StreamChunk struct {
	Text string
	Done bool
	Err  error
}

// Provider is implemented by each backend connector.
type Provider interface {
	// Name returns the provider identifier ("openai", "anthropic").
	Name() string
	// Models lists the model names this connector serves.
	Models() []string
	// ChatCompletion sends a non-streaming chat completion request.
	ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error)
	// ChatCompletionStream sends a streaming request. The returned channel
	// is closed once a terminal StreamChunk (Done or Err) has been sent.
	ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error)
}

// ProviderConfig configures a connector's HTTP transport.
type ProviderConfig struct {
	BaseURL    string
	APIKey     string
	Models     []string
	Timeout    time.Duration
	MaxRetries int
}

// Registry resolves a model name to the Provider that serves it.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

// Register adds a connector, keyed by its Name().
func (r *Registry) Register(p Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[p.Name()] = p
}

// Get returns a connector by provider name.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// GetForModel resolves model to its connector via DetectProvider.
func (r *Registry) GetForModel(model string) (Provider, error) {
	name := DetectProvider(model)
	if name == "" {
		return nil, fmt.Errorf("no provider recognizes model %q", model)
	}
	p, ok := r.Get(name)
	if !ok {
		return nil, fmt.Errorf("model %q maps to provider %q, which is not registered", model, name)
	}
	return p, nil
}

// EnabledModels returns every model every registered connector serves, the
// union run_llm_chat validates its model parameter against.
func (r *Registry) EnabledModels() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var models []string
	for _, p := range r.providers {
		models = append(models, p.Models()...)
	}
	return models
}

// DetectProvider maps a model name to a provider name by substring match on
// the lowercased name, following the gateway's routing convention.
func DetectProvider(model string) string {
	m := strings.ToLower(model)
	switch {
	case strings.Contains(m, "claude"):
		return "anthropic"
	case strings.Contains(m, "gpt"), strings.Contains(m, "o1"), strings.Contains(m, "o3"):
		return "openai"
	default:
		return ""
	}
}
