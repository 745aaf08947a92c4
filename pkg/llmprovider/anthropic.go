package llmprovider

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion = "2023-06-01"
)

// AnthropicProvider implements Provider against Anthropic's Messages API,
// translating ChatRequest's OpenAI-shaped fields (system role folded into
// a top-level field, messages array) on the way in and out.
type AnthropicProvider struct {
	config ProviderConfig
	client *http.Client
}

// NewAnthropicProvider creates an Anthropic connector.
func NewAnthropicProvider(cfg ProviderConfig) *AnthropicProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = anthropicBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &AnthropicProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *AnthropicProvider) Name() string { return "anthropic" }

func (p *AnthropicProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{
		"claude-3-5-sonnet-20241022", "claude-3-5-haiku-20241022",
		"claude-3-opus-20240229", "claude-3-sonnet-20240229", "claude-3-haiku-20240307",
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	Messages    []anthropicMessage `json:"messages"`
	System      string             `json:"system,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	TopP        *float64           `json:"top_p,omitempty"`
	Stream      bool               `json:"stream,omitempty"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type anthropicStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

const defaultMaxTokens = 4096

func (p *AnthropicProvider) convertRequest(req ChatRequest, stream bool) anthropicRequest {
	out := anthropicRequest{
		Model:       req.Model,
		MaxTokens:   defaultMaxTokens,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		Stream:      stream,
	}
	if req.MaxTokens != nil {
		out.MaxTokens = *req.MaxTokens
	}

	for _, m := range req.Messages {
		if m.Role == "system" {
			if s, ok := m.Content.(string); ok {
				out.System = s
			}
			continue
		}
		out.Messages = append(out.Messages, anthropicMessage{Role: m.Role, Content: convertContentToAnthropic(m.Content)})
	}
	return out
}

// convertContentToAnthropic passes plain string content through unchanged
// and converts []ContentPart into Anthropic's image source-block shape.
func convertContentToAnthropic(content any) any {
	parts, ok := content.([]ContentPart)
	if !ok {
		return content
	}

	out := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case "image":
			out = append(out, map[string]any{
				"type": "image",
				"source": map[string]string{
					"type":       "base64",
					"media_type": "image/png",
					"data":       part.ImageData,
				},
			})
		default:
			out = append(out, map[string]any{"type": "text", "text": part.Text})
		}
	}
	return out
}

func (p *AnthropicProvider) setHeaders(r *http.Request) {
	r.Header.Set("x-api-key", p.config.APIKey)
	r.Header.Set("anthropic-version", anthropicVersion)
	r.Header.Set("Content-Type", "application/json")
}

func (p *AnthropicProvider) ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(p.convertRequest(req, false))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshalling Anthropic request: %w", err)
	}

	resp, err := doWithRetry(ctx, p.client, p.config.MaxRetries, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		p.setHeaders(r)
		return r, nil
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("calling Anthropic: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return ChatResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var aResp anthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&aResp); err != nil {
		return ChatResponse{}, fmt.Errorf("decoding Anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range aResp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	return ChatResponse{
		Content:      text.String(),
		FinishReason: aResp.StopReason,
		Usage:        Usage{InputTokens: aResp.Usage.InputTokens, OutputTokens: aResp.Usage.OutputTokens},
	}, nil
}

func (p *AnthropicProvider) ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(p.convertRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshalling Anthropic request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/messages", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating Anthropic request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling Anthropic: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	out := make(chan StreamChunk)
	go streamAnthropicSSE(resp.Body, out)
	return out, nil
}

func streamAnthropicSSE(body io.ReadCloser, out chan<- StreamChunk) {
	defer body.Close()
	defer close(out)

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}

		var event anthropicStreamEvent
		if err := json.Unmarshal([]byte(data), &event); err != nil {
			continue
		}
		switch event.Type {
		case "content_block_delta":
			if event.Delta.Text != "" {
				out <- StreamChunk{Text: event.Delta.Text}
			}
		case "message_stop":
			out <- StreamChunk{Done: true}
			return
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Err: err}
		return
	}
	out <- StreamChunk{Done: true}
}
