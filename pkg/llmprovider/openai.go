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

const openAIBaseURL = "https://api.openai.com/v1"

// OpenAIProvider implements Provider against OpenAI's chat completions
// API, which ChatRequest is already shaped to match.
type OpenAIProvider struct {
	config ProviderConfig
	client *http.Client
}

// NewOpenAIProvider creates an OpenAI connector.
func NewOpenAIProvider(cfg ProviderConfig) *OpenAIProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = openAIBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 120 * time.Second
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 2
	}
	return &OpenAIProvider{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}
}

func (p *OpenAIProvider) Name() string { return "openai" }

func (p *OpenAIProvider) Models() []string {
	if len(p.config.Models) > 0 {
		return p.config.Models
	}
	return []string{"gpt-4o", "gpt-4o-mini", "gpt-4-turbo", "gpt-4", "o1", "o1-mini"}
}

type openAIMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type openAIResponseFormat struct {
	Type       string          `json:"type"`
	JSONSchema json.RawMessage `json:"json_schema,omitempty"`
}

type openAIRequest struct {
	Model          string                `json:"model"`
	Messages       []openAIMessage       `json:"messages"`
	Temperature    *float64              `json:"temperature,omitempty"`
	MaxTokens      *int                  `json:"max_tokens,omitempty"`
	TopP           *float64              `json:"top_p,omitempty"`
	ResponseFormat *openAIResponseFormat `json:"response_format,omitempty"`
	Stream         bool                  `json:"stream,omitempty"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

type openAIStreamChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
		FinishReason *string `json:"finish_reason"`
	} `json:"choices"`
}

func (p *OpenAIProvider) convertRequest(req ChatRequest, stream bool) openAIRequest {
	out := openAIRequest{
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		TopP:        req.TopP,
		Stream:      stream,
	}
	for _, m := range req.Messages {
		out.Messages = append(out.Messages, openAIMessage{Role: m.Role, Content: convertContentToOpenAI(m.Content)})
	}
	if req.ResponseFormat != nil {
		out.ResponseFormat = &openAIResponseFormat{Type: req.ResponseFormat.Type, JSONSchema: req.ResponseFormat.Schema}
	}
	return out
}

// convertContentToOpenAI passes plain string content through unchanged and
// converts []ContentPart into OpenAI's image_url content-part shape.
func convertContentToOpenAI(content any) any {
	parts, ok := content.([]ContentPart)
	if !ok {
		return content
	}

	out := make([]map[string]any, 0, len(parts))
	for _, part := range parts {
		switch part.Type {
		case "image":
			out = append(out, map[string]any{
				"type":      "image_url",
				"image_url": map[string]string{"url": "data:image/png;base64," + part.ImageData},
			})
		default:
			out = append(out, map[string]any{"type": "text", "text": part.Text})
		}
	}
	return out
}

func (p *OpenAIProvider) setHeaders(r *http.Request) {
	r.Header.Set("Authorization", "Bearer "+p.config.APIKey)
	r.Header.Set("Content-Type", "application/json")
}

func (p *OpenAIProvider) ChatCompletion(ctx context.Context, req ChatRequest) (ChatResponse, error) {
	body, err := json.Marshal(p.convertRequest(req, false))
	if err != nil {
		return ChatResponse{}, fmt.Errorf("marshalling OpenAI request: %w", err)
	}

	resp, err := doWithRetry(ctx, p.client, p.config.MaxRetries, func() (*http.Request, error) {
		r, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		p.setHeaders(r)
		return r, nil
	})
	if err != nil {
		return ChatResponse{}, fmt.Errorf("calling OpenAI: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return ChatResponse{}, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var oResp openAIResponse
	if err := json.NewDecoder(resp.Body).Decode(&oResp); err != nil {
		return ChatResponse{}, fmt.Errorf("decoding OpenAI response: %w", err)
	}
	if len(oResp.Choices) == 0 {
		return ChatResponse{}, fmt.Errorf("openai response had no choices")
	}

	return ChatResponse{
		Content:      oResp.Choices[0].Message.Content,
		FinishReason: oResp.Choices[0].FinishReason,
		Usage:        Usage{InputTokens: oResp.Usage.PromptTokens, OutputTokens: oResp.Usage.CompletionTokens},
	}, nil
}

func (p *OpenAIProvider) ChatCompletionStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, error) {
	body, err := json.Marshal(p.convertRequest(req, true))
	if err != nil {
		return nil, fmt.Errorf("marshalling OpenAI request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.config.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating OpenAI request: %w", err)
	}
	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling OpenAI: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	out := make(chan StreamChunk)
	go streamOpenAISSE(resp.Body, out)
	return out, nil
}

func streamOpenAISSE(body io.ReadCloser, out chan<- StreamChunk) {
	defer body.Close()
	defer close(out)

	scanner := bufio.NewScanner(body)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			out <- StreamChunk{Done: true}
			return
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if text := chunk.Choices[0].Delta.Content; text != "" {
			out <- StreamChunk{Text: text}
		}
	}
	if err := scanner.Err(); err != nil {
		out <- StreamChunk{Err: err}
		return
	}
	out <- StreamChunk{Done: true}
}
