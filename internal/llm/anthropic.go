package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/httpclient"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	anthropicDefaultMax = 4096
)

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// anthropicProvider implements Provider against the Anthropic Messages API,
// non-streaming.
type anthropicProvider struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
}

func NewAnthropicProvider(cfg AnthropicConfig) (*anthropicProvider, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "anthropic API key is required", nil)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &anthropicProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithHeaderParser(httpclient.ParseAnthropicRateLimitHeaders),
		),
	}, nil
}

func (p *anthropicProvider) Name() string { return "anthropic" }

func (p *anthropicProvider) Close() error { return nil }

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string              `json:"model"`
	MaxTokens   int                 `json:"max_tokens"`
	Temperature float64             `json:"temperature,omitempty"`
	System      string              `json:"system,omitempty"`
	Messages    []anthropicMessage  `json:"messages"`
	Tools       []anthropicToolSpec `json:"tools,omitempty"`
}

type anthropicToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicContentBlock struct {
	Type  string         `json:"type"`
	Text  string         `json:"text,omitempty"`
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`
}

type anthropicResponse struct {
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *anthropicProvider) GenerateContent(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		body := anthropicRequest{
			Model:       req.Model,
			MaxTokens:   maxTokensOr(req.Config.MaxTokens, anthropicDefaultMax),
			Temperature: req.Config.Temperature,
			System:      req.SystemInstruction,
		}
		for _, m := range req.Messages {
			if m.Role == RoleSystem {
				continue
			}
			body.Messages = append(body.Messages, anthropicMessage{Role: string(m.Role), Content: m.Content})
		}
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, anthropicToolSpec{Name: t.Name, Description: t.Description, InputSchema: t.InputSchema})
		}

		payload, err := json.Marshal(body)
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "encoding anthropic request", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "building anthropic request", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("x-api-key", p.apiKey)
		httpReq.Header.Set("anthropic-version", anthropicAPIVersion)

		httpResp, err := p.http.Do(httpReq)
		if err != nil {
			yield(nil, classifyAnthropicError(err))
			return
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "reading anthropic response", err))
			return
		}

		var parsed anthropicResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			yield(nil, apperr.New(apperr.KindMCPMalformed, "decoding anthropic response", err))
			return
		}
		if parsed.Error != nil {
			yield(nil, apperr.New(apperr.KindProviderUnavailable, parsed.Error.Message, nil))
			return
		}

		resp := &Response{Usage: &Usage{PromptTokens: parsed.Usage.InputTokens, CompletionTokens: parsed.Usage.OutputTokens}}
		for _, block := range parsed.Content {
			switch block.Type {
			case "text":
				resp.Content += block.Text
			case "tool_use":
				resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: block.ID, Name: block.Name, Arguments: block.Input})
			}
		}
		if len(resp.ToolCalls) > 0 {
			resp.FinishReason = FinishToolCalls
		} else {
			resp.FinishReason = FinishStop
		}

		yield(resp, nil)
	}
}

func maxTokensOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func classifyAnthropicError(err error) error {
	var retryable *httpclient.RetryableError
	if isRetryableError(err, &retryable) {
		switch retryable.StatusCode {
		case http.StatusTooManyRequests:
			return apperr.New(apperr.KindProviderRateLimit, "anthropic rate limited", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.New(apperr.KindProviderAuth, "anthropic authentication failed", err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return apperr.New(apperr.KindProviderTimeout, "anthropic request timed out", err)
		default:
			return apperr.New(apperr.KindProviderUnavailable, fmt.Sprintf("anthropic request failed (status %d)", retryable.StatusCode), err)
		}
	}
	return apperr.New(apperr.KindProviderUnavailable, "anthropic request failed", err)
}
