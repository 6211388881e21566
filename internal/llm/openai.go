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

const openaiBaseURL = "https://api.openai.com"

// OpenAIConfig configures the OpenAI client.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// openaiProvider implements Provider against the Chat Completions API.
type openaiProvider struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
}

func NewOpenAIProvider(cfg OpenAIConfig) (*openaiProvider, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "openai API key is required", nil)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = openaiBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 120 * time.Second
	}

	return &openaiProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithHeaderParser(httpclient.ParseOpenAIRateLimitHeaders),
		),
	}, nil
}

func (p *openaiProvider) Name() string { return "openai" }

func (p *openaiProvider) Close() error { return nil }

type openaiChatMessage struct {
	Role       string           `json:"role"`
	Content    string           `json:"content,omitempty"`
	ToolCallID string           `json:"tool_call_id,omitempty"`
	ToolCalls  []openaiToolCall `json:"tool_calls,omitempty"`
}

type openaiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiTool struct {
	Type     string             `json:"type"`
	Function openaiToolFunction `json:"function"`
}

type openaiToolFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters"`
}

type openaiChatRequest struct {
	Model       string              `json:"model"`
	Messages    []openaiChatMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Tools       []openaiTool        `json:"tools,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message      openaiChatMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *openaiProvider) GenerateContent(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		body := openaiChatRequest{
			Model:       req.Model,
			Temperature: req.Config.Temperature,
			MaxTokens:   req.Config.MaxTokens,
		}
		if req.SystemInstruction != "" {
			body.Messages = append(body.Messages, openaiChatMessage{Role: "system", Content: req.SystemInstruction})
		}
		for _, m := range req.Messages {
			body.Messages = append(body.Messages, openaiChatMessage{
				Role:       string(m.Role),
				Content:    m.Content,
				ToolCallID: m.ToolCallID,
			})
		}
		for _, t := range req.Tools {
			body.Tools = append(body.Tools, openaiTool{
				Type: "function",
				Function: openaiToolFunction{
					Name:        t.Name,
					Description: t.Description,
					Parameters:  t.InputSchema,
				},
			})
		}

		payload, err := json.Marshal(body)
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "encoding openai request", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(payload))
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "building openai request", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

		httpResp, err := p.http.Do(httpReq)
		if err != nil {
			yield(nil, classifyOpenAIError(err))
			return
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "reading openai response", err))
			return
		}

		var parsed openaiChatResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			yield(nil, apperr.New(apperr.KindMCPMalformed, "decoding openai response", err))
			return
		}
		if parsed.Error != nil {
			yield(nil, apperr.New(apperr.KindProviderUnavailable, parsed.Error.Message, nil))
			return
		}
		if len(parsed.Choices) == 0 {
			yield(nil, apperr.New(apperr.KindMCPMalformed, "openai response had no choices", nil))
			return
		}

		choice := parsed.Choices[0]
		resp := &Response{
			Content: choice.Message.Content,
			Usage:   &Usage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens},
		}
		for _, tc := range choice.Message.ToolCalls {
			var args map[string]any
			_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
		}
		switch choice.FinishReason {
		case "tool_calls":
			resp.FinishReason = FinishToolCalls
		case "length":
			resp.FinishReason = FinishLength
		default:
			resp.FinishReason = FinishStop
		}

		yield(resp, nil)
	}
}

func classifyOpenAIError(err error) error {
	var retryable *httpclient.RetryableError
	if isRetryableError(err, &retryable) {
		switch retryable.StatusCode {
		case http.StatusTooManyRequests:
			return apperr.New(apperr.KindProviderRateLimit, "openai rate limited", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.New(apperr.KindProviderAuth, "openai authentication failed", err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return apperr.New(apperr.KindProviderTimeout, "openai request timed out", err)
		default:
			return apperr.New(apperr.KindProviderUnavailable, fmt.Sprintf("openai request failed (status %d)", retryable.StatusCode), err)
		}
	}
	return apperr.New(apperr.KindProviderUnavailable, "openai request failed", err)
}
