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

const perplexityBaseURL = "https://api.perplexity.ai"

// PerplexityConfig configures the Perplexity client.
type PerplexityConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// perplexityProvider implements Provider against Perplexity's OpenAI-
// compatible chat completions endpoint. Used by the research agent
// for citation-backed web search answers; Perplexity does not
// support tool calling, so Tools in Request are ignored.
type perplexityProvider struct {
	http    *httpclient.Client
	apiKey  string
	baseURL string
}

func NewPerplexityProvider(cfg PerplexityConfig) (*perplexityProvider, error) {
	if cfg.APIKey == "" {
		return nil, apperr.New(apperr.KindConfiguration, "perplexity API key is required", nil)
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = perplexityBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}

	return &perplexityProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		http: httpclient.New(
			httpclient.WithHTTPClient(&http.Client{Timeout: timeout}),
			httpclient.WithHeaderParser(httpclient.ParsePerplexityRateLimitHeaders),
		),
	}, nil
}

func (p *perplexityProvider) Name() string { return "perplexity" }

func (p *perplexityProvider) Close() error { return nil }

type perplexityMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type perplexityRequest struct {
	Model       string              `json:"model"`
	Messages    []perplexityMessage `json:"messages"`
	Temperature float64             `json:"temperature,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
}

type perplexityResponse struct {
	Choices []struct {
		Message      perplexityMessage `json:"message"`
		FinishReason string            `json:"finish_reason"`
	} `json:"choices"`
	Citations []string `json:"citations"`
	Usage     struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

func (p *perplexityProvider) GenerateContent(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		body := perplexityRequest{
			Model:       req.Model,
			Temperature: req.Config.Temperature,
			MaxTokens:   req.Config.MaxTokens,
		}
		if req.SystemInstruction != "" {
			body.Messages = append(body.Messages, perplexityMessage{Role: "system", Content: req.SystemInstruction})
		}
		for _, m := range req.Messages {
			body.Messages = append(body.Messages, perplexityMessage{Role: string(m.Role), Content: m.Content})
		}

		payload, err := json.Marshal(body)
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "encoding perplexity request", err))
			return
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(payload))
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "building perplexity request", err))
			return
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

		httpResp, err := p.http.Do(httpReq)
		if err != nil {
			yield(nil, classifyPerplexityError(err))
			return
		}
		defer httpResp.Body.Close()

		data, err := io.ReadAll(httpResp.Body)
		if err != nil {
			yield(nil, apperr.New(apperr.KindProtocol, "reading perplexity response", err))
			return
		}

		var parsed perplexityResponse
		if err := json.Unmarshal(data, &parsed); err != nil {
			yield(nil, apperr.New(apperr.KindMCPMalformed, "decoding perplexity response", err))
			return
		}
		if parsed.Error != nil {
			yield(nil, apperr.New(apperr.KindProviderUnavailable, parsed.Error.Message, nil))
			return
		}
		if len(parsed.Choices) == 0 {
			yield(nil, apperr.New(apperr.KindMCPMalformed, "perplexity response had no choices", nil))
			return
		}

		content := parsed.Choices[0].Message.Content
		if len(parsed.Citations) > 0 {
			content += "\n\nSources:\n"
			for i, c := range parsed.Citations {
				content += fmt.Sprintf("[%d] %s\n", i+1, c)
			}
		}

		yield(&Response{
			Content:      content,
			FinishReason: FinishStop,
			Usage:        &Usage{PromptTokens: parsed.Usage.PromptTokens, CompletionTokens: parsed.Usage.CompletionTokens},
		}, nil)
	}
}

func classifyPerplexityError(err error) error {
	var retryable *httpclient.RetryableError
	if isRetryableError(err, &retryable) {
		switch retryable.StatusCode {
		case http.StatusTooManyRequests:
			return apperr.New(apperr.KindProviderRateLimit, "perplexity rate limited", err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return apperr.New(apperr.KindProviderAuth, "perplexity authentication failed", err)
		case http.StatusRequestTimeout, http.StatusGatewayTimeout:
			return apperr.New(apperr.KindProviderTimeout, "perplexity request timed out", err)
		default:
			return apperr.New(apperr.KindProviderUnavailable, fmt.Sprintf("perplexity request failed (status %d)", retryable.StatusCode), err)
		}
	}
	return apperr.New(apperr.KindProviderUnavailable, "perplexity request failed", err)
}
