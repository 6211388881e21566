package llm

import (
	"context"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryGetUnknownProvider(t *testing.T) {
	r := NewRegistry(nil)
	_, err := r.Get("bogus")
	assert.Error(t, err)
}

func TestRegistryRegisterAndGet(t *testing.T) {
	r := NewRegistry(nil)
	fake := &fakeProvider{name: "anthropic"}
	r.Register("anthropic", fake)

	got, err := r.Get("anthropic")
	require.NoError(t, err)
	assert.Equal(t, "anthropic", got.Name())
}

func TestAnthropicProviderGenerateContent(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"content":[{"type":"text","text":"hello"}],
			"stop_reason":"end_turn",
			"usage":{"input_tokens":10,"output_tokens":5}
		}`))
	}))
	defer server.Close()

	p, err := NewAnthropicProvider(AnthropicConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	var got *Response
	for resp, err := range p.GenerateContent(context.Background(), &Request{
		Model:    "claude-sonnet-4-20250514",
		Messages: []Message{{Role: RoleUser, Content: "hi"}},
	}) {
		require.NoError(t, err)
		got = resp
	}

	require.NotNil(t, got)
	assert.Equal(t, "hello", got.Content)
	assert.Equal(t, 10, got.Usage.PromptTokens)
}

func TestOpenAIProviderGenerateContentToolCall(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		assert.Contains(t, string(body), "gpt-4.1")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","tool_calls":[{"id":"call_1","type":"function","function":{"name":"search","arguments":"{\"q\":\"go\"}"}}]},"finish_reason":"tool_calls"}],
			"usage":{"prompt_tokens":20,"completion_tokens":7}
		}`))
	}))
	defer server.Close()

	p, err := NewOpenAIProvider(OpenAIConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	var got *Response
	for resp, err := range p.GenerateContent(context.Background(), &Request{
		Model:    "gpt-4.1",
		Messages: []Message{{Role: RoleUser, Content: "search for go"}},
	}) {
		require.NoError(t, err)
		got = resp
	}

	require.NotNil(t, got)
	require.Len(t, got.ToolCalls, 1)
	assert.Equal(t, "search", got.ToolCalls[0].Name)
	assert.Equal(t, FinishToolCalls, got.FinishReason)
}

func TestPerplexityProviderAppendsCitations(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"choices":[{"message":{"role":"assistant","content":"answer"},"finish_reason":"stop"}],
			"citations":["https://example.com"],
			"usage":{"prompt_tokens":5,"completion_tokens":3}
		}`))
	}))
	defer server.Close()

	p, err := NewPerplexityProvider(PerplexityConfig{APIKey: "test-key", BaseURL: server.URL})
	require.NoError(t, err)

	var got *Response
	for resp, err := range p.GenerateContent(context.Background(), &Request{
		Model:    "sonar-pro",
		Messages: []Message{{Role: RoleUser, Content: "what is go"}},
	}) {
		require.NoError(t, err)
		got = resp
	}

	require.NotNil(t, got)
	assert.Contains(t, got.Content, "answer")
	assert.Contains(t, got.Content, "https://example.com")
}

type fakeProvider struct {
	name string
}

func (f *fakeProvider) Name() string { return f.name }
func (f *fakeProvider) Close() error { return nil }
func (f *fakeProvider) GenerateContent(ctx context.Context, req *Request) iter.Seq2[*Response, error] {
	return func(yield func(*Response, error) bool) {
		yield(&Response{Content: "fake"}, nil)
	}
}
