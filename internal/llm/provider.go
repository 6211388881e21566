// Package llm implements the LLM Provider Registry:
// provider clients for Anthropic, OpenAI and Perplexity behind a common
// interface, with exponential backoff retry, cost accounting, and
// Prometheus instrumentation.
package llm

import (
	"context"
	"iter"
)

// Role identifies the sender of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one turn of conversation history passed to a provider.
type Message struct {
	Role    Role
	Content string

	// ToolCallID identifies which tool call this message answers, when
	// Role is RoleTool.
	ToolCallID string
}

// ToolDefinition describes a callable tool the model may invoke, mirroring
// the MCP tool schema surfaced by internal/mcpclient.
type ToolDefinition struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// GenerateConfig carries per-request generation parameters, sourced from
// the agent's config.AgentBinding.
type GenerateConfig struct {
	Temperature float64
	MaxTokens   int
}

// Request is the input to a Provider's GenerateContent call.
type Request struct {
	Model             string
	Messages          []Message
	Tools             []ToolDefinition
	SystemInstruction string
	Config            GenerateConfig
}

// Usage carries token accounting for cost computation.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// FinishReason indicates why generation stopped.
type FinishReason string

const (
	FinishStop      FinishReason = "stop"
	FinishToolCalls FinishReason = "tool_calls"
	FinishLength    FinishReason = "length"
)

// Response is one chunk yielded by GenerateContent. For non-streaming
// calls exactly one Response is yielded, with Partial=false.
type Response struct {
	Content      string
	Partial      bool
	ToolCalls    []ToolCall
	Usage        *Usage
	FinishReason FinishReason
}

// Provider is the interface every LLM backend implements. GenerateContent
// yields through an iter.Seq2 regardless of whether the backend call is
// itself streaming: a single non-streaming call still yields through the
// same iterator shape, so callers never branch on streaming vs.
// non-streaming at the type level.
type Provider interface {
	// Name returns the provider identifier ("anthropic", "openai", "perplexity").
	Name() string

	// GenerateContent issues req against model name and yields Response
	// values until the iterator is done or ctx is cancelled.
	GenerateContent(ctx context.Context, req *Request) iter.Seq2[*Response, error]

	// Close releases any resources (idle connections) held by the provider.
	Close() error
}
