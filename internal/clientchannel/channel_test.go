package clientchannel

import (
	"context"
	"io"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-autoagent/engine/internal/agents"
	"github.com/ki-autoagent/engine/internal/checkpoint"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/engine"
	"github.com/ki-autoagent/engine/internal/llm"
)

// constantProvider always returns the same content, sufficient for tests
// that only exercise protocol-level dispatch rather than a full workflow.
type constantProvider struct{ content string }

func (p *constantProvider) Name() string { return "constant" }
func (p *constantProvider) Close() error { return nil }
func (p *constantProvider) GenerateContent(ctx context.Context, req *llm.Request) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		yield(&llm.Response{Content: p.content, FinishReason: llm.FinishStop, Usage: &llm.Usage{}}, nil)
	}
}

// memChannel is an in-memory ClientChannel for tests: Send appends to Sent,
// Receive drains a pre-seeded inbound queue and returns io.EOF once empty.
type memChannel struct {
	inbound []Inbound
	Sent    []Outbound
	closed  bool
}

func (c *memChannel) Send(msg Outbound) error {
	c.Sent = append(c.Sent, msg)
	return nil
}

func (c *memChannel) Receive() (Inbound, error) {
	if len(c.inbound) == 0 {
		return Inbound{}, io.EOF
	}
	msg := c.inbound[0]
	c.inbound = c.inbound[1:]
	return msg, nil
}

func (c *memChannel) Close() error {
	c.closed = true
	return nil
}

func testSession(t *testing.T, ch *memChannel) *Session {
	t.Helper()

	bindings := make(map[string]config.AgentBinding)
	for _, name := range []string{"research", "architect", "codesmith", "reviewfix", "responder"} {
		bindings[name] = config.AgentBinding{AgentName: name, Provider: config.ProviderAnthropic}
	}
	cfg := &config.Config{Agents: bindings, MaxReviewIterations: 1}

	registry := llm.NewRegistry(nil)
	registry.Register(config.ProviderAnthropic, &constantProvider{content: "{}"})

	deps := &agents.Deps{LLM: registry, Config: cfg}

	store, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	eng := engine.New(cfg, deps, store, engine.NewEventBus())
	return NewSession(ch, eng, nil)
}

func TestSessionRejectsChatBeforeInit(t *testing.T) {
	ch := &memChannel{inbound: []Inbound{{Type: InboundChat, Content: "hello"}}}
	s := testSession(t, ch)

	err := s.Serve(context.Background())
	require.Error(t, err)
	require.Len(t, ch.Sent, 1)
	assert.Equal(t, OutboundError, ch.Sent[0].Type)
	assert.Contains(t, ch.Sent[0].Message, "before init")
}

func TestSessionInitSendsConnectedThenInitialized(t *testing.T) {
	ch := &memChannel{inbound: []Inbound{{Type: InboundInit, WorkspacePath: "/tmp/ws"}}}
	s := testSession(t, ch)

	err := s.Serve(context.Background())
	require.ErrorIs(t, err, io.EOF)
	require.Len(t, ch.Sent, 2)
	assert.Equal(t, OutboundConnected, ch.Sent[0].Type)
	assert.NotEmpty(t, ch.Sent[0].SessionID)
	assert.Equal(t, OutboundInitialized, ch.Sent[1].Type)
}

func TestSessionCancelBeforeInitIsANoOp(t *testing.T) {
	ch := &memChannel{inbound: []Inbound{{Type: InboundCancel}}}
	s := testSession(t, ch)

	err := s.Serve(context.Background())
	require.ErrorIs(t, err, io.EOF)
	assert.Empty(t, ch.Sent)
}
