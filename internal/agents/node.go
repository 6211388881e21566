// Package agents implements the Agent Nodes: Research,
// Architect, Codesmith, ReviewFix and Responder. Each node reads a
// read-only WorkflowState, calls an LLM provider or an MCP tool, and
// yields a partial state.Update — never a full-state replacement.
//
// Run streams through an iter.Seq2 so a caller sees progress events as
// they happen rather than only a final result.
package agents

import (
	"context"
	"iter"
	"time"

	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/mcpclient"
	"github.com/ki-autoagent/engine/internal/memory"
	"github.com/ki-autoagent/engine/internal/observability"
	"github.com/ki-autoagent/engine/internal/state"
)

// ProgressEvent is an intermediate, human-readable status update a node
// may emit while it runs (e.g. "calling anthropic", "running tsc").
type ProgressEvent struct {
	AgentName string
	Message   string
}

// Event is one item yielded by Node.Run: it carries either Progress or a
// non-nil Update. Most nodes yield a single Update as their last event;
// reviewfix yields one Update per review/fix pass. A node that needs a
// human decision sets HITLPending/HITLRequest on its Update instead of
// returning an error; the engine suspends the workflow the same way it
// does for a Supervisor escalation.
type Event struct {
	Progress *ProgressEvent
	Update   *state.Update
}

// Deps bundles every dependency a node may need. Constructed once per
// engine process and threaded to every node.
type Deps struct {
	LLM     *llm.Registry
	MCP     *mcpclient.Client
	Memory  *memory.Store
	Config  *config.Config
	Metrics *observability.Metrics
}

// Node is the common shape every agent implements: read-only input, partial-update output.
type Node interface {
	// Name identifies the node for routing and AgentHistory (e.g. "research").
	Name() string

	// Run executes against a read-only snapshot of s and yields progress
	// events and one or more events carrying an Update (see Event).
	Run(ctx context.Context, deps *Deps, s *state.WorkflowState) iter.Seq2[Event, error]
}

// binding resolves the AgentBinding configured for a node; generate applies
// its generation parameters to the llm.Request.
func binding(deps *Deps, agentName string) (config.AgentBinding, error) {
	return deps.Config.Binding(agentName)
}

// generate is the shared single-shot LLM call every node uses: resolve the
// node's binding, build a Request, and collect the (non-streaming) single
// Response the provider yields.
func generate(ctx context.Context, deps *Deps, agentName, systemInstruction string, messages []llm.Message) (*llm.Response, error) {
	b, err := binding(deps, agentName)
	if err != nil {
		return nil, err
	}

	provider, err := deps.LLM.Get(b.Provider)
	if err != nil {
		return nil, err
	}

	req := &llm.Request{
		Model:             b.Model,
		Messages:          messages,
		SystemInstruction: systemInstruction,
		Config: llm.GenerateConfig{
			Temperature: b.Temperature,
			MaxTokens:   b.MaxTokens,
		},
	}

	ctx = llm.WithAgentName(ctx, agentName)
	if b.TimeoutSecs > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(b.TimeoutSecs)*time.Second)
		defer cancel()
	}

	var last *llm.Response
	var genErr error
	for resp, err := range provider.GenerateContent(ctx, req) {
		if err != nil {
			genErr = err
			break
		}
		last = resp
	}
	if genErr != nil {
		return nil, genErr
	}
	return last, nil
}
