package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ki-autoagent/engine/internal/agents"
	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/checkpoint"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/state"
	"github.com/ki-autoagent/engine/internal/supervisor"
)

// Result is returned by Run and Resume.
type Result struct {
	State     *state.WorkflowState
	Suspended bool
}

// Engine owns every long-lived collaborator for one process: the provider
// registry, MCP client, memory store, checkpoint KV and event bus.
type Engine struct {
	cfg         *config.Config
	deps        *agents.Deps
	graph       *Graph
	checkpoints *checkpoint.Store
	events      *EventBus

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// New constructs an Engine from its collaborators.
func New(cfg *config.Config, deps *agents.Deps, checkpoints *checkpoint.Store, events *EventBus) *Engine {
	return &Engine{
		cfg:         cfg,
		deps:        deps,
		graph:       NewGraph(),
		checkpoints: checkpoints,
		events:      events,
		cancels:     make(map[string]context.CancelFunc),
	}
}

// Run starts a fresh workflow for sessionID.
func (e *Engine) Run(ctx context.Context, sessionID, userQuery, workspacePath string, hitl HITLCallback) (*Result, error) {
	s := state.New(sessionID, workspacePath, userQuery, e.cfg.MaxReviewIterations)
	return e.loop(ctx, sessionID, s, hitl)
}

// Resume continues a suspended workflow, optionally supplying the HITL
// response the Supervisor was waiting on.
func (e *Engine) Resume(ctx context.Context, sessionID, hitlResponse string, hitl HITLCallback) (*Result, error) {
	rec, ok, err := e.checkpoints.Load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, apperr.New(apperr.KindInvariantViolation, fmt.Sprintf("no checkpoint for session %q", sessionID), nil)
	}

	s := rec.State
	if hitlResponse != "" {
		resp := hitlResponse
		s, err = state.Merge(s, state.Update{HITLResponse: &resp})
		if err != nil {
			return nil, err
		}
	}
	return e.loop(ctx, sessionID, s, hitl)
}

// Cancel requests cancellation of sessionID's in-flight run, if any. The
// next suspension point inside the running node observes ctx.Err() and the
// loop returns a Cancelled error.
func (e *Engine) Cancel(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if cancel, ok := e.cancels[sessionID]; ok {
		cancel()
	}
}

// Cleanup terminates MCP subprocesses and closes every owned handle. Call
// once at process shutdown.
func (e *Engine) Cleanup() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if e.deps.MCP != nil {
		record(e.deps.MCP.CloseAll())
	}
	if e.deps.Memory != nil {
		record(e.deps.Memory.Close())
	}
	if e.deps.LLM != nil {
		record(e.deps.LLM.Close())
	}
	if e.checkpoints != nil {
		record(e.checkpoints.Close())
	}
	if e.events != nil {
		record(e.events.Close())
	}
	return firstErr
}

// loop dispatches to the Supervisor after every node completion, merging
// partial updates, checkpointing, and emitting progress events, until the
// workflow is Done or Suspended.
func (e *Engine) loop(ctx context.Context, sessionID string, s *state.WorkflowState, hitl HITLCallback) (*Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.cancels[sessionID] = cancel
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.cancels, sessionID)
		e.mu.Unlock()
		cancel()
	}()

	for {
		if err := ctx.Err(); err != nil {
			return nil, apperr.New(apperr.KindCancelled, "workflow cancelled", err)
		}

		decision := supervisor.Route(s)
		traced, mergeErr := state.Merge(s, state.Update{
			AgentOutputKey:   "supervisor",
			AgentOutputValue: map[string]any{"trace": decision.Trace},
		})
		if mergeErr != nil {
			return nil, mergeErr
		}
		s = traced
		e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventRoutingDecision, Message: decision.Trace})

		if decision.Done {
			e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventWorkflowComplete, Message: decision.Trace})
			if err := e.checkpoints.Save(ctx, sessionID, s, "done"); err != nil {
				return nil, err
			}
			return &Result{State: s}, nil
		}

		if decision.Suspend {
			return e.suspend(ctx, sessionID, s, decision, hitl)
		}

		node, ok := e.graph.Node(decision.NextAgent)
		if !ok {
			return nil, apperr.New(apperr.KindUnknownAgent,
				fmt.Sprintf("no node registered for agent %q", decision.NextAgent), nil)
		}

		var err error
		s, err = e.runNode(ctx, sessionID, node, s)
		if err != nil {
			return nil, err
		}
	}
}

// suspend either answers a HITL request synchronously via hitl and
// continues, or persists a checkpoint and returns a suspended Result.
func (e *Engine) suspend(ctx context.Context, sessionID string, s *state.WorkflowState, decision supervisor.Decision, hitl HITLCallback) (*Result, error) {
	if hitl != nil {
		req := s.HITLRequest
		if req == nil {
			req = &state.HITLRequest{Reason: decision.Trace}
		}
		if response, hd := hitl(req); hd == HITLAnswered {
			s, err := state.Merge(s, state.Update{HITLResponse: &response})
			if err != nil {
				return nil, err
			}
			return e.loop(ctx, sessionID, s, hitl)
		}
	}

	e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventHITLRequest, Message: decision.Trace})

	pending := true
	s, err := state.Merge(s, state.Update{HITLPending: &pending})
	if err != nil {
		return nil, err
	}
	if err := e.checkpoints.Save(ctx, sessionID, s, s.LastAgent); err != nil {
		return nil, err
	}
	return &Result{State: s, Suspended: true}, nil
}

// runNode drives one node to completion, merging every Update it yields and
// checkpointing after each merge, then increments supervisor_iteration.
func (e *Engine) runNode(ctx context.Context, sessionID string, node agents.Node, s *state.WorkflowState) (*state.WorkflowState, error) {
	e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventAgentStart, Agent: node.Name()})

	for ev, err := range node.Run(ctx, e.deps, s) {
		if err != nil {
			return e.recordNodeError(ctx, sessionID, node, s, err)
		}

		if ev.Progress != nil {
			e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventAgentStart, Agent: ev.Progress.AgentName, Message: ev.Progress.Message})
			continue
		}

		if ev.Update != nil {
			merged, mergeErr := state.Merge(s, *ev.Update)
			if mergeErr != nil {
				return nil, mergeErr
			}
			s = merged
			if err := e.checkpoints.Save(ctx, sessionID, s, node.Name()); err != nil {
				return nil, err
			}
		}
	}

	e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventAgentComplete, Agent: node.Name()})

	return state.Merge(s, state.Update{IncrementSupervisorIteration: true})
}

// recordNodeError converts a node failure into a structured error record
// appended to state.errors, so the Supervisor
// can decide whether to retry, route differently, or escalate.
func (e *Engine) recordNodeError(ctx context.Context, sessionID string, node agents.Node, s *state.WorkflowState, nodeErr error) (*state.WorkflowState, error) {
	kind, _ := apperr.KindOf(nodeErr)
	errRec := state.ErrorRecord{
		AgentName: node.Name(),
		Kind:      string(kind),
		Message:   nodeErr.Error(),
		Retriable: apperr.IsRetriable(nodeErr),
		Timestamp: time.Now(),
	}
	e.publish(sessionID, ProgressEvent{SessionID: sessionID, Kind: EventError, Agent: node.Name(), Message: nodeErr.Error()})

	merged, mergeErr := state.Merge(s, state.Update{AppendError: &errRec})
	if mergeErr != nil {
		return nil, mergeErr
	}
	if err := e.checkpoints.Save(ctx, sessionID, merged, node.Name()); err != nil {
		return nil, err
	}
	return merged, nil
}

func (e *Engine) publish(sessionID string, ev ProgressEvent) {
	if e.events == nil {
		return
	}
	_ = e.events.Publish(ev)
}
