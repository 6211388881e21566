// Package supervisor implements the table-driven router: after every agent
// node, decide what runs next, whether the workflow is done, or whether it
// must suspend for a human response.
package supervisor

import (
	"fmt"

	"github.com/ki-autoagent/engine/internal/state"
)

// Agent name constants, matching internal/agents node names exactly.
const (
	AgentResearch  = "research"
	AgentArchitect = "architect"
	AgentCodesmith = "codesmith"
	AgentReviewFix = "reviewfix"
	AgentResponder = "responder"
)

// hitlEscalationFailureThreshold and hitlEscalationIterationFraction
// implement the combined HITL-escalation rule from §9's Open Questions:
// escalate after ≥3 retriable failures, or once supervisor_iteration
// reaches 0.8×HARD_ITERATION_CAP, whichever comes first.
const (
	hitlEscalationFailureThreshold   = 3
	hitlEscalationIterationFraction = 0.8
)

// maxSameAgentRetries bounds how many times the Supervisor re-selects the
// same agent after a retriable failure before giving up on it (§4.7
// "Failure semantics").
const maxSameAgentRetries = 2

// Decision is the Supervisor's routing outcome for one invocation.
type Decision struct {
	// NextAgent is the agent to run next. Empty when Done or Suspend is true.
	NextAgent string

	// Done reports the workflow has reached a terminal state.
	Done bool

	// Suspend reports the engine must persist a checkpoint and yield to the
	// client channel (HITL, or HITL escalation).
	Suspend bool

	// Trace is a short human-readable routing rationale, stored into
	// agent_outputs["supervisor"].trace.
	Trace string
}

// legalTransition maps "last agent run" to "next agent to run" for the
// straight-line path.
var legalTransition = map[string]string{
	"":             AgentResearch,
	AgentResearch:  AgentArchitect,
	AgentArchitect: AgentCodesmith,
	AgentCodesmith: AgentReviewFix,
	AgentReviewFix: AgentResponder,
}

// Route decides the next step for s, applying rules in order: terminal
// check, iteration budget, HITL suspend, HITL escalation, retriable-failure
// retry, then table-driven routing.
func Route(s *state.WorkflowState) Decision {
	if s.ResponseReady {
		return Decision{Done: true, Trace: "response_ready=true"}
	}

	if s.SupervisorIteration >= state.HardIterationCap {
		return Decision{
			Done:  true,
			Trace: fmt.Sprintf("supervisor_iteration %d reached hard cap %d", s.SupervisorIteration, state.HardIterationCap),
		}
	}

	if s.HITLPending && s.HITLResponse == "" {
		return Decision{Suspend: true, Trace: "hitl_pending awaiting a response"}
	}

	if reason, escalate := shouldEscalateToHITL(s); escalate {
		return Decision{Suspend: true, Trace: reason}
	}

	if agent, reason, retry := retriableRetry(s); retry {
		return Decision{NextAgent: agent, Trace: reason}
	}

	last := ""
	if len(s.AgentHistory) > 0 {
		last = s.AgentHistory[len(s.AgentHistory)-1]
	}

	next, ok := legalTransition[last]
	if !ok {
		return Decision{Done: true, Trace: fmt.Sprintf("no routing rule for last agent %q", last)}
	}
	return Decision{NextAgent: next, Trace: fmt.Sprintf("routing after %q", lastOrInitial(last))}
}

func lastOrInitial(last string) string {
	if last == "" {
		return "<initial>"
	}
	return last
}

// shouldEscalateToHITL implements the combined rule: ≥3 retriable failures
// recorded in state.errors, or supervisor_iteration within 20% of the hard
// cap.
func shouldEscalateToHITL(s *state.WorkflowState) (string, bool) {
	if float64(s.SupervisorIteration) >= hitlEscalationIterationFraction*float64(state.HardIterationCap) {
		return fmt.Sprintf("supervisor_iteration %d reached %.0f%% of hard cap %d",
			s.SupervisorIteration, hitlEscalationIterationFraction*100, state.HardIterationCap), true
	}

	retriableFailures := 0
	for _, e := range s.Errors {
		if e.Retriable {
			retriableFailures++
		}
	}
	if retriableFailures >= hitlEscalationFailureThreshold {
		return fmt.Sprintf("%d retriable failures recorded, escalating to HITL", retriableFailures), true
	}
	return "", false
}

// retriableRetry re-selects the last-run agent when its most recent error
// was retriable and it has not already been retried maxSameAgentRetries
// times in a row (counted from the tail of state.errors).
func retriableRetry(s *state.WorkflowState) (agent string, reason string, retry bool) {
	if len(s.Errors) == 0 {
		return "", "", false
	}

	lastErr := s.Errors[len(s.Errors)-1]
	if !lastErr.Retriable {
		return "", "", false
	}

	consecutive := 0
	for i := len(s.Errors) - 1; i >= 0; i-- {
		e := s.Errors[i]
		if e.AgentName != lastErr.AgentName || !e.Retriable {
			break
		}
		consecutive++
	}
	if consecutive > maxSameAgentRetries {
		return "", "", false
	}

	return lastErr.AgentName, fmt.Sprintf("retrying %q after retriable failure (%d/%d)", lastErr.AgentName, consecutive, maxSameAgentRetries), true
}
