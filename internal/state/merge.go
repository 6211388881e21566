package state

import (
	"fmt"

	"github.com/ki-autoagent/engine/internal/apperr"
)

// HardIterationCap bounds SupervisorIteration; exceeding it
// is a terminal configuration/runaway error, not a normal completion.
const HardIterationCap = 50

// Merge applies u to s, enforcing every workflow-state invariant:
//   - AgentHistory is append-only.
//   - SupervisorIteration never exceeds HardIterationCap.
//   - ReviewIteration never exceeds MaxReviewIterations.
//   - ResponseReady is sticky: once true, it cannot be unset by a later update.
//
// Merge returns a new *WorkflowState; it never mutates s in place, so a
// caller holding the previous snapshot (e.g. for checkpointing) is unaffected.
func Merge(s *WorkflowState, u Update) (*WorkflowState, error) {
	next := clone(s)

	if u.LastAgent != nil {
		next.LastAgent = *u.LastAgent
		next.AgentHistory = append(next.AgentHistory, *u.LastAgent)
	}

	if u.AgentOutputKey != "" {
		next.AgentOutputs[u.AgentOutputKey] = u.AgentOutputValue
	}

	if u.IncrementSupervisorIteration {
		next.SupervisorIteration++
		if next.SupervisorIteration > HardIterationCap {
			return nil, apperr.New(apperr.KindIterationBudget,
				fmt.Sprintf("supervisor_iteration exceeded hard cap %d", HardIterationCap), nil)
		}
	}

	if u.IncrementReviewIteration {
		next.ReviewIteration++
		if next.ReviewIteration > next.MaxReviewIterations {
			return nil, apperr.New(apperr.KindIterationBudget,
				fmt.Sprintf("review_iteration exceeded max %d", next.MaxReviewIterations), nil)
		}
	}

	if next.ResponseReady && u.ResponseReady != nil && !*u.ResponseReady {
		return nil, apperr.New(apperr.KindInvariantViolation, "cannot unset response_ready once terminal", nil)
	}
	if u.ResponseReady != nil {
		next.ResponseReady = *u.ResponseReady
	}

	if u.LastQualityScore != nil {
		next.LastQualityScore = clampScore(*u.LastQualityScore)
	}
	if u.QualityThreshold != nil {
		next.QualityThreshold = *u.QualityThreshold
	}
	if u.BuildValidationPassed != nil {
		next.BuildValidationPassed = *u.BuildValidationPassed
	}
	for name, errText := range u.BuildErrorsPatch {
		next.BuildErrors[name] = errText
	}

	if u.HITLPending != nil {
		next.HITLPending = *u.HITLPending
	}
	if u.HITLRequest != nil {
		next.HITLRequest = u.HITLRequest
	}
	if u.HITLResponse != nil {
		next.HITLResponse = *u.HITLResponse
		next.HITLPending = false
	}

	if u.AppendError != nil {
		next.Errors = append(next.Errors, *u.AppendError)
	}

	return next, nil
}

// clampScore forces an out-of-range reviewer score into [0,1], per the
// §4.6 tie-break policy: "Reviewer returns a value outside [0,1]: clamp
// and log."
func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

// clone performs a shallow copy of s plus deep copies of its slice/map
// fields, so Merge never lets two WorkflowState snapshots share backing
// storage for their append-only or mutable collections.
func clone(s *WorkflowState) *WorkflowState {
	next := *s

	next.AgentHistory = append([]string(nil), s.AgentHistory...)

	next.AgentOutputs = make(map[string]any, len(s.AgentOutputs))
	for k, v := range s.AgentOutputs {
		next.AgentOutputs[k] = v
	}

	next.BuildErrors = make(map[string]string, len(s.BuildErrors))
	for k, v := range s.BuildErrors {
		next.BuildErrors[k] = v
	}

	next.Errors = append([]ErrorRecord(nil), s.Errors...)

	return &next
}
