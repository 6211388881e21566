// Package state defines WorkflowState, the canonical shared state threaded
// through the engine's agent graph, and the monotonic merge
// rule every node's partial update must obey.
package state

import "time"

// ErrorRecord is one entry in WorkflowState.Errors.
type ErrorRecord struct {
	AgentName string
	Kind      string
	Message   string
	Retriable bool
	Timestamp time.Time
}

// HITLRequest is a structured human-in-the-loop prompt.
type HITLRequest struct {
	Reason  string
	Prompt  string
	Options []string
}

// GeneratedFile records one file write performed by the codesmith agent.
type GeneratedFile struct {
	Path         string
	BytesWritten int
}

// WorkflowState is the canonical shared state threaded through the graph.
// It is immutable per node execution: nodes never mutate a WorkflowState
// in place, they return a partial Update that Merge applies.
type WorkflowState struct {
	SessionID     string
	WorkspacePath string
	UserQuery     string

	LastAgent    string
	AgentHistory []string

	SupervisorIteration int
	ResponseReady       bool

	AgentOutputs map[string]any

	ReviewIteration    int
	MaxReviewIterations int

	LastQualityScore float64
	QualityThreshold float64

	BuildValidationPassed bool
	BuildErrors           map[string]string

	HITLPending  bool
	HITLRequest  *HITLRequest
	HITLResponse string

	Errors []ErrorRecord
}

// New constructs the initial WorkflowState for a fresh workflow run.
func New(sessionID, workspacePath, userQuery string, maxReviewIterations int) *WorkflowState {
	return &WorkflowState{
		SessionID:            sessionID,
		WorkspacePath:        workspacePath,
		UserQuery:            userQuery,
		AgentOutputs:         make(map[string]any),
		BuildErrors:          make(map[string]string),
		MaxReviewIterations:  maxReviewIterations,
		QualityThreshold:     0.75,
	}
}

// Update is a partial state update a node returns after execution. Only
// non-nil/non-zero fields are considered set; see Merge for field-by-field
// semantics.
type Update struct {
	LastAgent *string

	AgentOutputKey   string
	AgentOutputValue any

	IncrementSupervisorIteration bool
	IncrementReviewIteration     bool

	ResponseReady *bool

	LastQualityScore *float64
	QualityThreshold *float64

	BuildValidationPassed *bool
	BuildErrorsPatch       map[string]string

	HITLPending  *bool
	HITLRequest  *HITLRequest
	HITLResponse *string

	AppendError *ErrorRecord
}
