package engine

import "github.com/ki-autoagent/engine/internal/state"

// HITLDecision is how a HITLCallback disposes of a request.
type HITLDecision int

const (
	// HITLAnswered means the callback returned a response synchronously;
	// execution continues immediately.
	HITLAnswered HITLDecision = iota

	// HITLDeferred means the callback could not answer synchronously; the
	// engine persists a checkpoint and returns a suspended Result. A later
	// Resume call supplies the response.
	HITLDeferred
)

// HITLCallback is invoked when the workflow needs a human decision, either
// because a node requested one or because the Supervisor escalated after
// repeated failures.
type HITLCallback func(req *state.HITLRequest) (response string, decision HITLDecision)
