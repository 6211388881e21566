package agents

import (
	"context"
	"fmt"
	"iter"
	"strings"

	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/state"
)

// ResponderOutput is the agent_outputs["responder"] blob: the final
// user-facing message.
type ResponderOutput struct {
	Response string `json:"response"`
	Degraded bool   `json:"degraded"`
}

const responderSystemPrompt = `You are the final responder. Summarize what was built for the user in
clear prose: what was researched, designed, generated, and the outcome of
review. If the quality gate was not met, say so plainly. Respond with prose,
not JSON.`

type responderNode struct{}

// Responder is the Node for the "responder" agent. It is always the
// terminal node: its Update sets response_ready=true.
func Responder() Node { return responderNode{} }

func (responderNode) Name() string { return "responder" }

func (responderNode) Run(ctx context.Context, deps *Deps, s *state.WorkflowState) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if !yield(progress("responder", "composing final response"), nil) {
			return
		}

		resp, err := generate(ctx, deps, "responder", responderSystemPrompt,
			[]llm.Message{{Role: llm.RoleUser, Content: summarizeRun(s)}})
		if err != nil {
			yield(Event{}, err)
			return
		}

		reviewOut, _ := s.AgentOutputs["reviewfix"].(ReviewFixOutput)

		agentName := "responder"
		done := true
		update := state.Update{
			LastAgent:        &agentName,
			AgentOutputKey:   "responder",
			AgentOutputValue: ResponderOutput{Response: resp.Content, Degraded: reviewOut.Degraded},
			ResponseReady:    &done,
		}
		yield(Event{Update: &update}, nil)
	}
}

func summarizeRun(s *state.WorkflowState) string {
	var b strings.Builder
	fmt.Fprintf(&b, "User request:\n%s\n\n", s.UserQuery)

	if research, ok := s.AgentOutputs["research"].(ResearchOutput); ok {
		fmt.Fprintf(&b, "Research findings:\n%s\n\n", research.Findings)
	}
	if architect, ok := s.AgentOutputs["architect"].(ArchitectOutput); ok {
		fmt.Fprintf(&b, "Design:\n%s\n\n", architect.DesignDoc)
	}
	if codesmith, ok := s.AgentOutputs["codesmith"].(CodesmithOutput); ok {
		fmt.Fprintf(&b, "Generated files: %d\n", len(codesmith.GeneratedFiles))
		for _, f := range codesmith.GeneratedFiles {
			fmt.Fprintf(&b, "- %s (%d bytes)\n", f.Path, f.BytesWritten)
		}
		b.WriteString("\n")
	}
	if review, ok := s.AgentOutputs["reviewfix"].(ReviewFixOutput); ok {
		fmt.Fprintf(&b, "Review outcome: quality_score=%.2f build_validation_passed=%v degraded=%v\nFeedback: %s\n",
			review.QualityScore, s.BuildValidationPassed, review.Degraded, review.Feedback)
	}

	return b.String()
}
