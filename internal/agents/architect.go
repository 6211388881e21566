package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/memory"
	"github.com/ki-autoagent/engine/internal/state"
)

// ArchitectOutput is the agent_outputs["architect"] blob.
type ArchitectOutput struct {
	DesignDoc    string   `json:"design_doc"`
	FileLayout   []string `json:"file_layout"`
	Components   []string `json:"components"`
	Dependencies []string `json:"dependencies"`

	// OpenQuestion is set when the design hinges on a choice only the user
	// can make (e.g. which of two libraries, which storage backend). When
	// non-empty, Run defers to a human instead of picking for them.
	OpenQuestion        string   `json:"open_question,omitempty"`
	OpenQuestionOptions []string `json:"open_question_options,omitempty"`
}

const architectSystemPrompt = `You are a software architect. Given research findings and the user's
request, produce a design as a single JSON object with exactly these keys:
"design_doc" (string, prose design rationale), "file_layout" (array of
relative file paths to create), "components" (array of component names),
"dependencies" (array of third-party package names). If the design hinges on
a choice only the user can make, also include "open_question" (string
describing the choice) and "open_question_options" (array of the candidate
answers); omit or leave both empty when no such choice exists. Respond with
JSON only.`

type architectNode struct{}

// Architect is the Node for the "architect" agent.
func Architect() Node { return architectNode{} }

func (architectNode) Name() string { return "architect" }

func (architectNode) Run(ctx context.Context, deps *Deps, s *state.WorkflowState) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		research, _ := s.AgentOutputs["research"].(ResearchOutput)

		if !yield(progress("architect", "designing from research findings"), nil) {
			return
		}

		prompt := fmt.Sprintf("User request:\n%s\n\nResearch findings:\n%s", s.UserQuery, research.Findings)
		resp, err := generate(ctx, deps, "architect", architectSystemPrompt,
			[]llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			yield(Event{}, err)
			return
		}

		var out ArchitectOutput
		if err := json.Unmarshal([]byte(resp.Content), &out); err != nil {
			yield(Event{}, apperr.New(apperr.KindMCPMalformed, "architect response was not valid JSON", err))
			return
		}

		if deps.Memory != nil {
			_, memErr := deps.Memory.Put(ctx, memory.Record{
				AgentName: "architect",
				SessionID: s.SessionID,
				Content:   out.DesignDoc,
				Metadata:  map[string]string{"kind": "adr_summary"},
				CreatedAt: time.Now(),
			})
			if memErr != nil {
				yield(Event{}, memErr)
				return
			}
		}

		agentName := "architect"
		update := state.Update{
			LastAgent:        &agentName,
			AgentOutputKey:   "architect",
			AgentOutputValue: out,
		}
		if out.OpenQuestion != "" {
			pending := true
			update.HITLPending = &pending
			update.HITLRequest = &state.HITLRequest{
				Reason:  "architect requires a design decision before continuing",
				Prompt:  out.OpenQuestion,
				Options: out.OpenQuestionOptions,
			}
		}
		yield(Event{Update: &update}, nil)
	}
}
