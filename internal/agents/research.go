package agents

import (
	"context"
	"iter"
	"regexp"
	"strings"
	"time"

	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/memory"
	"github.com/ki-autoagent/engine/internal/state"
)

// ResearchOutput is the agent_outputs["research"] blob.
type ResearchOutput struct {
	Findings  string   `json:"findings"`
	Citations []string `json:"citations"`
}

var citationLine = regexp.MustCompile(`^\[\d+\]\s+(.+)$`)

// researchNode produces a citation-backed research blob for the user query,
// typically bound to the Perplexity provider for web-search-grounded
// answers (§4.5 "Research").
type researchNode struct{}

// Research is the Node for the "research" agent.
func Research() Node { return researchNode{} }

func (researchNode) Name() string { return "research" }

func (researchNode) Run(ctx context.Context, deps *Deps, s *state.WorkflowState) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		if !yield(progress("research", "calling research provider"), nil) {
			return
		}

		resp, err := generate(ctx, deps, "research",
			"You are a research agent. Investigate the user's request and report findings "+
				"with sources where available. Be concrete and cite specifics.",
			[]llm.Message{{Role: llm.RoleUser, Content: s.UserQuery}})
		if err != nil {
			yield(Event{}, err)
			return
		}

		out := parseResearchOutput(resp.Content)

		if deps.Memory != nil {
			_, memErr := deps.Memory.Put(ctx, memory.Record{
				AgentName: "research",
				SessionID: s.SessionID,
				Content:   out.Findings,
				Metadata:  map[string]string{"kind": "research_findings"},
				CreatedAt: time.Now(),
			})
			if memErr != nil {
				yield(Event{}, memErr)
				return
			}
		}

		agentName := "research"
		update := state.Update{
			LastAgent:        &agentName,
			AgentOutputKey:   "research",
			AgentOutputValue: out,
		}
		yield(Event{Update: &update}, nil)
	}
}

// parseResearchOutput splits a research provider's response into prose
// findings and the trailing "Sources:" citation list the Perplexity
// provider appends (internal/llm/perplexity.go).
func parseResearchOutput(content string) ResearchOutput {
	findings, sourcesBlock, found := strings.Cut(content, "\n\nSources:\n")
	if !found {
		return ResearchOutput{Findings: content}
	}

	var citations []string
	for _, line := range strings.Split(sourcesBlock, "\n") {
		if m := citationLine.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
			citations = append(citations, m[1])
		}
	}
	return ResearchOutput{Findings: findings, Citations: citations}
}

func progress(agentName, message string) Event {
	return Event{Progress: &ProgressEvent{AgentName: agentName, Message: message}}
}
