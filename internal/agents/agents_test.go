package agents

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/state"
)

// sequenceProvider returns successive responses on each call, holding the
// last one once the sequence is exhausted, for nodes that call generate()
// more than once per Run (e.g. reviewfix's review/fix cycle).
type sequenceProvider struct {
	responses []string
	i         int
}

func (f *sequenceProvider) Name() string { return "fake" }
func (f *sequenceProvider) Close() error { return nil }
func (f *sequenceProvider) GenerateContent(ctx context.Context, req *llm.Request) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		idx := f.i
		if idx >= len(f.responses) {
			idx = len(f.responses) - 1
		}
		content := f.responses[idx]
		f.i++
		yield(&llm.Response{Content: content, FinishReason: llm.FinishStop, Usage: &llm.Usage{}}, nil)
	}
}

func testDeps(t *testing.T, agentName, responseContent string) *Deps {
	t.Helper()
	return testDepsSequence(t, agentName, responseContent)
}

func testDepsSequence(t *testing.T, agentName string, responses ...string) *Deps {
	t.Helper()

	cfg := &config.Config{
		Agents: map[string]config.AgentBinding{
			agentName: {
				AgentName: agentName, Provider: config.ProviderAnthropic,
				Model: "claude-sonnet-4-20250514", Temperature: 0.2, MaxTokens: 1024, TimeoutSecs: 30,
			},
		},
		MaxReviewIterations: 3,
	}

	registry := llm.NewRegistry(nil)
	registry.Register(config.ProviderAnthropic, &sequenceProvider{responses: responses})

	return &Deps{LLM: registry, Config: cfg}
}

func TestResearchNodeParsesFindingsAndCitations(t *testing.T) {
	content := "Go 1.23 added range-over-func iterators.\n\nSources:\n[1] https://go.dev/blog/range-functions\n"
	deps := testDeps(t, "research", content)
	s := state.New("sess-1", "/tmp/ws", "explain range-over-func", 3)

	update := runToCompletion(t, Research(), deps, s)

	out, ok := update.AgentOutputValue.(ResearchOutput)
	require.True(t, ok)
	assert.Contains(t, out.Findings, "range-over-func iterators")
	assert.Equal(t, []string{"https://go.dev/blog/range-functions"}, out.Citations)
	assert.Equal(t, "research", *update.LastAgent)
}

func TestArchitectNodeParsesDesignJSON(t *testing.T) {
	content := `{"design_doc":"use a single package","file_layout":["main.go"],"components":["cli"],"dependencies":["github.com/spf13/cobra"]}`
	deps := testDeps(t, "architect", content)
	s := state.New("sess-1", "/tmp/ws", "build a cli", 3)
	s.AgentOutputs["research"] = ResearchOutput{Findings: "cobra is a common cli library"}

	update := runToCompletion(t, Architect(), deps, s)

	out, ok := update.AgentOutputValue.(ArchitectOutput)
	require.True(t, ok)
	assert.Equal(t, []string{"main.go"}, out.FileLayout)
	assert.Contains(t, out.Dependencies, "github.com/spf13/cobra")
}

func TestArchitectNodeRequestsHITLOnOpenQuestion(t *testing.T) {
	content := `{"design_doc":"two viable stores","file_layout":["main.go"],
		"open_question":"redis or postgres for session storage?",
		"open_question_options":["redis","postgres"]}`
	deps := testDeps(t, "architect", content)
	s := state.New("sess-1", "/tmp/ws", "build a session store", 3)
	s.AgentOutputs["research"] = ResearchOutput{Findings: "both redis and postgres fit"}

	update := runToCompletion(t, Architect(), deps, s)

	require.NotNil(t, update.HITLPending)
	assert.True(t, *update.HITLPending)
	require.NotNil(t, update.HITLRequest)
	assert.Equal(t, "redis or postgres for session storage?", update.HITLRequest.Prompt)
	assert.Equal(t, []string{"redis", "postgres"}, update.HITLRequest.Options)
}

func TestCodesmithNodeEnforcesWorkspaceContainment(t *testing.T) {
	dir := t.TempDir()
	content := `{"../escape.go":"package main"}`
	deps := testDeps(t, "codesmith", content)
	s := state.New("sess-1", dir, "build a cli", 3)
	s.AgentOutputs["architect"] = ArchitectOutput{FileLayout: []string{"../escape.go"}}

	_, err := runNode(t, Codesmith(), deps, s)
	require.Error(t, err)
}

func TestCodesmithNodeWritesWithinWorkspace(t *testing.T) {
	dir := t.TempDir()
	content := `{"main.go":"package main\n"}`
	deps := testDeps(t, "codesmith", content)
	s := state.New("sess-1", dir, "build a cli", 3)
	s.AgentOutputs["architect"] = ArchitectOutput{FileLayout: []string{"main.go"}}

	update := runToCompletion(t, Codesmith(), deps, s)

	out, ok := update.AgentOutputValue.(CodesmithOutput)
	require.True(t, ok)
	require.Len(t, out.GeneratedFiles, 1)
	assert.Equal(t, "main.go", out.GeneratedFiles[0].Path)
}

func TestReviewFixNodePassesImmediatelyWhenQualityMeetsThreshold(t *testing.T) {
	reviewResponse := `{"quality_score":0.95,"feedback":"looks good"}`
	deps := testDepsSequence(t, "reviewfix", reviewResponse)
	s := state.New("sess-1", t.TempDir(), "build a cli", 3)
	s.AgentOutputs["architect"] = ArchitectOutput{DesignDoc: "a cli"}
	s.AgentOutputs["codesmith"] = CodesmithOutput{GeneratedFiles: []state.GeneratedFile{{Path: "notes.txt", BytesWritten: 10}}}

	updates := runAllUpdates(t, ReviewFix(), deps, s)
	require.Len(t, updates, 1, "no fixer call should occur when quality already meets the threshold")

	out, ok := updates[0].AgentOutputValue.(ReviewFixOutput)
	require.True(t, ok)
	assert.InDelta(t, 0.95, out.QualityScore, 1e-9)
	assert.False(t, out.Degraded)
	assert.False(t, updates[0].IncrementReviewIteration)
}

func TestReviewFixNodeFixesThenPasses(t *testing.T) {
	lowReview := `{"quality_score":0.20,"feedback":"missing error handling"}`
	fixResponse := `{"notes.txt":"fixed content"}`
	highReview := `{"quality_score":0.95,"feedback":"now looks good"}`
	deps := testDepsSequence(t, "reviewfix", lowReview, fixResponse, highReview)
	s := state.New("sess-1", t.TempDir(), "build a cli", 3)
	s.AgentOutputs["architect"] = ArchitectOutput{DesignDoc: "a cli"}
	s.AgentOutputs["codesmith"] = CodesmithOutput{GeneratedFiles: []state.GeneratedFile{{Path: "notes.txt", BytesWritten: 10}}}

	updates := runAllUpdates(t, ReviewFix(), deps, s)
	require.Len(t, updates, 2, "one fixing iteration then a passing iteration")

	assert.True(t, updates[0].IncrementReviewIteration)
	finalOut, ok := updates[1].AgentOutputValue.(ReviewFixOutput)
	require.True(t, ok)
	assert.InDelta(t, 0.95, finalOut.QualityScore, 1e-9)
	assert.False(t, finalOut.Degraded)
}

func TestReviewFixNodeSurrendersAtMaxIterations(t *testing.T) {
	lowReview := `{"quality_score":0.20,"feedback":"still broken"}`
	fixResponse := `{"notes.txt":"still broken content"}`
	deps := testDepsSequence(t, "reviewfix", lowReview, fixResponse)
	s := state.New("sess-1", t.TempDir(), "build a cli", 0)
	s.AgentOutputs["architect"] = ArchitectOutput{DesignDoc: "a cli"}
	s.AgentOutputs["codesmith"] = CodesmithOutput{GeneratedFiles: []state.GeneratedFile{{Path: "notes.txt", BytesWritten: 10}}}

	updates := runAllUpdates(t, ReviewFix(), deps, s)
	require.Len(t, updates, 1, "max_review_iterations=0 surrenders after a single review pass")

	out, ok := updates[0].AgentOutputValue.(ReviewFixOutput)
	require.True(t, ok)
	assert.True(t, out.Degraded)
	assert.False(t, updates[0].IncrementReviewIteration)
}

func TestResponderNodeSetsResponseReady(t *testing.T) {
	deps := testDeps(t, "responder", "Here is a summary of what was built.")
	s := state.New("sess-1", "/tmp/ws", "build a cli", 3)

	update := runToCompletion(t, Responder(), deps, s)

	require.NotNil(t, update.ResponseReady)
	assert.True(t, *update.ResponseReady)
}

// runNode drains a Node.Run iterator, returning the terminal Update's copy
// or the first error encountered.
func runNode(t *testing.T, n Node, deps *Deps, s *state.WorkflowState) (state.Update, error) {
	t.Helper()

	var final state.Update
	var runErr error
	for ev, err := range n.Run(context.Background(), deps, s) {
		if err != nil {
			runErr = err
			break
		}
		if ev.Update != nil {
			final = *ev.Update
		}
	}
	return final, runErr
}

func runToCompletion(t *testing.T, n Node, deps *Deps, s *state.WorkflowState) state.Update {
	t.Helper()
	update, err := runNode(t, n, deps, s)
	require.NoError(t, err)
	return update
}

// runAllUpdates drains every Update a Node.Run yields, in order, for nodes
// (like reviewfix) that may yield more than one per call.
func runAllUpdates(t *testing.T, n Node, deps *Deps, s *state.WorkflowState) []state.Update {
	t.Helper()

	var updates []state.Update
	for ev, err := range n.Run(context.Background(), deps, s) {
		require.NoError(t, err)
		if ev.Update != nil {
			updates = append(updates, *ev.Update)
		}
	}
	return updates
}
