package engine

import (
	"context"
	"iter"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ki-autoagent/engine/internal/agents"
	"github.com/ki-autoagent/engine/internal/checkpoint"
	"github.com/ki-autoagent/engine/internal/config"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/state"
)

// scriptedProvider picks a canned response by matching a marker substring
// of each node's system instruction, for driving a full five-node run
// without needing access to the unexported per-call agent-name context key.
type scriptedProvider struct {
	byMarker map[string]string
}

func (p *scriptedProvider) Name() string { return "scripted" }
func (p *scriptedProvider) Close() error { return nil }
func (p *scriptedProvider) GenerateContent(ctx context.Context, req *llm.Request) iter.Seq2[*llm.Response, error] {
	return func(yield func(*llm.Response, error) bool) {
		var content string
		for marker, resp := range p.byMarker {
			if strings.Contains(req.SystemInstruction, marker) {
				content = resp
				break
			}
		}
		yield(&llm.Response{Content: content, FinishReason: llm.FinishStop, Usage: &llm.Usage{}}, nil)
	}
}

func testEngine(t *testing.T, byAgent map[string]string) *Engine {
	t.Helper()

	agentNames := []string{"research", "architect", "codesmith", "reviewfix", "responder"}
	bindings := make(map[string]config.AgentBinding, len(agentNames))
	for _, name := range agentNames {
		bindings[name] = config.AgentBinding{
			AgentName: name, Provider: config.ProviderAnthropic,
			Model: "claude-sonnet-4-20250514", Temperature: 0.2, MaxTokens: 1024, TimeoutSecs: 30,
		}
	}
	cfg := &config.Config{Agents: bindings, MaxReviewIterations: 3}

	registry := llm.NewRegistry(nil)
	registry.Register(config.ProviderAnthropic, &scriptedProvider{byMarker: byAgent})

	deps := &agents.Deps{LLM: registry, Config: cfg}

	store, err := checkpoint.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(cfg, deps, store, NewEventBus())
}

func happyPathScript() map[string]string {
	return map[string]string{
		"research agent":    "range-over-func iterators ship in Go 1.23.\n\nSources:\n[1] https://go.dev/blog/range-functions\n",
		"software architect": `{"design_doc":"single package cli","file_layout":["README.md"],"components":["cli"],"dependencies":[]}`,
		"codesmith agent":   `{"README.md":"# demo\n"}`,
		"code reviewer":     `{"quality_score":0.9,"feedback":"looks good"}`,
		"fixer agent":       `{}`,
		"final responder":   "Built a small CLI per your request.",
	}
}

func TestEngineRunCompletesHappyPath(t *testing.T) {
	eng := testEngine(t, happyPathScript())

	result, err := eng.Run(context.Background(), "sess-1", "build a cli", t.TempDir(), nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.False(t, result.Suspended)
	assert.True(t, result.State.ResponseReady)
	assert.Equal(t, "responder", result.State.LastAgent)
	assert.Empty(t, result.State.Errors)

	out, ok := result.State.AgentOutputs["responder"].(agents.ResponderOutput)
	require.True(t, ok)
	assert.Contains(t, out.Response, "CLI")
}

func TestEngineRunPersistsFinalCheckpoint(t *testing.T) {
	eng := testEngine(t, happyPathScript())

	result, err := eng.Run(context.Background(), "sess-2", "build a cli", t.TempDir(), nil)
	require.NoError(t, err)

	rec, ok, err := eng.checkpoints.Load(context.Background(), "sess-2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, result.State.SessionID, rec.State.SessionID)
	assert.Equal(t, "done", rec.GraphPosition)
}

func TestEngineReviewFixSurrendersAfterMaxIterationsRatherThanHanging(t *testing.T) {
	script := happyPathScript()
	script["code reviewer"] = `{"quality_score":0.1,"feedback":"needs more work"}`
	eng := testEngine(t, script)

	result, err := eng.Run(context.Background(), "sess-3", "build a cli", t.TempDir(), nil)
	require.NoError(t, err)
	assert.False(t, result.Suspended)
	reviewOut, ok := result.State.AgentOutputs["reviewfix"].(agents.ReviewFixOutput)
	require.True(t, ok)
	assert.True(t, reviewOut.Degraded)
}

func TestEngineResumeSuspendsAgainWhenHITLStillUnanswered(t *testing.T) {
	eng := testEngine(t, happyPathScript())
	ctx := context.Background()

	s := state.New("sess-5", t.TempDir(), "build a cli", 3)
	s.LastAgent = "reviewfix"
	s.HITLPending = true
	s.HITLRequest = &state.HITLRequest{Reason: "quality gate needs a human call"}
	require.NoError(t, eng.checkpoints.Save(ctx, "sess-5", s, "reviewfix"))

	result, err := eng.Resume(ctx, "sess-5", "", nil)
	require.NoError(t, err)
	assert.True(t, result.Suspended)
	assert.True(t, result.State.HITLPending)
}

func TestEngineResumeContinuesAfterHITLResponse(t *testing.T) {
	eng := testEngine(t, happyPathScript())
	ctx := context.Background()

	s := state.New("sess-6", t.TempDir(), "build a cli", 3)
	s.LastAgent = "reviewfix"
	s.HITLPending = true
	s.HITLRequest = &state.HITLRequest{Reason: "quality gate needs a human call"}
	s.AgentOutputs["research"] = happyPathResearchOutput()
	s.AgentOutputs["architect"] = happyPathArchitectOutput()
	s.AgentOutputs["codesmith"] = happyPathCodesmithOutput()
	s.AgentOutputs["reviewfix"] = agents.ReviewFixOutput{QualityScore: 0.9, Feedback: "looks good"}
	require.NoError(t, eng.checkpoints.Save(ctx, "sess-6", s, "reviewfix"))

	result, err := eng.Resume(ctx, "sess-6", "approved", nil)
	require.NoError(t, err)
	assert.False(t, result.Suspended)
	assert.True(t, result.State.ResponseReady)
	assert.Equal(t, "approved", result.State.HITLResponse)
}

func happyPathResearchOutput() agents.ResearchOutput {
	return agents.ResearchOutput{Findings: "cli scaffolding is well documented"}
}

func happyPathArchitectOutput() agents.ArchitectOutput {
	return agents.ArchitectOutput{DesignDoc: "single package cli", FileLayout: []string{"README.md"}}
}

func happyPathCodesmithOutput() agents.CodesmithOutput {
	return agents.CodesmithOutput{GeneratedFiles: []state.GeneratedFile{{Path: "README.md", BytesWritten: 8}}}
}

func TestEngineCancelStopsInFlightRun(t *testing.T) {
	eng := testEngine(t, happyPathScript())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := eng.Run(ctx, "sess-4", "build a cli", t.TempDir(), nil)
	require.Error(t, err)
}

func TestEngineCleanupClosesCollaborators(t *testing.T) {
	eng := testEngine(t, happyPathScript())
	assert.NoError(t, eng.Cleanup())
}
