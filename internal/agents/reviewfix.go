package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"strings"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/state"
	"github.com/ki-autoagent/engine/internal/validators"
)

// ReviewFixOutput is the agent_outputs["reviewfix"] blob.
type ReviewFixOutput struct {
	QualityScore float64 `json:"quality_score"`
	Feedback     string  `json:"feedback"`
	Degraded     bool    `json:"degraded"`
}

type reviewVerdict struct {
	QualityScore float64 `json:"quality_score"`
	Feedback     string  `json:"feedback"`
}

const reviewSystemPrompt = `You are a code reviewer. Given a design document and the list of
generated files, assess correctness and quality against the design. Respond
with a single JSON object {"quality_score": <number 0-1>, "feedback": <string>}.
Respond with JSON only.`

const fixSystemPrompt = `You are a fixer agent. Given review feedback and build validation
errors, produce corrected contents for the files that need changes. Respond
with a single JSON object mapping each relative file path to its full,
corrected content. Only include files that changed. Respond with JSON only.`

// reviewfixNode runs the full Reviewing -> Validating -> Scoring -> Decide
// -> [Fixing -> Reviewing] | Done sub-state-machine internally
// across one Run call, yielding one Update per iteration so the engine
// checkpoints between passes. The Supervisor's routing table treats
// "last agent = reviewfix" as a single step regardless of how many internal
// iterations it took (§4.7).
type reviewfixNode struct{}

// ReviewFix is the Node for the "reviewfix" agent.
func ReviewFix() Node { return reviewfixNode{} }

func (reviewfixNode) Name() string { return "reviewfix" }

func (reviewfixNode) Run(ctx context.Context, deps *Deps, s *state.WorkflowState) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		codesmith, ok := s.AgentOutputs["codesmith"].(CodesmithOutput)
		if !ok {
			yield(Event{}, apperr.New(apperr.KindInvariantViolation, "reviewfix ran before codesmith produced output", nil))
			return
		}
		architect, _ := s.AgentOutputs["architect"].(ArchitectOutput)

		var feedback string
		if prior, ok := s.AgentOutputs["reviewfix"].(ReviewFixOutput); ok {
			feedback = prior.Feedback
		}

		reviewIteration := s.ReviewIteration
		paths := filePaths(codesmith.GeneratedFiles)

		for {
			if !yield(progress("reviewfix", "reviewing generated files"), nil) {
				return
			}

			verdict, err := review(ctx, deps, architect, codesmith, feedback)
			if err != nil {
				yield(Event{}, err)
				return
			}
			score := clamp01(verdict.QualityScore)

			if !yield(progress("reviewfix", "running build validators"), nil) {
				return
			}

			languages := validators.DetectLanguages(s.WorkspacePath, paths)
			agg := validators.AggregateWithMetrics(ctx, s.WorkspacePath, languages, deps.Metrics)
			if !agg.Passed {
				score = min01(score, 0.50)
			}
			buildErrors := buildErrorsFromAggregate(agg)

			agentName := "reviewfix"
			passed := agg.Passed

			if score >= agg.ThresholdApplied {
				update := state.Update{
					LastAgent:             &agentName,
					LastQualityScore:      &score,
					BuildValidationPassed: &passed,
					BuildErrorsPatch:      buildErrors,
					AgentOutputKey:        "reviewfix",
					AgentOutputValue:      ReviewFixOutput{QualityScore: score, Feedback: verdict.Feedback},
				}
				yield(Event{Update: &update}, nil)
				return
			}

			if reviewIteration >= s.MaxReviewIterations {
				update := state.Update{
					LastAgent:             &agentName,
					LastQualityScore:      &score,
					BuildValidationPassed: &passed,
					BuildErrorsPatch:      buildErrors,
					AgentOutputKey:        "reviewfix",
					AgentOutputValue:      ReviewFixOutput{QualityScore: score, Feedback: verdict.Feedback, Degraded: true},
				}
				yield(Event{Update: &update}, nil)
				return
			}

			if !yield(progress("reviewfix", "applying fixes"), nil) {
				return
			}
			if err := fix(ctx, deps, s, verdict.Feedback, buildErrors); err != nil {
				yield(Event{}, err)
				return
			}
			reviewIteration++
			feedback = verdict.Feedback

			update := state.Update{
				LastAgent:                &agentName,
				LastQualityScore:         &score,
				BuildValidationPassed:    &passed,
				BuildErrorsPatch:         buildErrors,
				IncrementReviewIteration: true,
				AgentOutputKey:           "reviewfix",
				AgentOutputValue:         ReviewFixOutput{QualityScore: score, Feedback: verdict.Feedback},
			}
			if !yield(Event{Update: &update}, nil) {
				return
			}
		}
	}
}

func review(ctx context.Context, deps *Deps, architect ArchitectOutput, codesmith CodesmithOutput, priorFeedback string) (reviewVerdict, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Design document:\n%s\n\nGenerated files:\n", architect.DesignDoc)
	for _, f := range codesmith.GeneratedFiles {
		fmt.Fprintf(&b, "- %s (%d bytes)\n", f.Path, f.BytesWritten)
	}
	if priorFeedback != "" {
		fmt.Fprintf(&b, "\nPrevious review feedback:\n%s\n", priorFeedback)
	}

	resp, err := generate(ctx, deps, "reviewfix", reviewSystemPrompt,
		[]llm.Message{{Role: llm.RoleUser, Content: b.String()}})
	if err != nil {
		return reviewVerdict{}, err
	}

	var verdict reviewVerdict
	if err := json.Unmarshal([]byte(resp.Content), &verdict); err != nil {
		return reviewVerdict{}, apperr.New(apperr.KindMCPMalformed, "reviewer response was not valid JSON", err)
	}
	return verdict, nil
}

func fix(ctx context.Context, deps *Deps, s *state.WorkflowState, feedback string, buildErrors map[string]string) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Review feedback:\n%s\n\nBuild validation errors:\n", feedback)
	for name, errText := range buildErrors {
		fmt.Fprintf(&b, "- %s: %s\n", name, errText)
	}

	resp, err := generate(ctx, deps, "reviewfix", fixSystemPrompt,
		[]llm.Message{{Role: llm.RoleUser, Content: b.String()}})
	if err != nil {
		return err
	}

	var filesByPath map[string]string
	if err := json.Unmarshal([]byte(resp.Content), &filesByPath); err != nil {
		return apperr.New(apperr.KindMCPMalformed, "fixer response was not valid JSON", err)
	}

	if deps.MCP == nil {
		return nil
	}
	for relPath, content := range filesByPath {
		absPath, err := resolveWorkspacePath(s.WorkspacePath, relPath)
		if err != nil {
			return err
		}
		if _, err := deps.MCP.CallTool(ctx, fileWriteTool, map[string]any{
			"path":    absPath,
			"content": content,
		}); err != nil {
			return err
		}
	}
	return nil
}

func buildErrorsFromAggregate(agg validators.AggregateResult) map[string]string {
	out := make(map[string]string, len(agg.Results))
	for name, res := range agg.Results {
		if !res.Ran || (res.ExitCode == 0 && res.ErrorCount == 0) {
			continue
		}
		if res.Stderr != "" {
			out[name] = res.Stderr
			continue
		}
		out[name] = fmt.Sprintf("%d errors", res.ErrorCount)
	}
	return out
}

func filePaths(files []state.GeneratedFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func min01(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}
