package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"path/filepath"
	"strings"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/llm"
	"github.com/ki-autoagent/engine/internal/mcpclient"
	"github.com/ki-autoagent/engine/internal/state"
)

// CodesmithOutput is the agent_outputs["codesmith"] blob.
type CodesmithOutput struct {
	GeneratedFiles []state.GeneratedFile `json:"generated_files"`
}

const codesmithSystemPrompt = `You are a codesmith agent. Given a design document and a target file
layout, produce the full contents of every file in the layout. Respond with
a single JSON object mapping each relative file path (exactly as given in
the layout) to its full file content as a string. Respond with JSON only.`

// fileWriteTool is the MCP tool this node calls to persist generated files.
// It expects args {"path": <absolute path inside the workspace>, "content": <string>}
// from a server named "filesystem" in config.MCPServers.
const fileWriteTool = "filesystem.write_file"

type codesmithNode struct{}

// Codesmith is the Node for the "codesmith" agent.
func Codesmith() Node { return codesmithNode{} }

func (codesmithNode) Name() string { return "codesmith" }

func (codesmithNode) Run(ctx context.Context, deps *Deps, s *state.WorkflowState) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		architect, ok := s.AgentOutputs["architect"].(ArchitectOutput)
		if !ok {
			yield(Event{}, apperr.New(apperr.KindInvariantViolation, "codesmith ran before architect produced output", nil))
			return
		}

		if !yield(progress("codesmith", "generating file contents"), nil) {
			return
		}

		prompt := fmt.Sprintf("Design document:\n%s\n\nFile layout:\n%s",
			architect.DesignDoc, strings.Join(architect.FileLayout, "\n"))
		resp, err := generate(ctx, deps, "codesmith", codesmithSystemPrompt,
			[]llm.Message{{Role: llm.RoleUser, Content: prompt}})
		if err != nil {
			yield(Event{}, err)
			return
		}

		var filesByPath map[string]string
		if err := json.Unmarshal([]byte(resp.Content), &filesByPath); err != nil {
			yield(Event{}, apperr.New(apperr.KindMCPMalformed, "codesmith response was not valid JSON", err))
			return
		}

		type plannedWrite struct {
			relPath string
			content string
		}
		var planned []plannedWrite
		var calls []mcpclient.Call
		for _, relPath := range architect.FileLayout {
			content, ok := filesByPath[relPath]
			if !ok {
				continue
			}

			absPath, err := resolveWorkspacePath(s.WorkspacePath, relPath)
			if err != nil {
				yield(Event{}, err)
				return
			}

			if !yield(progress("codesmith", "writing "+relPath), nil) {
				return
			}

			planned = append(planned, plannedWrite{relPath: relPath, content: content})
			calls = append(calls, mcpclient.Call{
				QualifiedName: fileWriteTool,
				Args:          map[string]any{"path": absPath, "content": content},
			})
		}

		var results []mcpclient.CallResult
		if deps.MCP != nil {
			results = deps.MCP.CallMany(ctx, calls)
		}

		var generated []state.GeneratedFile
		for i, w := range planned {
			if results != nil {
				if err := results[i].Err; err != nil {
					yield(Event{}, err)
					return
				}
			}
			generated = append(generated, state.GeneratedFile{Path: w.relPath, BytesWritten: len(w.content)})
		}

		agentName := "codesmith"
		update := state.Update{
			LastAgent:        &agentName,
			AgentOutputKey:   "codesmith",
			AgentOutputValue: CodesmithOutput{GeneratedFiles: generated},
		}
		yield(Event{Update: &update}, nil)
	}
}

// resolveWorkspacePath joins workspacePath with relPath and verifies the
// result stays inside workspacePath, so every generated file path is
// checked before any write.
func resolveWorkspacePath(workspacePath, relPath string) (string, error) {
	root := filepath.Clean(workspacePath)
	joined := filepath.Clean(filepath.Join(root, relPath))

	if joined != root && !strings.HasPrefix(joined, root+string(filepath.Separator)) {
		return "", apperr.New(apperr.KindInvariantViolation,
			fmt.Sprintf("generated path %q escapes workspace_path %q", relPath, workspacePath), nil)
	}
	return joined, nil
}
