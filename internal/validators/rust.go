package validators

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

type rustValidator struct{}

func (rustValidator) Language() Language     { return LangRust }
func (rustValidator) Name() string           { return "rust" }
func (rustValidator) Threshold() float64     { return 0.85 }
func (rustValidator) Timeout() time.Duration { return 120 * time.Second }

// Run chains `cargo check` then `cargo clippy`.
func (v rustValidator) Run(ctx context.Context, dir string) Result {
	result := Result{ValidatorName: v.Name(), Language: v.Language(), ThresholdApplied: v.Threshold()}

	if !lookPath("cargo") {
		return result
	}

	start := time.Now()
	result.Ran = true

	checkCmd := exec.CommandContext(ctx, "cargo", "check", "--message-format=short")
	checkCmd.Dir = dir
	checkOutput, checkErr := checkCmd.CombinedOutput()

	var combined strings.Builder
	combined.Write(checkOutput)

	exitCodeVal := exitCode(checkErr)
	errorCount := strings.Count(string(checkOutput), "error[")
	errorCount += strings.Count(string(checkOutput), "error:")

	if checkErr == nil {
		clippyCmd := exec.CommandContext(ctx, "cargo", "clippy", "--message-format=short")
		clippyCmd.Dir = dir
		clippyOutput, clippyErr := clippyCmd.CombinedOutput()
		combined.WriteString(string(clippyOutput))
		if clippyErr != nil {
			exitCodeVal = exitCode(clippyErr)
			errorCount += strings.Count(string(clippyOutput), "error[")
		}
	}

	result.Stdout = combined.String()
	result.ExitCode = exitCodeVal
	result.ErrorCount = errorCount
	result.DurationMillis = time.Since(start).Milliseconds()

	return result
}
