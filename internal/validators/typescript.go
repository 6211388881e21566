package validators

import (
	"context"
	"os/exec"
	"strings"
	"time"
)

type typescriptValidator struct{}

func (typescriptValidator) Language() Language    { return LangTypeScript }
func (typescriptValidator) Name() string          { return "typescript" }
func (typescriptValidator) Threshold() float64    { return 0.90 }
func (typescriptValidator) Timeout() time.Duration { return 60 * time.Second }

func (v typescriptValidator) Run(ctx context.Context, dir string) Result {
	result := Result{ValidatorName: v.Name(), Language: v.Language(), ThresholdApplied: v.Threshold()}

	if !lookPath("tsc") {
		return result
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "tsc", "--noEmit")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()

	result.Ran = true
	result.Stdout = string(output)
	result.DurationMillis = time.Since(start).Milliseconds()
	result.ExitCode = exitCode(err)
	result.ErrorCount = strings.Count(result.Stdout, "error TS")

	return result
}
