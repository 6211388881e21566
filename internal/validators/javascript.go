package validators

import (
	"context"
	"encoding/json"
	"os/exec"
	"time"
)

type javascriptValidator struct{}

func (javascriptValidator) Language() Language     { return LangJavaScript }
func (javascriptValidator) Name() string           { return "javascript" }
func (javascriptValidator) Threshold() float64     { return 0.75 }
func (javascriptValidator) Timeout() time.Duration { return 60 * time.Second }

// eslintFileReport mirrors the subset of ESLint's --format json output this
// validator needs to count errors.
type eslintFileReport struct {
	ErrorCount int `json:"errorCount"`
}

// Run shells out to eslint: exit 0 success, 1 lint errors, 2 fatal
// (config/parse failure). A fatal run yields no JSON report, so ErrorCount
// stays 0 and Aggregate treats it as a pass with a logged warning.
func (v javascriptValidator) Run(ctx context.Context, dir string) Result {
	result := Result{ValidatorName: v.Name(), Language: v.Language(), ThresholdApplied: v.Threshold()}

	if !lookPath("eslint") {
		return result
	}

	start := time.Now()
	cmd := exec.CommandContext(ctx, "eslint", ".", "--format", "json")
	cmd.Dir = dir
	output, err := cmd.CombinedOutput()

	result.Ran = true
	result.Stdout = string(output)
	result.DurationMillis = time.Since(start).Milliseconds()
	result.ExitCode = exitCode(err)

	var reports []eslintFileReport
	if jsonErr := json.Unmarshal(output, &reports); jsonErr == nil {
		for _, r := range reports {
			result.ErrorCount += r.ErrorCount
		}
	}

	return result
}
