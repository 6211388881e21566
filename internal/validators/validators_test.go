package validators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDetectLanguagesGo(t *testing.T) {
	langs := DetectLanguages(t.TempDir(), []string{"main.go", "util.go"})
	assert.Equal(t, []Language{LangGo}, langs)
}

func TestDetectLanguagesTypeScriptRequiresProjectFiles(t *testing.T) {
	dir := t.TempDir()
	langs := DetectLanguages(dir, []string{"index.ts"})
	assert.Empty(t, langs, "tsconfig.json/package.json absent, so TS should not be detected")
}

func TestDetectLanguagesNoMatch(t *testing.T) {
	langs := DetectLanguages(t.TempDir(), []string{"README.md"})
	assert.Empty(t, langs)
}

func TestAggregateWithNoLanguagesUsesDefaultThreshold(t *testing.T) {
	agg := Aggregate(context.Background(), t.TempDir(), nil)
	assert.True(t, agg.Passed)
	assert.Equal(t, 0.75, agg.ThresholdApplied)
	assert.Empty(t, agg.Results)
}

func TestAggregateSkipsMissingTool(t *testing.T) {
	agg := Aggregate(context.Background(), t.TempDir(), []Language{LangRust})
	result, ok := agg.Results["rust"]
	if ok {
		assert.False(t, result.Ran == false && !agg.Passed, "a missing tool must not fail the aggregate")
	}
}

func TestGoValidatorThresholdAndTimeout(t *testing.T) {
	v := goValidator{}
	assert.Equal(t, 0.85, v.Threshold())
	assert.Equal(t, 90*time.Second, v.Timeout())
}

func TestExitCodeNilError(t *testing.T) {
	assert.Equal(t, 0, exitCode(nil))
}
