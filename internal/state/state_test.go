package state

import (
	"testing"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeAppendsAgentHistory(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "build a thing", 3)
	agent := "research"

	next, err := Merge(s, Update{LastAgent: &agent})
	require.NoError(t, err)
	assert.Equal(t, []string{"research"}, next.AgentHistory)
	assert.Empty(t, s.AgentHistory, "original snapshot must be untouched")
}

func TestMergeRejectsSupervisorIterationOverflow(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "q", 3)
	s.SupervisorIteration = HardIterationCap

	_, err := Merge(s, Update{IncrementSupervisorIteration: true})
	require.Error(t, err)
	kind, ok := apperr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, apperr.KindIterationBudget, kind)
}

func TestMergeRejectsReviewIterationOverflow(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "q", 1)
	s.ReviewIteration = 1

	_, err := Merge(s, Update{IncrementReviewIteration: true})
	assert.Error(t, err)
}

func TestMergeResponseReadyIsSticky(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "q", 3)
	done := true
	next, err := Merge(s, Update{ResponseReady: &done})
	require.NoError(t, err)
	assert.True(t, next.ResponseReady)

	notDone := false
	_, err = Merge(next, Update{ResponseReady: &notDone})
	assert.Error(t, err)
}

func TestMergeClampsQualityScore(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "q", 3)
	tooHigh := 1.5

	next, err := Merge(s, Update{LastQualityScore: &tooHigh})
	require.NoError(t, err)
	assert.Equal(t, 1.0, next.LastQualityScore)
}

func TestMergeHITLResponseClearsPending(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "q", 3)
	pending := true
	s, err := Merge(s, Update{HITLPending: &pending})
	require.NoError(t, err)
	assert.True(t, s.HITLPending)

	resp := "approved"
	s, err = Merge(s, Update{HITLResponse: &resp})
	require.NoError(t, err)
	assert.False(t, s.HITLPending)
	assert.Equal(t, "approved", s.HITLResponse)
}

func TestMergeBuildErrorsPatchIsAdditive(t *testing.T) {
	s := New("sess-1", "/tmp/ws", "q", 3)
	s, err := Merge(s, Update{BuildErrorsPatch: map[string]string{"typescript": "2 errors"}})
	require.NoError(t, err)

	s, err = Merge(s, Update{BuildErrorsPatch: map[string]string{"python": "1 error"}})
	require.NoError(t, err)

	assert.Len(t, s.BuildErrors, 2)
}
