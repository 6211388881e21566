package supervisor

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ki-autoagent/engine/internal/state"
)

func TestRouteInitialGoesToResearch(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "build a thing", 3)
	d := Route(s)
	assert.Equal(t, AgentResearch, d.NextAgent)
	assert.False(t, d.Done)
	assert.False(t, d.Suspend)
}

func TestRouteFollowsStraightLine(t *testing.T) {
	cases := []struct {
		last string
		want string
	}{
		{AgentResearch, AgentArchitect},
		{AgentArchitect, AgentCodesmith},
		{AgentCodesmith, AgentReviewFix},
		{AgentReviewFix, AgentResponder},
	}
	for _, c := range cases {
		s := state.New("sess-1", "/tmp/ws", "q", 3)
		s.AgentHistory = []string{c.last}
		d := Route(s)
		assert.Equal(t, c.want, d.NextAgent, "last=%s", c.last)
	}
}

func TestRouteDoneWhenResponseReady(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.ResponseReady = true
	d := Route(s)
	assert.True(t, d.Done)
}

func TestRouteDoneAtHardIterationCap(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.SupervisorIteration = state.HardIterationCap
	d := Route(s)
	assert.True(t, d.Done)
}

func TestRouteSuspendsWhenHITLPendingWithoutResponse(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.HITLPending = true
	d := Route(s)
	assert.True(t, d.Suspend)
}

func TestRouteDoesNotSuspendWhenHITLResponseArrived(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.HITLPending = true
	s.HITLResponse = "approved"
	s.AgentHistory = []string{AgentArchitect}
	d := Route(s)
	assert.False(t, d.Suspend)
	assert.Equal(t, AgentCodesmith, d.NextAgent)
}

func TestRouteEscalatesAfterThreeRetriableFailures(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	for i := 0; i < 3; i++ {
		s.Errors = append(s.Errors, state.ErrorRecord{AgentName: AgentCodesmith, Retriable: true})
	}
	d := Route(s)
	assert.True(t, d.Suspend)
}

func TestRouteEscalatesNearIterationCap(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.SupervisorIteration = int(0.8 * float64(state.HardIterationCap))
	d := Route(s)
	assert.True(t, d.Suspend)
}

func TestRouteRetriesSameAgentOnRetriableFailure(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.AgentHistory = []string{AgentCodesmith}
	s.Errors = append(s.Errors, state.ErrorRecord{AgentName: AgentCodesmith, Retriable: true})
	d := Route(s)
	assert.Equal(t, AgentCodesmith, d.NextAgent)
	assert.False(t, d.Suspend)
}

func TestRouteStopsRetryingAfterMaxAttempts(t *testing.T) {
	s := state.New("sess-1", "/tmp/ws", "q", 3)
	s.AgentHistory = []string{AgentCodesmith}
	for i := 0; i < maxSameAgentRetries+1; i++ {
		s.Errors = append(s.Errors, state.ErrorRecord{AgentName: AgentCodesmith, Retriable: true})
	}
	d := Route(s)
	assert.True(t, d.Suspend, "after exceeding retry attempts, the failure-count escalation rule takes over")
}
