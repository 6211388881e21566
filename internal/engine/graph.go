package engine

import "github.com/ki-autoagent/engine/internal/agents"

// Graph is the compiled set of agent nodes keyed by name. The Supervisor
// decides the sequence; Graph only resolves a name to a runnable Node.
type Graph struct {
	nodes map[string]agents.Node
}

// NewGraph builds the fixed five-node graph.
func NewGraph() *Graph {
	g := &Graph{nodes: make(map[string]agents.Node, 5)}
	for _, n := range []agents.Node{
		agents.Research(),
		agents.Architect(),
		agents.Codesmith(),
		agents.ReviewFix(),
		agents.Responder(),
	} {
		g.nodes[n.Name()] = n
	}
	return g
}

// Node resolves agentName to its Node, ok=false if unknown.
func (g *Graph) Node(agentName string) (agents.Node, bool) {
	n, ok := g.nodes[agentName]
	return n, ok
}
