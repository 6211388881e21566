// Package memory implements a workspace-scoped memory store: an embedded
// vector store backed by chromem-go, persisted under
// workspace_path/.ki_autoagent_ws/memory, with single-writer advisory
// locking via gofrs/flock. No pluggable backend or embedder indirection:
// chromem-go is the one concrete store and computes its own embeddings
// (see DESIGN.md).
package memory

import "time"

// Record is one stored memory entry: a piece of agent-produced or
// user-supplied context, embedded and indexed for similarity search.
type Record struct {
	ID        string
	AgentName string
	SessionID string
	Content   string
	Metadata  map[string]string
	CreatedAt time.Time
}

// SearchResult pairs a Record with its similarity score against a query.
type SearchResult struct {
	Record     Record
	Similarity float64
}
