package memory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"github.com/philippgille/chromem-go"
)

const collectionName = "workflow_memory"
const vectorsFileName = "vectors.gob.gz"

// Store is the embedded, workspace-scoped vector memory store. It uses
// chromem-go's own default embedding function (local, no network call)
// rather than taking pre-computed embeddings from a separate package.
type Store struct {
	db         *chromem.DB
	collection *chromem.Collection
	lock       *writerLock
	dir        string
	mu         sync.RWMutex
	dim        int
}

// Open opens (creating if absent) the vector store under
// workspacePath/.ki_autoagent_ws/memory.
func Open(workspacePath string) (*Store, error) {
	dir := filepath.Join(workspacePath, ".ki_autoagent_ws", "memory")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating memory store dir: %w", err)
	}

	lock := newWriterLock(dir)
	if err := lock.Acquire(); err != nil {
		return nil, err
	}

	dbPath := filepath.Join(dir, vectorsFileName)
	db, err := chromem.NewPersistentDB(dbPath, true)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("opening memory store at %s: %w", dbPath, err)
	}

	col, err := db.GetOrCreateCollection(collectionName, nil, nil)
	if err != nil {
		_ = lock.Release()
		return nil, fmt.Errorf("creating memory collection: %w", err)
	}

	return &Store{db: db, collection: col, lock: lock, dir: dir}, nil
}

// Put stores rec, generating an ID if unset and embedding its content via
// chromem-go's default local embedding function.
func (s *Store) Put(ctx context.Context, rec Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	metadata := map[string]string{
		"agent_name": rec.AgentName,
		"session_id": rec.SessionID,
		"created_at": rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
	for k, v := range rec.Metadata {
		metadata[k] = v
	}

	doc := chromem.Document{
		ID:       rec.ID,
		Content:  rec.Content,
		Metadata: metadata,
	}
	if err := s.collection.AddDocument(ctx, doc); err != nil {
		return "", fmt.Errorf("storing memory record: %w", err)
	}

	if s.dim == 0 {
		if stored, err := s.collection.GetByID(ctx, rec.ID); err == nil {
			s.dim = len(stored.Embedding)
		}
	}

	return rec.ID, nil
}

// Search returns the topK records most similar to query, optionally
// restricted to a single session via sessionID ("" means unrestricted).
func (s *Store) Search(ctx context.Context, query string, topK int, sessionID string) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where map[string]string
	if sessionID != "" {
		where = map[string]string{"session_id": sessionID}
	}

	n := topK
	if count := s.collection.Count(); count < n {
		n = count
	}
	if n == 0 {
		return nil, nil
	}

	results, err := s.collection.Query(ctx, query, n, where, nil)
	if err != nil {
		return nil, fmt.Errorf("searching memory: %w", err)
	}

	out := make([]SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, SearchResult{
			Record: Record{
				ID:        r.ID,
				Content:   r.Content,
				AgentName: r.Metadata["agent_name"],
				SessionID: r.Metadata["session_id"],
				Metadata:  r.Metadata,
			},
			Similarity: float64(r.Similarity),
		})
	}
	return out, nil
}

// Stats summarizes the memory store's current size.
type Stats struct {
	Count      int
	Dimensions int
	SizeBytes  int64
}

// Stats reports the collection's document count, the embedding dimension
// learned from the first stored record, and the on-disk size of the
// persisted vector file.
func (s *Store) Stats() (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var sizeBytes int64
	info, err := os.Stat(filepath.Join(s.dir, vectorsFileName))
	if err == nil {
		sizeBytes = info.Size()
	} else if !os.IsNotExist(err) {
		return Stats{}, fmt.Errorf("stat memory store file: %w", err)
	}

	return Stats{
		Count:      s.collection.Count(),
		Dimensions: s.dim,
		SizeBytes:  sizeBytes,
	}, nil
}

// Close releases the writer lock. chromem-go persists synchronously on
// every mutation when opened with NewPersistentDB, so no explicit flush
// is required.
func (s *Store) Close() error {
	return s.lock.Release()
}
