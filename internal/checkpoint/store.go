// Package checkpoint persists WorkflowState snapshots keyed by session id,
// backed by a local SQLite file at
// workspace_path/.ki_autoagent_ws/cache/workflow.db. Save/Load/Clear own
// their own table directly rather than piggybacking on a session service
// (see DESIGN.md).
package checkpoint

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/ki-autoagent/engine/internal/apperr"
	"github.com/ki-autoagent/engine/internal/state"
)

const schema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	session_id     TEXT PRIMARY KEY,
	state_snapshot BLOB NOT NULL,
	graph_position TEXT NOT NULL,
	created_at     TEXT NOT NULL
);
`

// Record is one persisted checkpoint, with StateSnapshot already decoded
// into a *state.WorkflowState.
type Record struct {
	SessionID     string
	State         *state.WorkflowState
	GraphPosition string
	CreatedAt     time.Time
}

// Store is the checkpoint KV, serializing writes per session_id.
type Store struct {
	db        *sql.DB
	locksMu   sync.Mutex
	locks     map[string]*sync.Mutex
}

// Open opens (creating if absent) the checkpoint database under
// workspacePath/.ki_autoagent_ws/cache/workflow.db.
func Open(workspacePath string) (*Store, error) {
	dir := filepath.Join(workspacePath, ".ki_autoagent_ws", "cache")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating checkpoint dir: %w", err)
	}

	dbPath := filepath.Join(dir, "workflow.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening checkpoint store at %s: %w", dbPath, err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating checkpoints table: %w", err)
	}

	return &Store{db: db, locks: make(map[string]*sync.Mutex)}, nil
}

// Save upserts the checkpoint for sessionID. Each session_id's writes are
// serialized against each other, but different sessions proceed concurrently.
func (s *Store) Save(ctx context.Context, sessionID string, snapshot *state.WorkflowState, graphPosition string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	payload, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("serializing checkpoint state: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (session_id, state_snapshot, graph_position, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			state_snapshot = excluded.state_snapshot,
			graph_position = excluded.graph_position,
			created_at     = excluded.created_at
	`, sessionID, payload, graphPosition, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("saving checkpoint for session %q: %w", sessionID, err)
	}
	return nil
}

// Load retrieves the checkpoint for sessionID. It returns (nil, false, nil)
// when no checkpoint exists, distinguishing "fresh session" from an error.
func (s *Store) Load(ctx context.Context, sessionID string) (*Record, bool, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT state_snapshot, graph_position, created_at FROM checkpoints WHERE session_id = ?`, sessionID)

	var payload []byte
	var graphPosition, createdAtStr string
	if err := row.Scan(&payload, &graphPosition, &createdAtStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading checkpoint for session %q: %w", sessionID, err)
	}

	var snapshot state.WorkflowState
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return nil, false, apperr.New(apperr.KindInvariantViolation,
			fmt.Sprintf("checkpoint for session %q is corrupt", sessionID), err)
	}

	createdAt, err := time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		createdAt = time.Time{}
	}

	return &Record{
		SessionID:     sessionID,
		State:         &snapshot,
		GraphPosition: graphPosition,
		CreatedAt:     createdAt,
	}, true, nil
}

// Clear removes the checkpoint for sessionID, a no-op if none exists.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	_, err := s.db.ExecContext(ctx, `DELETE FROM checkpoints WHERE session_id = ?`, sessionID)
	if err != nil {
		return fmt.Errorf("clearing checkpoint for session %q: %w", sessionID, err)
	}
	return nil
}

// Sessions lists every session_id with a persisted checkpoint, for the
// status CLI's session inventory.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT session_id FROM checkpoints ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("listing checkpoint sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) lockFor(sessionID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()

	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}
