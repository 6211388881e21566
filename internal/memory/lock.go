package memory

import (
	"fmt"
	"path/filepath"

	"github.com/gofrs/flock"
)

// writerLock enforces single-writer access to the on-disk chromem-go
// store: two engine processes pointed at the same workspace must not
// write concurrently, since chromem-go itself has no cross-process
// coordination of its own.
type writerLock struct {
	flock *flock.Flock
}

func newWriterLock(storeDir string) *writerLock {
	return &writerLock{flock: flock.New(filepath.Join(storeDir, ".writer.lock"))}
}

// Acquire makes a single non-blocking attempt to take the exclusive lock,
// returning an error at once if another process already holds it.
func (w *writerLock) Acquire() error {
	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("acquiring memory store lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("memory store is locked by another process")
	}
	return nil
}

func (w *writerLock) Release() error {
	return w.flock.Unlock()
}
