// Package testing provides shared test fixtures for the pipeline's internal
// packages.
package testing

import (
	"fmt"
	"os"
	"testing"

	"github.com/aristath/marketpipe/internal/store"
)

// NewTestStore creates a file-backed sqlite database with the full schema
// migrated, isolated per-test via a unique temp path. Returns the store and
// an idempotent cleanup function.
func NewTestStore(t *testing.T, name string) (*store.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()
	_ = os.Remove(tmpPath) // store.New creates it fresh

	db, err := store.New(store.Config{
		Path:    tmpPath,
		Profile: store.ProfileCache,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("failed to create test store %s: %v", name, err)
	}

	closed := false
	return db, func() {
		if closed {
			return
		}
		closed = true
		if err := db.Close(); err != nil {
			t.Logf("warning: failed to close test store %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
			t.Logf("warning: failed to remove temporary database file %s: %v", tmpPath, err)
		}
		walPath := tmpPath + "-wal"
		shmPath := tmpPath + "-shm"
		_ = os.Remove(walPath)
		_ = os.Remove(shmPath)
	}
}
