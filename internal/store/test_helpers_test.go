package store

import (
	"path/filepath"
	"testing"
)

var testCollections = []string{"config", "due-items", "pending-notifications"}

// createTestStore creates a new store in a temp directory for testing.
func createTestStore(t *testing.T, required ...string) *Store {
	t.Helper()
	if len(required) == 0 {
		required = testCollections
	}
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path, required...)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// tableExists checks sqlite_master directly, bypassing the store API.
func tableExists(t *testing.T, s *Store, collection string) bool {
	t.Helper()
	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?",
		"kv_"+collection,
	).Scan(&n)
	if err != nil {
		t.Fatalf("query sqlite_master: %v", err)
	}
	return n == 1
}
