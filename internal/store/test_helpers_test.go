package store

import (
	"context"
	"path/filepath"
	"testing"
)

// createTestStore creates a new file-backed store for testing.
func createTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// createTestSession writes a session with fixed metadata.
func createTestSession(t *testing.T, s *Store, token string) Session {
	t.Helper()
	sess := Session{
		Token:         token,
		Graph:         "chain",
		SpecHash:      "test-hash",
		EngineVersion: "0.1.0",
		IRVersion:     "1",
	}
	if err := s.WriteSession(context.Background(), sess); err != nil {
		t.Fatalf("WriteSession() failed: %v", err)
	}
	return sess
}
