package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "gateway.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestIdempotencyRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	cached, err := s.LookupIdempotency(ctx, "alice", "key-1", "hash-a")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if cached != nil {
		t.Fatalf("expected miss for unseen key, got %+v", cached)
	}

	if err := s.SaveIdempotency(ctx, "alice", "key-1", "hash-a", 201, []byte(`{"ok":true}`)); err != nil {
		t.Fatalf("save: %v", err)
	}
	cached, err = s.LookupIdempotency(ctx, "alice", "key-1", "hash-a")
	if err != nil {
		t.Fatalf("lookup after save: %v", err)
	}
	if cached == nil || cached.Status != 201 || string(cached.Body) != `{"ok":true}` {
		t.Fatalf("unexpected cached response %+v", cached)
	}
}

func TestIdempotencyMismatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SaveIdempotency(ctx, "alice", "key-1", "hash-a", 200, []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := s.LookupIdempotency(ctx, "alice", "key-1", "hash-b"); !errors.Is(err, ErrIdempotencyMismatch) {
		t.Fatalf("expected mismatch error, got %v", err)
	}
}

func TestIdempotencyScopedByActor(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	if err := s.SaveIdempotency(ctx, "alice", "key-1", "hash-a", 200, []byte("x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	cached, err := s.LookupIdempotency(ctx, "bob", "key-1", "hash-z")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if cached != nil {
		t.Fatalf("keys must be scoped per actor, got %+v", cached)
	}
}

func TestAuditLogInsert(t *testing.T) {
	s := openTestStore(t)
	err := s.InsertAuditLog(context.Background(), AuditEntry{
		Actor:          "alice",
		Method:         "POST",
		Path:           "/v1/transactions",
		ResponseStatus: 201,
	})
	if err != nil {
		t.Fatalf("insert audit: %v", err)
	}
}
