package outbox

import (
	"path/filepath"
	"testing"
)

func openTestOutbox(t *testing.T) *Outbox {
	t.Helper()
	ob, err := Open(filepath.Join(t.TempDir(), "outbox.db"))
	if err != nil {
		t.Fatalf("open outbox: %v", err)
	}
	t.Cleanup(func() { _ = ob.Close() })
	return ob
}

func TestOutboxEnqueueOrder(t *testing.T) {
	ob := openTestOutbox(t)
	for _, evt := range []string{"first", "second", "third"} {
		if _, err := ob.Enqueue(evt, map[string]string{"k": evt}); err != nil {
			t.Fatalf("enqueue %s: %v", evt, err)
		}
	}
	entries, err := ob.Pending(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	want := []string{"first", "second", "third"}
	for i, entry := range entries {
		if entry.Type != want[i] {
			t.Fatalf("expected enqueue order %v, got %s at %d", want, entry.Type, i)
		}
	}
}

func TestOutboxMarkDelivered(t *testing.T) {
	ob := openTestOutbox(t)
	seq, err := ob.Enqueue("evt", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := ob.MarkDelivered(seq); err != nil {
		t.Fatalf("mark delivered: %v", err)
	}
	entries, err := ob.Pending(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected empty outbox, got %d entries", len(entries))
	}
}

func TestOutboxRecordAttemptDropsAtCap(t *testing.T) {
	ob := openTestOutbox(t)
	seq, err := ob.Enqueue("evt", nil)
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	for i := 0; i < 2; i++ {
		dropped, err := ob.RecordAttempt(seq, 3)
		if err != nil {
			t.Fatalf("attempt %d: %v", i, err)
		}
		if dropped {
			t.Fatalf("entry dropped before the cap at attempt %d", i)
		}
	}
	dropped, err := ob.RecordAttempt(seq, 3)
	if err != nil {
		t.Fatalf("final attempt: %v", err)
	}
	if !dropped {
		t.Fatalf("expected drop at the retry cap")
	}
	entries, err := ob.Pending(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("expected dropped entry gone, got %d", len(entries))
	}
}

func TestOutboxSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outbox.db")
	ob, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := ob.Enqueue("evt", map[string]string{"k": "v"}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := ob.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()
	entries, err := reopened.Pending(10)
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(entries) != 1 || entries[0].Attributes["k"] != "v" {
		t.Fatalf("expected persisted entry, got %v", entries)
	}
}
