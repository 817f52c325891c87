package session

import (
	"errors"
	"testing"
	"time"

	"github.com/moonlight-recovery/note-builder/internal/note"
)

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	created := store.Create()
	if created.ID == "" {
		t.Fatal("Expected non-empty session ID")
	}

	got, err := store.Get(created.ID)
	if err != nil {
		t.Fatalf("Get() failed: %v", err)
	}
	if got.ID != created.ID {
		t.Errorf("Expected session %s, got %s", created.ID, got.ID)
	}
}

func TestStore_GetMissing(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	_, err := store.Get("no-such-session")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_Update(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	created := store.Create()

	updated, err := store.Update(created.ID, func(s *Session) {
		s.Transcript = "edited transcript"
		s.Reviewed = true
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}
	if updated.Transcript != "edited transcript" || !updated.Reviewed {
		t.Errorf("Expected update applied, got %+v", updated)
	}

	got, _ := store.Get(created.ID)
	if got.Transcript != "edited transcript" {
		t.Error("Expected update visible on subsequent Get")
	}
}

func TestStore_UpdateMissing(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	_, err := store.Update("no-such-session", func(s *Session) {})
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStore_SnapshotIsolation(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	created := store.Create()
	_, err := store.Update(created.ID, func(s *Session) {
		s.Note = &note.Record{ClientName: "John D."}
	})
	if err != nil {
		t.Fatalf("Update() failed: %v", err)
	}

	snapshot, _ := store.Get(created.ID)
	snapshot.Transcript = "local mutation"

	got, _ := store.Get(created.ID)
	if got.Transcript == "local mutation" {
		t.Error("Snapshot mutation must not leak into the store")
	}
}

func TestStore_Delete(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	created := store.Create()
	store.Delete(created.ID)

	if _, err := store.Get(created.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing session is a no-op
	store.Delete(created.ID)
}

func TestStore_Expire(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	stale := store.Create()
	fresh := store.Create()

	// Age the first session past the TTL, then sweep.
	store.mu.Lock()
	store.sessions[stale.ID].UpdatedAt = time.Now().Add(-2 * time.Minute)
	store.mu.Unlock()
	store.expire(time.Now())

	if _, err := store.Get(stale.ID); !errors.Is(err, ErrNotFound) {
		t.Error("Expected stale session to be expired")
	}
	if _, err := store.Get(fresh.ID); err != nil {
		t.Errorf("Expected fresh session to survive the sweep, got %v", err)
	}
}

func TestStore_Len(t *testing.T) {
	store := NewStore(time.Minute)
	defer store.Close()

	if store.Len() != 0 {
		t.Errorf("Expected empty store, got %d", store.Len())
	}
	store.Create()
	store.Create()
	if store.Len() != 2 {
		t.Errorf("Expected 2 sessions, got %d", store.Len())
	}
}
