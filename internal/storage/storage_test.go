package storage

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestNew(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "nested")

	store, err := New(tempDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	defer store.Close()

	if store.db == nil {
		t.Error("Store database is nil")
	}

	dbPath := filepath.Join(tempDir, "aicluster.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		t.Error("Database file was not created")
	}
}

func TestStore_Close(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}

	if err := store.Close(); err != nil {
		t.Errorf("Error closing store: %v", err)
	}

	// Test closing already closed store
	if err := store.Close(); err != nil {
		t.Errorf("Error closing already closed store: %v", err)
	}
}

func TestStore_CloseNilDB(t *testing.T) {
	store := &Store{db: nil}
	if err := store.Close(); err != nil {
		t.Errorf("Expected no error for nil db, got: %v", err)
	}
}

func TestStore_Lifecycle(t *testing.T) {
	store := newTestStore(t)

	key, err := store.Reserve()
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if key == "" {
		t.Fatal("Reserve returned empty key")
	}

	rec, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.State != StateReady || rec.State.Final() {
		t.Errorf("Expected ready state, got %v", rec.State)
	}
	if rec.State.String() != "processing" {
		t.Errorf("Expected processing, got %s", rec.State)
	}

	if err := store.Save(key, []byte(`{"accuracy":1}`)); err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	rec, err = store.Load(key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.State != StateSuccess {
		t.Errorf("Expected success state, got %v", rec.State)
	}
	if string(rec.Data) != `{"accuracy":1}` {
		t.Errorf("Unexpected data %s", rec.Data)
	}
	if rec.UpdatedAt.Before(rec.CreatedAt) {
		t.Error("UpdatedAt before CreatedAt")
	}
}

func TestStore_Fail(t *testing.T) {
	store := newTestStore(t)

	key, err := store.Reserve()
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}
	if err := store.Fail(key, errors.New("no header row found")); err != nil {
		t.Fatalf("Fail failed: %v", err)
	}

	rec, err := store.Load(key)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if rec.State != StateFailure || !rec.State.Final() {
		t.Errorf("Expected failure state, got %v", rec.State)
	}
	if rec.Error != "no header row found" {
		t.Errorf("Unexpected error message %q", rec.Error)
	}
}

func TestStore_UnknownKey(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Load("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Save("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on save, got %v", err)
	}
	if err := store.Fail("missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound on fail, got %v", err)
	}
}

func TestStore_UniqueKeys(t *testing.T) {
	store := newTestStore(t)

	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		key, err := store.Reserve()
		if err != nil {
			t.Fatalf("Reserve failed: %v", err)
		}
		if seen[key] {
			t.Fatalf("Duplicate key %s", key)
		}
		seen[key] = true
	}
}

func TestStore_Expire(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	store.now = func() time.Time { return base }
	old, err := store.Reserve()
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	store.now = func() time.Time { return base.Add(200 * 24 * time.Hour) }
	fresh, err := store.Reserve()
	if err != nil {
		t.Fatalf("Reserve failed: %v", err)
	}

	removed, err := store.Expire(base.Add(180 * 24 * time.Hour))
	if err != nil {
		t.Fatalf("Expire failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("Expected 1 removed record, got %d", removed)
	}
	if _, err := store.Load(old); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected old record to be gone, got %v", err)
	}
	if _, err := store.Load(fresh); err != nil {
		t.Errorf("Expected fresh record to remain, got %v", err)
	}

	counts, err := store.Count()
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if counts[StateReady] != 1 {
		t.Errorf("Expected 1 ready record, got %d", counts[StateReady])
	}
}
