package localstate_test

import (
	"os"
	"path/filepath"
	"testing"

	"novachat/internal/domain"
	"novachat/internal/localstate"
)

func TestLoadAbsentReturnsNil(t *testing.T) {
	c := localstate.New(filepath.Join(t.TempDir(), "identity.json"), nil)
	id, err := c.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil identity, got %+v", id)
	}
}

func TestSaveLoadClear(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "identity.json")
	c := localstate.New(path, nil)

	want := domain.Identity{
		Username:      "alice",
		Avatar:        "a.png",
		CreatedAt:     1700000000000,
		SavedContacts: []string{"bob"},
	}
	if err := c.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("expected 0600 permissions, got %o", perm)
	}

	got, err := c.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got == nil || got.Username != want.Username || got.CreatedAt != want.CreatedAt {
		t.Fatalf("loaded %+v, want %+v", got, want)
	}
	if len(got.SavedContacts) != 1 || got.SavedContacts[0] != "bob" {
		t.Fatalf("saved contacts round trip failed: %v", got.SavedContacts)
	}

	if err := c.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, got %v", err)
	}
	// Clearing twice is fine.
	if err := c.Clear(); err != nil {
		t.Fatalf("repeat clear: %v", err)
	}
}

func TestCorruptCacheIsDiscarded(t *testing.T) {
	path := filepath.Join(t.TempDir(), "identity.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	c := localstate.New(path, nil)

	id, err := c.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if id != nil {
		t.Fatalf("expected nil for corrupt cache, got %+v", id)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected corrupt file cleared, got %v", err)
	}
}
