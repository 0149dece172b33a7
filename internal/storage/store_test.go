package storage

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixil98/go-testutil"
)

// mockStoreSpec implements ValidatingSpec for testing FileStore
type mockStoreSpec struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
}

func (s *mockStoreSpec) Validate() error {
	return nil
}

func writeAsset(t *testing.T, dir, id string, spec *mockStoreSpec) {
	t.Helper()

	asset := Asset[*mockStoreSpec]{
		Version:    1,
		Identifier: Identifier(id),
		Spec:       spec,
	}
	data, err := json.Marshal(asset)
	if err != nil {
		t.Fatalf("failed to marshal test asset: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, id+".json"), data, 0644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}
}

func TestNewFileStore(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "path", store.path, tmpDir)
	testutil.AssertEqual(t, "records length", len(store.records), 0)
}

func TestNewFileStore_NonExistentDirectory(t *testing.T) {
	_, err := NewFileStore[*mockStoreSpec]("/nonexistent/path/that/does/not/exist")
	if err == nil {
		t.Error("expected error for non-existent directory")
	}
}

func TestNewFileStore_WithExistingAssets(t *testing.T) {
	tmpDir := t.TempDir()

	writeAsset(t, tmpDir, "item-1", &mockStoreSpec{Name: "First", Value: 1})
	writeAsset(t, tmpDir, "item-2", &mockStoreSpec{Name: "Second", Value: 2})

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	testutil.AssertEqual(t, "record count", len(store.records), 2)

	item1 := store.Get("item-1")
	if item1 == nil {
		t.Fatal("expected item-1 to be loaded")
	}
	testutil.AssertEqual(t, "item-1 name", item1.Name, "First")
	testutil.AssertEqual(t, "item-1 value", item1.Value, 1)
}

func TestFileStore_SaveAndReload(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := store.Save("item-1", &mockStoreSpec{Name: "First", Value: 1}); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	got := store.Get("item-1")
	if got == nil {
		t.Fatal("expected item-1 after save")
	}
	testutil.AssertEqual(t, "name", got.Name, "First")

	// A fresh store over the same directory sees the saved record.
	reloaded, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected reload error: %v", err)
	}
	got = reloaded.Get("item-1")
	if got == nil {
		t.Fatal("expected item-1 after reload")
	}
	testutil.AssertEqual(t, "reloaded name", got.Name, "First")
}

func TestFileStore_Delete(t *testing.T) {
	tmpDir := t.TempDir()

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.Save("item-1", &mockStoreSpec{Name: "First", Value: 1}); err != nil {
		t.Fatalf("unexpected save error: %v", err)
	}

	if err := store.Delete("item-1"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if store.Get("item-1") != nil {
		t.Error("expected item-1 gone after delete")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "item-1.json")); !os.IsNotExist(err) {
		t.Error("expected backing file removed")
	}

	// Deleting an unknown id is a no-op.
	if err := store.Delete("never-existed"); err != nil {
		t.Errorf("unexpected error deleting unknown id: %v", err)
	}
}

func TestFileStore_DuplicateKey(t *testing.T) {
	tmpDir := t.TempDir()

	// Two files carrying the same identifier.
	asset := Asset[*mockStoreSpec]{
		Version:    1,
		Identifier: "item-1",
		Spec:       &mockStoreSpec{Name: "First", Value: 1},
	}
	data, err := json.Marshal(asset)
	if err != nil {
		t.Fatalf("failed to marshal test asset: %v", err)
	}
	for _, name := range []string{"a.json", "b.json"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), data, 0644); err != nil {
			t.Fatalf("failed to write test file: %v", err)
		}
	}

	_, err = NewFileStore[*mockStoreSpec](tmpDir)
	testutil.AssertErrorContains(t, err, "duplicate key")
}

func TestFileStore_GetAll(t *testing.T) {
	tmpDir := t.TempDir()

	writeAsset(t, tmpDir, "item-1", &mockStoreSpec{Name: "First", Value: 1})
	writeAsset(t, tmpDir, "item-2", &mockStoreSpec{Name: "Second", Value: 2})

	store, err := NewFileStore[*mockStoreSpec](tmpDir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	all := store.GetAll()
	testutil.AssertEqual(t, "count", len(all), 2)

	// The returned map is a copy.
	delete(all, "item-1")
	if store.Get("item-1") == nil {
		t.Error("mutating GetAll result must not affect the store")
	}
}
