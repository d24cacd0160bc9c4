package recent

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/aminssutt/AurisTraining/internal/session"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "data", "sessions.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveListUpdateDelete(t *testing.T) {
	s := openTemp(t)

	first := &session.Session{ID: "a", VehicleName: "Toyota Auris Hybride 2015", Status: session.StatusCreated}
	second := &session.Session{ID: "b", VehicleName: "Peugeot 208", Status: session.StatusCreated}
	if err := s.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	time.Sleep(5 * time.Millisecond)
	if err := s.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	entries, err := s.List(0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 || entries[0].ID != "b" || entries[1].ID != "a" {
		t.Fatalf("expected newest first, got %+v", entries)
	}

	if err := s.UpdateStatus("a", session.StatusReady); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	if err := s.UpdateStatus("missing", session.StatusReady); err != nil {
		t.Errorf("unknown id should be ignored, got %v", err)
	}

	entries, _ = s.List(1)
	if len(entries) != 1 {
		t.Fatalf("limit not applied: %+v", entries)
	}

	if err := s.Delete("b"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	entries, _ = s.List(0)
	if len(entries) != 1 || entries[0].ID != "a" || entries[0].LastStatus != session.StatusReady {
		t.Errorf("unexpected entries %+v", entries)
	}
	if entries[0].VehicleName != "Toyota Auris Hybride 2015" {
		t.Errorf("vehicle name = %q", entries[0].VehicleName)
	}
}

func TestStore_ReopenKeepsEntries(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.Save(&session.Session{ID: "a", VehicleName: "Auris", Status: session.StatusProcessing}); err != nil {
		t.Fatal(err)
	}
	s.Close()

	s, err = Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	entries, err := s.List(0)
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one entry after reopen, got %v, %v", entries, err)
	}
}
