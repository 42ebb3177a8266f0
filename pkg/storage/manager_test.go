package storage

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestMessageFilename(t *testing.T) {
	received := time.Date(2024, 1, 31, 15, 42, 33, 0, time.UTC)

	tests := []struct {
		subject string
		gmailID string
		want    string
	}{
		{"Invoice January", "18C2F9A4B3D1", "20240131_154233_invoice-january_18c2f9a4b3d1.eml"},
		{"Re: [urgent!!] status?", "a1b2c3d4e5f6", "20240131_154233_re-urgent-status_a1b2c3d4e5f6.eml"},
		{"", "a1b2c3d4e5f6", "20240131_154233_no-subject_a1b2c3d4e5f6.eml"},
		{"!!!", "a1b2c3d4e5f6", "20240131_154233_no-subject_a1b2c3d4e5f6.eml"},
	}

	for _, tt := range tests {
		got := MessageFilename(received, tt.subject, tt.gmailID)
		if got != tt.want {
			t.Errorf("MessageFilename(%q, %q) = %q, want %q", tt.subject, tt.gmailID, got, tt.want)
		}
	}
}

func TestMessageFilenameTruncatesLongSubjects(t *testing.T) {
	received := time.Date(2024, 1, 31, 15, 42, 33, 0, time.UTC)
	got := MessageFilename(received, strings.Repeat("word ", 40), "a1b2c3d4e5f6")
	base := strings.TrimSuffix(got, ".eml")
	parts := strings.SplitN(base, "_", 3)
	if len(parts) != 3 {
		t.Fatalf("unexpected filename shape: %q", got)
	}
	slug := strings.TrimSuffix(parts[2], "_a1b2c3d4e5f6")
	if len(slug) > 61 {
		t.Errorf("subject slug not truncated: %d chars", len(slug))
	}
}

func TestSaveMessageAndIsSaved(t *testing.T) {
	dir := t.TempDir()
	mgr, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if mgr.IsSaved("18c2f9a4b3d1") {
		t.Error("message reported saved before any write")
	}

	name := MessageFilename(time.Now(), "hello", "18c2f9a4b3d1")
	if err := mgr.SaveMessage(strings.NewReader("raw message bytes"), name); err != nil {
		t.Fatalf("SaveMessage: %v", err)
	}

	if !mgr.IsSaved("18c2f9a4b3d1") {
		t.Error("message not reported saved after write")
	}
	if !mgr.IsSaved("18C2F9A4B3D1") {
		t.Error("saved lookup should ignore id case")
	}
	if mgr.SavedCount() != 1 {
		t.Errorf("SavedCount = %d, want 1", mgr.SavedCount())
	}

	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("reading saved file: %v", err)
	}
	if string(data) != "raw message bytes" {
		t.Errorf("saved content = %q", data)
	}

	// No temp file left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Errorf("leftover temp file %s", entry.Name())
		}
	}
}

func TestNewManagerScansExistingFiles(t *testing.T) {
	dir := t.TempDir()
	existing := "20240131_154233_invoice_18c2f9a4b3d1.eml"
	if err := os.WriteFile(filepath.Join(dir, existing), []byte("x"), 0644); err != nil {
		t.Fatal(err)
	}
	// Files outside the naming convention are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("y"), 0644); err != nil {
		t.Fatal(err)
	}

	mgr, err := NewManager(dir)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	if !mgr.IsSaved("18c2f9a4b3d1") {
		t.Error("existing message not detected by scan")
	}
	if mgr.SavedCount() != 1 {
		t.Errorf("SavedCount = %d, want 1", mgr.SavedCount())
	}
}
