package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestHashFile(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "snippets.toml")
	content := []byte("[[snippets]]\ncode = \"@em\"\n")

	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	hash1, size1, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("HashFile failed: %v", err)
	}
	if size1 != int64(len(content)) {
		t.Errorf("expected size %d, got %d", len(content), size1)
	}

	hash2, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("second HashFile failed: %v", err)
	}
	if hash1 != hash2 {
		t.Error("same file should produce same hash")
	}

	if err := os.WriteFile(testFile, []byte("different content"), 0600); err != nil {
		t.Fatalf("failed to modify test file: %v", err)
	}
	hash3, _, err := HashFile(testFile)
	if err != nil {
		t.Fatalf("third HashFile failed: %v", err)
	}
	if hash1 == hash3 {
		t.Error("different content should produce different hash")
	}
}

func TestHashFileNotFound(t *testing.T) {
	if _, _, err := HashFile("/nonexistent/file.txt"); err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestWatcherCreation(t *testing.T) {
	w, err := New([]string{"relative.db"}, 0)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	paths := w.WatchedPaths()
	if len(paths) != 1 || !filepath.IsAbs(paths[0]) {
		t.Errorf("expected one absolute path, got %v", paths)
	}
	if w.debounce != 250*time.Millisecond {
		t.Errorf("expected default debounce, got %v", w.debounce)
	}
}

func TestWatcherStartMissingDir(t *testing.T) {
	w, err := New([]string{filepath.Join(t.TempDir(), "nope", "file")}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	defer w.Stop()

	if err := w.Start(); err == nil {
		t.Error("expected error for missing directory")
	}
}

func TestWatcherReportsContentChange(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "snippets.json")
	if err := os.WriteFile(testFile, []byte("{}"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	w, err := New([]string{testFile}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	content := []byte(`{"snippets":[]}`)
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	select {
	case event := <-w.Events():
		if event.Path != testFile {
			t.Errorf("expected path %s, got %s", testFile, event.Path)
		}
		if event.Size != int64(len(content)) {
			t.Errorf("expected size %d, got %d", len(content), event.Size)
		}
		if event.Removed {
			t.Error("file should not be reported removed")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestWatcherIgnoresUnchangedContent(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "snippets.yaml")
	content := []byte("snippets: []\n")
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	w, err := New([]string{testFile}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	// Rewrite identical bytes and touch an unrelated file.
	if err := os.WriteFile(testFile, content, 0600); err != nil {
		t.Fatalf("failed to rewrite: %v", err)
	}
	if err := os.WriteFile(filepath.Join(tmpDir, "other.txt"), []byte("x"), 0600); err != nil {
		t.Fatalf("failed to write other file: %v", err)
	}

	select {
	case event := <-w.Events():
		t.Errorf("unexpected event for %s", event.Path)
	case <-time.After(500 * time.Millisecond):
	}
}

func TestWatcherDebounce(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "debounce.toml")

	w, err := New([]string{testFile}, 400*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	for i := 0; i < 5; i++ {
		if err := os.WriteFile(testFile, []byte("v"+string(rune('0'+i))), 0600); err != nil {
			t.Fatalf("failed to write: %v", err)
		}
		time.Sleep(50 * time.Millisecond)
	}

	eventCount := 0
	timeout := time.After(2 * time.Second)
	for {
		select {
		case ev := <-w.Events():
			eventCount++
			if eventCount > 1 {
				t.Error("expected only one event due to debouncing")
				return
			}
			if ev.Size != 2 {
				t.Errorf("expected final content size 2, got %d", ev.Size)
			}
		case <-timeout:
			if eventCount != 1 {
				t.Errorf("expected 1 event, got %d", eventCount)
			}
			return
		}
	}
}

func TestWatcherReportsRemoval(t *testing.T) {
	tmpDir := t.TempDir()
	testFile := filepath.Join(tmpDir, "gone.toml")
	if err := os.WriteFile(testFile, []byte("x"), 0600); err != nil {
		t.Fatalf("failed to create test file: %v", err)
	}

	w, err := New([]string{testFile}, 50*time.Millisecond)
	if err != nil {
		t.Fatalf("failed to create watcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("failed to start watcher: %v", err)
	}
	defer w.Stop()

	if err := os.Remove(testFile); err != nil {
		t.Fatalf("failed to remove: %v", err)
	}

	select {
	case event := <-w.Events():
		if !event.Removed {
			t.Error("expected removal event")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timeout waiting for event")
	}
}
