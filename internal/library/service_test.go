package library

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestContentHash(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mp3"), "aaa")
	writeFile(t, filepath.Join(root, "b.mp3"), "bbb")

	paths := []string{
		filepath.Join(root, "a.mp3"),
		filepath.Join(root, "b.mp3"),
	}

	first, err := contentHash(root, paths)
	if err != nil {
		t.Fatalf("Failed to hash: %v", err)
	}

	t.Run("StableAcrossOrderAndReruns", func(t *testing.T) {
		reversed := []string{paths[1], paths[0]}
		again, err := contentHash(root, reversed)
		if err != nil {
			t.Fatalf("Failed to hash: %v", err)
		}
		if again != first {
			t.Error("Hash must not depend on listing order")
		}
	})

	t.Run("TouchedFileChangesHash", func(t *testing.T) {
		future := time.Now().Add(time.Hour)
		if err := os.Chtimes(paths[0], future, future); err != nil {
			t.Fatalf("Failed to bump mtime: %v", err)
		}

		changed, err := contentHash(root, paths)
		if err != nil {
			t.Fatalf("Failed to hash: %v", err)
		}
		if changed == first {
			t.Error("Hash must change when a file's mtime changes")
		}
	})

	t.Run("RemovedFileChangesHash", func(t *testing.T) {
		current, err := contentHash(root, paths)
		if err != nil {
			t.Fatalf("Failed to hash: %v", err)
		}

		fewer, err := contentHash(root, paths[:1])
		if err != nil {
			t.Fatalf("Failed to hash: %v", err)
		}
		if fewer == current {
			t.Error("Hash must change when a file disappears from the listing")
		}
	})
}
