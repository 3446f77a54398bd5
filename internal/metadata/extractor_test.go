package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cadenza/internal/cache"

	"github.com/sirupsen/logrus"
)

func newTestExtractor(t *testing.T) *Extractor {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	return NewExtractor([]string{".mp3", ".flac", ".wav", ".m4a"}, logger, cache.NewArtworkCache(time.Minute))
}

func TestIsAudioFile(t *testing.T) {
	e := newTestExtractor(t)

	for _, path := range []string{"/a/b.mp3", "/a/b.FLAC", "c.wav"} {
		if !e.IsAudioFile(path) {
			t.Errorf("Expected %q to be recognized as audio", path)
		}
	}
	for _, path := range []string{"/a/b.txt", "cover.jpg", "b.ogg"} {
		if e.IsAudioFile(path) {
			t.Errorf("Expected %q to be rejected", path)
		}
	}
}

func TestExtractFallsBackToFilename(t *testing.T) {
	e := newTestExtractor(t)

	path := filepath.Join(t.TempDir(), "My Song.mp3")
	if err := os.WriteFile(path, []byte("not really audio"), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	meta, err := e.Extract(path)
	if err != nil {
		t.Fatalf("Extraction of an unreadable-tag file must not error: %v", err)
	}
	if meta.Title != "My Song" {
		t.Errorf("Expected filename-derived title, got %q", meta.Title)
	}
}

func TestExtractMissingFile(t *testing.T) {
	e := newTestExtractor(t)

	if _, err := e.Extract(filepath.Join(t.TempDir(), "gone.mp3")); err == nil {
		t.Error("Expected an error for a missing file")
	}
}

func TestFindFolderArtwork(t *testing.T) {
	e := newTestExtractor(t)
	dir := t.TempDir()

	if art := e.FindFolderArtwork(dir); art != nil {
		t.Error("Expected no artwork in empty directory")
	}

	if err := os.WriteFile(filepath.Join(dir, "cover.jpg"), []byte{0xFF, 0xD8, 0x01}, 0644); err != nil {
		t.Fatalf("Failed to write cover: %v", err)
	}
	art := e.FindFolderArtwork(dir)
	if art == nil {
		t.Fatal("Expected cover.jpg to be found")
	}
	if mime := ArtworkMimeType(art); mime != "image/jpeg" {
		t.Errorf("Expected image/jpeg, got %q", mime)
	}
}

func TestArtworkCacheRoundTrip(t *testing.T) {
	e := newTestExtractor(t)

	data := []byte{0x89, 0x50, 0x4E, 0x47, 0x01}
	id := e.CacheArtwork(data)
	if id == "" {
		t.Fatal("Expected a content-derived artwork id")
	}
	if again := e.CacheArtwork(data); again != id {
		t.Error("Identical blobs must share one id")
	}

	got, ok := e.GetArtwork(id)
	if !ok || string(got) != string(data) {
		t.Error("Cached artwork not retrievable")
	}
	if mime := ArtworkMimeType(got); mime != "image/png" {
		t.Errorf("Expected image/png, got %q", mime)
	}
}

func TestRawTagString(t *testing.T) {
	raw := map[string]interface{}{
		"TSRC":      "USUM71703861",
		"conductor": " Claudio Abbado ",
		"APIC":      []byte{1, 2, 3}, // non-string frames are skipped
	}

	if got := rawTagString(raw, "TSRC", "ISRC"); got != "USUM71703861" {
		t.Errorf("Expected ISRC frame, got %q", got)
	}
	if got := rawTagString(raw, "TPE3", "CONDUCTOR"); got != "Claudio Abbado" {
		t.Errorf("Expected trimmed conductor, got %q", got)
	}
	if got := rawTagString(raw, "APIC"); got != "" {
		t.Errorf("Expected empty string for binary frame, got %q", got)
	}
	if got := rawTagString(raw, "TPUB"); got != "" {
		t.Errorf("Expected empty string for absent frame, got %q", got)
	}
}
