package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cadenza/internal/cache"
	"cadenza/internal/catalog"
	"cadenza/internal/metadata"
	"cadenza/internal/store"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestPipeline(t *testing.T) (*Pipeline, *catalog.Catalog) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cat := catalog.New(st, logger)
	extractor := metadata.NewExtractor(
		[]string{".mp3", ".flac"}, logger, cache.NewArtworkCache(time.Minute))
	return New(cat, extractor, logger, Config{}), cat
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", path, err)
	}
}

func TestNewClampsWorkerBounds(t *testing.T) {
	tests := []struct {
		name     string
		in       Config
		min, max int
	}{
		{"Defaults", Config{}, 4, 16},
		{"MaxBelowMin", Config{MinWorkers: 20, MaxWorkers: 10}, 20, 20},
		{"MaxUnsetWithLargeMin", Config{MinWorkers: 20}, 20, 20},
		{"ValidRangeKept", Config{MinWorkers: 2, MaxWorkers: 8}, 2, 8},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(nil, nil, logrus.New(), tt.in)
			if p.config.MinWorkers != tt.min || p.config.MaxWorkers != tt.max {
				t.Errorf("Got workers %d..%d, want %d..%d",
					p.config.MinWorkers, p.config.MaxWorkers, tt.min, tt.max)
			}
		})
	}
}

// The test files are not decodable audio; extraction falls back to
// filename-derived titles, which is all the classification logic needs.
func TestPipeline(t *testing.T) {
	pipeline, cat := newTestPipeline(t)
	ctx := context.Background()

	root := t.TempDir()
	writeFile(t, filepath.Join(root, "one.mp3"), "first")
	writeFile(t, filepath.Join(root, "two.mp3"), "second")
	writeFile(t, filepath.Join(root, "notes.txt"), "not audio")

	folder, err := cat.EnsureFolder(ctx, root)
	if err != nil {
		t.Fatalf("Failed to ensure folder: %v", err)
	}

	scan := func(t *testing.T) models.BatchSummary {
		t.Helper()
		paths, err := pipeline.Discover(root)
		if err != nil {
			t.Fatalf("Failed to discover files: %v", err)
		}
		summary, err := pipeline.Scan(ctx, folder, paths)
		if err != nil {
			t.Fatalf("Failed to scan: %v", err)
		}
		return summary
	}

	t.Run("FirstScanIngestsAudioOnly", func(t *testing.T) {
		summary := scan(t)
		if summary.New != 2 {
			t.Errorf("Expected 2 new tracks, got %+v", summary)
		}

		tracks, err := cat.ListTracks(ctx, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to list tracks: %v", err)
		}
		if len(tracks) != 2 {
			t.Fatalf("Expected 2 tracks, got %d", len(tracks))
		}
		for _, track := range tracks {
			if track.Title != "one" && track.Title != "two" {
				t.Errorf("Unexpected track title %q", track.Title)
			}
		}
	})

	t.Run("RescanSkipsUnchangedFiles", func(t *testing.T) {
		summary := scan(t)
		if summary.New != 0 || summary.Updated != 0 || summary.Skipped != 2 {
			t.Errorf("Expected everything skipped, got %+v", summary)
		}
	})

	t.Run("TouchedFileIsReingested", func(t *testing.T) {
		path := filepath.Join(root, "two.mp3")
		writeFile(t, path, "second, longer now")
		future := time.Now().Add(time.Hour)
		if err := os.Chtimes(path, future, future); err != nil {
			t.Fatalf("Failed to bump mtime: %v", err)
		}

		summary := scan(t)
		if summary.Updated != 1 || summary.Skipped != 1 {
			t.Errorf("Expected one update and one skip, got %+v", summary)
		}
	})

	t.Run("BackdatedFileIsSkipped", func(t *testing.T) {
		path := filepath.Join(root, "one.mp3")
		past := time.Now().Add(-time.Hour)
		if err := os.Chtimes(path, past, past); err != nil {
			t.Fatalf("Failed to backdate mtime: %v", err)
		}

		summary := scan(t)
		if summary.Updated != 0 || summary.Skipped != 2 {
			t.Errorf("Expected the backdated file to be skipped, got %+v", summary)
		}
	})

	t.Run("NewFolderArtworkTriggersReingestion", func(t *testing.T) {
		writeFile(t, filepath.Join(root, "cover.jpg"), "\xFF\xD8 jpeg bytes")

		summary := scan(t)
		if summary.Updated != 2 {
			t.Errorf("Expected both tracks re-ingested for artwork, got %+v", summary)
		}

		tracks, err := cat.ListTracks(ctx, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to list tracks: %v", err)
		}
		for _, track := range tracks {
			if track.ArtworkID == "" {
				t.Errorf("Track %q missing artwork id after cover appeared", track.Title)
			}
		}
	})

	t.Run("DeletedFileIsPruned", func(t *testing.T) {
		if err := os.Remove(filepath.Join(root, "one.mp3")); err != nil {
			t.Fatalf("Failed to delete file: %v", err)
		}

		scan(t)

		tracks, err := cat.ListTracks(ctx, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to list tracks: %v", err)
		}
		if len(tracks) != 1 || tracks[0].Title != "two" {
			t.Errorf("Expected only the surviving track, got %d tracks", len(tracks))
		}
	})

	t.Run("PartialIngestNeverPrunes", func(t *testing.T) {
		path := filepath.Join(root, "three.mp3")
		writeFile(t, path, "third")

		summary, err := pipeline.Ingest(ctx, folder, []string{path})
		if err != nil {
			t.Fatalf("Failed to ingest single file: %v", err)
		}
		if summary.New != 1 {
			t.Errorf("Expected one new track, got %+v", summary)
		}

		tracks, err := cat.ListTracks(ctx, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to list tracks: %v", err)
		}
		if len(tracks) != 2 {
			t.Errorf("Partial ingest must not remove other tracks, got %d", len(tracks))
		}
	})
}
