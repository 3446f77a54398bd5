package dupes

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"cadenza/internal/catalog"
	"cadenza/internal/store"
	"cadenza/pkg/models"

	"github.com/sirupsen/logrus"
)

func newTestDetector(t *testing.T) (*Detector, *catalog.Catalog) {
	t.Helper()

	logger := logrus.New()
	logger.SetLevel(logrus.ErrorLevel) // Reduce noise in tests

	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), logger)
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cat := catalog.New(st, logger)
	return New(cat, logger), cat
}

func saveTrack(t *testing.T, cat *catalog.Catalog, path string, meta models.TrackMetadata) int64 {
	t.Helper()

	folder, err := cat.EnsureFolder(context.Background(), "/music")
	if err != nil {
		t.Fatalf("Failed to ensure folder: %v", err)
	}

	var id int64
	err = cat.Store().Write(context.Background(), func(tx *sql.Tx) error {
		trackID, _, err := catalog.SaveTrack(tx, folder.ID, path, 1, 1024, meta, "")
		id = trackID
		return err
	})
	if err != nil {
		t.Fatalf("Failed to save track %s: %v", path, err)
	}
	return id
}

func TestDetector(t *testing.T) {
	detector, cat := newTestDetector(t)
	ctx := context.Background()

	// Same recording, three rips of different quality. Artist naming and
	// duration differ within tolerance.
	flacID := saveTrack(t, cat, "/music/rip.flac", models.TrackMetadata{
		Title: "Hey Jude", Artist: "The Beatles",
		Duration: 431.0, SampleRate: 44100, BitDepth: 16, Bitrate: 900, Lossless: true,
	})
	mp3ID := saveTrack(t, cat, "/music/rip.mp3", models.TrackMetadata{
		Title: "Hey  Jude", Artist: "Beatles, The",
		Duration: 433.0, SampleRate: 44100, Bitrate: 320,
	})
	lowID := saveTrack(t, cat, "/music/rip-low.mp3", models.TrackMetadata{
		Title: "hey jude", Artist: "The Beatles",
		Duration: 432.0, SampleRate: 44100, Bitrate: 128,
	})

	// A different song by the same artist must stay out of the group.
	soloID := saveTrack(t, cat, "/music/other.mp3", models.TrackMetadata{
		Title: "Rain", Artist: "The Beatles",
		Duration: 182.0, SampleRate: 44100, Bitrate: 320,
	})

	groups, err := detector.Run(ctx)
	if err != nil {
		t.Fatalf("Failed to run detector: %v", err)
	}
	if groups != 1 {
		t.Fatalf("Expected 1 duplicate group, got %d", groups)
	}

	get := func(id int64) *models.Track {
		t.Helper()
		track, err := cat.GetTrackByID(ctx, id)
		if err != nil || track == nil {
			t.Fatalf("Failed to get track %d: %v", id, err)
		}
		return track
	}

	t.Run("LosslessWinsPrimary", func(t *testing.T) {
		primary := get(flacID)
		if primary.IsDuplicate {
			t.Error("Primary track marked duplicate")
		}
		if primary.PrimaryTrackID != nil {
			t.Error("Primary track must not reference another primary")
		}
		if primary.DuplicateGroupID == "" {
			t.Error("Primary track missing its group id")
		}
	})

	t.Run("DuplicatesReferencePrimary", func(t *testing.T) {
		primary := get(flacID)
		for _, id := range []int64{mp3ID, lowID} {
			dup := get(id)
			if !dup.IsDuplicate {
				t.Errorf("Track %d not marked duplicate", id)
			}
			if dup.PrimaryTrackID == nil || *dup.PrimaryTrackID != flacID {
				t.Errorf("Track %d does not reference the primary", id)
			}
			if dup.DuplicateGroupID != primary.DuplicateGroupID {
				t.Errorf("Track %d has a different group id", id)
			}
		}
	})

	t.Run("UnrelatedTrackUntouched", func(t *testing.T) {
		solo := get(soloID)
		if solo.IsDuplicate || solo.PrimaryTrackID != nil || solo.DuplicateGroupID != "" {
			t.Error("Unrelated track received duplicate annotations")
		}
	})

	t.Run("RerunIsStable", func(t *testing.T) {
		if _, err := detector.Run(ctx); err != nil {
			t.Fatalf("Failed to rerun detector: %v", err)
		}

		primary := get(flacID)
		if primary.IsDuplicate {
			t.Error("Primary changed across reruns")
		}
		dup := get(mp3ID)
		if dup.PrimaryTrackID == nil || *dup.PrimaryTrackID != flacID {
			t.Error("Duplicate reference changed across reruns")
		}
	})

	t.Run("RemovingDuplicatesClearsAnnotations", func(t *testing.T) {
		for _, path := range []string{"/music/rip.mp3", "/music/rip-low.mp3"} {
			if err := cat.RemoveTrackByPath(ctx, path); err != nil {
				t.Fatalf("Failed to remove %s: %v", path, err)
			}
		}
		if _, err := detector.Run(ctx); err != nil {
			t.Fatalf("Failed to rerun detector: %v", err)
		}

		primary := get(flacID)
		if primary.IsDuplicate || primary.DuplicateGroupID != "" {
			t.Error("Annotations not cleared after duplicates were removed")
		}
	})
}

func TestQualityScoreOrdering(t *testing.T) {
	lossless := trackFacts{filePath: "a.flac", lossless: true, bitDepth: 16, sampleRate: 44100, bitrate: 900}
	highMP3 := trackFacts{filePath: "a.mp3", bitrate: 320, sampleRate: 44100}
	lowMP3 := trackFacts{filePath: "b.mp3", bitrate: 128, sampleRate: 44100}

	if qualityScore(lossless) <= qualityScore(highMP3) {
		t.Error("Lossless must outrank any lossy encoding")
	}
	if qualityScore(highMP3) <= qualityScore(lowMP3) {
		t.Error("Higher bitrate must outrank lower bitrate")
	}
}

func TestPickPrimaryBreaksTiesByID(t *testing.T) {
	a := trackFacts{id: 7, filePath: "a.mp3", bitrate: 320}
	b := trackFacts{id: 3, filePath: "b.mp3", bitrate: 320}

	if got := pickPrimary([]trackFacts{a, b}); got.id != 3 {
		t.Errorf("Expected lowest id to win ties, got %d", got.id)
	}
}
