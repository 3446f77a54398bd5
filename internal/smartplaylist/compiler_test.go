package smartplaylist

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

func newTestCompiler(t *testing.T) (*Compiler, *catalog.Catalog) {
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

// seedTrack inserts a track and forces its play count, which normally only
// grows through RecordPlay.
func seedTrack(t *testing.T, cat *catalog.Catalog, path string, meta models.TrackMetadata, playCount int) int64 {
	t.Helper()
	ctx := context.Background()

	folder, err := cat.EnsureFolder(ctx, "/music")
	if err != nil {
		t.Fatalf("Failed to ensure folder: %v", err)
	}

	var id int64
	err = cat.Store().Write(ctx, func(tx *sql.Tx) error {
		trackID, _, err := catalog.SaveTrack(tx, folder.ID, path, 1, 1024, meta, "")
		if err != nil {
			return err
		}
		id = trackID
		_, err = tx.Exec("UPDATE tracks SET play_count = ? WHERE id = ?", playCount, trackID)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to seed track %s: %v", path, err)
	}
	return id
}

func trackIDs(tracks []models.Track) []int64 {
	ids := make([]int64, len(tracks))
	for i, track := range tracks {
		ids[i] = track.ID
	}
	return ids
}

func TestCompiler(t *testing.T) {
	compiler, cat := newTestCompiler(t)
	ctx := context.Background()

	heavyRock := seedTrack(t, cat, "/music/1.mp3", models.TrackMetadata{
		Title: "Back in Black", Artist: "AC/DC", Genre: "Rock", Duration: 255, Year: "1980",
	}, 12)
	lightRock := seedTrack(t, cat, "/music/2.mp3", models.TrackMetadata{
		Title: "Thunderstruck", Artist: "AC-DC", Genre: "Rock", Duration: 292, Year: "1990",
	}, 2)
	heavyJazz := seedTrack(t, cat, "/music/3.mp3", models.TrackMetadata{
		Title: "So What", Artist: "Miles Davis", Genre: "Jazz", Duration: 545, Year: "1959",
	}, 9)

	execute := func(t *testing.T, criteria models.SmartPlaylistCriteria) []int64 {
		t.Helper()
		tracks, err := compiler.Execute(ctx, criteria, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to execute criteria: %v", err)
		}
		return trackIDs(tracks)
	}

	t.Run("MatchAllIntersects", func(t *testing.T) {
		got := execute(t, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "playCount", Condition: models.ConditionGreaterThan, Value: "5"},
				{Field: "genre", Condition: models.ConditionEquals, Value: "rock"},
			},
			MatchType: models.MatchAll,
		})
		if len(got) != 1 || got[0] != heavyRock {
			t.Errorf("Expected only the heavily played rock track, got %v", got)
		}
	})

	t.Run("MatchAnyUnions", func(t *testing.T) {
		got := execute(t, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "playCount", Condition: models.ConditionGreaterThan, Value: "5"},
				{Field: "genre", Condition: models.ConditionEquals, Value: "rock"},
			},
			MatchType: models.MatchAny,
		})
		if len(got) != 3 {
			t.Errorf("Expected all three tracks in the union, got %v", got)
		}
	})

	t.Run("ArtistEqualityUnifiesNamingVariants", func(t *testing.T) {
		// "AC/DC" and "AC-DC" share a normalized name; plain string equality
		// would only find one of them.
		got := execute(t, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "artist", Condition: models.ConditionEquals, Value: "ac/dc"},
			},
			MatchType: models.MatchAll,
		})
		if len(got) != 2 {
			t.Errorf("Expected both naming variants via normalized resolution, got %v", got)
		}
	})

	t.Run("StringPatterns", func(t *testing.T) {
		got := execute(t, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "title", Condition: models.ConditionStartsWith, Value: "thunder"},
			},
			MatchType: models.MatchAll,
		})
		if len(got) != 1 || got[0] != lightRock {
			t.Errorf("Expected the prefix match only, got %v", got)
		}
	})

	t.Run("SortAndLimitCompose", func(t *testing.T) {
		criteria := models.SmartPlaylistCriteria{
			MatchType: models.MatchAll,
			SortBy:    "playCount",
			SortDir:   models.SortDescending,
			Limit:     2,
		}
		got := execute(t, criteria)
		want := []int64{heavyRock, heavyJazz}
		if len(got) != 2 || got[0] != want[0] || got[1] != want[1] {
			t.Errorf("Expected %v, got %v", want, got)
		}

		count, err := compiler.Count(ctx, criteria, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to count: %v", err)
		}
		if count != 2 {
			t.Errorf("Count must honor the limit, got %d", count)
		}
	})

	t.Run("UnknownFieldIsDroppedNotFatal", func(t *testing.T) {
		got := execute(t, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "moodRing", Condition: models.ConditionEquals, Value: "blue"},
				{Field: "genre", Condition: models.ConditionEquals, Value: "jazz"},
			},
			MatchType: models.MatchAll,
		})
		if len(got) != 1 || got[0] != heavyJazz {
			t.Errorf("Expected the surviving rule to still apply, got %v", got)
		}
	})

	t.Run("EmptyRulesMatchEverything", func(t *testing.T) {
		got := execute(t, models.SmartPlaylistCriteria{MatchType: models.MatchAll})
		if len(got) != 3 {
			t.Errorf("Expected all tracks, got %v", got)
		}
	})

	t.Run("YearComparesLexicographically", func(t *testing.T) {
		got := execute(t, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "year", Condition: models.ConditionGreaterOrEqual, Value: "1980"},
			},
			MatchType: models.MatchAll,
		})
		if len(got) != 2 {
			t.Errorf("Expected the two post-1980 tracks, got %v", got)
		}
	})

	t.Run("HideDuplicatesFiltersAnnotatedRows", func(t *testing.T) {
		err := cat.Store().Write(ctx, func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				UPDATE tracks SET is_duplicate = TRUE, primary_track_id = ?, duplicate_group_id = 'g'
				WHERE id = ?`, heavyRock, lightRock)
			return err
		})
		if err != nil {
			t.Fatalf("Failed to annotate duplicate: %v", err)
		}

		tracks, err := compiler.Execute(ctx, models.SmartPlaylistCriteria{MatchType: models.MatchAll},
			models.QueryConfig{HideDuplicates: true})
		if err != nil {
			t.Fatalf("Failed to execute: %v", err)
		}
		for _, track := range tracks {
			if track.ID == lightRock {
				t.Error("Duplicate row leaked through HideDuplicates")
			}
		}
	})
}

func TestDateRuleRelativeWindow(t *testing.T) {
	compiler, cat := newTestCompiler(t)
	ctx := context.Background()

	recent := seedTrack(t, cat, "/music/new.mp3", models.TrackMetadata{Title: "New"}, 0)
	old := seedTrack(t, cat, "/music/old.mp3", models.TrackMetadata{Title: "Old"}, 0)

	// Backdate one track by 30 days.
	err := cat.Store().Write(ctx, func(tx *sql.Tx) error {
		_, err := tx.Exec(
			"UPDATE tracks SET date_added = datetime('now', '-30 days') WHERE id = ?", old)
		return err
	})
	if err != nil {
		t.Fatalf("Failed to backdate track: %v", err)
	}

	run := func(t *testing.T, condition string) []int64 {
		t.Helper()
		tracks, err := compiler.Execute(ctx, models.SmartPlaylistCriteria{
			Rules: []models.Rule{
				{Field: "dateAdded", Condition: condition, Value: "7days"},
			},
			MatchType: models.MatchAll,
		}, models.QueryConfig{})
		if err != nil {
			t.Fatalf("Failed to execute: %v", err)
		}
		return trackIDs(tracks)
	}

	t.Run("GreaterThanMeansWithinWindow", func(t *testing.T) {
		got := run(t, models.ConditionGreaterThan)
		if len(got) != 1 || got[0] != recent {
			t.Errorf("Expected only the recent track, got %v", got)
		}
	})

	t.Run("LessThanMeansOlderThanWindow", func(t *testing.T) {
		got := run(t, models.ConditionLessThan)
		if len(got) != 1 || got[0] != old {
			t.Errorf("Expected only the backdated track, got %v", got)
		}
	})
}

func TestParseField(t *testing.T) {
	for field := range fieldKinds {
		if _, err := ParseField(string(field)); err != nil {
			t.Errorf("Known field %q rejected: %v", field, err)
		}
	}
	if _, err := ParseField("bogus"); err == nil {
		t.Error("Unknown field accepted")
	}
}

func TestParseRelativeDays(t *testing.T) {
	if days, err := parseRelativeDays("14days"); err != nil || days != 14 {
		t.Errorf("parseRelativeDays(14days) = %d, %v", days, err)
	}
	for _, bad := range []string{"days", "-3days", "2weeks", ""} {
		if _, err := parseRelativeDays(bad); err == nil {
			t.Errorf("parseRelativeDays(%q) should fail", bad)
		}
	}
}
