package dupes

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"cadenza/internal/catalog"
	"cadenza/pkg/models"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// durationBucketSeconds is the width of the duration bucket used in the
// grouping key. Rips of the same recording differ by a second or two of
// silence; five seconds absorbs that without merging different edits.
const durationBucketSeconds = 5.0

// Detector partitions the catalog into duplicate groups and annotates each
// group with a primary track chosen by audio quality.
type Detector struct {
	catalog *catalog.Catalog
	logger  *logrus.Logger
}

// trackFacts is the slice of a track the detector needs.
type trackFacts struct {
	id         int64
	title      string
	artist     string
	artistNorm string
	filePath   string
	duration   float64
	bitrate    int
	sampleRate int
	bitDepth   int
	lossless   bool
}

// New creates a duplicate detector over the given catalog.
func New(cat *catalog.Catalog, logger *logrus.Logger) *Detector {
	return &Detector{catalog: cat, logger: logger}
}

// Run recomputes duplicate annotations for the whole catalog in one write
// transaction. Previous annotations are discarded first, so tracks whose
// duplicates were deleted return to a clean state. It returns the number of
// duplicate groups found.
func (d *Detector) Run(ctx context.Context) (int, error) {
	var groups int
	err := d.catalog.Store().Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(`
			UPDATE tracks
			SET is_duplicate = FALSE, primary_track_id = NULL, duplicate_group_id = ''`); err != nil {
			return fmt.Errorf("failed to clear duplicate annotations: %w", err)
		}

		tracks, err := loadTrackFacts(tx)
		if err != nil {
			return err
		}

		for _, group := range groupTracks(tracks) {
			primary := pickPrimary(group)
			groupID := uuid.New().String()

			for _, t := range group {
				if t.id == primary.id {
					if _, err := tx.Exec(
						"UPDATE tracks SET duplicate_group_id = ? WHERE id = ?",
						groupID, t.id); err != nil {
						return fmt.Errorf("failed to annotate primary track %d: %w", t.id, err)
					}
					continue
				}
				if _, err := tx.Exec(`
					UPDATE tracks
					SET is_duplicate = TRUE, primary_track_id = ?, duplicate_group_id = ?
					WHERE id = ?`,
					primary.id, groupID, t.id); err != nil {
					return fmt.Errorf("failed to annotate duplicate track %d: %w", t.id, err)
				}
			}
			groups++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	d.logger.WithField("groups", groups).Info("Duplicate detection complete")
	return groups, nil
}

func loadTrackFacts(tx *sql.Tx) ([]trackFacts, error) {
	rows, err := tx.Query(`
		SELECT t.id, t.title, t.artist, COALESCE(a.normalized_name, ''),
			t.file_path, t.duration, t.bitrate, t.sample_rate, t.bit_depth, t.lossless
		FROM tracks t
		LEFT JOIN track_artists ta
			ON ta.track_id = t.id AND ta.role = ? AND ta.position = 0
		LEFT JOIN artists a ON a.id = ta.artist_id
		ORDER BY t.id`, string(models.RoleArtist))
	if err != nil {
		return nil, fmt.Errorf("failed to load tracks for duplicate detection: %w", err)
	}
	defer rows.Close()

	var tracks []trackFacts
	for rows.Next() {
		var t trackFacts
		if err := rows.Scan(&t.id, &t.title, &t.artist, &t.artistNorm,
			&t.filePath, &t.duration, &t.bitrate, &t.sampleRate, &t.bitDepth, &t.lossless); err != nil {
			return nil, fmt.Errorf("failed to scan track facts: %w", err)
		}
		tracks = append(tracks, t)
	}
	return tracks, rows.Err()
}

// groupTracks partitions tracks by normalized title, normalized primary
// artist and duration bucket, keeping only groups of two or more.
func groupTracks(tracks []trackFacts) [][]trackFacts {
	byKey := make(map[string][]trackFacts)
	var keys []string
	for _, t := range tracks {
		key, ok := groupKey(t)
		if !ok {
			continue
		}
		if _, seen := byKey[key]; !seen {
			keys = append(keys, key)
		}
		byKey[key] = append(byKey[key], t)
	}

	// Deterministic group order keeps runs over the same library stable.
	sort.Strings(keys)

	var groups [][]trackFacts
	for _, key := range keys {
		if group := byKey[key]; len(group) >= 2 {
			groups = append(groups, group)
		}
	}
	return groups
}

func groupKey(t trackFacts) (string, bool) {
	title := catalog.NormalizeTitle(t.title)
	if title == "" {
		return "", false
	}

	artist := t.artistNorm
	if artist == "" {
		if names := catalog.SplitArtistNames(t.artist); len(names) > 0 {
			artist = catalog.NormalizeName(names[0])
		}
	}

	bucket := int(t.duration / durationBucketSeconds)
	return fmt.Sprintf("%s\x00%s\x00%d", title, artist, bucket), true
}

// pickPrimary selects the highest-quality member of a group; equal quality is
// broken by the lowest id so repeated runs pick the same primary.
func pickPrimary(group []trackFacts) trackFacts {
	primary := group[0]
	best := qualityScore(primary)
	for _, t := range group[1:] {
		score := qualityScore(t)
		if score > best || (score == best && t.id < primary.id) {
			primary = t
			best = score
		}
	}
	return primary
}

// qualityScore ranks a track's fidelity. Lossless dominates everything, then
// container quality, then bit depth, bitrate and sample rate as tie-breakers.
func qualityScore(t trackFacts) int {
	score := 0
	if t.lossless {
		score += 100000
	}
	score += formatRank(t.filePath) * 1000
	score += t.bitDepth * 200
	score += t.bitrate * 10
	score += t.sampleRate / 100
	return score
}

func formatRank(path string) int {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".flac":
		return 4
	case ".wav":
		return 3
	case ".m4a":
		return 2
	case ".mp3":
		return 1
	default:
		return 0
	}
}
