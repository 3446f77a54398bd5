package catalog

import (
	"database/sql"
	"fmt"
)

// CleanupOrphans reclaims artists, albums and genres that no remaining track
// references, and cascades pinned filter facets whose target entity is gone.
func CleanupOrphans(tx *sql.Tx) error {
	statements := []string{
		"DELETE FROM artists WHERE id NOT IN (SELECT DISTINCT artist_id FROM track_artists)",
		"DELETE FROM albums WHERE id NOT IN (SELECT DISTINCT album_id FROM tracks WHERE album_id IS NOT NULL)",
		"DELETE FROM genres WHERE id NOT IN (SELECT DISTINCT genre_id FROM track_genres)",

		`DELETE FROM pinned_items
		 WHERE kind = 'filter' AND filter_type = 'artist'
		   AND CAST(filter_value AS INTEGER) NOT IN (SELECT id FROM artists)`,
		`DELETE FROM pinned_items
		 WHERE kind = 'filter' AND filter_type = 'album'
		   AND CAST(filter_value AS INTEGER) NOT IN (SELECT id FROM albums)`,
		`DELETE FROM pinned_items
		 WHERE kind = 'filter' AND filter_type = 'genre'
		   AND CAST(filter_value AS INTEGER) NOT IN (SELECT id FROM genres)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to clean up orphaned rows: %w", err)
		}
	}
	return nil
}

// RefreshStats recomputes the denormalized track counts on albums and
// artists after a batch of catalog changes.
func RefreshStats(tx *sql.Tx) error {
	statements := []string{
		`UPDATE albums SET track_count = (
			SELECT COUNT(*) FROM tracks WHERE tracks.album_id = albums.id
		)`,
		`UPDATE artists SET track_count = (
			SELECT COUNT(DISTINCT track_id) FROM track_artists WHERE track_artists.artist_id = artists.id
		)`,
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return fmt.Errorf("failed to refresh catalog statistics: %w", err)
		}
	}
	return nil
}
