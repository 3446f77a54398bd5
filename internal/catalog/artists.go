package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cadenza/pkg/models"
)

// LookupArtistByNormalized finds an artist id by normalized-name match.
func LookupArtistByNormalized(tx *sql.Tx, normalized string) (int64, bool, error) {
	var id int64
	err := tx.QueryRow("SELECT id FROM artists WHERE normalized_name = ?", normalized).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to look up artist %q: %w", normalized, err)
	}
	return id, true, nil
}

// ResolveArtist resolves a single display name to an artist row, creating it
// when no normalized-name match exists. Returns 0 for names that normalize
// to nothing.
func ResolveArtist(tx *sql.Tx, name string) (int64, error) {
	normalized := NormalizeName(name)
	if normalized == "" {
		return 0, nil
	}

	id, ok, err := LookupArtistByNormalized(tx, normalized)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	result, err := tx.Exec(
		"INSERT INTO artists (name, normalized_name) VALUES (?, ?)",
		name, normalized)
	if err != nil {
		return 0, fmt.Errorf("failed to create artist %q: %w", name, err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read artist id for %q: %w", name, err)
	}
	return id, nil
}

// ResolveArtistNames splits a raw, possibly multi-valued artist string and
// resolves each discrete name, creating rows as needed. The returned ids
// preserve the order the names appeared in.
func ResolveArtistNames(tx *sql.Tx, raw string) ([]int64, error) {
	names := SplitArtistNames(raw)
	ids := make([]int64, 0, len(names))
	for _, name := range names {
		id, err := ResolveArtist(tx, name)
		if err != nil {
			return nil, err
		}
		if id != 0 {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// ReplaceTrackArtists rebuilds the junction rows for one role of a track:
// existing rows for the role are cleared and re-inserted rather than diffed.
func ReplaceTrackArtists(tx *sql.Tx, trackID int64, role models.ArtistRole, raw string) error {
	if _, err := tx.Exec(
		"DELETE FROM track_artists WHERE track_id = ? AND role = ?",
		trackID, string(role)); err != nil {
		return fmt.Errorf("failed to clear %s relations for track %d: %w", role, trackID, err)
	}

	ids, err := ResolveArtistNames(tx, raw)
	if err != nil {
		return err
	}

	for position, artistID := range ids {
		if _, err := tx.Exec(`
			INSERT INTO track_artists (track_id, artist_id, role, position)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(track_id, artist_id, role) DO NOTHING`,
			trackID, artistID, string(role), position); err != nil {
			return fmt.Errorf("failed to relate artist %d to track %d: %w", artistID, trackID, err)
		}
	}
	return nil
}

// setArtistArtworkIfEmpty writes artwork to an artist only if it has none
// yet; the first non-empty artwork encountered is kept.
func setArtistArtworkIfEmpty(tx *sql.Tx, artistID int64, artwork []byte) error {
	if len(artwork) == 0 {
		return nil
	}
	_, err := tx.Exec(
		"UPDATE artists SET artwork = ? WHERE id = ? AND artwork IS NULL",
		artwork, artistID)
	if err != nil {
		return fmt.Errorf("failed to set artwork for artist %d: %w", artistID, err)
	}
	return nil
}

// GetArtistByID returns a single artist, or nil if it does not exist.
func (c *Catalog) GetArtistByID(ctx context.Context, id int64) (*models.Artist, error) {
	var artist *models.Artist
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, name, normalized_name, artwork IS NOT NULL, track_count
			FROM artists WHERE id = ?`, id)

		var a models.Artist
		err := row.Scan(&a.ID, &a.Name, &a.NormalizedName, &a.HasArtwork, &a.TrackCount)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get artist %d: %w", id, err)
		}
		artist = &a
		return nil
	})
	return artist, err
}

// ListArtists returns all artists ordered by normalized name.
func (c *Catalog) ListArtists(ctx context.Context) ([]models.Artist, error) {
	var artists []models.Artist
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, name, normalized_name, artwork IS NOT NULL, track_count
			FROM artists ORDER BY normalized_name`)
		if err != nil {
			return fmt.Errorf("failed to list artists: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var a models.Artist
			if err := rows.Scan(&a.ID, &a.Name, &a.NormalizedName, &a.HasArtwork, &a.TrackCount); err != nil {
				return fmt.Errorf("failed to scan artist: %w", err)
			}
			artists = append(artists, a)
		}
		return rows.Err()
	})
	return artists, err
}
