package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"cadenza/pkg/models"
)

// ResolveAlbum resolves an album by normalized title plus optional primary
// artist, creating a new row when no match exists. Tracks without an album
// tag resolve to no album (0).
func ResolveAlbum(tx *sql.Tx, title, year string, primaryArtistID *int64) (int64, error) {
	normalized := NormalizeTitle(title)
	if normalized == "" {
		return 0, nil
	}

	var (
		id  int64
		err error
	)
	if primaryArtistID != nil {
		err = tx.QueryRow(
			"SELECT id FROM albums WHERE normalized_title = ? AND artist_id = ?",
			normalized, *primaryArtistID).Scan(&id)
	} else {
		err = tx.QueryRow(
			"SELECT id FROM albums WHERE normalized_title = ? AND artist_id IS NULL",
			normalized).Scan(&id)
	}
	if err == nil {
		return id, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("failed to look up album %q: %w", title, err)
	}

	var artistID any
	if primaryArtistID != nil {
		artistID = *primaryArtistID
	}
	result, err := tx.Exec(
		"INSERT INTO albums (title, normalized_title, year, artist_id) VALUES (?, ?, ?, ?)",
		title, normalized, year, artistID)
	if err != nil {
		return 0, fmt.Errorf("failed to create album %q: %w", title, err)
	}
	id, err = result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read album id for %q: %w", title, err)
	}
	return id, nil
}

// setAlbumArtworkIfEmpty writes artwork to an album only if it has none yet.
func setAlbumArtworkIfEmpty(tx *sql.Tx, albumID int64, artwork []byte) error {
	if len(artwork) == 0 {
		return nil
	}
	_, err := tx.Exec(
		"UPDATE albums SET artwork = ? WHERE id = ? AND artwork IS NULL",
		artwork, albumID)
	if err != nil {
		return fmt.Errorf("failed to set artwork for album %d: %w", albumID, err)
	}
	return nil
}

// GetAlbumByID returns a single album, or nil if it does not exist.
func (c *Catalog) GetAlbumByID(ctx context.Context, id int64) (*models.Album, error) {
	var album *models.Album
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT id, title, normalized_title, year, artist_id, artwork IS NOT NULL, track_count
			FROM albums WHERE id = ?`, id)

		var (
			a        models.Album
			artistID sql.NullInt64
		)
		err := row.Scan(&a.ID, &a.Title, &a.NormalizedTitle, &a.Year, &artistID, &a.HasArtwork, &a.TrackCount)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get album %d: %w", id, err)
		}
		if artistID.Valid {
			a.ArtistID = &artistID.Int64
		}
		album = &a
		return nil
	})
	return album, err
}

// GetAlbumArtwork returns the stored artwork bytes for an album, or nil.
func (c *Catalog) GetAlbumArtwork(ctx context.Context, id int64) ([]byte, error) {
	var artwork []byte
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRow("SELECT artwork FROM albums WHERE id = ?", id).Scan(&artwork)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to get artwork for album %d: %w", id, err)
		}
		return nil
	})
	return artwork, err
}

// ListAlbums returns all albums ordered by normalized title.
func (c *Catalog) ListAlbums(ctx context.Context) ([]models.Album, error) {
	var albums []models.Album
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, title, normalized_title, year, artist_id, artwork IS NOT NULL, track_count
			FROM albums ORDER BY normalized_title`)
		if err != nil {
			return fmt.Errorf("failed to list albums: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				a        models.Album
				artistID sql.NullInt64
			)
			if err := rows.Scan(&a.ID, &a.Title, &a.NormalizedTitle, &a.Year, &artistID, &a.HasArtwork, &a.TrackCount); err != nil {
				return fmt.Errorf("failed to scan album: %w", err)
			}
			if artistID.Valid {
				a.ArtistID = &artistID.Int64
			}
			albums = append(albums, a)
		}
		return rows.Err()
	})
	return albums, err
}
