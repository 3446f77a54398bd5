package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"cadenza/pkg/models"
)

// CreatePlaylist inserts a regular playlist and returns its id.
func (c *Catalog) CreatePlaylist(ctx context.Context, name string) (int64, error) {
	var id int64
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"INSERT INTO playlists (name, is_smart, criteria) VALUES (?, FALSE, NULL)", name)
		if err != nil {
			return fmt.Errorf("failed to create playlist %q: %w", name, err)
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

// CreateSmartPlaylist inserts a smart playlist backed by criteria instead of
// stored membership.
func (c *Catalog) CreateSmartPlaylist(ctx context.Context, name string, criteria models.SmartPlaylistCriteria) (int64, error) {
	encoded, err := json.Marshal(criteria)
	if err != nil {
		return 0, fmt.Errorf("failed to encode criteria for %q: %w", name, err)
	}

	var id int64
	err = c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"INSERT INTO playlists (name, is_smart, criteria) VALUES (?, TRUE, ?)",
			name, string(encoded))
		if err != nil {
			return fmt.Errorf("failed to create smart playlist %q: %w", name, err)
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

// GetPlaylist returns a playlist by id, or nil if it does not exist.
func (c *Catalog) GetPlaylist(ctx context.Context, id int64) (*models.Playlist, error) {
	var playlist *models.Playlist
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(`
			SELECT p.id, p.name, p.is_smart, p.criteria, p.created_at,
				COALESCE(COUNT(pt.track_id), 0)
			FROM playlists p
			LEFT JOIN playlist_tracks pt ON p.id = pt.playlist_id
			WHERE p.id = ?
			GROUP BY p.id`, id)

		p, err := scanPlaylist(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		playlist = p
		return nil
	})
	return playlist, err
}

// ListPlaylists returns all playlists with derived track counts for the
// regular kind. Smart playlist counts are computed on demand by the smart
// playlist compiler, not stored.
func (c *Catalog) ListPlaylists(ctx context.Context) ([]models.Playlist, error) {
	var playlists []models.Playlist
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT p.id, p.name, p.is_smart, p.criteria, p.created_at,
				COALESCE(COUNT(pt.track_id), 0)
			FROM playlists p
			LEFT JOIN playlist_tracks pt ON p.id = pt.playlist_id
			GROUP BY p.id
			ORDER BY p.created_at DESC`)
		if err != nil {
			return fmt.Errorf("failed to list playlists: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			p, err := scanPlaylist(rows)
			if err != nil {
				return err
			}
			playlists = append(playlists, *p)
		}
		return rows.Err()
	})
	return playlists, err
}

// UpdateSmartPlaylistCriteria replaces the rule set of a smart playlist.
func (c *Catalog) UpdateSmartPlaylistCriteria(ctx context.Context, id int64, criteria models.SmartPlaylistCriteria) error {
	encoded, err := json.Marshal(criteria)
	if err != nil {
		return fmt.Errorf("failed to encode criteria for playlist %d: %w", id, err)
	}

	return c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"UPDATE playlists SET criteria = ? WHERE id = ? AND is_smart", string(encoded), id)
		if err != nil {
			return fmt.Errorf("failed to update criteria for playlist %d: %w", id, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// RenamePlaylist updates a playlist's name.
func (c *Catalog) RenamePlaylist(ctx context.Context, id int64, name string) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec("UPDATE playlists SET name = ? WHERE id = ?", name, id)
		if err != nil {
			return fmt.Errorf("failed to rename playlist %d: %w", id, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// DeletePlaylist removes a playlist; membership rows and pins cascade.
func (c *Catalog) DeletePlaylist(ctx context.Context, id int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM playlists WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to delete playlist %d: %w", id, err)
		}
		return nil
	})
}

// AddTrackToPlaylist appends a track to the end of a regular playlist if not
// already present.
func (c *Catalog) AddTrackToPlaylist(ctx context.Context, playlistID, trackID int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		smart, err := playlistIsSmart(tx, playlistID)
		if err != nil {
			return err
		}
		if smart {
			return fmt.Errorf("playlist %d is a smart playlist: membership is computed, not stored", playlistID)
		}

		var maxPosition sql.NullInt64
		if err := tx.QueryRow(
			"SELECT MAX(position) FROM playlist_tracks WHERE playlist_id = ?",
			playlistID).Scan(&maxPosition); err != nil {
			return fmt.Errorf("failed to read playlist %d positions: %w", playlistID, err)
		}

		position := 1
		if maxPosition.Valid {
			position = int(maxPosition.Int64) + 1
		}

		if _, err := tx.Exec(`
			INSERT INTO playlist_tracks (playlist_id, track_id, position)
			VALUES (?, ?, ?)
			ON CONFLICT(playlist_id, track_id) DO NOTHING`,
			playlistID, trackID, position); err != nil {
			return fmt.Errorf("failed to add track %d to playlist %d: %w", trackID, playlistID, err)
		}
		return nil
	})
}

// RemoveTrackFromPlaylist removes a specific track from a regular playlist.
func (c *Catalog) RemoveTrackFromPlaylist(ctx context.Context, playlistID, trackID int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec(
			"DELETE FROM playlist_tracks WHERE playlist_id = ? AND track_id = ?",
			playlistID, trackID); err != nil {
			return fmt.Errorf("failed to remove track %d from playlist %d: %w", trackID, playlistID, err)
		}
		return nil
	})
}

// ReplacePlaylistTracks atomically replaces the entire membership of a
// regular playlist with the given track order.
func (c *Catalog) ReplacePlaylistTracks(ctx context.Context, playlistID int64, trackIDs []int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		smart, err := playlistIsSmart(tx, playlistID)
		if err != nil {
			return err
		}
		if smart {
			return fmt.Errorf("playlist %d is a smart playlist: membership is computed, not stored", playlistID)
		}

		if _, err := tx.Exec(
			"DELETE FROM playlist_tracks WHERE playlist_id = ?", playlistID); err != nil {
			return fmt.Errorf("failed to clear playlist %d: %w", playlistID, err)
		}
		for i, trackID := range trackIDs {
			if _, err := tx.Exec(`
				INSERT INTO playlist_tracks (playlist_id, track_id, position)
				VALUES (?, ?, ?)
				ON CONFLICT(playlist_id, track_id) DO NOTHING`,
				playlistID, trackID, i+1); err != nil {
				return fmt.Errorf("failed to insert track %d into playlist %d: %w", trackID, playlistID, err)
			}
		}
		return nil
	})
}

// PlaylistTracks returns a regular playlist's tracks ordered by stored
// position. A deleted playlist yields an empty result.
func (c *Catalog) PlaylistTracks(ctx context.Context, playlistID int64) ([]models.Track, error) {
	var tracks []models.Track
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT `+TrackColumns+`
			FROM tracks t
			JOIN playlist_tracks pt ON t.id = pt.track_id
			WHERE pt.playlist_id = ?
			ORDER BY pt.position`, playlistID)
		if err != nil {
			return fmt.Errorf("failed to get tracks for playlist %d: %w", playlistID, err)
		}
		defer rows.Close()

		tracks, err = ScanTrackRows(rows)
		return err
	})
	return tracks, err
}

func playlistIsSmart(tx *sql.Tx, playlistID int64) (bool, error) {
	var smart bool
	err := tx.QueryRow("SELECT is_smart FROM playlists WHERE id = ?", playlistID).Scan(&smart)
	if errors.Is(err, sql.ErrNoRows) {
		return false, ErrNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to look up playlist %d: %w", playlistID, err)
	}
	return smart, nil
}

func scanPlaylist(row rowScanner) (*models.Playlist, error) {
	var (
		p        models.Playlist
		criteria sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Name, &p.IsSmart, &criteria, &p.CreatedAt, &p.TrackCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to scan playlist: %w", err)
	}
	if criteria.Valid {
		var decoded models.SmartPlaylistCriteria
		if err := json.Unmarshal([]byte(criteria.String), &decoded); err != nil {
			return nil, fmt.Errorf("failed to decode criteria for playlist %d: %w", p.ID, err)
		}
		p.Criteria = &decoded
	}
	return &p, nil
}
