package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"cadenza/pkg/models"
)

// TrackColumns is the canonical select list for track rows, matched by
// scanTrack below.
const TrackColumns = `
	t.id, t.file_path, t.folder_id, t.album_id, t.title, t.artist, t.album_artist,
	t.album, t.genre, t.composer, t.track_number, t.disc_number, t.year,
	t.duration, t.bitrate, t.sample_rate, t.bit_depth, t.channels, t.lossless,
	t.file_size, t.modified_at, t.play_count, t.last_played_at, t.date_added,
	t.is_favorite, t.artwork_id, t.is_duplicate, t.primary_track_id,
	t.duplicate_group_id, t.isrc, t.label, t.conductor, t.producer`

// GetTrackByPath returns the stored id, modification time and artwork id for
// a file path, used by the ingestion pipeline to classify candidates.
func GetTrackByPath(tx *sql.Tx, path string) (id int64, modifiedAt int64, artworkID string, ok bool, err error) {
	err = tx.QueryRow(
		"SELECT id, modified_at, artwork_id FROM tracks WHERE file_path = ?", path,
	).Scan(&id, &modifiedAt, &artworkID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, "", false, nil
	}
	if err != nil {
		return 0, 0, "", false, fmt.Errorf("failed to look up track %s: %w", path, err)
	}
	return id, modifiedAt, artworkID, true, nil
}

// SaveTrack upserts one track from an extracted metadata record: album
// resolution, the track row itself, a full junction rebuild for artist and
// genre relations, and artwork propagation to the owning album and every
// referenced artist. Play statistics on existing rows are preserved.
// Returns the track id and whether the row was newly created.
func SaveTrack(tx *sql.Tx, folderID int64, path string, modifiedAt, fileSize int64, meta models.TrackMetadata, artworkID string) (int64, bool, error) {
	// The album's primary artist is the first discrete album-artist credit,
	// falling back to the track artist.
	var primaryArtistID *int64
	albumArtistRaw := meta.AlbumArtist
	if strings.TrimSpace(albumArtistRaw) == "" {
		albumArtistRaw = meta.Artist
	}
	if names := SplitArtistNames(albumArtistRaw); len(names) > 0 {
		id, err := ResolveArtist(tx, names[0])
		if err != nil {
			return 0, false, err
		}
		if id != 0 {
			primaryArtistID = &id
		}
	}

	albumID, err := ResolveAlbum(tx, meta.Album, meta.Year, primaryArtistID)
	if err != nil {
		return 0, false, err
	}
	var albumRef any
	if albumID != 0 {
		albumRef = albumID
	}

	existingID, _, _, exists, err := GetTrackByPath(tx, path)
	if err != nil {
		return 0, false, err
	}

	var trackID int64
	if exists {
		if _, err := tx.Exec(`
			UPDATE tracks SET
				folder_id = ?, album_id = ?, title = ?, artist = ?, album_artist = ?,
				album = ?, genre = ?, composer = ?, track_number = ?, disc_number = ?,
				year = ?, duration = ?, bitrate = ?, sample_rate = ?, bit_depth = ?,
				channels = ?, lossless = ?, file_size = ?, modified_at = ?,
				artwork_id = ?, isrc = ?, label = ?, conductor = ?, producer = ?
			WHERE id = ?`,
			folderID, albumRef, meta.Title, meta.Artist, albumArtistRaw,
			meta.Album, meta.Genre, meta.Composer, meta.TrackNumber, meta.DiscNumber,
			meta.Year, meta.Duration, meta.Bitrate, meta.SampleRate, meta.BitDepth,
			meta.Channels, meta.Lossless, fileSize, modifiedAt,
			artworkID, meta.ISRC, meta.Label, meta.Conductor, meta.Producer,
			existingID); err != nil {
			return 0, false, fmt.Errorf("failed to update track %s: %w", path, err)
		}
		trackID = existingID
	} else {
		result, err := tx.Exec(`
			INSERT INTO tracks (
				file_path, folder_id, album_id, title, artist, album_artist, album,
				genre, composer, track_number, disc_number, year, duration, bitrate,
				sample_rate, bit_depth, channels, lossless, file_size, modified_at,
				artwork_id, isrc, label, conductor, producer
			) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			path, folderID, albumRef, meta.Title, meta.Artist, albumArtistRaw, meta.Album,
			meta.Genre, meta.Composer, meta.TrackNumber, meta.DiscNumber, meta.Year,
			meta.Duration, meta.Bitrate, meta.SampleRate, meta.BitDepth, meta.Channels,
			meta.Lossless, fileSize, modifiedAt,
			artworkID, meta.ISRC, meta.Label, meta.Conductor, meta.Producer)
		if err != nil {
			return 0, false, fmt.Errorf("failed to insert track %s: %w", path, err)
		}
		trackID, err = result.LastInsertId()
		if err != nil {
			return 0, false, fmt.Errorf("failed to read track id for %s: %w", path, err)
		}
	}

	// Junction relations are cleared and re-inserted per updated track, not
	// diffed. The same resolution path serves all three roles.
	if err := ReplaceTrackArtists(tx, trackID, models.RoleArtist, meta.Artist); err != nil {
		return 0, false, err
	}
	if err := ReplaceTrackArtists(tx, trackID, models.RoleAlbumArtist, albumArtistRaw); err != nil {
		return 0, false, err
	}
	if err := ReplaceTrackArtists(tx, trackID, models.RoleComposer, meta.Composer); err != nil {
		return 0, false, err
	}
	if err := replaceTrackGenres(tx, trackID, meta.Genre); err != nil {
		return 0, false, err
	}

	if len(meta.Artwork) > 0 {
		if albumID != 0 {
			if err := setAlbumArtworkIfEmpty(tx, albumID, meta.Artwork); err != nil {
				return 0, false, err
			}
		}
		artistIDs, err := trackArtistIDs(tx, trackID)
		if err != nil {
			return 0, false, err
		}
		for _, artistID := range artistIDs {
			if err := setArtistArtworkIfEmpty(tx, artistID, meta.Artwork); err != nil {
				return 0, false, err
			}
		}
	}

	return trackID, !exists, nil
}

// replaceTrackGenres rebuilds the genre junction rows for a track from a
// raw, possibly multi-valued genre tag.
func replaceTrackGenres(tx *sql.Tx, trackID int64, raw string) error {
	if _, err := tx.Exec("DELETE FROM track_genres WHERE track_id = ?", trackID); err != nil {
		return fmt.Errorf("failed to clear genre relations for track %d: %w", trackID, err)
	}

	seen := make(map[string]bool)
	for _, name := range strings.FieldsFunc(raw, func(r rune) bool {
		return r == ';' || r == '/' || r == ','
	}) {
		name = strings.TrimSpace(name)
		if name == "" || seen[strings.ToLower(name)] {
			continue
		}
		seen[strings.ToLower(name)] = true

		var genreID int64
		err := tx.QueryRow("SELECT id FROM genres WHERE name = ?", name).Scan(&genreID)
		if errors.Is(err, sql.ErrNoRows) {
			result, insertErr := tx.Exec("INSERT INTO genres (name) VALUES (?)", name)
			if insertErr != nil {
				return fmt.Errorf("failed to create genre %q: %w", name, insertErr)
			}
			genreID, insertErr = result.LastInsertId()
			if insertErr != nil {
				return fmt.Errorf("failed to read genre id for %q: %w", name, insertErr)
			}
		} else if err != nil {
			return fmt.Errorf("failed to look up genre %q: %w", name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO track_genres (track_id, genre_id) VALUES (?, ?) ON CONFLICT DO NOTHING",
			trackID, genreID); err != nil {
			return fmt.Errorf("failed to relate genre %d to track %d: %w", genreID, trackID, err)
		}
	}
	return nil
}

// trackArtistIDs returns the distinct artist ids referenced by a track.
func trackArtistIDs(tx *sql.Tx, trackID int64) ([]int64, error) {
	rows, err := tx.Query(
		"SELECT DISTINCT artist_id FROM track_artists WHERE track_id = ?", trackID)
	if err != nil {
		return nil, fmt.Errorf("failed to list artists for track %d: %w", trackID, err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan artist id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// DeleteTrackByPath removes a track row; junction rows cascade.
func DeleteTrackByPath(tx *sql.Tx, path string) error {
	if _, err := tx.Exec("DELETE FROM tracks WHERE file_path = ?", path); err != nil {
		return fmt.Errorf("failed to delete track %s: %w", path, err)
	}
	return nil
}

// RemoveTrackByPath deletes a track and reclaims whatever it alone
// referenced.
func (c *Catalog) RemoveTrackByPath(ctx context.Context, path string) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		if err := DeleteTrackByPath(tx, path); err != nil {
			return err
		}
		if err := CleanupOrphans(tx); err != nil {
			return err
		}
		return RefreshStats(tx)
	})
}

// GetTrackByID returns a single track, or nil if it does not exist.
func (c *Catalog) GetTrackByID(ctx context.Context, id int64) (*models.Track, error) {
	var track *models.Track
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow("SELECT "+TrackColumns+" FROM tracks t WHERE t.id = ?", id)
		t, err := scanTrack(row)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		track = t
		return nil
	})
	return track, err
}

// ListTracks returns all tracks, honoring the hide-duplicates flag from the
// explicit query config.
func (c *Catalog) ListTracks(ctx context.Context, cfg models.QueryConfig) ([]models.Track, error) {
	query := "SELECT " + TrackColumns + " FROM tracks t"
	if cfg.HideDuplicates {
		query += " WHERE t.is_duplicate = 0"
	}
	query += " ORDER BY t.artist, t.album, t.disc_number, t.track_number, t.title"

	var tracks []models.Track
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(query)
		if err != nil {
			return fmt.Errorf("failed to list tracks: %w", err)
		}
		defer rows.Close()

		tracks, err = ScanTrackRows(rows)
		return err
	})
	return tracks, err
}

// RecordPlay increments a track's play count and stamps last_played_at.
func (c *Catalog) RecordPlay(ctx context.Context, trackID int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"UPDATE tracks SET play_count = play_count + 1, last_played_at = ? WHERE id = ?",
			time.Now().UTC(), trackID)
		if err != nil {
			return fmt.Errorf("failed to record play for track %d: %w", trackID, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// SetFavorite toggles the favorite flag on a track.
func (c *Catalog) SetFavorite(ctx context.Context, trackID int64, favorite bool) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"UPDATE tracks SET is_favorite = ? WHERE id = ?", favorite, trackID)
		if err != nil {
			return fmt.Errorf("failed to set favorite for track %d: %w", trackID, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanTrack.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanTrack scans one row of the TrackColumns select list.
func scanTrack(row rowScanner) (*models.Track, error) {
	var (
		t              models.Track
		albumID        sql.NullInt64
		lastPlayedAt   sql.NullTime
		primaryTrackID sql.NullInt64
	)
	err := row.Scan(
		&t.ID, &t.FilePath, &t.FolderID, &albumID, &t.Title, &t.Artist, &t.AlbumArtist,
		&t.Album, &t.Genre, &t.Composer, &t.TrackNumber, &t.DiscNumber, &t.Year,
		&t.Duration, &t.Bitrate, &t.SampleRate, &t.BitDepth, &t.Channels, &t.Lossless,
		&t.FileSize, &t.ModifiedAt, &t.PlayCount, &lastPlayedAt, &t.DateAdded,
		&t.IsFavorite, &t.ArtworkID, &t.IsDuplicate, &primaryTrackID,
		&t.DuplicateGroupID, &t.ISRC, &t.Label, &t.Conductor, &t.Producer)
	if err != nil {
		return nil, err
	}
	if albumID.Valid {
		t.AlbumID = &albumID.Int64
	}
	if lastPlayedAt.Valid {
		utc := lastPlayedAt.Time.UTC()
		t.LastPlayedAt = &utc
	}
	if primaryTrackID.Valid {
		t.PrimaryTrackID = &primaryTrackID.Int64
	}
	return &t, nil
}

// ScanTrackRows scans a TrackColumns result set into a slice. Callers must
// have deferred rows.Close().
func ScanTrackRows(rows *sql.Rows) ([]models.Track, error) {
	var tracks []models.Track
	for rows.Next() {
		t, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track: %w", err)
		}
		tracks = append(tracks, *t)
	}
	return tracks, rows.Err()
}
