package store

import (
	"database/sql"
	"fmt"
	"time"
)

// migration is one ordered schema upgrade step. Steps must be idempotent
// with respect to re-application safety (IF NOT EXISTS guards, column
// existence checks) so a partially initialized store never errors.
type migration struct {
	version int
	name    string
	apply   func(tx *sql.Tx) error
}

// migrations is the full ordered upgrade list. A fresh store receives the
// baseline in step 1 and every later step on top of it, so "create" and
// "upgrade" share one code path.
var migrations = []migration{
	{1, "baseline_schema", migrateBaseline},
	{2, "duplicate_annotations", migrateDuplicateAnnotations},
	{3, "search_index", migrateSearchIndex},
	{4, "extended_tags", migrateExtendedTags},
}

// migrate applies all pending migrations in order, recording each in the
// schema_migrations ledger exactly once.
func (s *Store) migrate() error {
	if _, err := s.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TEXT NOT NULL
		);`); err != nil {
		return fmt.Errorf("failed to create migration ledger: %w", err)
	}

	applied := make(map[int]bool)
	rows, err := s.conn.Query("SELECT version FROM schema_migrations")
	if err != nil {
		return fmt.Errorf("failed to read migration ledger: %w", err)
	}
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan migration ledger: %w", err)
		}
		applied[version] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return fmt.Errorf("failed to iterate migration ledger: %w", err)
	}

	for _, m := range migrations {
		if applied[m.version] {
			continue
		}

		tx, err := s.conn.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}

		if err := m.apply(tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d (%s) failed: %w", m.version, m.name, err)
		}

		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.version, m.name, time.Now().UTC().Format(time.RFC3339),
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		s.logger.WithField("version", m.version).WithField("name", m.name).Info("Applied schema migration")
	}

	return nil
}

// migrateBaseline creates the normalized core schema: catalog entities,
// junction relations, playlists and pinned items.
func migrateBaseline(tx *sql.Tx) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS folders (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			path TEXT NOT NULL UNIQUE,
			content_hash TEXT NOT NULL DEFAULT '',
			last_scanned_at DATETIME
		);`,

		`CREATE TABLE IF NOT EXISTS artists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			normalized_name TEXT NOT NULL UNIQUE,
			artwork BLOB,
			track_count INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS albums (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			title TEXT NOT NULL,
			normalized_title TEXT NOT NULL,
			year TEXT NOT NULL DEFAULT '',
			artist_id INTEGER REFERENCES artists(id) ON DELETE SET NULL,
			artwork BLOB,
			track_count INTEGER NOT NULL DEFAULT 0
		);`,

		`CREATE TABLE IF NOT EXISTS genres (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE
		);`,

		`CREATE TABLE IF NOT EXISTS tracks (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			file_path TEXT NOT NULL UNIQUE,
			folder_id INTEGER NOT NULL REFERENCES folders(id) ON DELETE CASCADE,
			album_id INTEGER REFERENCES albums(id) ON DELETE SET NULL,
			title TEXT NOT NULL,
			artist TEXT NOT NULL DEFAULT '',
			album_artist TEXT NOT NULL DEFAULT '',
			album TEXT NOT NULL DEFAULT '',
			genre TEXT NOT NULL DEFAULT '',
			composer TEXT NOT NULL DEFAULT '',
			track_number INTEGER NOT NULL DEFAULT 0,
			disc_number INTEGER NOT NULL DEFAULT 0,
			year TEXT NOT NULL DEFAULT '',
			duration REAL NOT NULL DEFAULT 0,
			bitrate INTEGER NOT NULL DEFAULT 0,
			sample_rate INTEGER NOT NULL DEFAULT 0,
			bit_depth INTEGER NOT NULL DEFAULT 0,
			channels INTEGER NOT NULL DEFAULT 0,
			lossless BOOLEAN NOT NULL DEFAULT FALSE,
			file_size INTEGER NOT NULL DEFAULT 0,
			modified_at INTEGER NOT NULL DEFAULT 0,
			play_count INTEGER NOT NULL DEFAULT 0,
			last_played_at DATETIME,
			date_added DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			is_favorite BOOLEAN NOT NULL DEFAULT FALSE,
			artwork_id TEXT NOT NULL DEFAULT ''
		);`,

		`CREATE TABLE IF NOT EXISTS track_artists (
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			artist_id INTEGER NOT NULL REFERENCES artists(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('artist', 'album_artist', 'composer')),
			position INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (track_id, artist_id, role)
		);`,

		`CREATE TABLE IF NOT EXISTS track_genres (
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			genre_id INTEGER NOT NULL REFERENCES genres(id) ON DELETE CASCADE,
			PRIMARY KEY (track_id, genre_id)
		);`,

		`CREATE TABLE IF NOT EXISTS playlists (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_smart BOOLEAN NOT NULL DEFAULT FALSE,
			criteria TEXT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			CHECK ((is_smart AND criteria IS NOT NULL) OR (NOT is_smart AND criteria IS NULL))
		);`,

		`CREATE TABLE IF NOT EXISTS playlist_tracks (
			playlist_id INTEGER NOT NULL REFERENCES playlists(id) ON DELETE CASCADE,
			track_id INTEGER NOT NULL REFERENCES tracks(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (playlist_id, track_id)
		);`,

		`CREATE TABLE IF NOT EXISTS pinned_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			kind TEXT NOT NULL CHECK (kind IN ('filter', 'playlist')),
			filter_type TEXT NOT NULL DEFAULT '',
			filter_value TEXT NOT NULL DEFAULT '',
			playlist_id INTEGER REFERENCES playlists(id) ON DELETE CASCADE,
			sort_order INTEGER NOT NULL DEFAULT 0
		);`,

		"CREATE INDEX IF NOT EXISTS idx_tracks_folder ON tracks(folder_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_album ON tracks(album_id);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_play_count ON tracks(play_count);",
		"CREATE INDEX IF NOT EXISTS idx_tracks_favorite ON tracks(is_favorite);",
		"CREATE INDEX IF NOT EXISTS idx_track_artists_artist ON track_artists(artist_id, role);",
		"CREATE INDEX IF NOT EXISTS idx_track_genres_genre ON track_genres(genre_id);",
		"CREATE INDEX IF NOT EXISTS idx_albums_normalized ON albums(normalized_title, artist_id);",
		"CREATE INDEX IF NOT EXISTS idx_playlist_tracks_position ON playlist_tracks(playlist_id, position);",
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateDuplicateAnnotations adds the duplicate-group columns maintained by
// the duplicate detector.
func migrateDuplicateAnnotations(tx *sql.Tx) error {
	columns := []struct {
		name string
		ddl  string
	}{
		{"is_duplicate", "ALTER TABLE tracks ADD COLUMN is_duplicate BOOLEAN NOT NULL DEFAULT FALSE"},
		{"primary_track_id", "ALTER TABLE tracks ADD COLUMN primary_track_id INTEGER"},
		{"duplicate_group_id", "ALTER TABLE tracks ADD COLUMN duplicate_group_id TEXT NOT NULL DEFAULT ''"},
	}

	for _, col := range columns {
		exists, err := columnExists(tx, "tracks", col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := tx.Exec(col.ddl); err != nil {
			return err
		}
	}

	_, err := tx.Exec("CREATE INDEX IF NOT EXISTS idx_tracks_duplicate_group ON tracks(duplicate_group_id)")
	return err
}

// migrateSearchIndex creates the FTS5 full-text index over track text fields
// and the triggers that keep it transactionally consistent with the tracks
// table.
func migrateSearchIndex(tx *sql.Tx) error {
	statements := []string{
		`CREATE VIRTUAL TABLE IF NOT EXISTS track_search USING fts5(
			title, artist, album, genre, composer,
			content='tracks',
			content_rowid='id',
			tokenize='porter unicode61'
		);`,

		`CREATE TRIGGER IF NOT EXISTS track_search_ai AFTER INSERT ON tracks BEGIN
			INSERT INTO track_search(rowid, title, artist, album, genre, composer)
			VALUES (new.id, new.title, new.artist, new.album, new.genre, new.composer);
		END;`,

		`CREATE TRIGGER IF NOT EXISTS track_search_ad AFTER DELETE ON tracks BEGIN
			INSERT INTO track_search(track_search, rowid, title, artist, album, genre, composer)
			VALUES ('delete', old.id, old.title, old.artist, old.album, old.genre, old.composer);
		END;`,

		`CREATE TRIGGER IF NOT EXISTS track_search_au AFTER UPDATE ON tracks BEGIN
			INSERT INTO track_search(track_search, rowid, title, artist, album, genre, composer)
			VALUES ('delete', old.id, old.title, old.artist, old.album, old.genre, old.composer);
			INSERT INTO track_search(rowid, title, artist, album, genre, composer)
			VALUES (new.id, new.title, new.artist, new.album, new.genre, new.composer);
		END;`,

		// Repopulate from the content table so stores upgraded with existing
		// tracks are indexed too. Safe to re-run.
		"INSERT INTO track_search(track_search) VALUES ('rebuild');",
	}

	for _, stmt := range statements {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

// migrateExtendedTags adds the extended tag fields carried by some formats.
func migrateExtendedTags(tx *sql.Tx) error {
	columns := []struct {
		name string
		ddl  string
	}{
		{"isrc", "ALTER TABLE tracks ADD COLUMN isrc TEXT NOT NULL DEFAULT ''"},
		{"label", "ALTER TABLE tracks ADD COLUMN label TEXT NOT NULL DEFAULT ''"},
		{"conductor", "ALTER TABLE tracks ADD COLUMN conductor TEXT NOT NULL DEFAULT ''"},
		{"producer", "ALTER TABLE tracks ADD COLUMN producer TEXT NOT NULL DEFAULT ''"},
	}

	for _, col := range columns {
		exists, err := columnExists(tx, "tracks", col.name)
		if err != nil {
			return err
		}
		if exists {
			continue
		}
		if _, err := tx.Exec(col.ddl); err != nil {
			return err
		}
	}
	return nil
}

// columnExists reports whether a table already has the named column.
func columnExists(tx *sql.Tx, table, column string) (bool, error) {
	var exists bool
	err := tx.QueryRow(`
		SELECT COUNT(*) > 0
		FROM pragma_table_info(?)
		WHERE name = ?`, table, column).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check for %s.%s column: %w", table, column, err)
	}
	return exists, nil
}
