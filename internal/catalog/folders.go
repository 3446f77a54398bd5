package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"cadenza/pkg/models"
)

// EnsureFolder returns the folder row for a scan root, creating it on first
// sight.
func (c *Catalog) EnsureFolder(ctx context.Context, path string) (models.Folder, error) {
	path = filepath.Clean(path)

	var folder models.Folder
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRow(
			"SELECT id, path, content_hash, last_scanned_at FROM folders WHERE path = ?", path)
		f, err := scanFolder(row)
		if err == nil {
			folder = *f
			return nil
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("failed to look up folder %s: %w", path, err)
		}

		result, err := tx.Exec("INSERT INTO folders (path) VALUES (?)", path)
		if err != nil {
			return fmt.Errorf("failed to create folder %s: %w", path, err)
		}
		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read folder id for %s: %w", path, err)
		}
		folder = models.Folder{ID: id, Path: path}
		return nil
	})
	return folder, err
}

// MarkFolderScanned records a completed scan with the folder's new content
// hash.
func (c *Catalog) MarkFolderScanned(ctx context.Context, folderID int64, contentHash string) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(
			"UPDATE folders SET content_hash = ?, last_scanned_at = ? WHERE id = ?",
			contentHash, time.Now().UTC(), folderID)
		if err != nil {
			return fmt.Errorf("failed to mark folder %d scanned: %w", folderID, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			return ErrNotFound
		}
		return nil
	})
}

// ListFolders returns all scan roots.
func (c *Catalog) ListFolders(ctx context.Context) ([]models.Folder, error) {
	var folders []models.Folder
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT id, path, content_hash, last_scanned_at FROM folders ORDER BY path")
		if err != nil {
			return fmt.Errorf("failed to list folders: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			f, err := scanFolder(rows)
			if err != nil {
				return fmt.Errorf("failed to scan folder: %w", err)
			}
			folders = append(folders, *f)
		}
		return rows.Err()
	})
	return folders, err
}

// RemoveFolder deletes a scan root; its tracks cascade.
func (c *Catalog) RemoveFolder(ctx context.Context, folderID int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM folders WHERE id = ?", folderID); err != nil {
			return fmt.Errorf("failed to remove folder %d: %w", folderID, err)
		}
		return CleanupOrphans(tx)
	})
}

func scanFolder(row rowScanner) (*models.Folder, error) {
	var (
		f             models.Folder
		lastScannedAt sql.NullTime
	)
	if err := row.Scan(&f.ID, &f.Path, &f.ContentHash, &lastScannedAt); err != nil {
		return nil, err
	}
	if lastScannedAt.Valid {
		utc := lastScannedAt.Time.UTC()
		f.LastScannedAt = &utc
	}
	return &f, nil
}
