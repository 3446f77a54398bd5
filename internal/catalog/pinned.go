package catalog

import (
	"context"
	"database/sql"
	"fmt"

	"cadenza/pkg/models"
)

// PinPlaylist appends a playlist shortcut to the pinned list.
func (c *Catalog) PinPlaylist(ctx context.Context, playlistID int64) (int64, error) {
	var id int64
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		if _, err := playlistIsSmart(tx, playlistID); err != nil {
			return err
		}
		result, err := tx.Exec(`
			INSERT INTO pinned_items (kind, playlist_id, sort_order)
			VALUES ('playlist', ?, COALESCE((SELECT MAX(sort_order) FROM pinned_items), 0) + 1)`,
			playlistID)
		if err != nil {
			return fmt.Errorf("failed to pin playlist %d: %w", playlistID, err)
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

// PinFilter appends a library filter facet to the pinned list. For the
// artist, album and genre filter types filterValue must be the decimal id of
// the target entity row; CleanupOrphans reclaims pins by matching that id
// against the surviving entities, so a name-valued pin would be dropped on
// the next cleanup pass.
func (c *Catalog) PinFilter(ctx context.Context, filterType, filterValue string) (int64, error) {
	var id int64
	err := c.store.Write(ctx, func(tx *sql.Tx) error {
		result, err := tx.Exec(`
			INSERT INTO pinned_items (kind, filter_type, filter_value, sort_order)
			VALUES ('filter', ?, ?, COALESCE((SELECT MAX(sort_order) FROM pinned_items), 0) + 1)`,
			filterType, filterValue)
		if err != nil {
			return fmt.Errorf("failed to pin filter %s=%s: %w", filterType, filterValue, err)
		}
		id, err = result.LastInsertId()
		return err
	})
	return id, err
}

// Unpin removes a pinned item.
func (c *Catalog) Unpin(ctx context.Context, id int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		if _, err := tx.Exec("DELETE FROM pinned_items WHERE id = ?", id); err != nil {
			return fmt.Errorf("failed to unpin item %d: %w", id, err)
		}
		return nil
	})
}

// ReorderPins rewrites the explicit sort order to match the given id order.
func (c *Catalog) ReorderPins(ctx context.Context, ids []int64) error {
	return c.store.Write(ctx, func(tx *sql.Tx) error {
		for i, id := range ids {
			if _, err := tx.Exec(
				"UPDATE pinned_items SET sort_order = ? WHERE id = ?", i+1, id); err != nil {
				return fmt.Errorf("failed to reorder pin %d: %w", id, err)
			}
		}
		return nil
	})
}

// ListPinnedItems returns pins in their explicit user order.
func (c *Catalog) ListPinnedItems(ctx context.Context) ([]models.PinnedItem, error) {
	var items []models.PinnedItem
	err := c.store.Read(ctx, func(tx *sql.Tx) error {
		rows, err := tx.Query(`
			SELECT id, kind, filter_type, filter_value, playlist_id, sort_order
			FROM pinned_items ORDER BY sort_order`)
		if err != nil {
			return fmt.Errorf("failed to list pinned items: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var (
				item       models.PinnedItem
				kind       string
				playlistID sql.NullInt64
			)
			if err := rows.Scan(&item.ID, &kind, &item.FilterType, &item.FilterValue, &playlistID, &item.SortOrder); err != nil {
				return fmt.Errorf("failed to scan pinned item: %w", err)
			}
			item.Kind = models.PinnedItemKind(kind)
			if playlistID.Valid {
				item.PlaylistID = &playlistID.Int64
			}
			items = append(items, item)
		}
		return rows.Err()
	})
	return items, err
}
