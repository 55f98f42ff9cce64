package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/reminisce-app/reminisce/internal/models"
)

func (db *DB) CreateItem(ctx context.Context, item *models.Item) error {
	query := `
		INSERT INTO items (id, project_id, kind, storage_path, position)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING created_at
	`

	return db.QueryRowContext(
		ctx, query,
		item.ID, item.ProjectID, item.Kind, item.StoragePath, item.Position,
	).Scan(&item.CreatedAt)
}

func (db *DB) GetItem(ctx context.Context, id uuid.UUID) (*models.Item, error) {
	query := `
		SELECT id, project_id, kind, storage_path, position, created_at
		FROM items
		WHERE id = $1
	`

	item := &models.Item{}
	err := db.QueryRowContext(ctx, query, id).Scan(
		&item.ID, &item.ProjectID, &item.Kind, &item.StoragePath,
		&item.Position, &item.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}

	return item, nil
}

// ListItems returns a project's items in ascending position order, the render
// order of one pipeline run.
func (db *DB) ListItems(ctx context.Context, projectID uuid.UUID) ([]models.Item, error) {
	query := `
		SELECT id, project_id, kind, storage_path, position, created_at
		FROM items
		WHERE project_id = $1
		ORDER BY position ASC
	`

	rows, err := db.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer rows.Close()

	var items []models.Item
	for rows.Next() {
		var it models.Item
		if err := rows.Scan(
			&it.ID, &it.ProjectID, &it.Kind, &it.StoragePath,
			&it.Position, &it.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, it)
	}

	return items, rows.Err()
}

func (db *DB) CountItems(ctx context.Context, projectID uuid.UUID) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE project_id = $1`, projectID).Scan(&count)
	return count, err
}

// ReorderItems rewrites positions to 0..n-1 in the order given, in one
// transaction. Every item of the project must appear exactly once: a
// duplicate id would slip past the count check, write one item's position
// twice and leave two items tied, so duplicates are rejected up front.
func (db *DB) ReorderItems(ctx context.Context, projectID uuid.UUID, itemIDs []uuid.UUID) error {
	seen := make(map[uuid.UUID]bool, len(itemIDs))
	for _, itemID := range itemIDs {
		if seen[itemID] {
			return fmt.Errorf("item %s listed more than once", itemID)
		}
		seen[itemID] = true
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin reorder: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM items WHERE project_id = $1`, projectID).Scan(&count); err != nil {
		return fmt.Errorf("failed to count items: %w", err)
	}
	if count != len(itemIDs) {
		return fmt.Errorf("reorder must list all %d items, got %d", count, len(itemIDs))
	}

	for position, itemID := range itemIDs {
		res, err := tx.ExecContext(ctx,
			`UPDATE items SET position = $1 WHERE id = $2 AND project_id = $3`,
			position, itemID, projectID,
		)
		if err != nil {
			return fmt.Errorf("failed to reposition item %s: %w", itemID, err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("item %s: %w", itemID, ErrNotFound)
		}
	}

	return tx.Commit()
}

// ClearItemStoragePath nulls the backing file reference. Called before the row
// is deleted and the file removed, so a crash mid-delete leaves at worst a
// leaked file, never a dangling reference.
func (db *DB) ClearItemStoragePath(ctx context.Context, id uuid.UUID) error {
	_, err := db.ExecContext(ctx, `UPDATE items SET storage_path = NULL WHERE id = $1`, id)
	return err
}

func (db *DB) DeleteItem(ctx context.Context, id uuid.UUID) error {
	res, err := db.ExecContext(ctx, `DELETE FROM items WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s: %w", id, ErrNotFound)
	}
	return nil
}
