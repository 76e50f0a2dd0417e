package sqlite

import (
	"context"
	"fmt"
)

// Maintenance bundles repair operations for databases that predate the
// current schema. A store created by this package cannot grow duplicate
// annotation pairs or orphan observations, but databases migrated from
// earlier tooling (which tolerated a failing unique index) can carry both.
type Maintenance struct {
	db *DB
}

// NewMaintenance creates a maintenance helper for the given database.
func NewMaintenance(db *DB) *Maintenance {
	return &Maintenance{db: db}
}

// DeduplicateAnnotations removes duplicate annotations per (image_id,
// tree_id) pair, keeping only the newest by created_at. Observations
// derived from a removed annotation are removed with it, in the same
// transaction. Returns the number of annotations deleted.
func (m *Maintenance) DeduplicateAnnotations(ctx context.Context) (int, error) {
	m.db.Lock()
	defer m.db.Unlock()

	tx, err := m.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT a.annotation_id
		FROM annotations a
		JOIN (
			SELECT image_id, tree_id, MAX(created_at) AS max_created
			FROM annotations
			GROUP BY image_id, tree_id
		) latest
		ON a.image_id = latest.image_id AND a.tree_id = latest.tree_id
		WHERE a.created_at < latest.max_created
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to find duplicate annotations: %w", mapError(err))
	}

	var toDelete []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("failed to scan annotation id: %w", err)
		}
		toDelete = append(toDelete, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	for _, id := range toDelete {
		if _, err := tx.ExecContext(ctx, `DELETE FROM crown_observations WHERE annotation_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete observations of %s: %w", id, mapError(err))
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM annotations WHERE annotation_id = ?`, id); err != nil {
			return 0, fmt.Errorf("failed to delete annotation %s: %w", id, mapError(err))
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit deduplication: %w", mapError(err))
	}
	return len(toDelete), nil
}

// CleanupOrphanObservations removes observations whose annotation no longer
// exists. Returns the number of observations deleted.
func (m *Maintenance) CleanupOrphanObservations(ctx context.Context) (int, error) {
	m.db.Lock()
	defer m.db.Unlock()

	res, err := m.db.Conn().ExecContext(ctx, `
		DELETE FROM crown_observations
		WHERE obs_id IN (
			SELECT o.obs_id
			FROM crown_observations o
			LEFT JOIN annotations a ON a.annotation_id = o.annotation_id
			WHERE a.annotation_id IS NULL
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan observations: %w", mapError(err))
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to delete orphan observations: %w", err)
	}
	return int(deleted), nil
}
