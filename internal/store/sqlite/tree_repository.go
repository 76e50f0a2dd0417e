package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

// TreeRepository implements store.TreeRepository for SQLite.
type TreeRepository struct {
	db *DB
}

// NewTreeRepository creates a new SQLite tree repository.
func NewTreeRepository(db *DB) *TreeRepository {
	return &TreeRepository{db: db}
}

// Insert adds a new tree record. Fails with store.ErrDuplicateKey when the
// tree_id is already registered.
func (r *TreeRepository) Insert(ctx context.Context, tree *models.Tree) error {
	r.db.Lock()
	defer r.db.Unlock()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO trees (tree_id, tree_type, lat, lon, height_est)
		VALUES (?, ?, ?, ?, ?)
	`, tree.TreeID, tree.TreeType, tree.Lat, tree.Lon, tree.HeightEst)
	if err != nil {
		return fmt.Errorf("failed to insert tree: %w", mapError(err))
	}

	return nil
}

// GetByID retrieves a tree by its ID. Fails with store.ErrNotFound when the
// tree was never registered.
func (r *TreeRepository) GetByID(ctx context.Context, treeID string) (*models.Tree, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var (
		tree      models.Tree
		lat, lon  sql.NullFloat64
		heightEst sql.NullFloat64
	)
	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT tree_id, tree_type, lat, lon, height_est, created_at
		FROM trees WHERE tree_id = ?
	`, treeID).Scan(&tree.TreeID, &tree.TreeType, &lat, &lon, &heightEst, &tree.CreatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("tree: %w", store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tree: %w", err)
	}

	tree.Lat = nullFloat(lat)
	tree.Lon = nullFloat(lon)
	tree.HeightEst = nullFloat(heightEst)

	return &tree, nil
}

// List retrieves the most recently registered trees. A non-positive limit
// returns everything.
func (r *TreeRepository) List(ctx context.Context, limit int) ([]models.Tree, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT tree_id, tree_type, lat, lon, height_est, created_at
		FROM trees
		ORDER BY created_at DESC, rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query trees: %w", mapError(err))
	}
	defer rows.Close()

	trees := []models.Tree{}
	for rows.Next() {
		var (
			tree      models.Tree
			lat, lon  sql.NullFloat64
			heightEst sql.NullFloat64
		)
		if err := rows.Scan(&tree.TreeID, &tree.TreeType, &lat, &lon, &heightEst, &tree.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan tree: %w", err)
		}
		tree.Lat = nullFloat(lat)
		tree.Lon = nullFloat(lon)
		tree.HeightEst = nullFloat(heightEst)
		trees = append(trees, tree)
	}

	return trees, rows.Err()
}

// Count returns the total number of registered trees.
func (r *TreeRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM trees`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count trees: %w", mapError(err))
	}
	return count, nil
}
