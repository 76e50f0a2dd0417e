package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

// ObservationRepository implements store.ObservationRepository for SQLite.
type ObservationRepository struct {
	db *DB
}

// NewObservationRepository creates a new SQLite crown-observation repository.
func NewObservationRepository(db *DB) *ObservationRepository {
	return &ObservationRepository{db: db}
}

const observationColumns = `obs_id, annotation_id, image_id, tree_id,
	roi_raw_path, obs_height, features_json, created_at`

// Insert adds a new crown observation. image_id and tree_id are copied from
// the referenced annotation inside the transaction; values supplied on obs
// are overwritten, so the denormalized columns can never drift. Fails with
// store.ErrForeignKey when annotation_id does not resolve and
// store.ErrDuplicateKey on an obs_id collision.
func (r *ObservationRepository) Insert(ctx context.Context, obs *models.CrownObservation) error {
	r.db.Lock()
	defer r.db.Unlock()

	if obs.RoiRawPath == "" {
		return errors.New("roi_raw_path is required")
	}

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	var imageID, treeID string
	err = tx.QueryRowContext(ctx, `
		SELECT image_id, tree_id FROM annotations WHERE annotation_id = ?
	`, obs.AnnotationID).Scan(&imageID, &treeID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("annotation %s: %w", obs.AnnotationID, store.ErrForeignKey)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve annotation: %w", mapError(err))
	}
	obs.ImageID = imageID
	obs.TreeID = treeID

	_, err = tx.ExecContext(ctx, `
		INSERT INTO crown_observations (obs_id, annotation_id, image_id, tree_id, roi_raw_path, obs_height, features_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, obs.ObsID, obs.AnnotationID, obs.ImageID, obs.TreeID,
		obs.RoiRawPath, obs.ObsHeight, obs.FeaturesJSON)
	if err != nil {
		return fmt.Errorf("failed to insert observation: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit observation: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves an observation by its ID. Fails with store.ErrNotFound
// when no such observation exists.
func (r *ObservationRepository) GetByID(ctx context.Context, obsID string) (*models.CrownObservation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT `+observationColumns+`
		FROM crown_observations WHERE obs_id = ?
	`, obsID)

	obs, err := scanObservationRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("observation: %w", store.ErrNotFound)
	}
	return obs, err
}

// ListByTree retrieves all observations of one tree in insertion order.
func (r *ObservationRepository) ListByTree(ctx context.Context, treeID string) ([]models.CrownObservation, error) {
	return r.list(ctx, `
		SELECT `+observationColumns+`
		FROM crown_observations WHERE tree_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, treeID)
}

// ListByImage retrieves all observations within one image in insertion order.
func (r *ObservationRepository) ListByImage(ctx context.Context, imageID string) ([]models.CrownObservation, error) {
	return r.list(ctx, `
		SELECT `+observationColumns+`
		FROM crown_observations WHERE image_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, imageID)
}

// ListByAnnotation retrieves all observations derived from one annotation
// in insertion order. An annotation may have any number of observations.
func (r *ObservationRepository) ListByAnnotation(ctx context.Context, annotationID string) ([]models.CrownObservation, error) {
	return r.list(ctx, `
		SELECT `+observationColumns+`
		FROM crown_observations WHERE annotation_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, annotationID)
}

// ListRecent retrieves the newest observations joined with the path of
// their source image.
func (r *ObservationRepository) ListRecent(ctx context.Context, limit int) ([]models.CrownObservation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT o.obs_id, o.annotation_id, o.image_id, o.tree_id,
			o.roi_raw_path, o.obs_height, o.features_json, o.created_at,
			i.path
		FROM crown_observations o
		JOIN images i ON i.image_id = o.image_id
		ORDER BY o.created_at DESC, o.rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", mapError(err))
	}
	defer rows.Close()

	observations := []models.CrownObservation{}
	for rows.Next() {
		var (
			obs      models.CrownObservation
			height   sql.NullFloat64
			features sql.NullString
		)
		if err := rows.Scan(&obs.ObsID, &obs.AnnotationID, &obs.ImageID, &obs.TreeID,
			&obs.RoiRawPath, &height, &features, &obs.CreatedAt, &obs.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan observation: %w", err)
		}
		obs.ObsHeight = nullFloat(height)
		obs.FeaturesJSON = nullString(features)
		observations = append(observations, obs)
	}

	return observations, rows.Err()
}

// Count returns the total number of observations.
func (r *ObservationRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM crown_observations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count observations: %w", mapError(err))
	}
	return count, nil
}

// BackfillHeights copies images.flight_altitude into obs_height for every
// observation whose height is still unset and whose image has an altitude.
// Returns the number of rows updated.
func (r *ObservationRepository) BackfillHeights(ctx context.Context) (int, error) {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `
		UPDATE crown_observations
		SET obs_height = (
			SELECT i.flight_altitude
			FROM images i
			WHERE i.image_id = crown_observations.image_id
		)
		WHERE obs_height IS NULL
		  AND image_id IN (
			SELECT image_id FROM images WHERE flight_altitude IS NOT NULL
		  )
	`)
	if err != nil {
		return 0, fmt.Errorf("failed to backfill observation heights: %w", mapError(err))
	}

	updated, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to backfill observation heights: %w", err)
	}
	return int(updated), nil
}

func (r *ObservationRepository) list(ctx context.Context, query string, arg interface{}) ([]models.CrownObservation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query observations: %w", mapError(err))
	}
	defer rows.Close()

	observations := []models.CrownObservation{}
	for rows.Next() {
		obs, err := scanObservationRow(rows)
		if err != nil {
			return nil, err
		}
		observations = append(observations, *obs)
	}

	return observations, rows.Err()
}

func scanObservationRow(row rowScanner) (*models.CrownObservation, error) {
	var (
		obs      models.CrownObservation
		height   sql.NullFloat64
		features sql.NullString
	)
	err := row.Scan(&obs.ObsID, &obs.AnnotationID, &obs.ImageID, &obs.TreeID,
		&obs.RoiRawPath, &height, &features, &obs.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan observation: %w", err)
	}
	obs.ObsHeight = nullFloat(height)
	obs.FeaturesJSON = nullString(features)
	return &obs, nil
}
