package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

// AnnotationRepository implements store.AnnotationRepository for SQLite.
type AnnotationRepository struct {
	db *DB
}

// NewAnnotationRepository creates a new SQLite annotation repository.
func NewAnnotationRepository(db *DB) *AnnotationRepository {
	return &AnnotationRepository{db: db}
}

const annotationColumns = `annotation_id, image_id, tree_id, tree_type,
	x0, y0, a, b, theta, quality, created_at`

// Insert adds a new annotation. The denormalized tree_type is copied from
// the trees table inside the transaction; a caller-supplied value is
// ignored so the copy can never drift from its parent.
//
// Fails with store.ErrInvalidGeometry for non-positive semi-axes,
// store.ErrForeignKey when image_id or tree_id does not exist, and
// store.ErrDuplicateAnnotation when the (image_id, tree_id) pair is already
// annotated. The check and the insert are one atomic statement under the
// composite unique index, so two concurrent inserts for the same pair can
// never both succeed.
func (r *AnnotationRepository) Insert(ctx context.Context, ann *models.Annotation) error {
	r.db.Lock()
	defer r.db.Unlock()

	if !ann.GeometryValid() {
		return fmt.Errorf("semi-axes a=%g b=%g: %w", ann.A, ann.B, store.ErrInvalidGeometry)
	}

	tx, err := r.db.Conn().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", mapError(err))
	}
	defer tx.Rollback()

	var treeType string
	err = tx.QueryRowContext(ctx, `SELECT tree_type FROM trees WHERE tree_id = ?`, ann.TreeID).Scan(&treeType)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("tree %s: %w", ann.TreeID, store.ErrForeignKey)
	}
	if err != nil {
		return fmt.Errorf("failed to resolve tree: %w", mapError(err))
	}
	ann.TreeType = treeType

	_, err = tx.ExecContext(ctx, `
		INSERT INTO annotations (annotation_id, image_id, tree_id, tree_type, x0, y0, a, b, theta, quality)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ann.AnnotationID, ann.ImageID, ann.TreeID, ann.TreeType,
		ann.X0, ann.Y0, ann.A, ann.B, ann.Theta, ann.Quality)
	if err != nil {
		return fmt.Errorf("failed to insert annotation: %w", mapError(err))
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit annotation: %w", mapError(err))
	}
	return nil
}

// GetByID retrieves an annotation by its ID. Fails with store.ErrNotFound
// when no such annotation exists.
func (r *AnnotationRepository) GetByID(ctx context.Context, annotationID string) (*models.Annotation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT `+annotationColumns+`
		FROM annotations WHERE annotation_id = ?
	`, annotationID)

	ann, err := scanAnnotation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("annotation: %w", store.ErrNotFound)
	}
	return ann, err
}

// ListByTree retrieves all annotations of one tree in insertion order.
func (r *AnnotationRepository) ListByTree(ctx context.Context, treeID string) ([]models.Annotation, error) {
	return r.list(ctx, `
		SELECT `+annotationColumns+`
		FROM annotations WHERE tree_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, treeID)
}

// ListByImage retrieves all annotations within one image in insertion order.
func (r *AnnotationRepository) ListByImage(ctx context.Context, imageID string) ([]models.Annotation, error) {
	return r.list(ctx, `
		SELECT `+annotationColumns+`
		FROM annotations WHERE image_id = ?
		ORDER BY created_at ASC, rowid ASC
	`, imageID)
}

// ListRecent retrieves the newest annotations joined with the path of their
// source image.
func (r *AnnotationRepository) ListRecent(ctx context.Context, limit int) ([]models.Annotation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT a.annotation_id, a.image_id, a.tree_id, a.tree_type,
			a.x0, a.y0, a.a, a.b, a.theta, a.quality, a.created_at,
			i.path
		FROM annotations a
		JOIN images i ON i.image_id = a.image_id
		ORDER BY a.created_at DESC, a.rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", mapError(err))
	}
	defer rows.Close()

	annotations := []models.Annotation{}
	for rows.Next() {
		var (
			ann     models.Annotation
			quality sql.NullFloat64
		)
		if err := rows.Scan(&ann.AnnotationID, &ann.ImageID, &ann.TreeID, &ann.TreeType,
			&ann.X0, &ann.Y0, &ann.A, &ann.B, &ann.Theta, &quality, &ann.CreatedAt,
			&ann.ImagePath); err != nil {
			return nil, fmt.Errorf("failed to scan annotation: %w", err)
		}
		ann.Quality = nullFloat(quality)
		annotations = append(annotations, ann)
	}

	return annotations, rows.Err()
}

// Count returns the total number of annotations.
func (r *AnnotationRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM annotations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count annotations: %w", mapError(err))
	}
	return count, nil
}

// Delete removes an annotation. Only maintenance paths use this; normal
// annotation records are write-once. Fails with store.ErrForeignKey while
// crown observations still reference the annotation.
func (r *AnnotationRepository) Delete(ctx context.Context, annotationID string) error {
	r.db.Lock()
	defer r.db.Unlock()

	if _, err := r.db.Conn().ExecContext(ctx, `
		DELETE FROM annotations WHERE annotation_id = ?
	`, annotationID); err != nil {
		return fmt.Errorf("failed to delete annotation: %w", mapError(err))
	}
	return nil
}

func (r *AnnotationRepository) list(ctx context.Context, query string, arg interface{}) ([]models.Annotation, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	rows, err := r.db.Conn().QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query annotations: %w", mapError(err))
	}
	defer rows.Close()

	annotations := []models.Annotation{}
	for rows.Next() {
		ann, err := scanAnnotationRow(rows)
		if err != nil {
			return nil, err
		}
		annotations = append(annotations, *ann)
	}

	return annotations, rows.Err()
}

func scanAnnotation(row *sql.Row) (*models.Annotation, error) {
	return scanAnnotationRow(row)
}

func scanAnnotationRow(row rowScanner) (*models.Annotation, error) {
	var (
		ann     models.Annotation
		quality sql.NullFloat64
	)
	err := row.Scan(&ann.AnnotationID, &ann.ImageID, &ann.TreeID, &ann.TreeType,
		&ann.X0, &ann.Y0, &ann.A, &ann.B, &ann.Theta, &quality, &ann.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan annotation: %w", err)
	}
	ann.Quality = nullFloat(quality)
	return &ann, nil
}
