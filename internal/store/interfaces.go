package store

import (
	"context"

	"treesurvey/internal/models"
)

// ImageRepository defines persistence operations for aerial images.
type ImageRepository interface {
	// Create operations
	Insert(ctx context.Context, img *models.Image) error

	// Read operations
	GetByID(ctx context.Context, imageID string) (*models.Image, error)
	GetByPath(ctx context.Context, path string) (*models.Image, error)
	List(ctx context.Context, limit int) ([]models.Image, error)
	Count(ctx context.Context) (int, error)

	// Metadata backfill
	SetFlightAltitude(ctx context.Context, imageID string, altitude float64) error
}

// TreeRepository defines persistence operations for surveyed trees.
type TreeRepository interface {
	Insert(ctx context.Context, tree *models.Tree) error
	GetByID(ctx context.Context, treeID string) (*models.Tree, error)
	List(ctx context.Context, limit int) ([]models.Tree, error)
	Count(ctx context.Context) (int, error)
}

// AnnotationRepository defines persistence operations for ellipse annotations.
type AnnotationRepository interface {
	Insert(ctx context.Context, ann *models.Annotation) error
	GetByID(ctx context.Context, annotationID string) (*models.Annotation, error)
	ListByTree(ctx context.Context, treeID string) ([]models.Annotation, error)
	ListByImage(ctx context.Context, imageID string) ([]models.Annotation, error)
	ListRecent(ctx context.Context, limit int) ([]models.Annotation, error)
	Count(ctx context.Context) (int, error)
	Delete(ctx context.Context, annotationID string) error
}

// ObservationRepository defines persistence operations for crown observations.
type ObservationRepository interface {
	// Insert derives image_id and tree_id from the referenced annotation
	// inside one transaction. Caller-supplied copies are ignored.
	Insert(ctx context.Context, obs *models.CrownObservation) error

	GetByID(ctx context.Context, obsID string) (*models.CrownObservation, error)
	ListByTree(ctx context.Context, treeID string) ([]models.CrownObservation, error)
	ListByImage(ctx context.Context, imageID string) ([]models.CrownObservation, error)
	ListByAnnotation(ctx context.Context, annotationID string) ([]models.CrownObservation, error)
	ListRecent(ctx context.Context, limit int) ([]models.CrownObservation, error)
	Count(ctx context.Context) (int, error)

	// BackfillHeights copies images.flight_altitude into obs_height for
	// observations that have none yet. Returns the number updated.
	BackfillHeights(ctx context.Context) (int, error)
}

// Store exposes the annotation-store operations as one surface. Every
// mutation is atomic with respect to its uniqueness and foreign-key checks;
// a failed call leaves no partial row in any table.
type Store interface {
	RegisterImage(ctx context.Context, img *models.Image) error
	RegisterTree(ctx context.Context, tree *models.Tree) error
	CreateAnnotation(ctx context.Context, ann *models.Annotation) error
	CreateObservation(ctx context.Context, obs *models.CrownObservation) error

	// LookupByTree fails with ErrNotFound when the tree was never
	// registered; a registered tree with no annotations yields empty
	// slices. LookupByImage is symmetric.
	LookupByTree(ctx context.Context, treeID string) (*models.TreeSurvey, error)
	LookupByImage(ctx context.Context, imageID string) (*models.ImageSurvey, error)

	Stats(ctx context.Context) (*models.StoreStats, error)
}
