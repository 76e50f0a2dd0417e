package sqlite

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

// Store is the SQLite implementation of store.Store, tying the per-entity
// repositories to one database handle.
type Store struct {
	db *DB

	Images       *ImageRepository
	Trees        *TreeRepository
	Annotations  *AnnotationRepository
	Observations *ObservationRepository
	Maintenance  *Maintenance
}

var (
	_ store.Store                 = (*Store)(nil)
	_ store.ImageRepository       = (*ImageRepository)(nil)
	_ store.TreeRepository        = (*TreeRepository)(nil)
	_ store.AnnotationRepository  = (*AnnotationRepository)(nil)
	_ store.ObservationRepository = (*ObservationRepository)(nil)
)

// Open opens (creating if needed) the survey database at dbPath.
func Open(dbPath string) (*Store, error) {
	db, err := New(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{
		db:           db,
		Images:       NewImageRepository(db),
		Trees:        NewTreeRepository(db),
		Annotations:  NewAnnotationRepository(db),
		Observations: NewObservationRepository(db),
		Maintenance:  NewMaintenance(db),
	}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RegisterImage inserts an image record, minting a UUID when the caller
// supplied no image_id.
func (s *Store) RegisterImage(ctx context.Context, img *models.Image) error {
	if img.ImageID == "" {
		img.ImageID = uuid.NewString()
	}
	return s.Images.Insert(ctx, img)
}

// RegisterTree inserts a tree record, minting a UUID when the caller
// supplied no tree_id.
func (s *Store) RegisterTree(ctx context.Context, tree *models.Tree) error {
	if tree.TreeID == "" {
		tree.TreeID = uuid.NewString()
	}
	return s.Trees.Insert(ctx, tree)
}

// CreateAnnotation inserts an ellipse annotation, minting a UUID when the
// caller supplied no annotation_id.
func (s *Store) CreateAnnotation(ctx context.Context, ann *models.Annotation) error {
	if ann.AnnotationID == "" {
		ann.AnnotationID = uuid.NewString()
	}
	return s.Annotations.Insert(ctx, ann)
}

// CreateObservation inserts a crown observation, minting a UUID when the
// caller supplied no obs_id.
func (s *Store) CreateObservation(ctx context.Context, obs *models.CrownObservation) error {
	if obs.ObsID == "" {
		obs.ObsID = uuid.NewString()
	}
	return s.Observations.Insert(ctx, obs)
}

// LookupByTree returns the tree with all its annotations and observations,
// each ordered by creation time ascending. Fails with store.ErrNotFound
// when the tree was never registered; a tree without annotations yields
// empty slices.
func (s *Store) LookupByTree(ctx context.Context, treeID string) (*models.TreeSurvey, error) {
	tree, err := s.Trees.GetByID(ctx, treeID)
	if err != nil {
		return nil, err
	}

	annotations, err := s.Annotations.ListByTree(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("lookup tree %s: %w", treeID, err)
	}
	observations, err := s.Observations.ListByTree(ctx, treeID)
	if err != nil {
		return nil, fmt.Errorf("lookup tree %s: %w", treeID, err)
	}

	return &models.TreeSurvey{
		Tree:         tree,
		Annotations:  annotations,
		Observations: observations,
	}, nil
}

// LookupByImage is the image-keyed counterpart of LookupByTree.
func (s *Store) LookupByImage(ctx context.Context, imageID string) (*models.ImageSurvey, error) {
	img, err := s.Images.GetByID(ctx, imageID)
	if err != nil {
		return nil, err
	}

	annotations, err := s.Annotations.ListByImage(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("lookup image %s: %w", imageID, err)
	}
	observations, err := s.Observations.ListByImage(ctx, imageID)
	if err != nil {
		return nil, fmt.Errorf("lookup image %s: %w", imageID, err)
	}

	return &models.ImageSurvey{
		Image:        img,
		Annotations:  annotations,
		Observations: observations,
	}, nil
}

// Stats returns per-table record counts.
func (s *Store) Stats(ctx context.Context) (*models.StoreStats, error) {
	stats := &models.StoreStats{}
	var err error

	if stats.TotalImages, err = s.Images.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalTrees, err = s.Trees.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalAnnotations, err = s.Annotations.Count(ctx); err != nil {
		return nil, err
	}
	if stats.TotalObservations, err = s.Observations.Count(ctx); err != nil {
		return nil, err
	}

	return stats, nil
}
