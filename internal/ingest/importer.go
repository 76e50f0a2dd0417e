package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"treesurvey/internal/logger"
	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

// imageExts lists the raster extensions picked up by directory import.
var imageExts = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// ImageRegistrar is the slice of the store the importer needs.
type ImageRegistrar interface {
	RegisterImage(ctx context.Context, img *models.Image) error
}

// Importer registers raw survey photos found on disk. Files whose path is
// already registered are skipped, not treated as failures, so re-running an
// import over the same directory is safe.
type Importer struct {
	reg ImageRegistrar
	log *logger.Logger
}

// NewImporter creates an importer writing through the given registrar.
func NewImporter(reg ImageRegistrar, log *logger.Logger) *Importer {
	return &Importer{reg: reg, log: log}
}

// ImportDirectory walks dir recursively and registers every image file
// found, each under a fresh UUID. Returns the number of images actually
// added.
func (im *Importer) ImportDirectory(ctx context.Context, dir string) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve import directory: %w", err)
	}

	added := 0
	err = filepath.WalkDir(absDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() || !imageExts[strings.ToLower(filepath.Ext(path))] {
			return nil
		}

		img := &models.Image{
			ImageID: uuid.NewString(),
			Path:    path,
		}
		if regErr := im.reg.RegisterImage(ctx, img); regErr != nil {
			if errors.Is(regErr, store.ErrDuplicateKey) {
				im.log.Warning("Skipped (already registered): %s", path)
				return nil
			}
			return fmt.Errorf("failed to register %s: %w", path, regErr)
		}

		added++
		im.log.Info("Imported: %s", path)
		return nil
	})
	if err != nil {
		return added, err
	}

	return added, nil
}
