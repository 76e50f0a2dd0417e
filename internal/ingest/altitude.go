package ingest

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"treesurvey/internal/logger"
	"treesurvey/internal/models"
)

// Flight crews encode the altitude in file names like "8м", "16 м",
// "12.5m" or "12,5м". Both decimal separators and both the Latin and
// Cyrillic meter suffix occur in real surveys.
var altitudeRe = regexp.MustCompile(`(?i)(\d+(?:[.,]\d+)?)\s*[mм]`)

// ParseAltitude extracts the flight altitude in meters from an image file
// name. Returns nil when the name carries no altitude marker.
func ParseAltitude(path string) *float64 {
	m := altitudeRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", "."), 64)
	if err != nil {
		return nil
	}
	return &v
}

// AltitudeUpdater is the slice of the image repository the backfill needs.
type AltitudeUpdater interface {
	List(ctx context.Context, limit int) ([]models.Image, error)
	SetFlightAltitude(ctx context.Context, imageID string, altitude float64) error
}

// FillFlightAltitudes backfills images.flight_altitude from the altitude
// marker in each image's file name. Images whose stored value already
// matches are left alone. Returns the number of images updated.
func FillFlightAltitudes(ctx context.Context, images AltitudeUpdater, log *logger.Logger) (int, error) {
	all, err := images.List(ctx, 0)
	if err != nil {
		return 0, err
	}

	updated := 0
	for _, img := range all {
		alt := ParseAltitude(img.Path)
		if alt == nil {
			continue
		}
		if img.FlightAltitude != nil && *img.FlightAltitude == *alt {
			continue
		}
		if err := images.SetFlightAltitude(ctx, img.ImageID, *alt); err != nil {
			return updated, err
		}
		updated++
		log.Info("Set flight_altitude=%.2f for %s", *alt, img.Path)
	}

	return updated, nil
}
