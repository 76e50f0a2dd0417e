package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"treesurvey/internal/models"
	"treesurvey/internal/store"
)

// ImageRepository implements store.ImageRepository for SQLite.
type ImageRepository struct {
	db *DB
}

// NewImageRepository creates a new SQLite image repository.
func NewImageRepository(db *DB) *ImageRepository {
	return &ImageRepository{db: db}
}

const imageColumns = `image_id, path, lat, lon, timestamp, day_of_year, time_of_day,
	flight_altitude, camera_model, focal_length, created_at`

// Insert adds a new image record. day_of_year and time_of_day are derived
// from the capture timestamp here, never taken from the caller. Fails with
// store.ErrDuplicateKey when image_id or path is already registered.
func (r *ImageRepository) Insert(ctx context.Context, img *models.Image) error {
	r.db.Lock()
	defer r.db.Unlock()

	img.DeriveCaptureFields()

	_, err := r.db.Conn().ExecContext(ctx, `
		INSERT INTO images (image_id, path, lat, lon, timestamp, day_of_year, time_of_day,
			flight_altitude, camera_model, focal_length)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, img.ImageID, img.Path, img.Lat, img.Lon, img.Timestamp, img.DayOfYear, img.TimeOfDay,
		img.FlightAltitude, img.CameraModel, img.FocalLength)
	if err != nil {
		return fmt.Errorf("failed to insert image: %w", mapError(err))
	}

	return nil
}

// GetByID retrieves an image by its ID. Fails with store.ErrNotFound when
// the image was never registered.
func (r *ImageRepository) GetByID(ctx context.Context, imageID string) (*models.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT `+imageColumns+`
		FROM images WHERE image_id = ?
	`, imageID)

	return scanImage(row)
}

// GetByPath retrieves an image by its unique file path.
func (r *ImageRepository) GetByPath(ctx context.Context, path string) (*models.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	row := r.db.Conn().QueryRowContext(ctx, `
		SELECT `+imageColumns+`
		FROM images WHERE path = ?
	`, path)

	return scanImage(row)
}

// List retrieves the most recently registered images. A non-positive limit
// returns everything.
func (r *ImageRepository) List(ctx context.Context, limit int) ([]models.Image, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	query := `
		SELECT ` + imageColumns + `
		FROM images
		ORDER BY created_at DESC, rowid DESC
	`
	args := []interface{}{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query images: %w", mapError(err))
	}
	defer rows.Close()

	images := []models.Image{}
	for rows.Next() {
		img, err := scanImageRow(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, *img)
	}

	return images, rows.Err()
}

// Count returns the total number of registered images.
func (r *ImageRepository) Count(ctx context.Context) (int, error) {
	r.db.RLock()
	defer r.db.RUnlock()

	var count int
	if err := r.db.Conn().QueryRowContext(ctx, `SELECT COUNT(*) FROM images`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count images: %w", mapError(err))
	}
	return count, nil
}

// SetFlightAltitude backfills the flight altitude of an existing image.
func (r *ImageRepository) SetFlightAltitude(ctx context.Context, imageID string, altitude float64) error {
	r.db.Lock()
	defer r.db.Unlock()

	res, err := r.db.Conn().ExecContext(ctx, `
		UPDATE images SET flight_altitude = ? WHERE image_id = ?
	`, altitude, imageID)
	if err != nil {
		return fmt.Errorf("failed to update flight altitude: %w", mapError(err))
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update flight altitude: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("image %s: %w", imageID, store.ErrNotFound)
	}
	return nil
}

func scanImage(row *sql.Row) (*models.Image, error) {
	img, err := scanImageRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("image: %w", store.ErrNotFound)
	}
	return img, err
}

func scanImageRow(row rowScanner) (*models.Image, error) {
	var (
		img         models.Image
		lat, lon    sql.NullFloat64
		ts          sql.NullTime
		doy         sql.NullInt64
		tod         sql.NullString
		altitude    sql.NullFloat64
		camera      sql.NullString
		focalLength sql.NullFloat64
	)

	err := row.Scan(&img.ImageID, &img.Path, &lat, &lon, &ts, &doy, &tod,
		&altitude, &camera, &focalLength, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan image: %w", err)
	}

	img.Lat = nullFloat(lat)
	img.Lon = nullFloat(lon)
	img.Timestamp = nullTime(ts)
	img.DayOfYear = nullInt(doy)
	img.TimeOfDay = nullString(tod)
	img.FlightAltitude = nullFloat(altitude)
	img.CameraModel = nullString(camera)
	img.FocalLength = nullFloat(focalLength)

	return &img, nil
}
