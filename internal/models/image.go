package models

import "time"

// Image represents one captured aerial photo.
type Image struct {
	ImageID        string     `json:"image_id"`
	Path           string     `json:"path"`
	Lat            *float64   `json:"lat,omitempty"`
	Lon            *float64   `json:"lon,omitempty"`
	Timestamp      *time.Time `json:"timestamp,omitempty"`
	DayOfYear      *int       `json:"day_of_year,omitempty"`
	TimeOfDay      *string    `json:"time_of_day,omitempty"`
	FlightAltitude *float64   `json:"flight_altitude,omitempty"`
	CameraModel    *string    `json:"camera_model,omitempty"`
	FocalLength    *float64   `json:"focal_length,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DeriveCaptureFields fills DayOfYear and TimeOfDay from Timestamp.
// Both stay nil when no capture timestamp is known. Callers never
// supply these fields directly.
func (img *Image) DeriveCaptureFields() {
	if img.Timestamp == nil {
		img.DayOfYear = nil
		img.TimeOfDay = nil
		return
	}
	doy := img.Timestamp.YearDay()
	tod := img.Timestamp.Format("15:04:05")
	img.DayOfYear = &doy
	img.TimeOfDay = &tod
}
