package models

import "time"

// CrownObservation is a derived measurement for one annotation: a cropped
// region-of-interest file plus an opaque serialized feature bundle. The
// store never parses FeaturesJSON; its contents belong to the extraction
// process.
type CrownObservation struct {
	ObsID        string    `json:"obs_id"`
	AnnotationID string    `json:"annotation_id"`
	ImageID      string    `json:"image_id"`
	TreeID       string    `json:"tree_id"`
	RoiRawPath   string    `json:"roi_raw_path"`
	ObsHeight    *float64  `json:"obs_height,omitempty"`
	FeaturesJSON *string   `json:"features_json,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// ImagePath is filled by joined listings only, never stored.
	ImagePath string `json:"image_path,omitempty"`
}
