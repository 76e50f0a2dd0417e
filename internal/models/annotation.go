package models

import "time"

// Annotation marks one tree crown in one image as an ellipse.
// At most one annotation may exist per (image, tree) pair.
type Annotation struct {
	AnnotationID string    `json:"annotation_id"`
	ImageID      string    `json:"image_id"`
	TreeID       string    `json:"tree_id"`
	TreeType     string    `json:"tree_type"`
	X0           float64   `json:"x0"`
	Y0           float64   `json:"y0"`
	A            float64   `json:"a"`
	B            float64   `json:"b"`
	Theta        float64   `json:"theta"`
	Quality      *float64  `json:"quality,omitempty"`
	CreatedAt    time.Time `json:"created_at"`

	// ImagePath is filled by joined listings only, never stored.
	ImagePath string `json:"image_path,omitempty"`
}

// GeometryValid reports whether the ellipse has positive semi-axes.
// The schema cannot express this, so the access layer checks it on insert.
func (a *Annotation) GeometryValid() bool {
	return a.A > 0 && a.B > 0
}
