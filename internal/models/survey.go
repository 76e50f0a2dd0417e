package models

// TreeSurvey bundles everything recorded for one tree: the tree itself,
// its annotations across all images, and the derived crown observations.
// Slices are ordered by creation time ascending.
type TreeSurvey struct {
	Tree         *Tree              `json:"tree"`
	Annotations  []Annotation       `json:"annotations"`
	Observations []CrownObservation `json:"observations"`
}

// ImageSurvey is the image-keyed counterpart of TreeSurvey.
type ImageSurvey struct {
	Image        *Image             `json:"image"`
	Annotations  []Annotation       `json:"annotations"`
	Observations []CrownObservation `json:"observations"`
}

// StoreStats holds per-table record counts.
type StoreStats struct {
	TotalImages       int `json:"total_images"`
	TotalTrees        int `json:"total_trees"`
	TotalAnnotations  int `json:"total_annotations"`
	TotalObservations int `json:"total_observations"`
}
