package store

import "errors"

// Error kinds reported by the annotation store. Implementations wrap these
// sentinels so callers can match with errors.Is regardless of the engine
// behind the interface.
var (
	// ErrDuplicateKey signals a primary-key or unique-column collision.
	ErrDuplicateKey = errors.New("duplicate key")

	// ErrDuplicateAnnotation signals a second annotation for the same
	// (image_id, tree_id) pair. Re-annotating a tree in an image is a
	// conflict, not an update.
	ErrDuplicateAnnotation = errors.New("annotation already exists for this image and tree")

	// ErrForeignKey signals a reference to a nonexistent image, tree or
	// annotation.
	ErrForeignKey = errors.New("referenced record does not exist")

	// ErrInvalidGeometry signals a malformed ellipse (non-positive semi-axes).
	ErrInvalidGeometry = errors.New("invalid ellipse geometry")

	// ErrNotFound signals a lookup keyed on an entity that was never
	// registered. Distinct from an existing entity with zero children.
	ErrNotFound = errors.New("record not found")

	// ErrBusy signals write contention that outlived the engine's busy
	// timeout. The store never retries; retry policy belongs to the caller.
	ErrBusy = errors.New("store busy")
)
