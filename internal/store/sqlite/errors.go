package sqlite

import (
	"errors"
	"strings"

	"github.com/mattn/go-sqlite3"

	"treesurvey/internal/store"
)

// mapError translates driver errors into the store's error kinds so callers
// can match with errors.Is without importing the driver.
func mapError(err error) error {
	if err == nil {
		return nil
	}

	var serr sqlite3.Error
	if !errors.As(err, &serr) {
		return err
	}

	switch serr.ExtendedCode {
	case sqlite3.ErrConstraintUnique, sqlite3.ErrConstraintPrimaryKey:
		// The composite index on annotations(image_id, tree_id) is the
		// one uniqueness rule that gets its own error kind.
		if strings.Contains(serr.Error(), "annotations.image_id") {
			return store.ErrDuplicateAnnotation
		}
		return store.ErrDuplicateKey
	case sqlite3.ErrConstraintForeignKey:
		return store.ErrForeignKey
	}

	switch serr.Code {
	case sqlite3.ErrBusy, sqlite3.ErrLocked:
		return store.ErrBusy
	}

	return err
}
