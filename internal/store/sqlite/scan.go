package sqlite

import (
	"database/sql"
	"time"
)

// rowScanner abstracts over *sql.Row and *sql.Rows so one scan function can
// serve both single-row and multi-row queries.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// Helpers converting sql.Null* scan targets into the optional pointer
// fields used by the models.

func nullFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func nullString(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	i := int(v.Int64)
	return &i
}

func nullTime(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
