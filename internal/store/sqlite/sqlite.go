package sqlite

import (
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// busyTimeoutMS bounds how long a write waits on a contended database
// before the call fails with store.ErrBusy instead of hanging.
const busyTimeoutMS = 5000

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
// Foreign keys are enforced; the schema relies on them.
func New(dbPath string) (*DB, error) {
	dsn := fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_foreign_keys=on", dbPath, busyTimeoutMS)
	conn, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the survey tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS images (
		image_id TEXT PRIMARY KEY,
		path TEXT NOT NULL UNIQUE,
		lat REAL,
		lon REAL,
		timestamp DATETIME,
		day_of_year INTEGER,
		time_of_day TEXT,
		flight_altitude REAL,
		camera_model TEXT,
		focal_length REAL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS trees (
		tree_id TEXT PRIMARY KEY,
		tree_type TEXT NOT NULL,
		lat REAL,
		lon REAL,
		height_est REAL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS annotations (
		annotation_id TEXT PRIMARY KEY,
		image_id TEXT NOT NULL REFERENCES images(image_id),
		tree_id TEXT NOT NULL REFERENCES trees(tree_id),
		tree_type TEXT NOT NULL,
		x0 REAL NOT NULL,
		y0 REAL NOT NULL,
		a REAL NOT NULL,
		b REAL NOT NULL,
		theta REAL NOT NULL,
		quality REAL,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		UNIQUE (image_id, tree_id)
	);

	CREATE TABLE IF NOT EXISTS crown_observations (
		obs_id TEXT PRIMARY KEY,
		annotation_id TEXT NOT NULL REFERENCES annotations(annotation_id),
		image_id TEXT NOT NULL REFERENCES images(image_id),
		tree_id TEXT NOT NULL REFERENCES trees(tree_id),
		roi_raw_path TEXT NOT NULL,
		obs_height REAL,
		features_json TEXT,
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_annotations_tree_id ON annotations(tree_id);
	CREATE INDEX IF NOT EXISTS idx_annotations_image_id ON annotations(image_id);
	CREATE INDEX IF NOT EXISTS idx_observations_tree_id ON crown_observations(tree_id);
	CREATE INDEX IF NOT EXISTS idx_observations_image_id ON crown_observations(image_id);
	CREATE INDEX IF NOT EXISTS idx_observations_annotation_id ON crown_observations(annotation_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
