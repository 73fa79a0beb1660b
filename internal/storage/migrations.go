package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Masterminds/semver/v3"
)

const (
	// CurrentSchemaVersion tracks the database schema version
	CurrentSchemaVersion = "1.3.0"
)

// Migration represents a database schema migration step. Steps must be
// idempotent with respect to already-applied state: plain DDL uses
// IF NOT EXISTS, and column additions go through addColumnIfMissing.
type Migration struct {
	Version string
	Apply   func(ctx context.Context, tx *sql.Tx) error
}

// AllMigrations contains all database migrations in order. The history
// mirrors the library's schema evolution: base entities, content hashing
// plus the full-text index, collections, and finally the rating column.
var AllMigrations = []Migration{
	{Version: "1.0.0", Apply: migrateBaseEntities},
	{Version: "1.1.0", Apply: migrateHashingAndSearch},
	{Version: "1.2.0", Apply: migrateCollections},
	{Version: "1.3.0", Apply: migrateRating},
}

const migrationBaseEntities = `
-- Tracked images
CREATE TABLE IF NOT EXISTS images (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    path TEXT NOT NULL UNIQUE,
    starred BOOLEAN NOT NULL DEFAULT 0,
    last_scanned TIMESTAMP
);

-- Extracted key/value metadata, one row per (image, key)
CREATE TABLE IF NOT EXISTS image_metadata (
    image_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT,
    PRIMARY KEY (image_id, key),
    FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_metadata_key ON image_metadata(key);

-- User and auto-assigned tags
CREATE TABLE IF NOT EXISTS image_tags (
    image_id INTEGER NOT NULL,
    tag TEXT NOT NULL,
    PRIMARY KEY (image_id, tag),
    FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS pinned_folders (
    path TEXT PRIMARY KEY
);

CREATE TABLE IF NOT EXISTS settings (
    key TEXT PRIMARY KEY,
    value TEXT
);
`

const migrationHashingAndSearch = `
CREATE INDEX IF NOT EXISTS idx_images_hash ON images(content_hash);

-- Derived full-text document per image, fully recomputed on every
-- attribute or tag mutation
CREATE VIRTUAL TABLE IF NOT EXISTS metadata_fts USING fts5(
    image_id UNINDEXED,
    global_text
);
`

const migrationCollections = `
CREATE TABLE IF NOT EXISTS collections (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS collection_images (
    collection_id INTEGER NOT NULL,
    image_id INTEGER NOT NULL,
    added_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (collection_id, image_id),
    FOREIGN KEY (collection_id) REFERENCES collections(id) ON DELETE CASCADE,
    FOREIGN KEY (image_id) REFERENCES images(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_collection_images_added ON collection_images(collection_id, added_at);
`

const migrationRating = `
CREATE INDEX IF NOT EXISTS idx_images_rating ON images(rating);
`

func migrateBaseEntities(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, migrationBaseEntities)
	return err
}

func migrateHashingAndSearch(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "images", "content_hash", "TEXT"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, migrationHashingAndSearch)
	return err
}

func migrateCollections(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, migrationCollections)
	return err
}

func migrateRating(ctx context.Context, tx *sql.Tx) error {
	if err := addColumnIfMissing(ctx, tx, "images", "rating", "INTEGER NOT NULL DEFAULT 0"); err != nil {
		return err
	}
	_, err := tx.ExecContext(ctx, migrationRating)
	return err
}

// addColumnIfMissing guards ALTER TABLE ADD COLUMN, which SQLite cannot
// express with IF NOT EXISTS.
func addColumnIfMissing(ctx context.Context, tx *sql.Tx, table, column, definition string) error {
	var count int
	err := tx.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?", table, column).Scan(&count)
	if err != nil {
		return fmt.Errorf("failed to inspect %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil
	}
	_, err = tx.ExecContext(ctx, fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", table, column, definition))
	if err != nil {
		return fmt.Errorf("failed to add column %s.%s: %w", table, column, err)
	}
	return nil
}

// ApplyMigrations runs all pending migrations inside one transaction.
// Any failure rolls the whole batch back; the caller must treat the error
// as fatal and refuse to run against the partially migrated file.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
		    version TEXT PRIMARY KEY,
		    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	currentVersion, err := readSchemaVersion(ctx, db)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	applied := 0
	for _, migration := range AllMigrations {
		migrationVersion, err := semver.NewVersion(migration.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", migration.Version, err)
		}

		if !currentVersion.LessThan(migrationVersion) {
			continue // Already applied
		}

		if err := migration.Apply(ctx, tx); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}

		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_version (version) VALUES (?)", migration.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", migration.Version, err)
		}

		currentVersion = migrationVersion
		applied++
	}

	if applied == 0 {
		return nil
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit migrations: %w", err)
	}
	return nil
}

// readSchemaVersion returns the highest recorded version, or 0.0.0 for a
// fresh database.
func readSchemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	current := semver.MustParse("0.0.0")
	for rows.Next() {
		var versionStr string
		if err := rows.Scan(&versionStr); err != nil {
			return nil, err
		}
		version, err := semver.NewVersion(versionStr)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded schema version %s: %w", versionStr, err)
		}
		if version.GreaterThan(current) {
			current = version
		}
	}
	return current, rows.Err()
}
