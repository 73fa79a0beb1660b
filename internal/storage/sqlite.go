package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// Options configures the connection pool and engine behavior
type Options struct {
	MaxOpenConns  int
	MaxIdleConns  int
	BusyTimeoutMS int
}

// DefaultOptions returns the pool configuration used when none is given
func DefaultOptions() Options {
	return Options{
		MaxOpenConns:  10,
		MaxIdleConns:  2,
		BusyTimeoutMS: 5000,
	}
}

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// openDatabase opens a SQLite database configured for concurrent readers:
// WAL journal, foreign-key enforcement, normal synchronous durability, and
// a busy timeout so lock contention retries instead of failing.
func openDatabase(dbPath string, opts Options) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if dir := filepath.Dir(dbPath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open(DriverName, connString(dbPath, opts.BusyTimeoutMS))
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(opts.MaxOpenConns)
	db.SetMaxIdleConns(opts.MaxIdleConns)
	db.SetConnMaxLifetime(0)

	return db, nil
}

// NewSQLiteStore creates a new SQLite store instance. A migration failure
// here is fatal: the store is not usable and the error must abort startup.
func NewSQLiteStore(dbPath string, opts Options) (*SQLiteStore, error) {
	db, err := openDatabase(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close closes the database connection pool
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStore) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, store: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx    *sql.Tx
	store *SQLiteStore
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStore) querier() querier {
	return s.db
}

// Image identity operations

const imageColumns = "id, path, content_hash, rating, starred, last_scanned"

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanImage(row rowScanner) (*Image, error) {
	var img Image
	var hash sql.NullString
	var lastScanned sql.NullTime
	err := row.Scan(&img.ID, &img.Path, &hash, &img.Rating, &img.Starred, &lastScanned)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if hash.Valid {
		img.ContentHash = hash.String
	}
	if lastScanned.Valid {
		img.LastScanned = lastScanned.Time
	}
	return &img, nil
}

// getOrCreateImageWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getOrCreateImageWithQuerier(ctx context.Context, q querier, path string) (*Image, error) {
	// Atomic INSERT ... ON CONFLICT so two concurrent callers for the same
	// path converge on one row instead of surfacing a constraint error
	query := `
		INSERT INTO images (path, last_scanned)
		VALUES (?, ?)
		ON CONFLICT(path) DO UPDATE SET last_scanned = excluded.last_scanned
		RETURNING ` + imageColumns
	img, err := scanImage(q.QueryRowContext(ctx, query, path, time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to get or create image: %w", err)
	}
	return img, nil
}

func (s *SQLiteStore) GetOrCreateImage(ctx context.Context, path string) (*Image, error) {
	return s.getOrCreateImageWithQuerier(ctx, s.querier(), path)
}

// getImageByPathWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getImageByPathWithQuerier(ctx context.Context, q querier, path string) (*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE path = ?`
	return scanImage(q.QueryRowContext(ctx, query, path))
}

func (s *SQLiteStore) GetImageByPath(ctx context.Context, path string) (*Image, error) {
	return s.getImageByPathWithQuerier(ctx, s.querier(), path)
}

// getImageByIDWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getImageByIDWithQuerier(ctx context.Context, q querier, imageID int64) (*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE id = ?`
	return scanImage(q.QueryRowContext(ctx, query, imageID))
}

func (s *SQLiteStore) GetImageByID(ctx context.Context, imageID int64) (*Image, error) {
	return s.getImageByIDWithQuerier(ctx, s.querier(), imageID)
}

// findImagesByHashWithQuerier is the internal implementation that uses a querier.
// Hashes are not unique, duplicate files share one; ordering by id makes
// "first match" deterministic (oldest identity wins).
func (s *SQLiteStore) findImagesByHashWithQuerier(ctx context.Context, q querier, contentHash string) ([]*Image, error) {
	query := `SELECT ` + imageColumns + ` FROM images WHERE content_hash = ? ORDER BY id`
	rows, err := q.QueryContext(ctx, query, contentHash)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	images := make([]*Image, 0)
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLiteStore) FindImagesByHash(ctx context.Context, contentHash string) ([]*Image, error) {
	return s.findImagesByHashWithQuerier(ctx, s.querier(), contentHash)
}

// updateImagePathWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) updateImagePathWithQuerier(ctx context.Context, q querier, imageID int64, newPath string) error {
	result, err := q.ExecContext(ctx, `UPDATE images SET path = ? WHERE id = ?`, newPath, imageID)
	if err != nil {
		return fmt.Errorf("failed to update image path: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) UpdateImagePath(ctx context.Context, imageID int64, newPath string) error {
	return s.updateImagePathWithQuerier(ctx, s.querier(), imageID, newPath)
}

// setContentHashWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) setContentHashWithQuerier(ctx context.Context, q querier, imageID int64, contentHash string) error {
	_, err := q.ExecContext(ctx,
		`UPDATE images SET content_hash = ?, last_scanned = ? WHERE id = ?`,
		contentHash, time.Now(), imageID)
	if err != nil {
		return fmt.Errorf("failed to set content hash: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SetContentHash(ctx context.Context, imageID int64, contentHash string) error {
	return s.setContentHashWithQuerier(ctx, s.querier(), imageID, contentHash)
}

// deleteImageWithQuerier is the internal implementation that uses a querier.
// Metadata, tags and collection memberships go via FK cascade; the fts row
// has no foreign key and is removed explicitly.
func (s *SQLiteStore) deleteImageWithQuerier(ctx context.Context, q querier, imageID int64) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM metadata_fts WHERE image_id = ?`, imageID); err != nil {
		return fmt.Errorf("failed to delete search document: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, imageID); err != nil {
		return fmt.Errorf("failed to delete image: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteImage(ctx context.Context, imageID int64) error {
	return s.deleteImageWithQuerier(ctx, s.querier(), imageID)
}

// Rating operations

// setRatingWithQuerier is the internal implementation that uses a querier.
// The legacy starred flag mirrors rating > 0.
func (s *SQLiteStore) setRatingWithQuerier(ctx context.Context, q querier, imageID int64, rating int) error {
	if rating < 0 {
		rating = 0
	}
	if rating > MaxRating {
		rating = MaxRating
	}
	result, err := q.ExecContext(ctx,
		`UPDATE images SET rating = ?, starred = ? WHERE id = ?`,
		rating, rating > 0, imageID)
	if err != nil {
		return fmt.Errorf("failed to set rating: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetRating(ctx context.Context, imageID int64, rating int) error {
	return s.setRatingWithQuerier(ctx, s.querier(), imageID, rating)
}

// getRatingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getRatingWithQuerier(ctx context.Context, q querier, imageID int64) (int, error) {
	var rating int
	err := q.QueryRowContext(ctx, `SELECT rating FROM images WHERE id = ?`, imageID).Scan(&rating)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return rating, nil
}

func (s *SQLiteStore) GetRating(ctx context.Context, imageID int64) (int, error) {
	return s.getRatingWithQuerier(ctx, s.querier(), imageID)
}

// setStarredWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) setStarredWithQuerier(ctx context.Context, q querier, imageID int64, starred bool) error {
	result, err := q.ExecContext(ctx, `UPDATE images SET starred = ? WHERE id = ?`, starred, imageID)
	if err != nil {
		return fmt.Errorf("failed to set starred: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) SetStarred(ctx context.Context, imageID int64, starred bool) error {
	return s.setStarredWithQuerier(ctx, s.querier(), imageID, starred)
}

// Metadata operations

// upsertMetadataWithQuerier is the internal implementation that uses a querier.
// (image_id, key) is unique; repeated writes replace the value instead of
// accumulating rows.
func (s *SQLiteStore) upsertMetadataWithQuerier(ctx context.Context, q querier, imageID int64, attrs map[string]string) error {
	query := `
		INSERT INTO image_metadata (image_id, key, value)
		VALUES (?, ?, ?)
		ON CONFLICT(image_id, key) DO UPDATE SET value = excluded.value
	`
	// Stable order keeps write behavior deterministic across runs
	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		if _, err := q.ExecContext(ctx, query, imageID, key, attrs[key]); err != nil {
			return fmt.Errorf("failed to upsert metadata %q: %w", key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) UpsertMetadata(ctx context.Context, imageID int64, attrs map[string]string) error {
	return s.upsertMetadataWithQuerier(ctx, s.querier(), imageID, attrs)
}

// getMetadataWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getMetadataWithQuerier(ctx context.Context, q querier, imageID int64) (map[string]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT key, value FROM image_metadata WHERE image_id = ?`, imageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	attrs := make(map[string]string)
	for rows.Next() {
		var key string
		var value sql.NullString
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		attrs[key] = value.String
	}
	return attrs, rows.Err()
}

func (s *SQLiteStore) GetMetadata(ctx context.Context, imageID int64) (map[string]string, error) {
	return s.getMetadataWithQuerier(ctx, s.querier(), imageID)
}

// batchGetMetadataWithQuerier is the internal implementation that uses a querier.
// The id list is chunked so large selections never exceed the engine's
// bound-parameter ceiling.
func (s *SQLiteStore) batchGetMetadataWithQuerier(ctx context.Context, q querier, imageIDs []int64) (map[int64]map[string]string, error) {
	result := make(map[int64]map[string]string, len(imageIDs))

	for start := 0; start < len(imageIDs); start += metadataChunkSize {
		end := start + metadataChunkSize
		if end > len(imageIDs) {
			end = len(imageIDs)
		}
		chunk := imageIDs[start:end]

		placeholders := make([]string, len(chunk))
		args := make([]interface{}, len(chunk))
		for i, id := range chunk {
			placeholders[i] = "?"
			args[i] = id
		}

		query := `SELECT image_id, key, value FROM image_metadata WHERE image_id IN (` +
			strings.Join(placeholders, ",") + `)`
		rows, err := q.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, err
		}

		for rows.Next() {
			var imageID int64
			var key string
			var value sql.NullString
			if err := rows.Scan(&imageID, &key, &value); err != nil {
				_ = rows.Close()
				return nil, err
			}
			attrs, ok := result[imageID]
			if !ok {
				attrs = make(map[string]string)
				result[imageID] = attrs
			}
			attrs[key] = value.String
		}
		if err := rows.Err(); err != nil {
			_ = rows.Close()
			return nil, err
		}
		_ = rows.Close()
	}

	return result, nil
}

func (s *SQLiteStore) BatchGetMetadata(ctx context.Context, imageIDs []int64) (map[int64]map[string]string, error) {
	return s.batchGetMetadataWithQuerier(ctx, s.querier(), imageIDs)
}

// Tag operations

// addTagWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) addTagWithQuerier(ctx context.Context, q querier, imageID int64, tag string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO image_tags (image_id, tag) VALUES (?, ?)`, imageID, tag)
	if err != nil {
		return fmt.Errorf("failed to add tag %q: %w", tag, err)
	}
	return nil
}

func (s *SQLiteStore) AddTag(ctx context.Context, imageID int64, tag string) error {
	return s.addTagWithQuerier(ctx, s.querier(), imageID, tag)
}

// removeTagWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) removeTagWithQuerier(ctx context.Context, q querier, imageID int64, tag string) error {
	_, err := q.ExecContext(ctx,
		`DELETE FROM image_tags WHERE image_id = ? AND tag = ?`, imageID, tag)
	if err != nil {
		return fmt.Errorf("failed to remove tag %q: %w", tag, err)
	}
	return nil
}

func (s *SQLiteStore) RemoveTag(ctx context.Context, imageID int64, tag string) error {
	return s.removeTagWithQuerier(ctx, s.querier(), imageID, tag)
}

// listTagsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listTagsWithQuerier(ctx context.Context, q querier, imageID int64) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT tag FROM image_tags WHERE image_id = ? ORDER BY tag`, imageID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	tags := make([]string, 0)
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *SQLiteStore) ListTags(ctx context.Context, imageID int64) ([]string, error) {
	return s.listTagsWithQuerier(ctx, s.querier(), imageID)
}

// Collection operations

// createCollectionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) createCollectionWithQuerier(ctx context.Context, q querier, name string) (*Collection, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, errors.New("collection name must not be blank")
	}

	query := `
		INSERT INTO collections (name, created_at)
		VALUES (?, ?)
		RETURNING id, name, created_at
	`
	var collection Collection
	err := q.QueryRowContext(ctx, query, name, time.Now()).Scan(
		&collection.ID, &collection.Name, &collection.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyExists
		}
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}
	return &collection, nil
}

func (s *SQLiteStore) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	return s.createCollectionWithQuerier(ctx, s.querier(), name)
}

// deleteCollectionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) deleteCollectionWithQuerier(ctx context.Context, q querier, name string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("failed to delete collection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) DeleteCollection(ctx context.Context, name string) error {
	return s.deleteCollectionWithQuerier(ctx, s.querier(), name)
}

// collectionIDByName resolves a collection name, returning ErrNotFound on miss
func (s *SQLiteStore) collectionIDByName(ctx context.Context, q querier, name string) (int64, error) {
	var id int64
	err := q.QueryRowContext(ctx, `SELECT id FROM collections WHERE name = ?`, name).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, err
	}
	return id, nil
}

// addToCollectionWithQuerier is the internal implementation that uses a querier.
// Already-member is a no-op.
func (s *SQLiteStore) addToCollectionWithQuerier(ctx context.Context, q querier, name string, imageID int64) error {
	collectionID, err := s.collectionIDByName(ctx, q, name)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`INSERT OR IGNORE INTO collection_images (collection_id, image_id, added_at) VALUES (?, ?, ?)`,
		collectionID, imageID, time.Now())
	if err != nil {
		return fmt.Errorf("failed to add image to collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AddToCollection(ctx context.Context, name string, imageID int64) error {
	return s.addToCollectionWithQuerier(ctx, s.querier(), name, imageID)
}

// removeFromCollectionWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) removeFromCollectionWithQuerier(ctx context.Context, q querier, name string, imageID int64) error {
	collectionID, err := s.collectionIDByName(ctx, q, name)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx,
		`DELETE FROM collection_images WHERE collection_id = ? AND image_id = ?`,
		collectionID, imageID)
	if err != nil {
		return fmt.Errorf("failed to remove image from collection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RemoveFromCollection(ctx context.Context, name string, imageID int64) error {
	return s.removeFromCollectionWithQuerier(ctx, s.querier(), name, imageID)
}

// listCollectionImagesWithQuerier is the internal implementation that uses a
// querier. Most recently added first.
func (s *SQLiteStore) listCollectionImagesWithQuerier(ctx context.Context, q querier, name string) ([]string, error) {
	query := `
		SELECT i.path
		FROM images i
		JOIN collection_images ci ON ci.image_id = i.id
		JOIN collections c ON c.id = ci.collection_id
		WHERE c.name = ?
		ORDER BY ci.added_at DESC, ci.image_id DESC
	`
	rows, err := q.QueryContext(ctx, query, name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) ListCollectionImages(ctx context.Context, name string) ([]string, error) {
	return s.listCollectionImagesWithQuerier(ctx, s.querier(), name)
}

// listCollectionsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listCollectionsWithQuerier(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT name FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	names := make([]string, 0)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *SQLiteStore) ListCollections(ctx context.Context) ([]string, error) {
	return s.listCollectionsWithQuerier(ctx, s.querier())
}

// Pinned folder operations

// pinFolderWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) pinFolderWithQuerier(ctx context.Context, q querier, path string) error {
	_, err := q.ExecContext(ctx,
		`INSERT OR IGNORE INTO pinned_folders (path) VALUES (?)`, path)
	if err != nil {
		return fmt.Errorf("failed to pin folder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) PinFolder(ctx context.Context, path string) error {
	return s.pinFolderWithQuerier(ctx, s.querier(), path)
}

// unpinFolderWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) unpinFolderWithQuerier(ctx context.Context, q querier, path string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM pinned_folders WHERE path = ?`, path)
	if err != nil {
		return fmt.Errorf("failed to unpin folder: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UnpinFolder(ctx context.Context, path string) error {
	return s.unpinFolderWithQuerier(ctx, s.querier(), path)
}

// listPinnedFoldersWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) listPinnedFoldersWithQuerier(ctx context.Context, q querier) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT path FROM pinned_folders ORDER BY path`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	paths := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, rows.Err()
}

func (s *SQLiteStore) ListPinnedFolders(ctx context.Context) ([]string, error) {
	return s.listPinnedFoldersWithQuerier(ctx, s.querier())
}

// Settings operations

// setSettingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) setSettingWithQuerier(ctx context.Context, q querier, key, value string) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return fmt.Errorf("failed to set setting %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	return s.setSettingWithQuerier(ctx, s.querier(), key, value)
}

// getSettingWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) getSettingWithQuerier(ctx context.Context, q querier, key string) (string, error) {
	var value string
	err := q.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	return s.getSettingWithQuerier(ctx, s.querier(), key)
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// Both drivers surface the SQLite error text.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Transaction implementations

func (t *sqliteTx) GetOrCreateImage(ctx context.Context, path string) (*Image, error) {
	return t.store.getOrCreateImageWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) GetImageByPath(ctx context.Context, path string) (*Image, error) {
	return t.store.getImageByPathWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) GetImageByID(ctx context.Context, imageID int64) (*Image, error) {
	return t.store.getImageByIDWithQuerier(ctx, t.querier(), imageID)
}

func (t *sqliteTx) FindImagesByHash(ctx context.Context, contentHash string) ([]*Image, error) {
	return t.store.findImagesByHashWithQuerier(ctx, t.querier(), contentHash)
}

func (t *sqliteTx) UpdateImagePath(ctx context.Context, imageID int64, newPath string) error {
	return t.store.updateImagePathWithQuerier(ctx, t.querier(), imageID, newPath)
}

func (t *sqliteTx) SetContentHash(ctx context.Context, imageID int64, contentHash string) error {
	return t.store.setContentHashWithQuerier(ctx, t.querier(), imageID, contentHash)
}

func (t *sqliteTx) DeleteImage(ctx context.Context, imageID int64) error {
	return t.store.deleteImageWithQuerier(ctx, t.querier(), imageID)
}

func (t *sqliteTx) SetRating(ctx context.Context, imageID int64, rating int) error {
	return t.store.setRatingWithQuerier(ctx, t.querier(), imageID, rating)
}

func (t *sqliteTx) GetRating(ctx context.Context, imageID int64) (int, error) {
	return t.store.getRatingWithQuerier(ctx, t.querier(), imageID)
}

func (t *sqliteTx) SetStarred(ctx context.Context, imageID int64, starred bool) error {
	return t.store.setStarredWithQuerier(ctx, t.querier(), imageID, starred)
}

func (t *sqliteTx) UpsertMetadata(ctx context.Context, imageID int64, attrs map[string]string) error {
	return t.store.upsertMetadataWithQuerier(ctx, t.querier(), imageID, attrs)
}

func (t *sqliteTx) GetMetadata(ctx context.Context, imageID int64) (map[string]string, error) {
	return t.store.getMetadataWithQuerier(ctx, t.querier(), imageID)
}

func (t *sqliteTx) BatchGetMetadata(ctx context.Context, imageIDs []int64) (map[int64]map[string]string, error) {
	return t.store.batchGetMetadataWithQuerier(ctx, t.querier(), imageIDs)
}

func (t *sqliteTx) AddTag(ctx context.Context, imageID int64, tag string) error {
	return t.store.addTagWithQuerier(ctx, t.querier(), imageID, tag)
}

func (t *sqliteTx) RemoveTag(ctx context.Context, imageID int64, tag string) error {
	return t.store.removeTagWithQuerier(ctx, t.querier(), imageID, tag)
}

func (t *sqliteTx) ListTags(ctx context.Context, imageID int64) ([]string, error) {
	return t.store.listTagsWithQuerier(ctx, t.querier(), imageID)
}

func (t *sqliteTx) RefreshSearchDocument(ctx context.Context, imageID int64) error {
	return t.store.refreshSearchDocumentWithQuerier(ctx, t.querier(), imageID)
}

func (t *sqliteTx) SearchText(ctx context.Context, text string, limit int) ([]int64, error) {
	return t.store.searchTextWithQuerier(ctx, t.querier(), text, limit)
}

func (t *sqliteTx) SearchImages(ctx context.Context, text string, filters Filters, limit int) ([]string, error) {
	return t.store.searchImagesWithQuerier(ctx, t.querier(), text, filters, limit)
}

func (t *sqliteTx) CreateCollection(ctx context.Context, name string) (*Collection, error) {
	return t.store.createCollectionWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) DeleteCollection(ctx context.Context, name string) error {
	return t.store.deleteCollectionWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) AddToCollection(ctx context.Context, name string, imageID int64) error {
	return t.store.addToCollectionWithQuerier(ctx, t.querier(), name, imageID)
}

func (t *sqliteTx) RemoveFromCollection(ctx context.Context, name string, imageID int64) error {
	return t.store.removeFromCollectionWithQuerier(ctx, t.querier(), name, imageID)
}

func (t *sqliteTx) ListCollectionImages(ctx context.Context, name string) ([]string, error) {
	return t.store.listCollectionImagesWithQuerier(ctx, t.querier(), name)
}

func (t *sqliteTx) ListCollections(ctx context.Context) ([]string, error) {
	return t.store.listCollectionsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) PinFolder(ctx context.Context, path string) error {
	return t.store.pinFolderWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) UnpinFolder(ctx context.Context, path string) error {
	return t.store.unpinFolderWithQuerier(ctx, t.querier(), path)
}

func (t *sqliteTx) ListPinnedFolders(ctx context.Context) ([]string, error) {
	return t.store.listPinnedFoldersWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) SetSetting(ctx context.Context, key, value string) error {
	return t.store.setSettingWithQuerier(ctx, t.querier(), key, value)
}

func (t *sqliteTx) GetSetting(ctx context.Context, key string) (string, error) {
	return t.store.getSettingWithQuerier(ctx, t.querier(), key)
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
