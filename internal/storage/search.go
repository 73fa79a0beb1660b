package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Search index and structured query implementation. Split from sqlite.go
// for clarity.

// buildSearchDocument assembles the derived full-text document for one
// image: every "key:value" attribute pair plus a "tag:<tag>" entry per tag,
// space-joined. The document is always recomputed whole, never patched.
func buildSearchDocument(attrs map[string]string, tags []string) string {
	parts := make([]string, 0, len(attrs)+len(tags))

	keys := make([]string, 0, len(attrs))
	for key := range attrs {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		parts = append(parts, fmt.Sprintf("%s:%s", key, attrs[key]))
	}

	for _, tag := range tags {
		parts = append(parts, fmt.Sprintf("tag:%s", tag))
	}

	return strings.Join(parts, " ")
}

// refreshSearchDocumentWithQuerier recomputes and replaces the image's
// full-text row from current attributes and tags.
func (s *SQLiteStore) refreshSearchDocumentWithQuerier(ctx context.Context, q querier, imageID int64) error {
	attrs, err := s.getMetadataWithQuerier(ctx, q, imageID)
	if err != nil {
		return fmt.Errorf("failed to load metadata for search refresh: %w", err)
	}
	tags, err := s.listTagsWithQuerier(ctx, q, imageID)
	if err != nil {
		return fmt.Errorf("failed to load tags for search refresh: %w", err)
	}

	if _, err := q.ExecContext(ctx, `DELETE FROM metadata_fts WHERE image_id = ?`, imageID); err != nil {
		return fmt.Errorf("failed to clear search document: %w", err)
	}
	if _, err := q.ExecContext(ctx,
		`INSERT INTO metadata_fts (image_id, global_text) VALUES (?, ?)`,
		imageID, buildSearchDocument(attrs, tags)); err != nil {
		return fmt.Errorf("failed to write search document: %w", err)
	}
	return nil
}

func (s *SQLiteStore) RefreshSearchDocument(ctx context.Context, imageID int64) error {
	return s.refreshSearchDocumentWithQuerier(ctx, s.querier(), imageID)
}

// searchTextWithQuerier runs a bare MATCH query over the document column.
// Blank text must never reach this point; an empty MATCH is not well-defined.
func (s *SQLiteStore) searchTextWithQuerier(ctx context.Context, q querier, text string, limit int) ([]int64, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT image_id FROM metadata_fts WHERE metadata_fts MATCH ? LIMIT ?`, text, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *SQLiteStore) SearchText(ctx context.Context, text string, limit int) ([]int64, error) {
	return s.searchTextWithQuerier(ctx, s.querier(), text, limit)
}

// queryBuilder accumulates AND-only conjuncts with their bound parameters.
// Values are always bound, never concatenated into SQL text.
type queryBuilder struct {
	conjuncts []string
	args      []interface{}
}

func (b *queryBuilder) add(conjunct string, args ...interface{}) {
	b.conjuncts = append(b.conjuncts, conjunct)
	b.args = append(b.args, args...)
}

func (b *queryBuilder) where() string {
	if len(b.conjuncts) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(b.conjuncts, " AND ")
}

// buildImageSearch composes the one bounded query: images as the base
// table, the full-text index joined only when text is present, then zero
// or more equality filters.
func buildImageSearch(text string, filters Filters, limit int) (string, []interface{}) {
	var b queryBuilder

	query := `SELECT DISTINCT i.path FROM images i`

	if strings.TrimSpace(text) != "" {
		query += ` JOIN (SELECT image_id FROM metadata_fts WHERE metadata_fts MATCH ?) f ON f.image_id = i.id`
		b.args = append(b.args, text)
	}

	// Stable filter order so generated SQL is deterministic
	keys := make([]string, 0, len(filters))
	for key := range filters {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		value := filters[key]
		if value == FilterAll {
			continue
		}
		if key == RatingFilterKey {
			if rating, err := strconv.Atoi(value); err == nil {
				b.add(`i.rating = ?`, rating)
			} else {
				b.add(`i.rating = ?`, value)
			}
			continue
		}
		b.add(`EXISTS (SELECT 1 FROM image_metadata m WHERE m.image_id = i.id AND m.key = ? AND m.value = ?)`,
			key, value)
	}

	query += b.where()
	query += ` LIMIT ?`
	args := append(b.args, limit)

	return query, args
}

// searchImagesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStore) searchImagesWithQuerier(ctx context.Context, q querier, text string, filters Filters, limit int) ([]string, error) {
	query, args := buildImageSearch(text, filters, limit)

	rows, err := q.QueryContext(ctx, query, args...)
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

func (s *SQLiteStore) SearchImages(ctx context.Context, text string, filters Filters, limit int) ([]string, error) {
	return s.searchImagesWithQuerier(ctx, s.querier(), text, filters, limit)
}
