package library

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/storage"
	"github.com/erroralex/Image-Generation-Toolbox-sub000/pkg/log"
)

// Library is the concurrency-safe facade over the store. Read operations
// take the shared lock, write operations the exclusive lock; the lock is
// the source of truth for ordering between multi-statement operations
// (e.g. metadata write plus index refresh). The engine's WAL concurrency
// underneath it is an optimization, not a substitute.
type Library struct {
	store     storage.Store
	log       log.LoggerService
	mu        sync.RWMutex
	cache     *metadataCache
	coalescer *writeCoalescer
}

// Options configures facade behavior
type Options struct {
	FlushDelay time.Duration // idle delay before coalesced writes land
	CacheSize  int           // metadata LRU entries
}

// DefaultOptions returns the facade configuration used when none is given
func DefaultOptions() Options {
	return Options{
		FlushDelay: 500 * time.Millisecond,
		CacheSize:  1024,
	}
}

// New wraps an open store. The Library owns the store from here on:
// Close drains pending writes and closes it.
func New(store storage.Store, logger log.LoggerService, opts Options) (*Library, error) {
	if opts.FlushDelay <= 0 {
		opts.FlushDelay = DefaultOptions().FlushDelay
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultOptions().CacheSize
	}

	cache, err := newMetadataCache(opts.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create metadata cache: %w", err)
	}

	lib := &Library{
		store: store,
		log:   logger,
		cache: cache,
	}
	lib.coalescer = newWriteCoalescer(opts.FlushDelay, lib.flushPending)
	return lib, nil
}

// Close flushes coalesced writes synchronously, then releases the store
func (l *Library) Close() error {
	l.coalescer.Close()
	return l.store.Close()
}

// Flush forces any queued rating writes to land now
func (l *Library) Flush() {
	l.coalescer.Flush()
}

// Identity tracking

// TrackFile resolves a path to its durable identity, creating one if
// needed. An exact path hit short-circuits without touching file bytes;
// otherwise the file is hashed and a single prior identity sharing the
// hash is treated as a rename and repaired in place.
func (l *Library) TrackFile(ctx context.Context, path string) (int64, error) {
	l.mu.RLock()
	img, err := l.store.GetImageByPath(ctx, path)
	l.mu.RUnlock()
	if err == nil {
		return img.ID, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, fmt.Errorf("failed to look up %s: %w", path, err)
	}

	hash, err := HashFile(path)
	if err != nil {
		return 0, fmt.Errorf("failed to hash %s: %w", path, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	id, _, err := trackHashed(ctx, tx, path, hash)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return id, nil
}

// IsTracked reports whether a path already has an identity
func (l *Library) IsTracked(ctx context.Context, path string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, err := l.store.GetImageByPath(ctx, path)
	return err == nil
}

// TrackOutcome classifies what happened to one candidate file
type TrackOutcome int

const (
	OutcomeSkipped TrackOutcome = iota // path already tracked
	OutcomeRepaired                    // existing identity's path rewritten
	OutcomeCreated                     // brand-new identity
)

// Candidate is an untracked file with its precomputed content hash
type Candidate struct {
	Path string
	Hash string
}

// RepairBatch applies move detection to a batch of candidates inside one
// transaction under the exclusive lock. Each call is a consistent
// checkpoint for the reconciliation job.
func (l *Library) RepairBatch(ctx context.Context, candidates []Candidate) (repaired, created int, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return 0, 0, err
	}
	defer func() { _ = tx.Rollback() }()

	for _, candidate := range candidates {
		_, outcome, err := trackHashed(ctx, tx, candidate.Path, candidate.Hash)
		if err != nil {
			return 0, 0, fmt.Errorf("failed to reconcile %s: %w", candidate.Path, err)
		}
		switch outcome {
		case OutcomeRepaired:
			repaired++
		case OutcomeCreated:
			created++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, err
	}
	return repaired, created, nil
}

// trackHashed runs move detection for one hashed file inside a transaction.
// Exactly one prior identity with the same hash is a rename; zero, or an
// ambiguous several, creates a fresh identity.
func trackHashed(ctx context.Context, tx storage.Tx, path, hash string) (int64, TrackOutcome, error) {
	img, err := tx.GetImageByPath(ctx, path)
	if err == nil {
		return img.ID, OutcomeSkipped, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return 0, OutcomeSkipped, err
	}

	matches, err := tx.FindImagesByHash(ctx, hash)
	if err != nil {
		return 0, OutcomeSkipped, err
	}
	if len(matches) == 1 {
		if err := tx.UpdateImagePath(ctx, matches[0].ID, path); err != nil {
			return 0, OutcomeSkipped, err
		}
		return matches[0].ID, OutcomeRepaired, nil
	}

	img, err = tx.GetOrCreateImage(ctx, path)
	if err != nil {
		return 0, OutcomeSkipped, err
	}
	if err := tx.SetContentHash(ctx, img.ID, hash); err != nil {
		return 0, OutcomeSkipped, err
	}
	return img.ID, OutcomeCreated, nil
}

// HashFile computes the hex SHA-256 digest of a file's bytes
func HashFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}

// Metadata

// SaveMetadata batch-upserts attributes, derives auto-tags from detected
// model/LoRA names, and refreshes the search document, all in one
// transaction so other callers never observe a half-written state.
func (l *Library) SaveMetadata(ctx context.Context, imageID int64, attrs map[string]string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := tx.UpsertMetadata(ctx, imageID, attrs); err != nil {
		return err
	}
	for _, tag := range autoTags(attrs) {
		if err := tx.AddTag(ctx, imageID, tag); err != nil {
			return err
		}
	}
	if err := tx.RefreshSearchDocument(ctx, imageID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	l.cache.invalidate(imageID)
	return nil
}

// autoTags derives one tag per detected model or LoRA name from extracted
// attributes. Comma-separated values yield one tag each.
func autoTags(attrs map[string]string) []string {
	tags := make([]string, 0)
	for key, value := range attrs {
		switch strings.ToLower(key) {
		case "model", "lora":
			for _, name := range strings.Split(value, ",") {
				if name = strings.TrimSpace(name); name != "" {
					tags = append(tags, name)
				}
			}
		}
	}
	return tags
}

// Metadata returns an image's attributes. Failures are logged and yield an
// empty map; a UI should never crash over one bad read.
func (l *Library) Metadata(ctx context.Context, imageID int64) map[string]string {
	if attrs, ok := l.cache.get(imageID); ok {
		return attrs
	}

	l.mu.RLock()
	attrs, err := l.store.GetMetadata(ctx, imageID)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("failed to read metadata for image %d: %v", imageID, err)
		return map[string]string{}
	}

	l.cache.put(imageID, attrs)
	return attrs
}

// BatchMetadata bulk-loads attributes for many images at once
func (l *Library) BatchMetadata(ctx context.Context, imageIDs []int64) map[int64]map[string]string {
	l.mu.RLock()
	result, err := l.store.BatchGetMetadata(ctx, imageIDs)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("failed to batch-read metadata for %d images: %v", len(imageIDs), err)
		return map[int64]map[string]string{}
	}

	for imageID, attrs := range result {
		l.cache.put(imageID, attrs)
	}
	return result
}

// Tags

func (l *Library) AddTag(ctx context.Context, imageID int64, tag string) error {
	return l.mutateTags(ctx, imageID, tag, storage.Tx.AddTag)
}

func (l *Library) RemoveTag(ctx context.Context, imageID int64, tag string) error {
	return l.mutateTags(ctx, imageID, tag, storage.Tx.RemoveTag)
}

// mutateTags applies a tag change and the mandatory index refresh in one
// transaction; a query issued right after observes the change.
func (l *Library) mutateTags(ctx context.Context, imageID int64, tag string,
	op func(storage.Tx, context.Context, int64, string) error) error {

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := op(tx, ctx, imageID, tag); err != nil {
		return err
	}
	if err := tx.RefreshSearchDocument(ctx, imageID); err != nil {
		return err
	}
	return tx.Commit()
}

// Tags lists an image's tags; failures log and yield an empty set
func (l *Library) Tags(ctx context.Context, imageID int64) []string {
	l.mu.RLock()
	tags, err := l.store.ListTags(ctx, imageID)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("failed to read tags for image %d: %v", imageID, err)
		return []string{}
	}
	return tags
}

// Rating

// SetRating queues a rating write; it lands after the idle delay or on
// Flush/Close. The value is clamped here so a read of the queued value
// matches what the flush will persist.
func (l *Library) SetRating(imageID int64, rating int) {
	if rating < 0 {
		rating = 0
	}
	if rating > storage.MaxRating {
		rating = storage.MaxRating
	}
	l.coalescer.queueRating(imageID, rating)
}

// Star queues the legacy starred flag
func (l *Library) Star(imageID int64, starred bool) {
	l.coalescer.queueStarred(imageID, starred)
}

// Rating returns an image's rating, observing queued-but-unflushed writes.
// Absent images and read failures both yield 0; only the latter logs.
func (l *Library) Rating(ctx context.Context, imageID int64) int {
	if pending, ok := l.coalescer.peek(imageID); ok && pending.rating != nil {
		return *pending.rating
	}

	l.mu.RLock()
	rating, err := l.store.GetRating(ctx, imageID)
	l.mu.RUnlock()
	if errors.Is(err, storage.ErrNotFound) {
		return 0
	}
	if err != nil {
		l.log.Error("failed to read rating for image %d: %v", imageID, err)
		return 0
	}
	return rating
}

// flushPending lands coalesced writes in one transaction
func (l *Library) flushPending(pending map[int64]pendingWrite) {
	ctx := context.Background()

	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		l.log.Error("failed to begin flush transaction: %v", err)
		return
	}
	defer func() { _ = tx.Rollback() }()

	// One bad image must not lose the rest of the drained batch; the
	// entries were already taken off the queue
	for imageID, write := range pending {
		if write.rating != nil {
			if err := tx.SetRating(ctx, imageID, *write.rating); err != nil && !errors.Is(err, storage.ErrNotFound) {
				l.log.Error("failed to flush rating for image %d: %v", imageID, err)
				continue
			}
		}
		if write.starred != nil {
			if err := tx.SetStarred(ctx, imageID, *write.starred); err != nil && !errors.Is(err, storage.ErrNotFound) {
				l.log.Error("failed to flush starred for image %d: %v", imageID, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		l.log.Error("failed to commit flushed writes: %v", err)
	}
}

// Search

// Search composes free text and structured filters into one bounded
// query. Failures log and yield an empty result.
func (l *Library) Search(ctx context.Context, text string, filters storage.Filters, limit int) []string {
	l.mu.RLock()
	paths, err := l.store.SearchImages(ctx, text, filters, limit)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("search failed: %v", err)
		return []string{}
	}
	return paths
}

// Collections

func (l *Library) CreateCollection(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.store.CreateCollection(ctx, name)
	return err
}

func (l *Library) DeleteCollection(ctx context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.DeleteCollection(ctx, name)
}

func (l *Library) AddToCollection(ctx context.Context, name string, imageID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.AddToCollection(ctx, name, imageID)
}

func (l *Library) RemoveFromCollection(ctx context.Context, name string, imageID int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.RemoveFromCollection(ctx, name, imageID)
}

// CollectionImages lists member paths, most recently added first
func (l *Library) CollectionImages(ctx context.Context, name string) []string {
	l.mu.RLock()
	paths, err := l.store.ListCollectionImages(ctx, name)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("failed to list collection %q: %v", name, err)
		return []string{}
	}
	return paths
}

// Collections lists collection names alphabetically
func (l *Library) Collections(ctx context.Context) []string {
	l.mu.RLock()
	names, err := l.store.ListCollections(ctx)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("failed to list collections: %v", err)
		return []string{}
	}
	return names
}

// Pinned folders

func (l *Library) PinFolder(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.PinFolder(ctx, path)
}

func (l *Library) UnpinFolder(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.UnpinFolder(ctx, path)
}

func (l *Library) PinnedFolders(ctx context.Context) []string {
	l.mu.RLock()
	paths, err := l.store.ListPinnedFolders(ctx)
	l.mu.RUnlock()
	if err != nil {
		l.log.Error("failed to list pinned folders: %v", err)
		return []string{}
	}
	return paths
}

// Settings

func (l *Library) SetSetting(ctx context.Context, key, value string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.store.SetSetting(ctx, key, value)
}

// Setting returns a stored value, or the fallback when absent
func (l *Library) Setting(ctx context.Context, key, fallback string) string {
	l.mu.RLock()
	value, err := l.store.GetSetting(ctx, key)
	l.mu.RUnlock()
	if errors.Is(err, storage.ErrNotFound) {
		return fallback
	}
	if err != nil {
		l.log.Error("failed to read setting %q: %v", key, err)
		return fallback
	}
	return value
}

// Deletion

// Delete removes an identity and, via cascade, its attributes, tags and
// collection memberships. Unknown paths are a silent no-op. The search
// document and the image row go in one transaction so an interruption
// cannot leave an orphaned index entry.
func (l *Library) Delete(ctx context.Context, path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	img, err := tx.GetImageByPath(ctx, path)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if err := tx.DeleteImage(ctx, img.ID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	l.coalescer.drop(img.ID)
	l.cache.invalidate(img.ID)
	return nil
}
