package library

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erroralex/Image-Generation-Toolbox-sub000/internal/storage"
	"github.com/erroralex/Image-Generation-Toolbox-sub000/pkg/log"
)

func setupTestLibrary(t *testing.T) *Library {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "library.db"), storage.DefaultOptions())
	require.NoError(t, err)

	lib, err := New(store, log.Discard(), Options{
		FlushDelay: 10 * time.Millisecond,
		CacheSize:  64,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })
	return lib
}

func writeFile(t *testing.T, dir, name, content string) string {
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestTrackFileRoundTrip(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "a.png", "image bytes")

	first, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)
	assert.Greater(t, first, int64(0))

	// Tracking the same path again resolves to the same identity
	second, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.True(t, lib.IsTracked(ctx, path))
	assert.False(t, lib.IsTracked(ctx, filepath.Join(dir, "missing.png")))
}

func TestTrackFileDetectsMove(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	oldPath := writeFile(t, dir, "original.png", "same content")
	id, err := lib.TrackFile(ctx, oldPath)
	require.NoError(t, err)
	require.NoError(t, lib.SaveMetadata(ctx, id, map[string]string{"model": "sdxl"}))

	newPath := filepath.Join(dir, "renamed.png")
	require.NoError(t, os.Rename(oldPath, newPath))

	// The rename is detected by content hash: same identity, path repaired
	moved, err := lib.TrackFile(ctx, newPath)
	require.NoError(t, err)
	assert.Equal(t, id, moved)

	assert.True(t, lib.IsTracked(ctx, newPath))
	assert.False(t, lib.IsTracked(ctx, oldPath))

	// Metadata survives the move
	assert.Equal(t, "sdxl", lib.Metadata(ctx, moved)["model"])
}

func TestTrackFileAmbiguousHash(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "library.db"), storage.DefaultOptions())
	require.NoError(t, err)
	lib, err := New(store, log.Discard(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })

	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "copy.png", "duplicate")
	hash, err := HashFile(path)
	require.NoError(t, err)

	// Two prior identities already share the hash, so the new file cannot
	// be attributed to either and gets a fresh identity
	imgA, err := store.GetOrCreateImage(ctx, "vanished/a.png")
	require.NoError(t, err)
	require.NoError(t, store.SetContentHash(ctx, imgA.ID, hash))
	imgB, err := store.GetOrCreateImage(ctx, "vanished/b.png")
	require.NoError(t, err)
	require.NoError(t, store.SetContentHash(ctx, imgB.ID, hash))

	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)
	assert.NotEqual(t, imgA.ID, id)
	assert.NotEqual(t, imgB.ID, id)

	matches, err := store.FindImagesByHash(ctx, hash)
	require.NoError(t, err)
	assert.Len(t, matches, 3)
}

func TestRepairBatch(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	oldPath := writeFile(t, dir, "moved.png", "will move")
	id, err := lib.TrackFile(ctx, oldPath)
	require.NoError(t, err)
	hash, err := HashFile(oldPath)
	require.NoError(t, err)

	newPath := filepath.Join(dir, "destination.png")
	require.NoError(t, os.Rename(oldPath, newPath))

	freshPath := writeFile(t, dir, "fresh.png", "never seen")
	freshHash, err := HashFile(freshPath)
	require.NoError(t, err)

	repaired, created, err := lib.RepairBatch(ctx, []Candidate{
		{Path: newPath, Hash: hash},
		{Path: freshPath, Hash: freshHash},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, repaired)
	assert.Equal(t, 1, created)

	moved, err := lib.TrackFile(ctx, newPath)
	require.NoError(t, err)
	assert.Equal(t, id, moved)
}

func TestSaveMetadataAutoTags(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "gen.png", "generated")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, lib.SaveMetadata(ctx, id, map[string]string{
		"Model": "dreamshaper",
		"lora":  "detail-tweaker, add-brightness",
		"seed":  "12345",
	}))

	tags := lib.Tags(ctx, id)
	assert.ElementsMatch(t, []string{"dreamshaper", "detail-tweaker", "add-brightness"}, tags)

	// The search document is refreshed in the same transaction
	assert.Equal(t, []string{path}, lib.Search(ctx, "dreamshaper", nil, 10))
}

func TestMetadataCaching(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "cached.png", "cacheable")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, lib.SaveMetadata(ctx, id, map[string]string{"seed": "1"}))
	assert.Equal(t, "1", lib.Metadata(ctx, id)["seed"])

	// Mutating the cached copy must not leak into later reads
	lib.Metadata(ctx, id)["seed"] = "tampered"
	assert.Equal(t, "1", lib.Metadata(ctx, id)["seed"])

	// A write invalidates the cache entry
	require.NoError(t, lib.SaveMetadata(ctx, id, map[string]string{"seed": "2"}))
	assert.Equal(t, "2", lib.Metadata(ctx, id)["seed"])
}

func TestTagMutationRefreshesSearch(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "tagme.png", "taggable")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, lib.AddTag(ctx, id, "portrait"))
	assert.Equal(t, []string{path}, lib.Search(ctx, "portrait", nil, 10))

	require.NoError(t, lib.RemoveTag(ctx, id, "portrait"))
	assert.Empty(t, lib.Search(ctx, "portrait", nil, 10))
}

func TestRatingReadYourWrites(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "rated.png", "rateable")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	// A queued write is visible before it lands
	lib.SetRating(id, 4)
	assert.Equal(t, 4, lib.Rating(ctx, id))

	lib.Flush()
	assert.Equal(t, 4, lib.Rating(ctx, id))

	// Out-of-range values clamp at queue time, so the queued read and the
	// flushed read agree
	lib.SetRating(id, 11)
	assert.Equal(t, 5, lib.Rating(ctx, id))
	lib.Flush()
	assert.Equal(t, 5, lib.Rating(ctx, id))

	lib.SetRating(id, -2)
	assert.Equal(t, 0, lib.Rating(ctx, id))

	// Unknown ids read as unrated
	assert.Equal(t, 0, lib.Rating(ctx, 99999))
}

func TestRatingCoalesces(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "busy.png", "rapid clicks")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	// Rapid successive writes collapse to the last value
	for rating := 1; rating <= 5; rating++ {
		lib.SetRating(id, rating)
	}
	lib.Flush()
	assert.Equal(t, 5, lib.Rating(ctx, id))
}

func TestCloseFlushesPendingWrites(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "library.db")
	ctx := context.Background()
	dir := t.TempDir()

	store, err := storage.NewSQLiteStore(dbPath, storage.DefaultOptions())
	require.NoError(t, err)
	lib, err := New(store, log.Discard(), Options{FlushDelay: time.Hour})
	require.NoError(t, err)

	path := writeFile(t, dir, "closing.png", "about to close")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	lib.SetRating(id, 3)
	require.NoError(t, lib.Close())

	// Reopen and confirm the rating landed before the store closed
	store, err = storage.NewSQLiteStore(dbPath, storage.DefaultOptions())
	require.NoError(t, err)
	defer store.Close()

	rating, err := store.GetRating(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, rating)
}

func TestDelete(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "gone.png", "short-lived")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)
	require.NoError(t, lib.AddTag(ctx, id, "temp"))
	lib.SetRating(id, 2)

	require.NoError(t, lib.Delete(ctx, path))
	assert.False(t, lib.IsTracked(ctx, path))
	assert.Empty(t, lib.Search(ctx, "temp", nil, 10))

	// Queued writes for the image are dropped, not flushed into nothing
	lib.Flush()

	// Deleting an unknown path is a no-op
	require.NoError(t, lib.Delete(ctx, filepath.Join(dir, "never-existed.png")))
}

func TestCollectionsAndPins(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "member.png", "collected")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)

	require.NoError(t, lib.CreateCollection(ctx, "favorites"))
	require.NoError(t, lib.AddToCollection(ctx, "favorites", id))
	assert.Equal(t, []string{path}, lib.CollectionImages(ctx, "favorites"))
	assert.Equal(t, []string{"favorites"}, lib.Collections(ctx))

	require.NoError(t, lib.RemoveFromCollection(ctx, "favorites", id))
	assert.Empty(t, lib.CollectionImages(ctx, "favorites"))

	require.NoError(t, lib.PinFolder(ctx, dir))
	assert.Equal(t, []string{dir}, lib.PinnedFolders(ctx))
	require.NoError(t, lib.UnpinFolder(ctx, dir))
	assert.Empty(t, lib.PinnedFolders(ctx))
}

func TestSettings(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()

	assert.Equal(t, "grid", lib.Setting(ctx, "view", "grid"))
	require.NoError(t, lib.SetSetting(ctx, "view", "list"))
	assert.Equal(t, "list", lib.Setting(ctx, "view", "grid"))
}

func TestConcurrentReadersAndWriters(t *testing.T) {
	lib := setupTestLibrary(t)
	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "contended.png", "busy image")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)
	require.NoError(t, lib.SaveMetadata(ctx, id, map[string]string{"model": "sdxl"}))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				switch i % 4 {
				case 0:
					lib.Search(ctx, "sdxl", nil, 10)
				case 1:
					lib.Metadata(ctx, id)
				case 2:
					lib.SetRating(id, j%6)
				default:
					_ = lib.AddTag(ctx, id, "stress")
				}
			}
		}(i)
	}
	wg.Wait()
	lib.Flush()

	// The store is still consistent afterwards
	assert.Equal(t, []string{path}, lib.Search(ctx, "sdxl", nil, 10))
}

// faultStore wraps a live store and makes rating writes fail for one image
type faultStore struct {
	storage.Store
	failID int64
}

func (s *faultStore) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.Store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	return &faultTx{Tx: tx, failID: s.failID}, nil
}

type faultTx struct {
	storage.Tx
	failID int64
}

func (t *faultTx) SetRating(ctx context.Context, imageID int64, rating int) error {
	if imageID == t.failID {
		return errors.New("disk I/O error")
	}
	return t.Tx.SetRating(ctx, imageID, rating)
}

func TestFlushSurvivesFailedWrite(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "library.db"), storage.DefaultOptions())
	require.NoError(t, err)
	faulty := &faultStore{Store: store}

	lib, err := New(faulty, log.Discard(), Options{FlushDelay: time.Hour})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })

	ctx := context.Background()
	dir := t.TempDir()

	badID, err := lib.TrackFile(ctx, writeFile(t, dir, "bad.png", "cursed"))
	require.NoError(t, err)
	goodID, err := lib.TrackFile(ctx, writeFile(t, dir, "good.png", "fine"))
	require.NoError(t, err)

	// One failing image must not lose the other's queued rating
	faulty.failID = badID
	lib.SetRating(badID, 3)
	lib.SetRating(goodID, 4)
	lib.Flush()

	rating, err := store.GetRating(ctx, goodID)
	require.NoError(t, err)
	assert.Equal(t, 4, rating)
}

// commitFailStore wraps a live store and rejects transaction commits on demand
type commitFailStore struct {
	storage.Store
	fail bool
}

func (s *commitFailStore) BeginTx(ctx context.Context) (storage.Tx, error) {
	tx, err := s.Store.BeginTx(ctx)
	if err != nil {
		return nil, err
	}
	if s.fail {
		return &commitFailTx{Tx: tx}, nil
	}
	return tx, nil
}

type commitFailTx struct {
	storage.Tx
}

func (t *commitFailTx) Commit() error {
	_ = t.Tx.Rollback()
	return errors.New("commit failed")
}

func TestDeleteAtomic(t *testing.T) {
	store, err := storage.NewSQLiteStore(filepath.Join(t.TempDir(), "library.db"), storage.DefaultOptions())
	require.NoError(t, err)
	flaky := &commitFailStore{Store: store}

	lib, err := New(flaky, log.Discard(), Options{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close() })

	ctx := context.Background()
	dir := t.TempDir()

	path := writeFile(t, dir, "keep.png", "still here")
	id, err := lib.TrackFile(ctx, path)
	require.NoError(t, err)
	require.NoError(t, lib.AddTag(ctx, id, "archived"))

	// An interrupted delete leaves both the identity and its search
	// document in place, never a half-deleted state
	flaky.fail = true
	require.Error(t, lib.Delete(ctx, path))
	assert.True(t, lib.IsTracked(ctx, path))
	assert.Equal(t, []string{path}, lib.Search(ctx, "archived", nil, 10))

	flaky.fail = false
	require.NoError(t, lib.Delete(ctx, path))
	assert.False(t, lib.IsTracked(ctx, path))
	assert.Empty(t, lib.Search(ctx, "archived", nil, 10))
}

func TestAutoTags(t *testing.T) {
	assert.Empty(t, autoTags(map[string]string{"seed": "1"}))
	assert.Equal(t, []string{"sdxl"}, autoTags(map[string]string{"model": "sdxl"}))
	assert.ElementsMatch(t,
		[]string{"a", "b"},
		autoTags(map[string]string{"LoRA": "a, b,"}),
	)
}
