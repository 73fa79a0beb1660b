package storage

import (
	"context"
	"time"
)

// Store defines the interface for persisting and querying the media library
type Store interface {
	// Image identity operations
	GetOrCreateImage(ctx context.Context, path string) (*Image, error)
	GetImageByPath(ctx context.Context, path string) (*Image, error)
	GetImageByID(ctx context.Context, imageID int64) (*Image, error)
	FindImagesByHash(ctx context.Context, contentHash string) ([]*Image, error)
	UpdateImagePath(ctx context.Context, imageID int64, newPath string) error
	SetContentHash(ctx context.Context, imageID int64, contentHash string) error
	DeleteImage(ctx context.Context, imageID int64) error

	// Rating operations
	SetRating(ctx context.Context, imageID int64, rating int) error
	GetRating(ctx context.Context, imageID int64) (int, error)
	SetStarred(ctx context.Context, imageID int64, starred bool) error

	// Metadata operations
	UpsertMetadata(ctx context.Context, imageID int64, attrs map[string]string) error
	GetMetadata(ctx context.Context, imageID int64) (map[string]string, error)
	BatchGetMetadata(ctx context.Context, imageIDs []int64) (map[int64]map[string]string, error)

	// Tag operations
	AddTag(ctx context.Context, imageID int64, tag string) error
	RemoveTag(ctx context.Context, imageID int64, tag string) error
	ListTags(ctx context.Context, imageID int64) ([]string, error)

	// Search operations
	RefreshSearchDocument(ctx context.Context, imageID int64) error
	SearchText(ctx context.Context, text string, limit int) ([]int64, error)
	SearchImages(ctx context.Context, text string, filters Filters, limit int) ([]string, error)

	// Collection operations
	CreateCollection(ctx context.Context, name string) (*Collection, error)
	DeleteCollection(ctx context.Context, name string) error
	AddToCollection(ctx context.Context, name string, imageID int64) error
	RemoveFromCollection(ctx context.Context, name string, imageID int64) error
	ListCollectionImages(ctx context.Context, name string) ([]string, error)
	ListCollections(ctx context.Context) ([]string, error)

	// Pinned folder operations
	PinFolder(ctx context.Context, path string) error
	UnpinFolder(ctx context.Context, path string) error
	ListPinnedFolders(ctx context.Context) ([]string, error)

	// Settings operations
	SetSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Store // Embed Store interface for transaction operations
}

// Image represents one tracked file. The id is the durable identity; the
// path is only its current location and may be rewritten after a move.
type Image struct {
	ID          int64
	Path        string
	ContentHash string // Hex SHA-256 of file bytes, empty until computed
	Rating      int    // 0-5
	Starred     bool   // Legacy alias, mirrors rating > 0
	LastScanned time.Time
}

// Collection is a named grouping of images with insertion order
type Collection struct {
	ID        int64
	Name      string
	CreatedAt time.Time
}

// Filters maps attribute keys to required values for structured search.
// The reserved key "Rating" compares against the rating column; every other
// key is matched against image_metadata. The sentinel value FilterAll skips
// a filter. Composition is AND-only.
type Filters map[string]string

const (
	// FilterAll is the sentinel value meaning "no filter" for a key
	FilterAll = "All"
	// RatingFilterKey selects the rating column instead of an attribute
	RatingFilterKey = "Rating"
)

const (
	// MaxRating is the upper bound of the rating scale
	MaxRating = 5
	// metadataChunkSize bounds the number of bound ids per batch query,
	// staying well under SQLite's parameter-count ceiling
	metadataChunkSize = 500
)
