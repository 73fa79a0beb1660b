package library

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// metadataCache is an LRU over per-image attribute maps. Entries are
// invalidated on every write for that image, so a hit is always current.
type metadataCache struct {
	entries *lru.Cache[int64, map[string]string]
}

func newMetadataCache(size int) (*metadataCache, error) {
	entries, err := lru.New[int64, map[string]string](size)
	if err != nil {
		return nil, err
	}
	return &metadataCache{entries: entries}, nil
}

// get returns a copy so callers can't mutate the cached map
func (c *metadataCache) get(imageID int64) (map[string]string, bool) {
	attrs, ok := c.entries.Get(imageID)
	if !ok {
		return nil, false
	}
	return copyAttrs(attrs), true
}

func (c *metadataCache) put(imageID int64, attrs map[string]string) {
	c.entries.Add(imageID, copyAttrs(attrs))
}

func (c *metadataCache) invalidate(imageID int64) {
	c.entries.Remove(imageID)
}

func copyAttrs(attrs map[string]string) map[string]string {
	out := make(map[string]string, len(attrs))
	for key, value := range attrs {
		out[key] = value
	}
	return out
}
