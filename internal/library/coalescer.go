package library

import (
	"sync"
	"time"
)

// pendingWrite holds the latest queued rating/star values for one image.
// Later writes to the same image overwrite earlier ones.
type pendingWrite struct {
	rating  *int
	starred *bool
}

// writeCoalescer batches rating and star writes and flushes them after an
// idle delay, so a user dragging a rating slider produces one transaction
// instead of many. Flush is also invoked synchronously on shutdown; the
// coalescer never relies on runtime exit hooks.
type writeCoalescer struct {
	mu      sync.Mutex
	pending map[int64]pendingWrite
	delay   time.Duration
	timer   *time.Timer
	flushFn func(map[int64]pendingWrite)
	closed  bool
}

func newWriteCoalescer(delay time.Duration, flushFn func(map[int64]pendingWrite)) *writeCoalescer {
	return &writeCoalescer{
		pending: make(map[int64]pendingWrite),
		delay:   delay,
		flushFn: flushFn,
	}
}

func (c *writeCoalescer) queueRating(imageID int64, rating int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	entry := c.pending[imageID]
	entry.rating = &rating
	c.pending[imageID] = entry
	c.arm()
}

func (c *writeCoalescer) queueStarred(imageID int64, starred bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	entry := c.pending[imageID]
	entry.starred = &starred
	c.pending[imageID] = entry
	c.arm()
}

// peek reports a queued-but-unflushed write so reads observe their own
// writes before the flush lands.
func (c *writeCoalescer) peek(imageID int64) (pendingWrite, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.pending[imageID]
	return entry, ok
}

// drop discards any queued write for an image, used when it is deleted
func (c *writeCoalescer) drop(imageID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.pending, imageID)
}

// arm starts the idle timer if it isn't already running. Caller holds mu.
func (c *writeCoalescer) arm() {
	if c.timer != nil {
		return
	}
	c.timer = time.AfterFunc(c.delay, c.Flush)
}

// Flush synchronously drains the queue through flushFn
func (c *writeCoalescer) Flush() {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	drained := c.pending
	c.pending = make(map[int64]pendingWrite)
	c.mu.Unlock()

	if len(drained) > 0 {
		c.flushFn(drained)
	}
}

// Close flushes any pending writes and rejects further queueing
func (c *writeCoalescer) Close() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.Flush()
}
