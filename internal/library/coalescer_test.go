package library

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type flushRecorder struct {
	mu      sync.Mutex
	batches []map[int64]pendingWrite
}

func (r *flushRecorder) record(pending map[int64]pendingWrite) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, pending)
}

func (r *flushRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batches)
}

func (r *flushRecorder) last() map[int64]pendingWrite {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.batches) == 0 {
		return nil
	}
	return r.batches[len(r.batches)-1]
}

func TestCoalescerCollapsesWrites(t *testing.T) {
	recorder := &flushRecorder{}
	c := newWriteCoalescer(time.Hour, recorder.record)

	c.queueRating(1, 2)
	c.queueRating(1, 5)
	c.queueStarred(1, true)
	c.queueRating(2, 3)

	c.Flush()
	require.Equal(t, 1, recorder.count())

	batch := recorder.last()
	require.Len(t, batch, 2)
	require.NotNil(t, batch[1].rating)
	assert.Equal(t, 5, *batch[1].rating)
	require.NotNil(t, batch[1].starred)
	assert.True(t, *batch[1].starred)
	require.NotNil(t, batch[2].rating)
	assert.Equal(t, 3, *batch[2].rating)
}

func TestCoalescerPeek(t *testing.T) {
	c := newWriteCoalescer(time.Hour, func(map[int64]pendingWrite) {})

	_, ok := c.peek(1)
	assert.False(t, ok)

	c.queueRating(1, 4)
	entry, ok := c.peek(1)
	require.True(t, ok)
	require.NotNil(t, entry.rating)
	assert.Equal(t, 4, *entry.rating)

	c.Flush()
	_, ok = c.peek(1)
	assert.False(t, ok)
}

func TestCoalescerDrop(t *testing.T) {
	recorder := &flushRecorder{}
	c := newWriteCoalescer(time.Hour, recorder.record)

	c.queueRating(1, 4)
	c.drop(1)
	c.Flush()

	// Nothing left to flush, flushFn not invoked at all
	assert.Equal(t, 0, recorder.count())
}

func TestCoalescerTimerFires(t *testing.T) {
	recorder := &flushRecorder{}
	c := newWriteCoalescer(5*time.Millisecond, recorder.record)

	c.queueRating(1, 4)

	require.Eventually(t, func() bool {
		return recorder.count() == 1
	}, time.Second, time.Millisecond)

	_, ok := c.peek(1)
	assert.False(t, ok)
}

func TestCoalescerClose(t *testing.T) {
	recorder := &flushRecorder{}
	c := newWriteCoalescer(time.Hour, recorder.record)

	c.queueRating(1, 4)
	c.Close()
	require.Equal(t, 1, recorder.count())

	// Writes after Close are rejected
	c.queueRating(2, 5)
	c.Flush()
	assert.Equal(t, 1, recorder.count())
}
