// Package memory provides a bounded in-memory work queue.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Cyphercomp/pokefetch/internal/pokedex"
)

// ErrClosed is returned by Dequeue once the queue is closed and drained.
// Workers treat it as a clean shutdown signal.
var ErrClosed = pokedex.ErrQueueClosed

// Queue is a bounded in-memory queue with context-aware operations. Closing
// the queue lets consumers drain remaining items before ErrClosed surfaces,
// which is how batch runs join without polling.
type Queue struct {
	ch      chan pokedex.QueueItem
	closeMu sync.Mutex
	closed  bool
}

// NewQueue constructs a new queue with the provided capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{
		ch: make(chan pokedex.QueueItem, capacity),
	}
}

// Enqueue pushes an item into the queue or returns if the context ends.
func (q *Queue) Enqueue(ctx context.Context, item pokedex.QueueItem) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next item, respecting context cancellation. After Close,
// remaining items are still delivered; ErrClosed follows the last one.
func (q *Queue) Dequeue(ctx context.Context) (pokedex.QueueItem, error) {
	select {
	case <-ctx.Done():
		return pokedex.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return pokedex.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Close closes the underlying channel for shutdown. Safe to call repeatedly.
func (q *Queue) Close() {
	q.closeMu.Lock()
	defer q.closeMu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
