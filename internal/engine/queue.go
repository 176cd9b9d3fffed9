package engine

import "sync"

// editQueue is a thread-safe FIFO of pending edits.
//
// Edits may be enqueued from any goroutine while a pass runs. The engine
// drains the whole queue between passes, so an edit never lands mid-pass.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type editQueue struct {
	mu     sync.Mutex
	edits  []Edit
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEditQueue() *editQueue {
	return &editQueue{
		edits:  make([]Edit, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an edit to the back of the queue.
// Returns false if the queue is closed.
func (q *editQueue) Enqueue(e Edit) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.edits = append(q.edits, e)

	// Non-blocking: the size-1 buffer coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Drain removes and returns every queued edit in enqueue order.
func (q *editQueue) Drain() []Edit {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.edits) == 0 {
		return nil
	}
	out := q.edits
	q.edits = make([]Edit, 0, cap(out))
	return out
}

// Wait returns a channel that signals when edits may be available.
//
//	select {
//	case <-ctx.Done():
//	    return ctx.Err()
//	case <-q.Wait():
//	    // Drain
//	}
func (q *editQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *editQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.edits)
}

// Close signals that no more edits will be enqueued and wakes any waiter.
// Edits already queued stay drainable.
func (q *editQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}
	q.closed = true
	close(q.signal)
}
