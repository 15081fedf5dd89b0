package events

import (
	"context"
	"errors"
	"sync"
)

var ErrQueueClosed = errors.New("event queue closed")

// Queue is an unbounded multi-producer single-consumer FIFO of events.
// Push never blocks; Recv suspends until an event is available or the queue is closed.
type Queue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
}

func NewQueue() *Queue {
	return &Queue{signal: make(chan struct{}, 1)}
}

// Push appends e. It fails with ErrQueueClosed once Close has been called.
func (q *Queue) Push(e Event) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return ErrQueueClosed
	}
	q.items = append(q.items, e)
	q.mu.Unlock()
	q.wake()
	return nil
}

// Recv returns the oldest event. Events pushed before Close are still delivered;
// ErrQueueClosed is returned once the queue is closed and drained.
func (q *Queue) Recv(ctx context.Context) (Event, error) {
	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			e := q.items[0]
			q.items[0] = nil
			q.items = q.items[1:]
			if len(q.items) == 0 {
				// release the backing array once drained
				q.items = nil
			}
			q.mu.Unlock()
			return e, nil
		}
		closed := q.closed
		q.mu.Unlock()
		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-q.signal:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// Close stops accepting events. It is safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// Len is the number of buffered events.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
