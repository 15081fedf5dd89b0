package fanout

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var ErrClosed = errors.New("broadcaster closed")

// LaggedError is returned by Receiver.Recv when the receiver fell behind by more than the
// buffer capacity. The receiver resumes at the oldest value still buffered.
type LaggedError struct {
	Missed uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("receiver lagged behind, %d messages missed", e.Missed)
}

// Broadcaster delivers every published value to every receiver subscribed at publish time.
// Values are kept in a fixed ring, so a slow receiver never blocks the producer.
type Broadcaster[T any] struct {
	mu        sync.Mutex
	ring      []T
	head      uint64 // sequence number of the next publish
	receivers int
	closed    bool
	notify    chan struct{} // closed and replaced on every publish or close
}

// New creates a broadcaster that buffers up to capacity values per receiver.
func New[T any](capacity int) *Broadcaster[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Broadcaster[T]{
		ring:   make([]T, capacity),
		notify: make(chan struct{}),
	}
}

// Publish stores v and wakes every waiting receiver. It returns the number of live receivers,
// zero is not an error.
func (b *Broadcaster[T]) Publish(v T) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0, ErrClosed
	}
	b.ring[b.head%uint64(len(b.ring))] = v
	b.head++
	close(b.notify)
	b.notify = make(chan struct{})
	return b.receivers, nil
}

// Subscribe returns a receiver that observes values published from now on.
func (b *Broadcaster[T]) Subscribe() *Receiver[T] {
	b.mu.Lock()
	defer b.mu.Unlock()
	r := &Receiver[T]{b: b, next: b.head, done: make(chan struct{})}
	b.receivers++
	return r
}

// Receivers is the number of live receivers.
func (b *Broadcaster[T]) Receivers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.receivers
}

// Close stops publishing. Receivers drain what is buffered and then get ErrClosed.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.notify)
}

// Receiver is one consumer's cursor into a Broadcaster. Recv must be called from a single
// goroutine; Close may be called from any goroutine and unblocks a pending Recv.
type Receiver[T any] struct {
	b    *Broadcaster[T]
	next uint64

	closeOnce sync.Once
	done      chan struct{}
}

// Recv returns the next value. It suspends until a value is published, ctx is done,
// or the broadcaster is closed and drained.
func (r *Receiver[T]) Recv(ctx context.Context) (T, error) {
	var zero T
	for {
		select {
		case <-r.done:
			return zero, ErrClosed
		default:
		}
		b := r.b
		b.mu.Lock()
		capacity := uint64(len(b.ring))
		if b.head-r.next > capacity {
			oldest := b.head - capacity
			missed := oldest - r.next
			r.next = oldest
			b.mu.Unlock()
			return zero, &LaggedError{Missed: missed}
		}
		if r.next < b.head {
			v := b.ring[r.next%capacity]
			r.next++
			b.mu.Unlock()
			return v, nil
		}
		if b.closed {
			b.mu.Unlock()
			r.Close()
			return zero, ErrClosed
		}
		wait := b.notify
		b.mu.Unlock()

		select {
		case <-wait:
		case <-r.done:
			return zero, ErrClosed
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
}

// Close detaches the receiver. It is safe to call more than once.
func (r *Receiver[T]) Close() {
	r.closeOnce.Do(func() {
		close(r.done)
		r.b.mu.Lock()
		r.b.receivers--
		r.b.mu.Unlock()
	})
}
