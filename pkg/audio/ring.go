package audio

import (
	"errors"
	"fmt"
	"sync"
)

// ErrRingCapacity is returned by [NewRing] for a non-positive capacity.
var ErrRingCapacity = errors.New("audio: ring capacity must be positive")

// Ring is a fixed-capacity FIFO byte buffer decoupling a producer task from a
// consumer task running at a different cadence. All operations are
// non-blocking, complete in bounded time, and allocate nothing after
// construction.
//
// Write never overwrites unread data: when the buffer is full the excess is
// reported as not written and the caller decides whether to back off or to
// evict the oldest bytes explicitly via [Ring.Discard]. Silent overwrite
// would tear the sample stream mid-window and corrupt voice-activity
// tracking downstream.
//
// Intended for exactly one producer and one consumer. The internal mutex
// makes individual operations atomic; it does not arbitrate multi-producer
// interleaving.
type Ring struct {
	mu    sync.Mutex
	buf   []byte
	start int // index of the oldest unread byte
	size  int // unread byte count
}

// NewRing returns a ring buffer holding at most capacity bytes.
func NewRing(capacity int) (*Ring, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrRingCapacity, capacity)
	}
	return &Ring{buf: make([]byte, capacity)}, nil
}

// Write copies as much of p as fits and returns the byte count written.
// A short count signals back-pressure; unread data is never overwritten.
func (r *Ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := len(r.buf) - r.size
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}

	w := (r.start + r.size) % len(r.buf)
	c := copy(r.buf[w:], p[:n])
	if c < n {
		copy(r.buf, p[c:n])
	}
	r.size += n
	return n
}

// Read copies up to len(p) unread bytes into p in FIFO order and returns the
// count. Returns 0 when the buffer is empty; never blocks.
func (r *Ring) Read(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if n == 0 {
		return 0
	}

	c := copy(p[:n], r.buf[r.start:])
	if c < n {
		copy(p[c:n], r.buf)
	}
	r.start = (r.start + n) % len(r.buf)
	r.size -= n
	return n
}

// Discard drops up to n of the oldest unread bytes and returns how many were
// dropped. This is the only way unread audio leaves the buffer without being
// read, so callers can count every sacrificed byte.
func (r *Ring) Discard(n int) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	if n <= 0 {
		return 0
	}
	r.start = (r.start + n) % len(r.buf)
	r.size -= n
	return n
}

// Len returns the number of unread bytes.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Free returns the number of bytes that can be written without eviction.
func (r *Ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.size
}

// Cap returns the fixed capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Empty reports whether no unread bytes remain.
func (r *Ring) Empty() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size == 0
}

// Reset drops all unread bytes.
func (r *Ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.start = 0
	r.size = 0
}
