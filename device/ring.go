package device

import "sync"

// Ring is a fixed-capacity byte FIFO with one producer and one consumer.
// Each operation holds the lock for a single step so the producer is never
// excluded for long.
type Ring struct {
	mu    sync.Mutex
	buf   []byte
	head  int // next write
	tail  int // next read
	count int
}

// NewRing creates a ring holding up to capacity bytes.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultRingCapacity
	}
	return &Ring{buf: make([]byte, capacity)}
}

// Produce appends b. A full ring drops b and returns false.
func (r *Ring) Produce(b byte) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count >= len(r.buf) {
		return false
	}
	r.buf[r.head] = b
	r.head++
	if r.head == len(r.buf) {
		r.head = 0
	}
	r.count++
	return true
}

// Pop removes the oldest byte.
func (r *Ring) Pop() (byte, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return 0, false
	}
	b := r.buf[r.tail]
	r.tail++
	if r.tail == len(r.buf) {
		r.tail = 0
	}
	r.count--
	return b, true
}

// Count returns the number of buffered bytes.
func (r *Ring) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Cap returns the ring capacity.
func (r *Ring) Cap() int {
	return len(r.buf)
}

// Reset discards every buffered byte.
func (r *Ring) Reset() {
	r.mu.Lock()
	r.head, r.tail, r.count = 0, 0, 0
	r.mu.Unlock()
}
