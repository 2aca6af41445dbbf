// File: internal/buffers/ring.go
package buffers

// Ring is a fixed-capacity circular buffer that evicts its oldest entry once
// full. It is not safe for concurrent use: a Ring belongs to exactly one event
// loop and is only touched from tasks running on it.
type Ring[T any] struct {
	entries  []T
	capacity int
	head     int // index of the oldest entry once the buffer is full
}

// NewRing creates a ring holding at most capacity entries.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		entries:  make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest entry when the ring is full. It reports
// whether an entry was evicted.
func (r *Ring[T]) Push(v T) bool {
	if len(r.entries) < r.capacity {
		r.entries = append(r.entries, v)
		return false
	}
	r.entries[r.head] = v
	r.head = (r.head + 1) % r.capacity
	return true
}

// Len returns the number of entries held.
func (r *Ring[T]) Len() int { return len(r.entries) }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return r.capacity }

// at maps a logical position (0 = oldest) to a slice index.
func (r *Ring[T]) at(i int) int {
	return (r.head + i) % len(r.entries)
}

// All returns a copy of the entries, oldest first. It never returns nil.
func (r *Ring[T]) All() []T {
	return r.Last(len(r.entries))
}

// Last returns a copy of the newest n entries, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n > len(r.entries) {
		n = len(r.entries)
	}
	if n < 0 {
		n = 0
	}
	out := make([]T, n)
	start := len(r.entries) - n
	for i := 0; i < n; i++ {
		out[i] = r.entries[r.at(start+i)]
	}
	return out
}

// FindLast returns a pointer to the newest entry for which match returns true,
// or nil. The pointer stays valid until the next Push.
func (r *Ring[T]) FindLast(match func(*T) bool) *T {
	for i := len(r.entries) - 1; i >= 0; i-- {
		p := &r.entries[r.at(i)]
		if match(p) {
			return p
		}
	}
	return nil
}
