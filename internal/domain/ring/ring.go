// Package ring provides a fixed-capacity, newest-first buffer.
package ring

// Buffer keeps at most Cap items. Push inserts at the head and drops the
// oldest item once the buffer is full. Not safe for concurrent use.
type Buffer[T any] struct {
	items []T
	head  int // index of the next write
	size  int
}

// New returns an empty buffer. Capacities below 1 are clamped to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Push inserts item at the head, evicting the tail when full.
func (b *Buffer[T]) Push(item T) {
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
	if b.size < len(b.items) {
		b.size++
	}
}

// List returns a copy of the contents, newest first.
func (b *Buffer[T]) List() []T {
	out := make([]T, b.size)
	idx := b.head
	for i := 0; i < b.size; i++ {
		idx--
		if idx < 0 {
			idx = len(b.items) - 1
		}
		out[i] = b.items[idx]
	}
	return out
}

// Len returns the number of items held.
func (b *Buffer[T]) Len() int { return b.size }

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int { return len(b.items) }
