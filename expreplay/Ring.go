package expreplay

// ring is the circular store underlying both replay buffers. Slots are
// filled in order; once every slot is in use, each put overwrites the
// oldest slot.
type ring[T any] struct {
	slots []T
	next  int // Slot written by the next put
	size  int // Number of slots in use
}

// newRing returns a new ring with the given number of slots. Capacity
// must be positive.
func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{slots: make([]T, capacity)}
}

// put stores v in the slot at the write cursor, evicting whatever was
// there, and returns the slot written
func (r *ring[T]) put(v T) int {
	slot := r.next
	r.slots[slot] = v

	r.next = (r.next + 1) % len(r.slots)
	if r.size < len(r.slots) {
		r.size++
	}
	return slot
}

// at returns the value stored in slot i
func (r *ring[T]) at(i int) T {
	return r.slots[i]
}

// count returns the number of slots in use
func (r *ring[T]) count() int {
	return r.size
}

// capacity returns the total number of slots
func (r *ring[T]) capacity() int {
	return len(r.slots)
}

// cursor returns the slot that the next put will write
func (r *ring[T]) cursor() int {
	return r.next
}
