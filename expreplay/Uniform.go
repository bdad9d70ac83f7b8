package expreplay

import (
	"fmt"

	"golang.org/x/exp/rand"
)

// Uniform implements an ExperienceReplayer which samples uniformly
// randomly, with replacement, from a circular store. Once the buffer
// is full, each Push evicts the oldest experience.
type Uniform[T any] struct {
	store   *ring[*Experience[T]]
	sampler *uniformSelector
}

// NewUniform returns a new Uniform buffer holding at most capacity
// experiences. Random numbers are drawn from src, so two buffers with
// identically seeded sources sample identically.
func NewUniform[T any](capacity int, src rand.Source) (*Uniform[T], error) {
	if capacity < 1 {
		return nil, invalid("newUniform",
			fmt.Sprintf("capacity must be >= 1 \n\twant(>=1)\n\thave(%v)",
				capacity))
	}
	if src == nil {
		return nil, invalid("newUniform", "nil random source")
	}

	return &Uniform[T]{
		store:   newRing[*Experience[T]](capacity),
		sampler: newUniformSelector(src),
	}, nil
}

// Push adds an experience to the buffer
func (u *Uniform[T]) Push(e *Experience[T]) error {
	if e == nil {
		return invalid("push", "nil experience")
	}

	u.store.put(e)
	return nil
}

// Sample draws batchSize experiences uniformly randomly from the
// buffer. The batch size may exceed Size(), since sampling is done
// with replacement. All returned weights are 1.
func (u *Uniform[T]) Sample(batchSize int) ([]Sample[T], error) {
	if batchSize < 1 {
		return nil, invalid("sample", fmt.Sprintf("batch size must be >= 1 "+
			"\n\twant(>=1)\n\thave(%v)", batchSize))
	}
	if u.Size() == 0 {
		return nil, newError("sample", ErrEmptyBuffer)
	}

	indices := u.sampler.choose(batchSize, u.Size())
	batch := make([]Sample[T], batchSize)
	for i, index := range indices {
		batch[i] = Sample[T]{
			Experience: u.store.at(index),
			Weight:     1.0,
			Index:      index,
		}
	}
	return batch, nil
}

// Update validates its arguments and otherwise does nothing, since a
// Uniform buffer stores no priorities.
func (u *Uniform[T]) Update(samples []Sample[T], absErrors []float64) error {
	return checkUpdate(samples, absErrors, u.Size())
}

// Size returns the current number of experiences in the buffer
func (u *Uniform[T]) Size() int {
	return u.store.count()
}

// Capacity returns the maximum number of experiences in the buffer
func (u *Uniform[T]) Capacity() int {
	return u.store.capacity()
}

// Stats returns a snapshot of the buffer's state
func (u *Uniform[T]) Stats() Stats {
	return Stats{Size: u.Size(), Capacity: u.Capacity()}
}

// String returns a description of the buffer and its parameters
func (u *Uniform[T]) String() string {
	return fmt.Sprintf("Uniform: capacity=%v", u.Capacity())
}
