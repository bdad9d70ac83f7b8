package expreplay

import "sync"

// Locked wraps an ExperienceReplayer so that it can be shared between
// goroutines, for example an actor pushing experience while a learner
// samples and updates. Every method holds a single mutex for its whole
// duration; priority updates walk shared ancestor chains of the
// SumTree, so finer grained locking is not attempted.
//
// Locking does not remove the staleness between Sample and Update: a
// Push from another goroutine may overwrite a sampled slot before the
// learner's Update arrives.
type Locked[T any] struct {
	mu sync.Mutex
	r  ExperienceReplayer[T]
}

// NewLocked returns a new Locked wrapping r
func NewLocked[T any](r ExperienceReplayer[T]) *Locked[T] {
	return &Locked[T]{r: r}
}

// Push adds an experience to the buffer
func (l *Locked[T]) Push(e *Experience[T]) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Push(e)
}

// Sample draws a batch from the buffer
func (l *Locked[T]) Sample(batchSize int) ([]Sample[T], error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Sample(batchSize)
}

// Update reports the absolute errors computed on a sampled batch
func (l *Locked[T]) Update(samples []Sample[T], absErrors []float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Update(samples, absErrors)
}

// Size returns the current number of experiences in the buffer
func (l *Locked[T]) Size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Size()
}

// Capacity returns the maximum number of experiences in the buffer
func (l *Locked[T]) Capacity() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Capacity()
}

// Stats returns a snapshot of the buffer's state
func (l *Locked[T]) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Stats()
}
